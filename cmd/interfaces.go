package cmd

import (
	"context"

	"github.com/anicoll/onvif-integration/internal/pkg/config"
)

// BridgeService defines the interface that cmd.run expects from the event
// bridge.
type BridgeService interface {
	Start(ctx context.Context) error
	Reload(ctx context.Context, cfg *config.Config) error
	Rebuild(ctx context.Context) error
	Shutdown(ctx context.Context)
}
