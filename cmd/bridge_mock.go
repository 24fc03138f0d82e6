package cmd

import (
	"context"

	"github.com/anicoll/onvif-integration/internal/pkg/config"
)

// MockBridgeService is a mock implementation of the BridgeService interface.
type MockBridgeService struct {
	StartFunc    func(ctx context.Context) error
	ReloadFunc   func(ctx context.Context, cfg *config.Config) error
	RebuildFunc  func(ctx context.Context) error
	ShutdownFunc func(ctx context.Context)
}

func (m *MockBridgeService) Start(ctx context.Context) error {
	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}
	return nil
}

func (m *MockBridgeService) Reload(ctx context.Context, cfg *config.Config) error {
	if m.ReloadFunc != nil {
		return m.ReloadFunc(ctx, cfg)
	}
	return nil
}

func (m *MockBridgeService) Rebuild(ctx context.Context) error {
	if m.RebuildFunc != nil {
		return m.RebuildFunc(ctx)
	}
	return nil
}

func (m *MockBridgeService) Shutdown(ctx context.Context) {
	if m.ShutdownFunc != nil {
		m.ShutdownFunc(ctx)
	}
}
