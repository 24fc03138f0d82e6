package contxt

import (
	"context"
	"time"
)

// NewContext returns a background-derived context that cancels itself after
// timeout. Reload and scheduled-resubscribe paths use it so device calls
// stay bounded without tying them to the run context.
func NewContext(timeout time.Duration) context.Context {
	if timeout <= 0 {
		return context.Background()
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ctx
}
