package runtime

import (
	"context"
	"os/signal"
	"syscall"
	"time"
)

// Default drain budgets used by the service mains.
const (
	HTTPDrainTimeout      = 10 * time.Second
	TelemetryFlushTimeout = 5 * time.Second
)

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ShutdownContext bounds a drain step. It does not derive from the signal context,
// which is already cancelled by the time shutdown starts.
func ShutdownContext(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
