// Package notify provides a purely cosmetic background ticker that keeps the
// user informed while a long-running external step executes. It is never a
// control-flow dependency.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Watcher prints a liveness message at a fixed interval until stopped.
type Watcher struct {
	interval time.Duration
	logger   zerolog.Logger
}

func NewWatcher(interval time.Duration, logger zerolog.Logger) *Watcher {
	if interval <= 0 {
		interval = 8 * time.Second
	}
	return &Watcher{interval: interval, logger: logger}
}

// Watch starts the background ticker and returns a stop function. The ticker
// self-terminates when stop is called or the context is cancelled; stop is
// safe to call more than once via the context it cancels.
func (w *Watcher) Watch(ctx context.Context, message string) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.logger.Info().Msg(message)
			}
		}
	}()
	return cancel
}
