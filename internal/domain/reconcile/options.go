// Package reconcile computes and applies snapshot deltas.
package reconcile

import (
	"time"

	"github.com/favedex/favedex/pkg/logger"
)

// Option applies a configuration option to the Reconciler.
type Option func(*Reconciler)

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets a custom logger for the reconciler.
func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}
