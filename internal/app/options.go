// Package app provides the sync orchestrator and read facade.
package app

import (
	"time"

	"github.com/favedex/favedex/internal/adapters/repository"
	"github.com/favedex/favedex/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore injects the persistence backend. Defaults to the in-memory
// store when unset.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithSyncWorkers sets how many owners reconcile concurrently per cycle.
func WithSyncWorkers(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.syncWorkers = count
		}
	}
}

// WithMaxRankingLimit caps GET /ranking?limit.
func WithMaxRankingLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxRankingLimit = limit
		}
	}
}

// WithConflictRetries bounds per-owner conflict retry attempts.
func WithConflictRetries(retries int) Option {
	return func(s *Service) {
		if retries >= 0 {
			s.conflictRetries = uint64(retries)
		}
	}
}

// WithConflictBackoff sets the initial backoff interval between retries.
func WithConflictBackoff(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.conflictBackoff = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
