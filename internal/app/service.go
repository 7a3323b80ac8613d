// Package app provides the sync orchestrator and the read facade consumed
// by the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/favedex/favedex/internal/adapters/repository"
	"github.com/favedex/favedex/internal/adapters/repository/mem"
	"github.com/favedex/favedex/internal/domain/model"
	"github.com/favedex/favedex/internal/domain/ownerlock"
	"github.com/favedex/favedex/internal/domain/ranking"
	"github.com/favedex/favedex/internal/domain/reconcile"
	"github.com/favedex/favedex/pkg/logger"
	"github.com/favedex/favedex/pkg/metrics"
)

// Cycle states, in the order a healthy sync passes through them.
type cycleState int32

const (
	stateIdle cycleState = iota
	stateReconciling
	stateAggregating
	stateReporting
	stateFailed
)

// Default orchestrator configuration constants.
const (
	defaultSyncWorkers     = 8
	defaultMaxRankingLimit = 100
	defaultConflictRetries = 3
	defaultConflictBackoff = 50 * time.Millisecond
)

// Service coordinates reconciliation and aggregation and serves reads.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	reconciler *reconcile.Reconciler
	aggregator *ranking.Aggregator
	locks      ownerlock.Guard

	// Configuration
	syncWorkers     int
	maxRankingLimit int
	conflictRetries uint64
	conflictBackoff time.Duration

	// State
	started     bool
	state       atomic.Int32
	needsRepair atomic.Bool
	lastReport  atomic.Pointer[model.SyncReport]

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		syncWorkers:     defaultSyncWorkers,
		maxRankingLimit: defaultMaxRankingLimit,
		conflictRetries: defaultConflictRetries,
		conflictBackoff: defaultConflictBackoff,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.store == nil {
		s.store = mem.New()
		s.logger.Info(ctx, "using in-memory store")
	}

	s.reconciler = reconcile.New(s.store, reconcile.WithLogger(s.logger.Named("reconcile")))
	s.aggregator = ranking.New(s.store, s.store, ranking.WithLogger(s.logger.Named("ranking")))
	s.locks = ownerlock.New()

	s.started = true
	s.logger.Info(ctx, "sync service started",
		logger.Int("sync_workers", s.syncWorkers),
		logger.Int("max_ranking_limit", s.maxRankingLimit),
	)

	return nil
}

// Stop releases the service's resources.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error(context.Background(), "closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(context.Background(), "sync service stopped")
}

// ownerResult carries one owner's reconciliation outcome off a worker.
type ownerResult struct {
	ownerID  string
	affected []int
	err      error
}

// SyncAll reconciles every owner in the batch, recomputes the affected
// aggregate counts once, and reports a summary.
//
// Snapshots are validated before any write; a malformed batch is rejected
// whole. Per-owner failures are isolated: they increment the report's Failed
// count without aborting the rest of the batch. Cancellation between owners
// is cooperative and already committed owners keep their work.
func (s *Service) SyncAll(ctx context.Context, owners map[string][]model.FavoritePair) (model.SyncReport, error) {
	start := time.Now()

	snapshots := make(map[string]model.Snapshot, len(owners))
	for ownerID, pairs := range owners {
		snap, err := model.NewSnapshot(pairs)
		if err != nil {
			return model.SyncReport{}, fmt.Errorf("owner %s: %w", ownerID, err)
		}
		snapshots[ownerID] = snap
	}

	s.state.Store(int32(stateReconciling))

	// Deterministic processing order; owners fan out to a bounded pool.
	ids := make([]string, 0, len(snapshots))
	for ownerID := range snapshots {
		ids = append(ids, ownerID)
	}
	sort.Strings(ids)

	jobs := make(chan string)
	results := make(chan ownerResult, len(ids))

	workers := s.syncWorkers
	if workers > len(ids) {
		workers = len(ids)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ownerID := range jobs {
				delta, err := s.reconcileOwner(ctx, ownerID, snapshots[ownerID])
				results <- ownerResult{ownerID: ownerID, affected: delta.Affected(), err: err}
			}
		}()
	}

	var cancelled bool
feed:
	for _, ownerID := range ids {
		select {
		case jobs <- ownerID:
		case <-ctx.Done():
			cancelled = true
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	report := model.SyncReport{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}

	affected := make(map[int]struct{})
	for res := range results {
		report.Processed++
		if res.err != nil {
			report.Failed++
			metrics.RecordOwnerOutcome("failed")
			metrics.RecordErrorByComponent("sync", errorKind(res.err))
			s.logger.Error(ctx, "owner reconciliation failed",
				logger.String("owner", res.ownerID),
				logger.Error(res.err),
			)
			continue
		}
		report.Successful++
		metrics.RecordOwnerOutcome("ok")
		for _, id := range res.affected {
			affected[id] = struct{}{}
		}
	}

	// Batched recomputation: many owners touching the same pokemon cost one
	// recompute, not one each.
	s.state.Store(int32(stateAggregating))
	if len(affected) > 0 {
		ids := make([]int, 0, len(affected))
		for id := range affected {
			ids = append(ids, id)
		}
		if _, _, err := s.aggregator.RecomputeAffected(ctx, ids); err != nil {
			// The table stays on its last consistent state; flag the drift
			// for an explicit rebuild instead of repairing mid-cycle.
			s.needsRepair.Store(true)
			metrics.SetInconsistencyFlagged(true)
			metrics.RecordErrorByComponent("sync", "aggregation")
			s.logger.Error(ctx, "aggregation failed; ranking table stale until rebuild",
				logger.Error(err),
			)
		}
	}

	s.state.Store(int32(stateReporting))
	s.fillReportStats(ctx, &report)
	report.InconsistencyDetected = s.needsRepair.Load()
	s.lastReport.Store(&report)

	s.state.Store(int32(stateIdle))
	metrics.RecordSyncCycle(float64(time.Since(start).Milliseconds()))

	if cancelled {
		return report, fmt.Errorf("sync cancelled after %d owners: %w", report.Processed, ctx.Err())
	}
	return report, nil
}

// reconcileOwner serializes on the owner's lock and retries conflicts with
// exponential backoff up to the configured attempt count.
func (s *Service) reconcileOwner(ctx context.Context, ownerID string, snap model.Snapshot) (reconcile.Delta, error) {
	release := s.locks.Acquire(ctx, ownerID)
	if release == nil {
		return reconcile.Delta{}, fmt.Errorf("acquire owner lock: %w", ctx.Err())
	}
	defer release()

	var delta reconcile.Delta
	op := func() error {
		d, err := s.reconciler.Reconcile(ctx, ownerID, snap)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				metrics.RecordConflictRetry()
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		delta = d
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(s.conflictBackoff),
		), s.conflictRetries),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return reconcile.Delta{}, err
	}
	return delta, nil
}

// ForceClearStorage truncates the event store and the ranking table and
// returns a zeroed report. Destructive and irreversible; the HTTP layer
// gates it behind the admin token.
func (s *Service) ForceClearStorage(ctx context.Context) (model.SyncReport, error) {
	if err := s.store.TruncateEvents(ctx); err != nil {
		s.state.Store(int32(stateFailed))
		return model.SyncReport{}, fmt.Errorf("truncate events: %w", err)
	}
	if err := s.store.TruncateRanking(ctx); err != nil {
		s.state.Store(int32(stateFailed))
		return model.SyncReport{}, fmt.Errorf("truncate ranking: %w", err)
	}

	s.needsRepair.Store(false)
	metrics.SetInconsistencyFlagged(false)
	metrics.RecordForceClear()
	metrics.UpdateActiveEvents(0)
	metrics.UpdateRankingSize(0)
	s.logger.Warn(ctx, "storage force-cleared; all favorite history discarded")

	report := model.SyncReport{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}
	s.lastReport.Store(&report)
	s.state.Store(int32(stateIdle))
	return report, nil
}

// RebuildRanking rebuilds the whole ranking table from the event store.
// This is the explicit repair path for flagged inconsistency.
func (s *Service) RebuildRanking(ctx context.Context) (model.SyncReport, error) {
	total, err := s.aggregator.RecomputeAll(ctx)
	if err != nil {
		s.state.Store(int32(stateFailed))
		return model.SyncReport{}, fmt.Errorf("recompute all: %w", err)
	}

	s.needsRepair.Store(false)
	metrics.SetInconsistencyFlagged(false)

	report := model.SyncReport{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}
	s.fillReportStats(ctx, &report)
	report.Stats.Total = total
	s.lastReport.Store(&report)
	s.state.Store(int32(stateIdle))
	return report, nil
}

// fillReportStats populates the coverage block and refreshes gauges.
func (s *Service) fillReportStats(ctx context.Context, report *model.SyncReport) {
	if total, err := s.store.TotalActive(ctx); err == nil {
		report.TotalCaptures = total
		report.Stats.Downloaded = total
		metrics.UpdateActiveEvents(total)
	}
	if stats, err := s.store.Stats(ctx); err == nil {
		report.Stats.Coverage = stats.TotalDistinctPokemon
	}
	if size, err := s.store.Size(ctx); err == nil {
		report.Stats.Total = size
		metrics.UpdateRankingSize(size)
	}
}

// TopN returns up to limit ranking entries with a positive count, ordered by
// favorite count descending then pokemon id ascending. Limits above the
// configured maximum are clamped; non-positive limits are rejected.
func (s *Service) TopN(ctx context.Context, limit int) ([]model.RankingEntry, error) {
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	if limit > s.maxRankingLimit {
		limit = s.maxRankingLimit
	}
	return s.store.TopN(ctx, limit, false)
}

// Entry returns the materialized entry for one pokemon.
func (s *Service) Entry(ctx context.Context, pokemonID int) (model.RankingEntry, error) {
	return s.store.Get(ctx, pokemonID)
}

// Stats returns aggregate ranking statistics. Pure read; never triggers
// recomputation.
func (s *Service) Stats(ctx context.Context) (model.RankingStats, error) {
	return s.store.Stats(ctx)
}

// LastReport returns the most recent sync report, or nil before any cycle.
func (s *Service) LastReport() *model.SyncReport {
	return s.lastReport.Load()
}

// MaxRankingLimit exposes the configured query cap to the HTTP layer.
func (s *Service) MaxRankingLimit() int {
	return s.maxRankingLimit
}

// GetStats returns operational counters for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":       s.started,
		"syncWorkers":   s.syncWorkers,
		"state":         cycleState(s.state.Load()).String(),
		"needsRepair":   s.needsRepair.Load(),
		"pendingOwners": 0,
	}

	if s.started {
		stats["pendingOwners"] = s.locks.Size()
		if total, err := s.store.TotalActive(ctx); err == nil {
			stats["activeEvents"] = total
		}
		if size, err := s.store.Size(ctx); err == nil {
			stats["rankingEntries"] = size
		}
	}

	return stats
}

func (c cycleState) String() string {
	switch c {
	case stateIdle:
		return "idle"
	case stateReconciling:
		return "reconciling"
	case stateAggregating:
		return "aggregating"
	case stateReporting:
		return "reporting"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// errorKind maps an error to a metrics label.
func errorKind(err error) string {
	switch {
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, repository.ErrConflict):
		return "conflict"
	case errors.Is(err, repository.ErrStorage):
		return "storage"
	case errors.Is(err, ranking.ErrInconsistency):
		return "inconsistency"
	default:
		return "unknown"
	}
}
