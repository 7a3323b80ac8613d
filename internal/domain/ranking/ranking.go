// Package ranking maintains the materialized per-Pokémon favorite counts.
//
// The aggregator is the only writer to the ranking table. Incremental
// recomputation touches exactly the affected ids; the full rebuild is the
// disaster-recovery path and replaces the table atomically.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/favedex/favedex/internal/adapters/repository"
	"github.com/favedex/favedex/internal/domain/model"
	"github.com/favedex/favedex/pkg/logger"
	"github.com/favedex/favedex/pkg/metrics"
)

// Aggregator derives ranking entries from the event store.
type Aggregator struct {
	events  repository.EventStore
	ranking repository.RankingStore

	// rebuildMu serializes full rebuilds; incremental recomputation and
	// reads proceed concurrently, the store's swap is what readers see.
	rebuildMu sync.Mutex

	now    func() time.Time
	logger logger.Logger
}

// New creates an aggregator over the given stores.
func New(events repository.EventStore, ranking repository.RankingStore, opts ...Option) *Aggregator {
	a := &Aggregator{
		events:  events,
		ranking: ranking,
		now:     time.Now,
		logger:  logger.Named("ranking"),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// RecomputeAffected re-derives favorite counts for exactly the given ids and
// upserts their entries. Cost is proportional to the number of changed
// Pokémon, not catalog size. Entries dropping to zero are kept with count
// zero rather than deleted.
func (a *Aggregator) RecomputeAffected(ctx context.Context, pokemonIDs []int) (inserted, updated int, err error) {
	if len(pokemonIDs) == 0 {
		return 0, 0, nil
	}

	start := time.Now()
	defer func() {
		metrics.RecordAggregateLatency(float64(time.Since(start).Milliseconds()))
	}()

	ids := dedupeSorted(pokemonIDs)

	counts, err := a.events.CountDistinctOwners(ctx, ids)
	if err != nil {
		return 0, 0, fmt.Errorf("count owners: %w", err)
	}

	entries, err := a.toEntries(counts)
	if err != nil {
		return 0, 0, err
	}

	inserted, updated, err = a.ranking.Upsert(ctx, entries)
	if err != nil {
		return 0, 0, fmt.Errorf("upsert entries: %w", err)
	}

	metrics.RecordRankingUpserts(inserted + updated)
	a.logger.Debug(ctx, "recomputed affected entries",
		logger.Int("affected", len(ids)),
		logger.Int("inserted", inserted),
		logger.Int("updated", updated),
	)

	return inserted, updated, nil
}

// RecomputeAll rebuilds the entire ranking table from a full event scan and
// swaps it in atomically; readers never observe a partially rebuilt table.
// Safe to run concurrently with ongoing reconciliation.
func (a *Aggregator) RecomputeAll(ctx context.Context) (int, error) {
	a.rebuildMu.Lock()
	defer a.rebuildMu.Unlock()

	start := time.Now()
	defer func() {
		metrics.RecordAggregateLatency(float64(time.Since(start).Milliseconds()))
	}()

	counts, err := a.events.ScanActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("scan active events: %w", err)
	}

	entries, err := a.toEntries(counts)
	if err != nil {
		return 0, err
	}

	if err := a.ranking.ReplaceAll(ctx, entries); err != nil {
		return 0, fmt.Errorf("replace ranking: %w", err)
	}

	metrics.RecordRankingRebuild()
	metrics.UpdateRankingSize(len(entries))
	a.logger.Info(ctx, "rebuilt ranking table",
		logger.Int("entries", len(entries)),
		logger.Duration("took", time.Since(start)),
	)

	return len(entries), nil
}

// toEntries converts derived counts into ranking entries, refusing to
// materialize impossible counts. Drift is surfaced, never silently repaired.
func (a *Aggregator) toEntries(counts []repository.OwnerCount) ([]model.RankingEntry, error) {
	now := a.now()
	entries := make([]model.RankingEntry, 0, len(counts))
	for _, c := range counts {
		if c.Owners < 0 {
			metrics.RecordErrorByComponent("ranking", "negative_count")
			return nil, fmt.Errorf("%w: derived count %d for pokemon %d",
				ErrInconsistency, c.Owners, c.PokemonID)
		}
		entries = append(entries, model.RankingEntry{
			PokemonID:     c.PokemonID,
			PokemonName:   c.PokemonName,
			FavoriteCount: c.Owners,
			LastUpdated:   now,
		})
	}
	return entries, nil
}

// dedupeSorted returns the unique ids in ascending order.
func dedupeSorted(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
