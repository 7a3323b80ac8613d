// Package repository defines the persistence contracts for the favorite
// event store and the materialized ranking table.
package repository

import (
	"context"

	"github.com/favedex/favedex/internal/domain/model"
)

// OwnerCount is the aggregation input derived from the event store: how many
// distinct owners currently hold an active favorite for one Pokémon.
type OwnerCount struct {
	PokemonID   int
	PokemonName string
	Owners      int
}

// EventStore owns FavoriteEvent records. The reconciler is the only writer;
// only the orchestrator's force-clear path may truncate.
type EventStore interface {
	// ActiveByOwner returns the owner's current active favorites keyed by
	// pokemon id.
	ActiveByOwner(ctx context.Context, ownerID string) (map[int]model.FavoriteEvent, error)

	// Apply inserts the given active events and deactivates the events for
	// removeIDs, all-or-nothing for one owner. Inserting an id that is
	// already active for the owner fails with ErrConflict.
	Apply(ctx context.Context, ownerID string, adds []model.FavoriteEvent, removeIDs []int) error

	// CountDistinctOwners derives active-owner counts for exactly the given
	// pokemon ids. Ids with no active events come back with zero owners.
	CountDistinctOwners(ctx context.Context, pokemonIDs []int) ([]OwnerCount, error)

	// ScanActive derives active-owner counts for every pokemon with at least
	// one event, from a consistent read snapshot. Full-rebuild input.
	ScanActive(ctx context.Context) ([]OwnerCount, error)

	// TotalActive returns the number of active favorite events.
	TotalActive(ctx context.Context) (int, error)

	// TruncateEvents discards all events, active and retracted.
	TruncateEvents(ctx context.Context) error
}

// RankingStore owns RankingEntry records. The aggregator is the only writer.
type RankingStore interface {
	// Upsert inserts or updates the given entries, reporting how many of
	// each. Zero-count entries are stored, not removed.
	Upsert(ctx context.Context, entries []model.RankingEntry) (inserted, updated int, err error)

	// ReplaceAll atomically swaps the whole table for the given entries.
	// Readers never observe a partially rebuilt table.
	ReplaceAll(ctx context.Context, entries []model.RankingEntry) error

	// TopN returns up to n entries ordered by favorite count descending,
	// pokemon id ascending. Zero-count entries are excluded unless
	// includeZero is set.
	TopN(ctx context.Context, n int, includeZero bool) ([]model.RankingEntry, error)

	// Get returns the entry for one pokemon, or ErrNotFound.
	Get(ctx context.Context, pokemonID int) (model.RankingEntry, error)

	// Stats summarizes the materialized table.
	Stats(ctx context.Context) (model.RankingStats, error)

	// Size returns the total number of materialized entries, zero counts
	// included.
	Size(ctx context.Context) (int, error)

	// TruncateRanking discards all materialized entries.
	TruncateRanking(ctx context.Context) error
}

// Store bundles both tables behind one backend handle.
type Store interface {
	EventStore
	RankingStore

	Close() error
}
