// Package reconcile computes and applies the delta between a client's
// reported favorite snapshot and the event store's recorded state.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/favedex/favedex/internal/adapters/repository"
	"github.com/favedex/favedex/internal/domain/model"
	"github.com/favedex/favedex/pkg/logger"
	"github.com/favedex/favedex/pkg/metrics"
)

// Delta is the outcome of one reconciliation: which pokemon gained or lost
// this owner's favorite. The union is exactly the set of ids whose aggregate
// counts may have changed.
type Delta struct {
	Added   []int
	Removed []int
}

// Affected returns the ids whose active-owner counts may have changed.
func (d Delta) Affected() []int {
	out := make([]int, 0, len(d.Added)+len(d.Removed))
	out = append(out, d.Added...)
	out = append(out, d.Removed...)
	return out
}

// Empty reports whether the snapshot matched stored state exactly.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Reconciler diffs snapshots against the event store.
type Reconciler struct {
	events repository.EventStore
	now    func() time.Time
	logger logger.Logger
}

// New creates a reconciler over the given event store.
func New(events repository.EventStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		events: events,
		now:    time.Now,
		logger: logger.Named("reconcile"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Reconcile brings the owner's stored state in line with the snapshot.
//
// The snapshot is the owner's complete current favorite set, not a delta; an
// empty snapshot retracts everything. Unchanged pairs are untouched, so the
// cost is bounded by the symmetric difference. Re-submitting an identical
// snapshot computes an empty delta and performs no writes.
func (r *Reconciler) Reconcile(ctx context.Context, ownerID string, snapshot model.Snapshot) (Delta, error) {
	start := time.Now()
	defer func() {
		metrics.RecordReconcileLatency(float64(time.Since(start).Milliseconds()))
	}()

	if strings.TrimSpace(ownerID) == "" {
		return Delta{}, fmt.Errorf("%w: missing owner id", model.ErrValidation)
	}

	current, err := r.events.ActiveByOwner(ctx, ownerID)
	if err != nil {
		return Delta{}, fmt.Errorf("load active set for %s: %w", ownerID, err)
	}

	var adds []model.FavoriteEvent
	for id, name := range snapshot {
		if _, ok := current[id]; !ok {
			adds = append(adds, model.FavoriteEvent{
				OwnerID:     ownerID,
				PokemonID:   id,
				PokemonName: name,
				RecordedAt:  r.now(),
				Active:      true,
			})
		}
	}
	var removeIDs []int
	for id := range current {
		if _, ok := snapshot[id]; !ok {
			removeIDs = append(removeIDs, id)
		}
	}

	// Deterministic apply order keeps conflict behavior reproducible.
	sort.Slice(adds, func(i, j int) bool { return adds[i].PokemonID < adds[j].PokemonID })
	sort.Ints(removeIDs)

	delta := Delta{Removed: removeIDs}
	for _, ev := range adds {
		delta.Added = append(delta.Added, ev.PokemonID)
	}

	if delta.Empty() {
		r.logger.Debug(ctx, "snapshot matches stored state; no writes",
			logger.String("owner", ownerID),
			logger.Int("favorites", len(snapshot)),
		)
		return delta, nil
	}

	// All-or-nothing for one owner: a mid-batch failure leaves stored state
	// untouched and the whole reconciliation is retried.
	if err := r.events.Apply(ctx, ownerID, adds, removeIDs); err != nil {
		return Delta{}, fmt.Errorf("apply delta for %s: %w", ownerID, err)
	}

	metrics.RecordEventsAppended(len(adds))
	metrics.RecordEventsRetracted(len(removeIDs))
	r.logger.Debug(ctx, "reconciled owner",
		logger.String("owner", ownerID),
		logger.Int("added", len(delta.Added)),
		logger.Int("removed", len(delta.Removed)),
	)

	return delta, nil
}
