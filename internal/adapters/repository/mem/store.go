// Package mem provides the in-memory Store backend.
//
// Writes mutate maps under a mutex; ranking reads are served from an
// immutable sorted view that is rebuilt on write and swapped atomically, so
// queries never observe a partially updated table.
package mem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/favedex/favedex/internal/adapters/repository"
	"github.com/favedex/favedex/internal/domain/model"
)

// rankingView is an immutable, ordered snapshot of the ranking table.
type rankingView struct {
	byID    map[int]model.RankingEntry
	ordered []model.RankingEntry // count desc, id asc
}

// Store implements repository.Store entirely in memory.
type Store struct {
	mu sync.RWMutex

	// events holds one record per (owner, pokemon) pair; retraction flips
	// Active rather than deleting, keeping audit history.
	events map[string]map[int]model.FavoriteEvent

	// names remembers the latest display name seen for each pokemon, so
	// aggregation can label entries whose events were all retracted.
	names map[int]string

	activeTotal int

	ranking atomic.Pointer[rankingView]

	now func() time.Time
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		events: make(map[string]map[int]model.FavoriteEvent),
		names:  make(map[int]string),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.ranking.Store(newView(nil))

	return s
}

func newView(entries []model.RankingEntry) *rankingView {
	v := &rankingView{
		byID:    make(map[int]model.RankingEntry, len(entries)),
		ordered: make([]model.RankingEntry, len(entries)),
	}
	copy(v.ordered, entries)
	sortEntries(v.ordered)
	for _, e := range entries {
		v.byID[e.PokemonID] = e
	}
	return v
}

// sortEntries orders by favorite count descending, pokemon id ascending, so
// ordering is deterministic across recomputation runs.
func sortEntries(entries []model.RankingEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].FavoriteCount != entries[j].FavoriteCount {
			return entries[i].FavoriteCount > entries[j].FavoriteCount
		}
		return entries[i].PokemonID < entries[j].PokemonID
	})
}

// ActiveByOwner returns the owner's current active favorites keyed by id.
func (s *Store) ActiveByOwner(_ context.Context, ownerID string) (map[int]model.FavoriteEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int]model.FavoriteEvent)
	for id, ev := range s.events[ownerID] {
		if ev.Active {
			out[id] = ev
		}
	}
	return out, nil
}

// Apply inserts active events and deactivates removeIDs, all-or-nothing for
// one owner.
func (s *Store) Apply(_ context.Context, ownerID string, adds []model.FavoriteEvent, removeIDs []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.events[ownerID]

	// Validate the whole batch before mutating anything.
	for _, ev := range adds {
		if cur, ok := owned[ev.PokemonID]; ok && cur.Active {
			return fmt.Errorf("%w: pokemon %d already active for owner %s",
				repository.ErrConflict, ev.PokemonID, ownerID)
		}
	}
	for _, id := range removeIDs {
		if cur, ok := owned[id]; !ok || !cur.Active {
			return fmt.Errorf("%w: pokemon %d not active for owner %s",
				repository.ErrConflict, id, ownerID)
		}
	}

	if owned == nil {
		owned = make(map[int]model.FavoriteEvent)
		s.events[ownerID] = owned
	}

	now := s.now()
	for _, ev := range adds {
		ev.OwnerID = ownerID
		ev.Active = true
		if ev.RecordedAt.IsZero() {
			ev.RecordedAt = now
		}
		owned[ev.PokemonID] = ev
		s.names[ev.PokemonID] = ev.PokemonName
		s.activeTotal++
	}
	for _, id := range removeIDs {
		cur := owned[id]
		cur.Active = false
		cur.RecordedAt = now
		owned[id] = cur
		s.activeTotal--
	}

	return nil
}

// CountDistinctOwners derives active-owner counts for exactly the given ids.
func (s *Store) CountDistinctOwners(_ context.Context, pokemonIDs []int) ([]repository.OwnerCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[int]int, len(pokemonIDs))
	for _, id := range pokemonIDs {
		want[id] = 0
	}
	for _, owned := range s.events {
		for id, ev := range owned {
			if _, ok := want[id]; ok && ev.Active {
				want[id]++
			}
		}
	}

	out := make([]repository.OwnerCount, 0, len(want))
	for id, owners := range want {
		out = append(out, repository.OwnerCount{
			PokemonID:   id,
			PokemonName: s.names[id],
			Owners:      owners,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PokemonID < out[j].PokemonID })
	return out, nil
}

// ScanActive derives active-owner counts for every pokemon ever seen.
func (s *Store) ScanActive(_ context.Context) ([]repository.OwnerCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[int]int, len(s.names))
	for id := range s.names {
		counts[id] = 0
	}
	for _, owned := range s.events {
		for id, ev := range owned {
			if ev.Active {
				counts[id]++
			}
		}
	}

	out := make([]repository.OwnerCount, 0, len(counts))
	for id, owners := range counts {
		out = append(out, repository.OwnerCount{
			PokemonID:   id,
			PokemonName: s.names[id],
			Owners:      owners,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PokemonID < out[j].PokemonID })
	return out, nil
}

// TotalActive returns the number of active favorite events.
func (s *Store) TotalActive(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeTotal, nil
}

// TruncateEvents discards all events, active and retracted.
func (s *Store) TruncateEvents(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make(map[string]map[int]model.FavoriteEvent)
	s.names = make(map[int]string)
	s.activeTotal = 0
	return nil
}

// Upsert inserts or updates the given entries and rebuilds the read view.
func (s *Store) Upsert(_ context.Context, entries []model.RankingEntry) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.ranking.Load()
	merged := make(map[int]model.RankingEntry, len(cur.byID)+len(entries))
	for id, e := range cur.byID {
		merged[id] = e
	}

	var inserted, updated int
	for _, e := range entries {
		if prev, ok := merged[e.PokemonID]; ok {
			if e.PokemonName == "" {
				e.PokemonName = prev.PokemonName
			}
			updated++
		} else {
			inserted++
		}
		merged[e.PokemonID] = e
	}

	all := make([]model.RankingEntry, 0, len(merged))
	for _, e := range merged {
		all = append(all, e)
	}
	s.ranking.Store(newView(all))
	return inserted, updated, nil
}

// ReplaceAll atomically swaps the whole table for the given entries.
func (s *Store) ReplaceAll(_ context.Context, entries []model.RankingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ranking.Store(newView(entries))
	return nil
}

// TopN returns up to n entries in ranking order.
func (s *Store) TopN(_ context.Context, n int, includeZero bool) ([]model.RankingEntry, error) {
	if n < 1 {
		return nil, repository.ErrInvalidLimit
	}

	v := s.ranking.Load()
	out := make([]model.RankingEntry, 0, n)
	for _, e := range v.ordered {
		if !includeZero && e.FavoriteCount == 0 {
			break // ordered view puts zero counts last
		}
		out = append(out, e)
		if len(out) == n {
			break
		}
	}
	return out, nil
}

// Get returns the entry for one pokemon, or ErrNotFound.
func (s *Store) Get(_ context.Context, pokemonID int) (model.RankingEntry, error) {
	v := s.ranking.Load()
	e, ok := v.byID[pokemonID]
	if !ok {
		return model.RankingEntry{}, repository.ErrNotFound
	}
	return e, nil
}

// Stats summarizes the materialized table.
func (s *Store) Stats(_ context.Context) (model.RankingStats, error) {
	v := s.ranking.Load()

	var stats model.RankingStats
	for _, e := range v.ordered {
		if e.FavoriteCount == 0 {
			break
		}
		stats.TotalDistinctPokemon++
		stats.TotalFavoriteEvents += e.FavoriteCount
	}
	if len(v.ordered) > 0 && v.ordered[0].FavoriteCount > 0 {
		top := v.ordered[0]
		stats.TopPokemon = &top
	}
	return stats, nil
}

// Size returns the total number of materialized entries.
func (s *Store) Size(_ context.Context) (int, error) {
	return len(s.ranking.Load().ordered), nil
}

// TruncateRanking discards all materialized entries.
func (s *Store) TruncateRanking(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ranking.Store(newView(nil))
	return nil
}

// Close releases nothing for the in-memory backend.
func (s *Store) Close() error { return nil }
