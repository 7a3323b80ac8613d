// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// FavoriteEvent records one owner's assertion that it holds (or no longer
// holds) a Pokémon as a favorite. Events are never physically deleted except
// by the destructive force-clear path; retraction flips Active to false.
type FavoriteEvent struct {
	OwnerID     string
	PokemonID   int
	PokemonName string
	RecordedAt  time.Time
	Active      bool
}

// FavoritePair is one (id, name) element of a client-reported snapshot.
type FavoritePair struct {
	PokemonID   int    `json:"pokemon_id"`
	PokemonName string `json:"pokemon_name"`
}

// Validate rejects malformed pairs before any write happens.
func (p FavoritePair) Validate() error {
	if p.PokemonID < 1 {
		return fmt.Errorf("%w: pokemon_id must be >= 1, got %d", ErrValidation, p.PokemonID)
	}
	if strings.TrimSpace(p.PokemonName) == "" {
		return fmt.Errorf("%w: missing pokemon_name for id %d", ErrValidation, p.PokemonID)
	}
	return nil
}

// Snapshot is the complete current favorite set reported by one owner,
// keyed by pokemon id. An empty snapshot means "zero favorites".
type Snapshot map[int]string

// NewSnapshot validates and normalizes a reported pair list into a Snapshot.
// Duplicate ids collapse; the last reported name wins.
func NewSnapshot(pairs []FavoritePair) (Snapshot, error) {
	s := make(Snapshot, len(pairs))
	for _, p := range pairs {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		s[p.PokemonID] = p.PokemonName
	}
	return s, nil
}

// RankingEntry is the materialized aggregate for one Pokémon. FavoriteCount
// always equals the number of distinct owners holding an active event; the
// entry is a cache derived from the event store, never a source of truth.
type RankingEntry struct {
	PokemonID     int       `json:"pokemon_id"`
	PokemonName   string    `json:"pokemon_name"`
	FavoriteCount int       `json:"favorite_count"`
	LastUpdated   time.Time `json:"last_updated"`
}

// RankingStats summarizes the materialized ranking table.
type RankingStats struct {
	TotalDistinctPokemon int           `json:"total_distinct_pokemon_favorited"`
	TotalFavoriteEvents  int           `json:"total_favorite_events"`
	TopPokemon           *RankingEntry `json:"top_pokemon,omitempty"`
}

// SyncReport summarizes one orchestration cycle. Only the most recent report
// is retained, for operator visibility.
type SyncReport struct {
	ID                    string          `json:"id"`
	Processed             int             `json:"processed"`
	Successful            int             `json:"successful"`
	Failed                int             `json:"failed"`
	TotalCaptures         int             `json:"total_captures"`
	Stats                 SyncReportStats `json:"stats"`
	InconsistencyDetected bool            `json:"inconsistency_detected"`
	Timestamp             time.Time       `json:"timestamp"`
}

// SyncReportStats mirrors the coverage block of the sync response:
// Coverage counts ranking entries with a positive count, Downloaded counts
// active favorite events, Total counts all materialized entries.
type SyncReportStats struct {
	Coverage   int `json:"coverage"`
	Downloaded int `json:"downloaded"`
	Total      int `json:"total"`
}
