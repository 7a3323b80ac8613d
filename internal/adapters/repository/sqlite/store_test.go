package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/favedex/favedex/internal/adapters/repository"
	"github.com/favedex/favedex/internal/adapters/repository/sqlite"
	"github.com/favedex/favedex/internal/domain/model"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "favedex-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func active(owner string, id int, name string) model.FavoriteEvent {
	return model.FavoriteEvent{OwnerID: owner, PokemonID: id, PokemonName: name, Active: true}
}

func TestApplyAndActiveByOwner(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Apply(ctx, "u1", []model.FavoriteEvent{
		active("u1", 25, "pikachu"),
		active("u1", 4, "charmander"),
	}, nil))

	got, err := s.ActiveByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "pikachu", got[25].PokemonName)
	assert.True(t, got[25].Active)

	total, err := s.TotalActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestApplyConflictLeavesBatchUnapplied(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Apply(ctx, "u1", []model.FavoriteEvent{active("u1", 25, "pikachu")}, nil))

	// Second element collides with an already active row; the transaction
	// must roll back the first element too.
	err := s.Apply(ctx, "u1", []model.FavoriteEvent{
		active("u1", 7, "squirtle"),
		active("u1", 25, "pikachu"),
	}, nil)
	require.ErrorIs(t, err, repository.ErrConflict)

	got, err := s.ActiveByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.NotContains(t, got, 7)
}

func TestRetractAndReactivate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Apply(ctx, "u1", []model.FavoriteEvent{active("u1", 25, "pikachu")}, nil))
	require.NoError(t, s.Apply(ctx, "u1", nil, []int{25}))

	got, err := s.ActiveByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got)

	// Retracting an inactive row is a conflict.
	require.ErrorIs(t, s.Apply(ctx, "u1", nil, []int{25}), repository.ErrConflict)

	// Re-favoriting reactivates the audit row.
	require.NoError(t, s.Apply(ctx, "u1", []model.FavoriteEvent{active("u1", 25, "pikachu")}, nil))
	got, err = s.ActiveByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, got, 25)
}

func TestCountDistinctOwners(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Apply(ctx, "u1", []model.FavoriteEvent{active("u1", 25, "pikachu")}, nil))
	require.NoError(t, s.Apply(ctx, "u2", []model.FavoriteEvent{
		active("u2", 25, "pikachu"),
		active("u2", 4, "charmander"),
	}, nil))
	require.NoError(t, s.Apply(ctx, "u2", nil, []int{4}))

	counts, err := s.CountDistinctOwners(ctx, []int{25, 4, 999})
	require.NoError(t, err)
	require.Len(t, counts, 3)

	byID := map[int]repository.OwnerCount{}
	for _, c := range counts {
		byID[c.PokemonID] = c
	}
	assert.Equal(t, 2, byID[25].Owners)
	assert.Equal(t, 0, byID[4].Owners)
	assert.Equal(t, "charmander", byID[4].PokemonName)
	assert.Equal(t, 0, byID[999].Owners)

	all, err := s.ScanActive(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRankingRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now().UTC()

	inserted, updated, err := s.Upsert(ctx, []model.RankingEntry{
		{PokemonID: 25, PokemonName: "pikachu", FavoriteCount: 5, LastUpdated: now},
		{PokemonID: 4, PokemonName: "charmander", FavoriteCount: 3, LastUpdated: now},
		{PokemonID: 7, PokemonName: "squirtle", FavoriteCount: 3, LastUpdated: now},
		{PokemonID: 1, PokemonName: "bulbasaur", FavoriteCount: 0, LastUpdated: now},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, inserted)
	assert.Equal(t, 0, updated)

	top, err := s.TopN(ctx, 10, false)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, 25, top[0].PokemonID)
	assert.Equal(t, 4, top[1].PokemonID) // tie breaks on lower id
	assert.Equal(t, 7, top[2].PokemonID)

	withZero, err := s.TopN(ctx, 10, true)
	require.NoError(t, err)
	assert.Len(t, withZero, 4)

	_, err = s.TopN(ctx, 0, false)
	assert.ErrorIs(t, err, repository.ErrInvalidLimit)

	entry, err := s.Get(ctx, 25)
	require.NoError(t, err)
	assert.Equal(t, 5, entry.FavoriteCount)

	_, err = s.Get(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDistinctPokemon)
	assert.Equal(t, 11, stats.TotalFavoriteEvents)
	require.NotNil(t, stats.TopPokemon)
	assert.Equal(t, 25, stats.TopPokemon.PokemonID)
}

func TestUpsertKeepsNameOnBlank(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now().UTC()

	_, _, err := s.Upsert(ctx, []model.RankingEntry{
		{PokemonID: 25, PokemonName: "pikachu", FavoriteCount: 1, LastUpdated: now},
	})
	require.NoError(t, err)

	inserted, updated, err := s.Upsert(ctx, []model.RankingEntry{
		{PokemonID: 25, PokemonName: "", FavoriteCount: 0, LastUpdated: now},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.Equal(t, 1, updated)

	entry, err := s.Get(ctx, 25)
	require.NoError(t, err)
	assert.Equal(t, "pikachu", entry.PokemonName)
	assert.Equal(t, 0, entry.FavoriteCount)
}

func TestReplaceAllAndTruncate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now().UTC()

	_, _, err := s.Upsert(ctx, []model.RankingEntry{
		{PokemonID: 25, PokemonName: "pikachu", FavoriteCount: 5, LastUpdated: now},
	})
	require.NoError(t, err)

	require.NoError(t, s.ReplaceAll(ctx, []model.RankingEntry{
		{PokemonID: 150, PokemonName: "mewtwo", FavoriteCount: 9, LastUpdated: now},
	}))

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
	_, err = s.Get(ctx, 25)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, s.TruncateRanking(ctx))
	size, err = s.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, s.Apply(ctx, "u1", []model.FavoriteEvent{active("u1", 25, "pikachu")}, nil))
	require.NoError(t, s.TruncateEvents(ctx))
	total, err := s.TotalActive(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}
