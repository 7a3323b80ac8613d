// Package sqlite provides the durable Store backend on modernc.org/sqlite.
//
// Schema is managed by goose migrations embedded in the binary. All writes
// for one owner happen in a single transaction, which is also what makes
// ReplaceAll an atomic table swap for readers.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	// SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/favedex/favedex/internal/adapters/repository"
	"github.com/favedex/favedex/internal/domain/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const driver = "sqlite"

// Store implements repository.Store on a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (and migrates) the SQLite database at the provided path.
// Use ":memory:" for an ephemeral database.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = "data/favedex.db"
	}

	db, err := sql.Open(driver, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", repository.ErrStorage, path, err)
	}
	// A single connection sidesteps table-lock contention between the
	// reconciler's transactions and ranking reads.
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(driver); err != nil {
		return nil, fmt.Errorf("%w: set dialect: %v", repository.ErrStorage, err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", repository.ErrStorage, err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func dsn(path string) string {
	values := url.Values{}
	values.Add("_pragma", "foreign_keys(ON)")
	values.Add("_pragma", "journal_mode(WAL)")
	values.Add("_pragma", "synchronous(NORMAL)")
	values.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + values.Encode()
}

// ActiveByOwner returns the owner's current active favorites keyed by id.
func (s *Store) ActiveByOwner(ctx context.Context, ownerID string) (map[int]model.FavoriteEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pokemon_id, pokemon_name, recorded_at
		   FROM favorite_events
		  WHERE owner_id = ? AND active = 1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: query active events: %v", repository.ErrStorage, err)
	}
	defer rows.Close()

	out := make(map[int]model.FavoriteEvent)
	for rows.Next() {
		ev := model.FavoriteEvent{OwnerID: ownerID, Active: true}
		var recorded string
		if err := rows.Scan(&ev.PokemonID, &ev.PokemonName, &recorded); err != nil {
			return nil, fmt.Errorf("%w: scan event: %v", repository.ErrStorage, err)
		}
		ev.RecordedAt, _ = time.Parse(time.RFC3339Nano, recorded)
		out[ev.PokemonID] = ev
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate events: %v", repository.ErrStorage, err)
	}
	return out, nil
}

// Apply inserts active events and deactivates removeIDs in one transaction.
func (s *Store) Apply(ctx context.Context, ownerID string, adds []model.FavoriteEvent, removeIDs []int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", repository.ErrStorage, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	now := s.now().UTC().Format(time.RFC3339Nano)

	for _, ev := range adds {
		// Re-favoriting a retracted pair reactivates its row; an already
		// active row means another reconciliation got here first.
		res, err := tx.ExecContext(ctx,
			`INSERT INTO favorite_events (owner_id, pokemon_id, pokemon_name, recorded_at, active)
			 VALUES (?, ?, ?, ?, 1)
			 ON CONFLICT (owner_id, pokemon_id) DO UPDATE
			    SET pokemon_name = excluded.pokemon_name,
			        recorded_at  = excluded.recorded_at,
			        active       = 1
			  WHERE favorite_events.active = 0`,
			ownerID, ev.PokemonID, ev.PokemonName, now)
		if err != nil {
			return fmt.Errorf("%w: insert event: %v", repository.ErrStorage, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: pokemon %d already active for owner %s",
				repository.ErrConflict, ev.PokemonID, ownerID)
		}
	}

	for _, id := range removeIDs {
		res, err := tx.ExecContext(ctx,
			`UPDATE favorite_events
			    SET active = 0, recorded_at = ?
			  WHERE owner_id = ? AND pokemon_id = ? AND active = 1`,
			now, ownerID, id)
		if err != nil {
			return fmt.Errorf("%w: retract event: %v", repository.ErrStorage, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: pokemon %d not active for owner %s",
				repository.ErrConflict, id, ownerID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", repository.ErrStorage, err)
	}
	return nil
}

// CountDistinctOwners derives active-owner counts for exactly the given ids.
// Ids with no events at all come back with zero owners and an empty name.
func (s *Store) CountDistinctOwners(ctx context.Context, pokemonIDs []int) ([]repository.OwnerCount, error) {
	if len(pokemonIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(pokemonIDs)), ",")
	args := make([]any, len(pokemonIDs))
	for i, id := range pokemonIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT pokemon_id, MAX(pokemon_name),
		        SUM(CASE WHEN active = 1 THEN 1 ELSE 0 END)
		   FROM favorite_events
		  WHERE pokemon_id IN (`+placeholders+`)
		  GROUP BY pokemon_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: count owners: %v", repository.ErrStorage, err)
	}
	defer rows.Close()

	found := make(map[int]repository.OwnerCount, len(pokemonIDs))
	for rows.Next() {
		var oc repository.OwnerCount
		if err := rows.Scan(&oc.PokemonID, &oc.PokemonName, &oc.Owners); err != nil {
			return nil, fmt.Errorf("%w: scan count: %v", repository.ErrStorage, err)
		}
		found[oc.PokemonID] = oc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate counts: %v", repository.ErrStorage, err)
	}

	out := make([]repository.OwnerCount, 0, len(pokemonIDs))
	seen := make(map[int]bool, len(pokemonIDs))
	for _, id := range pokemonIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if oc, ok := found[id]; ok {
			out = append(out, oc)
			continue
		}
		out = append(out, repository.OwnerCount{PokemonID: id})
	}
	return out, nil
}

// ScanActive derives active-owner counts for every pokemon with events.
func (s *Store) ScanActive(ctx context.Context) ([]repository.OwnerCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pokemon_id, MAX(pokemon_name),
		        SUM(CASE WHEN active = 1 THEN 1 ELSE 0 END)
		   FROM favorite_events
		  GROUP BY pokemon_id
		  ORDER BY pokemon_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: scan active: %v", repository.ErrStorage, err)
	}
	defer rows.Close()

	var out []repository.OwnerCount
	for rows.Next() {
		var oc repository.OwnerCount
		if err := rows.Scan(&oc.PokemonID, &oc.PokemonName, &oc.Owners); err != nil {
			return nil, fmt.Errorf("%w: scan count: %v", repository.ErrStorage, err)
		}
		out = append(out, oc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate counts: %v", repository.ErrStorage, err)
	}
	return out, nil
}

// TotalActive returns the number of active favorite events.
func (s *Store) TotalActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM favorite_events WHERE active = 1`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count active: %v", repository.ErrStorage, err)
	}
	return n, nil
}

// TruncateEvents discards all events, active and retracted.
func (s *Store) TruncateEvents(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM favorite_events`); err != nil {
		return fmt.Errorf("%w: truncate events: %v", repository.ErrStorage, err)
	}
	return nil
}

// Upsert inserts or updates the given entries.
func (s *Store) Upsert(ctx context.Context, entries []model.RankingEntry) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: begin: %v", repository.ErrStorage, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var inserted, updated int
	for _, e := range entries {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM ranking_entries WHERE pokemon_id = ?`, e.PokemonID).Scan(&exists)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: probe entry: %v", repository.ErrStorage, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO ranking_entries (pokemon_id, pokemon_name, favorite_count, last_updated)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (pokemon_id) DO UPDATE
			    SET pokemon_name = CASE WHEN excluded.pokemon_name = ''
			                            THEN ranking_entries.pokemon_name
			                            ELSE excluded.pokemon_name END,
			        favorite_count = excluded.favorite_count,
			        last_updated   = excluded.last_updated`,
			e.PokemonID, e.PokemonName, e.FavoriteCount,
			e.LastUpdated.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return 0, 0, fmt.Errorf("%w: upsert entry: %v", repository.ErrStorage, err)
		}

		if exists > 0 {
			updated++
		} else {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("%w: commit: %v", repository.ErrStorage, err)
	}
	return inserted, updated, nil
}

// ReplaceAll swaps the whole table for the given entries in one transaction.
func (s *Store) ReplaceAll(ctx context.Context, entries []model.RankingEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", repository.ErrStorage, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `DELETE FROM ranking_entries`); err != nil {
		return fmt.Errorf("%w: clear ranking: %v", repository.ErrStorage, err)
	}
	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ranking_entries (pokemon_id, pokemon_name, favorite_count, last_updated)
			 VALUES (?, ?, ?, ?)`,
			e.PokemonID, e.PokemonName, e.FavoriteCount,
			e.LastUpdated.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("%w: insert entry: %v", repository.ErrStorage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", repository.ErrStorage, err)
	}
	return nil
}

// TopN returns up to n entries in ranking order.
func (s *Store) TopN(ctx context.Context, n int, includeZero bool) ([]model.RankingEntry, error) {
	if n < 1 {
		return nil, repository.ErrInvalidLimit
	}

	query := `SELECT pokemon_id, pokemon_name, favorite_count, last_updated
	            FROM ranking_entries`
	if !includeZero {
		query += ` WHERE favorite_count > 0`
	}
	query += ` ORDER BY favorite_count DESC, pokemon_id ASC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("%w: query ranking: %v", repository.ErrStorage, err)
	}
	defer rows.Close()

	var out []model.RankingEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate ranking: %v", repository.ErrStorage, err)
	}
	return out, nil
}

func scanEntry(rows *sql.Rows) (model.RankingEntry, error) {
	var e model.RankingEntry
	var ts string
	if err := rows.Scan(&e.PokemonID, &e.PokemonName, &e.FavoriteCount, &ts); err != nil {
		return e, fmt.Errorf("%w: scan entry: %v", repository.ErrStorage, err)
	}
	e.LastUpdated, _ = time.Parse(time.RFC3339Nano, ts)
	return e, nil
}

// Get returns the entry for one pokemon, or ErrNotFound.
func (s *Store) Get(ctx context.Context, pokemonID int) (model.RankingEntry, error) {
	var e model.RankingEntry
	var ts string
	err := s.db.QueryRowContext(ctx,
		`SELECT pokemon_id, pokemon_name, favorite_count, last_updated
		   FROM ranking_entries WHERE pokemon_id = ?`, pokemonID).
		Scan(&e.PokemonID, &e.PokemonName, &e.FavoriteCount, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RankingEntry{}, repository.ErrNotFound
	}
	if err != nil {
		return model.RankingEntry{}, fmt.Errorf("%w: get entry: %v", repository.ErrStorage, err)
	}
	e.LastUpdated, _ = time.Parse(time.RFC3339Nano, ts)
	return e, nil
}

// Stats summarizes the materialized table.
func (s *Store) Stats(ctx context.Context) (model.RankingStats, error) {
	var stats model.RankingStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(favorite_count), 0)
		   FROM ranking_entries WHERE favorite_count > 0`).
		Scan(&stats.TotalDistinctPokemon, &stats.TotalFavoriteEvents)
	if err != nil {
		return stats, fmt.Errorf("%w: ranking stats: %v", repository.ErrStorage, err)
	}

	top, err := s.TopN(ctx, 1, false)
	if err != nil {
		return stats, err
	}
	if len(top) > 0 {
		stats.TopPokemon = &top[0]
	}
	return stats, nil
}

// Size returns the total number of materialized entries.
func (s *Store) Size(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ranking_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: ranking size: %v", repository.ErrStorage, err)
	}
	return n, nil
}

// TruncateRanking discards all materialized entries.
func (s *Store) TruncateRanking(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ranking_entries`); err != nil {
		return fmt.Errorf("%w: truncate ranking: %v", repository.ErrStorage, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
