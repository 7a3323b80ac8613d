package mem_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/favedex/favedex/internal/adapters/repository"
	"github.com/favedex/favedex/internal/adapters/repository/mem"
	"github.com/favedex/favedex/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func event(owner string, id int, name string) model.FavoriteEvent {
	return model.FavoriteEvent{OwnerID: owner, PokemonID: id, PokemonName: name, Active: true}
}

func TestEventStore(t *testing.T) {
	Convey("Given an in-memory store", t, func() {
		ctx := context.Background()
		s := mem.New(mem.WithClock(func() time.Time {
			return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		}))

		Convey("When events are applied for an owner", func() {
			err := s.Apply(ctx, "u1", []model.FavoriteEvent{
				event("u1", 25, "pikachu"),
				event("u1", 4, "charmander"),
			}, nil)
			So(err, ShouldBeNil)

			Convey("Then the active set reflects them", func() {
				active, err := s.ActiveByOwner(ctx, "u1")
				So(err, ShouldBeNil)
				So(active, ShouldHaveLength, 2)
				So(active[25].PokemonName, ShouldEqual, "pikachu")
			})

			Convey("Then the active total counts them", func() {
				n, err := s.TotalActive(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
			})

			Convey("And re-adding an active pair conflicts", func() {
				err := s.Apply(ctx, "u1", []model.FavoriteEvent{event("u1", 25, "pikachu")}, nil)
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			})

			Convey("And retracting one keeps audit history but drops it from the active set", func() {
				So(s.Apply(ctx, "u1", nil, []int{25}), ShouldBeNil)

				active, err := s.ActiveByOwner(ctx, "u1")
				So(err, ShouldBeNil)
				So(active, ShouldHaveLength, 1)
				So(active, ShouldNotContainKey, 25)

				n, _ := s.TotalActive(ctx)
				So(n, ShouldEqual, 1)

				Convey("And retracting it again conflicts", func() {
					err := s.Apply(ctx, "u1", nil, []int{25})
					So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
				})

				Convey("And it can be re-favorited afterwards", func() {
					So(s.Apply(ctx, "u1", []model.FavoriteEvent{event("u1", 25, "pikachu")}, nil), ShouldBeNil)
					active, _ := s.ActiveByOwner(ctx, "u1")
					So(active, ShouldContainKey, 25)
				})
			})
		})

		Convey("When a conflicting batch is applied", func() {
			So(s.Apply(ctx, "u1", []model.FavoriteEvent{event("u1", 25, "pikachu")}, nil), ShouldBeNil)
			err := s.Apply(ctx, "u1", []model.FavoriteEvent{
				event("u1", 7, "squirtle"),
				event("u1", 25, "pikachu"), // already active
			}, nil)

			Convey("Then nothing from the batch is applied", func() {
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
				active, _ := s.ActiveByOwner(ctx, "u1")
				So(active, ShouldHaveLength, 1)
				So(active, ShouldNotContainKey, 7)
			})
		})

		Convey("When counting distinct owners", func() {
			So(s.Apply(ctx, "u1", []model.FavoriteEvent{event("u1", 25, "pikachu")}, nil), ShouldBeNil)
			So(s.Apply(ctx, "u2", []model.FavoriteEvent{event("u2", 25, "pikachu")}, nil), ShouldBeNil)
			So(s.Apply(ctx, "u2", []model.FavoriteEvent{event("u2", 4, "charmander")}, nil), ShouldBeNil)
			So(s.Apply(ctx, "u2", nil, []int{4}), ShouldBeNil)

			counts, err := s.CountDistinctOwners(ctx, []int{25, 4, 999})
			So(err, ShouldBeNil)

			Convey("Then counts cover exactly the requested ids", func() {
				So(counts, ShouldHaveLength, 3)
				byID := map[int]repository.OwnerCount{}
				for _, c := range counts {
					byID[c.PokemonID] = c
				}
				So(byID[25].Owners, ShouldEqual, 2)
				So(byID[4].Owners, ShouldEqual, 0) // retracted, still named
				So(byID[4].PokemonName, ShouldEqual, "charmander")
				So(byID[999].Owners, ShouldEqual, 0)
			})

			Convey("Then a full scan covers every pokemon ever seen", func() {
				all, err := s.ScanActive(ctx)
				So(err, ShouldBeNil)
				So(all, ShouldHaveLength, 2)
			})
		})

		Convey("When events are truncated", func() {
			So(s.Apply(ctx, "u1", []model.FavoriteEvent{event("u1", 25, "pikachu")}, nil), ShouldBeNil)
			So(s.TruncateEvents(ctx), ShouldBeNil)

			Convey("Then no state remains", func() {
				active, _ := s.ActiveByOwner(ctx, "u1")
				So(active, ShouldHaveLength, 0)
				n, _ := s.TotalActive(ctx)
				So(n, ShouldEqual, 0)
				all, _ := s.ScanActive(ctx)
				So(all, ShouldHaveLength, 0)
			})
		})
	})
}

func TestRankingStore(t *testing.T) {
	Convey("Given an in-memory store", t, func() {
		ctx := context.Background()
		s := mem.New()
		now := time.Now()

		entries := []model.RankingEntry{
			{PokemonID: 7, PokemonName: "squirtle", FavoriteCount: 3, LastUpdated: now},
			{PokemonID: 4, PokemonName: "charmander", FavoriteCount: 3, LastUpdated: now},
			{PokemonID: 25, PokemonName: "pikachu", FavoriteCount: 5, LastUpdated: now},
			{PokemonID: 1, PokemonName: "bulbasaur", FavoriteCount: 0, LastUpdated: now},
		}

		Convey("When entries are upserted", func() {
			inserted, updated, err := s.Upsert(ctx, entries)
			So(err, ShouldBeNil)
			So(inserted, ShouldEqual, 4)
			So(updated, ShouldEqual, 0)

			Convey("Then TopN orders by count desc, id asc and skips zero counts", func() {
				top, err := s.TopN(ctx, 10, false)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 3)
				So(top[0].PokemonID, ShouldEqual, 25)
				So(top[1].PokemonID, ShouldEqual, 4) // ties break on lower id
				So(top[2].PokemonID, ShouldEqual, 7)
			})

			Convey("Then includeZero exposes retained zero-count entries", func() {
				top, err := s.TopN(ctx, 10, true)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 4)
				So(top[3].PokemonID, ShouldEqual, 1)
			})

			Convey("Then a non-positive limit is rejected", func() {
				_, err := s.TopN(ctx, 0, false)
				So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
			})

			Convey("Then Get finds existing entries and flags missing ones", func() {
				e, err := s.Get(ctx, 25)
				So(err, ShouldBeNil)
				So(e.FavoriteCount, ShouldEqual, 5)

				_, err = s.Get(ctx, 999)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then stats ignore zero-count entries", func() {
				stats, err := s.Stats(ctx)
				So(err, ShouldBeNil)
				So(stats.TotalDistinctPokemon, ShouldEqual, 3)
				So(stats.TotalFavoriteEvents, ShouldEqual, 11)
				So(stats.TopPokemon, ShouldNotBeNil)
				So(stats.TopPokemon.PokemonID, ShouldEqual, 25)
			})

			Convey("And upserting again reports updates, keeping names on blanks", func() {
				inserted, updated, err := s.Upsert(ctx, []model.RankingEntry{
					{PokemonID: 25, PokemonName: "", FavoriteCount: 6, LastUpdated: now},
					{PokemonID: 150, PokemonName: "mewtwo", FavoriteCount: 1, LastUpdated: now},
				})
				So(err, ShouldBeNil)
				So(inserted, ShouldEqual, 1)
				So(updated, ShouldEqual, 1)

				e, _ := s.Get(ctx, 25)
				So(e.PokemonName, ShouldEqual, "pikachu")
				So(e.FavoriteCount, ShouldEqual, 6)
			})

			Convey("And ReplaceAll swaps the whole table", func() {
				err := s.ReplaceAll(ctx, []model.RankingEntry{
					{PokemonID: 150, PokemonName: "mewtwo", FavoriteCount: 9, LastUpdated: now},
				})
				So(err, ShouldBeNil)

				size, _ := s.Size(ctx)
				So(size, ShouldEqual, 1)
				_, err = s.Get(ctx, 25)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("And truncation empties the table", func() {
				So(s.TruncateRanking(ctx), ShouldBeNil)
				size, _ := s.Size(ctx)
				So(size, ShouldEqual, 0)
				top, _ := s.TopN(ctx, 10, true)
				So(top, ShouldHaveLength, 0)
			})
		})
	})
}
