package ranking_test

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/favedex/favedex/internal/adapters/repository"
	"github.com/favedex/favedex/internal/adapters/repository/mem"
	"github.com/favedex/favedex/internal/domain/model"
	"github.com/favedex/favedex/internal/domain/ranking"
	"github.com/favedex/favedex/internal/domain/reconcile"
)

func TestAggregator(t *testing.T) {
	ctx := context.Background()

	Convey("Given events from several owners", t, func() {
		store := mem.New()
		r := reconcile.New(store)
		agg := ranking.New(store, store)

		_, err := r.Reconcile(ctx, "u1", model.Snapshot{25: "pikachu", 4: "charmander"})
		So(err, ShouldBeNil)
		_, err = r.Reconcile(ctx, "u2", model.Snapshot{25: "pikachu"})
		So(err, ShouldBeNil)
		_, err = r.Reconcile(ctx, "u3", model.Snapshot{25: "pikachu", 7: "squirtle"})
		So(err, ShouldBeNil)

		Convey("When the affected ids are recomputed", func() {
			inserted, updated, err := agg.RecomputeAffected(ctx, []int{25, 4, 7, 25, 4})

			Convey("Then each entry holds its distinct-owner count", func() {
				So(err, ShouldBeNil)
				So(inserted, ShouldEqual, 3)
				So(updated, ShouldBeZeroValue)

				entry, err := store.Get(ctx, 25)
				So(err, ShouldBeNil)
				So(entry.FavoriteCount, ShouldEqual, 3)

				entry, err = store.Get(ctx, 4)
				So(err, ShouldBeNil)
				So(entry.FavoriteCount, ShouldEqual, 1)
			})

			Convey("And the sum of counts equals the active event total", func() {
				So(err, ShouldBeNil)
				top, err := store.TopN(ctx, 100, true)
				So(err, ShouldBeNil)

				sum := 0
				for _, e := range top {
					sum += e.FavoriteCount
				}
				total, err := store.TotalActive(ctx)
				So(err, ShouldBeNil)
				So(sum, ShouldEqual, total)
			})
		})

		Convey("When an owner retracts and only that id is recomputed", func() {
			_, _, err := agg.RecomputeAffected(ctx, []int{25, 4, 7})
			So(err, ShouldBeNil)

			delta, err := r.Reconcile(ctx, "u1", model.Snapshot{25: "pikachu"})
			So(err, ShouldBeNil)
			So(delta.Removed, ShouldResemble, []int{4})

			inserted, updated, err := agg.RecomputeAffected(ctx, delta.Affected())

			Convey("Then the entry drops to zero but is not deleted", func() {
				So(err, ShouldBeNil)
				So(inserted, ShouldBeZeroValue)
				So(updated, ShouldEqual, 1)

				entry, err := store.Get(ctx, 4)
				So(err, ShouldBeNil)
				So(entry.FavoriteCount, ShouldBeZeroValue)
				So(entry.PokemonName, ShouldEqual, "charmander")

				top, err := store.TopN(ctx, 100, false)
				So(err, ShouldBeNil)
				for _, e := range top {
					So(e.PokemonID, ShouldNotEqual, 4)
				}
			})
		})

		Convey("When no ids are affected", func() {
			inserted, updated, err := agg.RecomputeAffected(ctx, nil)

			Convey("Then nothing is written", func() {
				So(err, ShouldBeNil)
				So(inserted, ShouldBeZeroValue)
				So(updated, ShouldBeZeroValue)
				size, err := store.Size(ctx)
				So(err, ShouldBeNil)
				So(size, ShouldBeZeroValue)
			})
		})

		Convey("When incremental and full recomputation are compared", func() {
			_, _, err := agg.RecomputeAffected(ctx, []int{25, 4, 7})
			So(err, ShouldBeNil)
			incremental, err := store.TopN(ctx, 100, true)
			So(err, ShouldBeNil)

			_, err = agg.RecomputeAll(ctx)
			So(err, ShouldBeNil)
			rebuilt, err := store.TopN(ctx, 100, true)
			So(err, ShouldBeNil)

			Convey("Then both derive the same counts in the same order", func() {
				So(rebuilt, ShouldHaveLength, len(incremental))
				for i := range rebuilt {
					So(rebuilt[i].PokemonID, ShouldEqual, incremental[i].PokemonID)
					So(rebuilt[i].FavoriteCount, ShouldEqual, incremental[i].FavoriteCount)
				}
			})
		})

		Convey("When the full table is rebuilt", func() {
			// Seed a stale row that a rebuild must sweep away.
			_, _, err := store.Upsert(ctx, []model.RankingEntry{
				{PokemonID: 999, PokemonName: "ghost", FavoriteCount: 42},
			})
			So(err, ShouldBeNil)

			n, err := agg.RecomputeAll(ctx)

			Convey("Then the table is derived solely from active events", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 3)

				_, err := store.Get(ctx, 999)
				So(err, ShouldWrap, repository.ErrNotFound)

				entry, err := store.Get(ctx, 25)
				So(err, ShouldBeNil)
				So(entry.FavoriteCount, ShouldEqual, 3)
			})
		})
	})
}
