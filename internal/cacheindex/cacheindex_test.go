package cacheindex

import (
	"context"
	"testing"
	"time"

	"github.com/okian/llmrank/internal/domain/aggregate"
	. "github.com/smartystreets/goconvey/convey"
)

func row(fp, model string, score float64) aggregate.Row {
	return aggregate.Row{
		Key:         aggregate.Key{Fingerprint: fp, ModelName: model, Language: "en", SubjectType: "math", TaskType: "Knowledge"},
		Score:       score,
		SampleCount: 10,
	}
}

func TestLookupMissFreshStale(t *testing.T) {
	Convey("Given an empty cache index", t, func() {
		ctx := context.Background()
		idx := New()

		Convey("When looking up an unknown fingerprint", func() {
			res := idx.Lookup(ctx, "fp-a", time.Hour, "")

			Convey("Then it should report a miss", func() {
				So(res.Outcome, ShouldEqual, Miss)
			})
		})

		Convey("When a row has just been upserted", func() {
			_ = idx.UpsertFromTask(ctx, "t1", []aggregate.Row{row("fp-a", "gpt", 0.8)}, "v1")

			Convey("Then a lookup within TTL should be fresh", func() {
				res := idx.Lookup(ctx, "fp-a", time.Hour, "")
				So(res.Outcome, ShouldEqual, Fresh)
				So(len(res.Rows), ShouldEqual, 1)
				So(res.Rows[0].Score, ShouldEqual, 0.8)
			})

			Convey("Then a lookup with a one-nanosecond TTL window should be stale", func() {
				res := idx.Lookup(ctx, "fp-a", time.Nanosecond, "")
				time.Sleep(2 * time.Millisecond)
				res = idx.Lookup(ctx, "fp-a", time.Nanosecond, "")
				So(res.Outcome, ShouldEqual, Stale)
			})

			Convey("Then a lookup pinned to a different evaluator version should be stale", func() {
				res := idx.Lookup(ctx, "fp-a", time.Hour, "v2")
				So(res.Outcome, ShouldEqual, Stale)
			})
		})
	})
}

func TestQuarantineRestoreDelete(t *testing.T) {
	Convey("Given a cache index with one row", t, func() {
		ctx := context.Background()
		idx := New()
		key := aggregate.Key{Fingerprint: "fp-a", ModelName: "gpt", Language: "en", SubjectType: "math", TaskType: "Knowledge"}
		_ = idx.UpsertFromTask(ctx, "t1", []aggregate.Row{row("fp-a", "gpt", 0.8)}, "v1")

		Convey("When quarantining it", func() {
			n, err := idx.Quarantine(ctx, []aggregate.Key{key}, "manual review")

			Convey("Then it should be excluded from a default lookup", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				res := idx.Lookup(ctx, "fp-a", time.Hour, "")
				So(res.Outcome, ShouldEqual, Miss)
			})

			Convey("When restoring it", func() {
				_, _ = idx.Quarantine(ctx, []aggregate.Key{key}, "manual review")
				n, err := idx.Restore(ctx, []aggregate.Key{key})

				Convey("Then it should be visible again", func() {
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 1)
					res := idx.Lookup(ctx, "fp-a", time.Hour, "")
					So(res.Outcome, ShouldEqual, Fresh)
				})
			})
		})

		Convey("When hard-deleting it", func() {
			n, err := idx.HardDelete(ctx, []aggregate.Key{key})

			Convey("Then Count should drop to zero", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				So(idx.Count(ctx), ShouldEqual, 0)
			})
		})
	})
}

func TestBrowseFilterAndPagination(t *testing.T) {
	Convey("Given several rows across two fingerprints", t, func() {
		ctx := context.Background()
		idx := New()
		_ = idx.UpsertFromTask(ctx, "t1", []aggregate.Row{
			row("fp-a", "gpt", 0.9),
			row("fp-a", "claude", 0.7),
			row("fp-b", "gpt", 0.5),
		}, "v1")

		Convey("When browsing with a score floor", func() {
			min := 0.6
			rows, total, err := idx.Browse(ctx, aggregate.Filter{ScoreMin: &min}, 0, 10)

			Convey("Then only rows meeting the floor should return, ordered by score desc", func() {
				So(err, ShouldBeNil)
				So(total, ShouldEqual, 2)
				So(rows[0].ModelName, ShouldEqual, "gpt")
				So(rows[0].Fingerprint, ShouldEqual, "fp-a")
			})
		})

		Convey("When browsing a page past the end", func() {
			rows, total, err := idx.Browse(ctx, aggregate.Filter{}, 5, 1)

			Convey("Then it should return an empty page and the true total", func() {
				So(err, ShouldBeNil)
				So(total, ShouldEqual, 3)
				So(rows, ShouldBeEmpty)
			})
		})

		Convey("When browsing with an offset that does not align to a page boundary", func() {
			rows, total, err := idx.Browse(ctx, aggregate.Filter{}, 2, 10)

			Convey("Then it should skip exactly that many rows, not floor to a page", func() {
				So(err, ShouldBeNil)
				So(total, ShouldEqual, 3)
				So(rows, ShouldHaveLength, 1)
			})
		})
	})
}
