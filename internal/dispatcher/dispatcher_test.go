package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/llmrank/internal/cacheindex"
	"github.com/okian/llmrank/internal/credential"
	"github.com/okian/llmrank/internal/domain/aggregate"
	"github.com/okian/llmrank/internal/domain/plan"
	"github.com/okian/llmrank/internal/domain/task"
	"github.com/okian/llmrank/internal/fingerprint"
	"github.com/okian/llmrank/internal/registry"
	. "github.com/smartystreets/goconvey/convey"
)

type recordingQueue struct {
	mu       sync.Mutex
	enqueued []string
}

func (q *recordingQueue) Enqueue(ctx context.Context, taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, taskID)
	return true
}

func samplePlan() plan.Plan {
	return plan.Plan{
		SchemaVersion: "1",
		Profile: plan.Profile{
			ProblemType:  plan.ProblemMCQA,
			TargetType:   plan.TargetGeneral,
			TaskType:     plan.TaskKnowledge,
			Language:     "en",
			SubjectTypes: []string{"math"},
			SampleSize:   50,
		},
		Models: []plan.ModelConfig{{Name: "gpt", Endpoint: "https://x"}},
	}
}

func newDispatcher(t *testing.T, q Queue) (*Dispatcher, registry.Registry, cacheindex.Index) {
	t.Helper()
	reg := registry.New()
	cache := cacheindex.New()
	credStore, err := credential.NewStore(time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	d := New(
		Config{CacheTTL: time.Hour, MinCacheReuseSamples: 10, PinnedEvaluatorVer: ""},
		plan.NewTaxonomy(nil),
		plan.DefaultLimits(),
		fingerprint.New(nil),
		reg,
		cache,
		q,
		credStore,
	)
	return d, reg, cache
}

func TestSubmitColdMissEnqueues(t *testing.T) {
	Convey("Given an empty cache and registry", t, func() {
		q := &recordingQueue{}
		d, _, _ := newDispatcher(t, q)

		Convey("When submitting a fresh plan", func() {
			res, err := d.Submit(context.Background(), samplePlan())

			Convey("Then it should create and enqueue a new PENDING task", func() {
				So(err, ShouldBeNil)
				So(res.Cached, ShouldBeFalse)
				So(res.Status, ShouldEqual, task.StatusPending)
				So(q.enqueued, ShouldContain, res.TaskID)
			})
		})
	})
}

func TestSubmitCoalescesConcurrentSubmits(t *testing.T) {
	Convey("Given a dispatcher", t, func() {
		q := &recordingQueue{}
		d, _, _ := newDispatcher(t, q)
		p := samplePlan()

		Convey("When ten goroutines submit the identical plan concurrently", func() {
			var wg sync.WaitGroup
			results := make([]SubmitResult, 10)
			errs := make([]error, 10)
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = d.Submit(context.Background(), p)
				}(i)
			}
			wg.Wait()

			Convey("Then exactly one task_id should have been enqueued", func() {
				ids := make(map[string]bool)
				for i, err := range errs {
					So(err, ShouldBeNil)
					ids[results[i].TaskID] = true
				}
				So(len(ids), ShouldEqual, 1)
				So(len(q.enqueued), ShouldEqual, 1)
			})
		})
	})
}

func TestSubmitCacheHitShortCircuits(t *testing.T) {
	Convey("Given a cache already holding a fresh row for the plan's fingerprint", t, func() {
		q := &recordingQueue{}
		d, _, cache := newDispatcher(t, q)
		p := samplePlan()
		fp := fingerprint.New(nil).Fingerprint(&p)
		err := cache.UpsertFromTask(context.Background(), "seed-task", []aggregate.Row{{
			Key:         aggregate.Key{Fingerprint: fp, ModelName: "gpt", Language: "en", SubjectType: "math", TaskType: "Knowledge"},
			Score:       0.8,
			SampleCount: 50,
		}}, "v1")
		So(err, ShouldBeNil)

		Convey("When submitting the same plan", func() {
			res, err := d.Submit(context.Background(), p)

			Convey("Then it should return a cache hit without enqueueing", func() {
				So(err, ShouldBeNil)
				So(res.Cached, ShouldBeTrue)
				So(res.Status, ShouldEqual, task.StatusSuccess)
				So(len(res.Result), ShouldEqual, 1)
				So(q.enqueued, ShouldBeEmpty)
			})
		})
	})
}

func TestSubmitBelowMinCacheReuseSamplesBypassesCache(t *testing.T) {
	Convey("Given a cache hit exists but sample_size is below the reuse floor", t, func() {
		q := &recordingQueue{}
		d, _, cache := newDispatcher(t, q)
		p := samplePlan()
		p.Profile.SampleSize = 5 // below MinCacheReuseSamples=10
		fp := fingerprint.New(nil).Fingerprint(&p)
		_ = cache.UpsertFromTask(context.Background(), "seed-task", []aggregate.Row{{
			Key:   aggregate.Key{Fingerprint: fp, ModelName: "gpt", Language: "en", SubjectType: "math", TaskType: "Knowledge"},
			Score: 0.8,
		}}, "v1")

		Convey("When submitting", func() {
			res, err := d.Submit(context.Background(), p)

			Convey("Then it should bypass the cache and enqueue", func() {
				So(err, ShouldBeNil)
				So(res.Cached, ShouldBeFalse)
				So(q.enqueued, ShouldNotBeEmpty)
			})
		})
	})
}

func TestCancel(t *testing.T) {
	Convey("Given a PENDING task", t, func() {
		q := &recordingQueue{}
		d, _, _ := newDispatcher(t, q)
		res, err := d.Submit(context.Background(), samplePlan())
		So(err, ShouldBeNil)

		Convey("When cancelling it", func() {
			got, err := d.Cancel(context.Background(), res.TaskID)

			Convey("Then it should transition to CANCELLED", func() {
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, task.StatusCancelled)
			})

			Convey("When cancelling it again", func() {
				got2, err := d.Cancel(context.Background(), res.TaskID)

				Convey("Then it should be a no-op returning the terminal state", func() {
					So(err, ShouldBeNil)
					So(got2.Status, ShouldEqual, task.StatusCancelled)
				})
			})
		})
	})
}
