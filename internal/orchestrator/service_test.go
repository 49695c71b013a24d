package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/llmrank/internal/config"
	"github.com/okian/llmrank/internal/domain/plan"
	"github.com/okian/llmrank/internal/domain/task"
	"github.com/okian/llmrank/internal/maintenance"
	"github.com/okian/llmrank/internal/orchestrator"
	"github.com/okian/llmrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func testConfig() *config.Config {
	cfg := config.New()
	cfg.WorkerConcurrency = 2
	cfg.QueueSize = 100
	cfg.LeaseTTL = time.Second
	cfg.EvaluatorMinLatencyMS = 1
	cfg.EvaluatorMaxLatencyMS = 2
	return cfg
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
			SampleSize:   5,
		},
		Models: []plan.ModelConfig{{Name: "gpt", Endpoint: "https://x", ProviderKind: "local"}},
	}
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := orchestrator.New()

		Convey("Then it should be constructed without starting anything", func() {
			So(svc, ShouldNotBeNil)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a service configured with a small worker pool", t, func() {
		svc := orchestrator.New(orchestrator.WithConfig(testConfig()))
		defer svc.Stop()

		Convey("When starting it", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully and expose a dispatcher and query API", func() {
				So(err, ShouldBeNil)
				So(svc.Dispatcher, ShouldNotBeNil)
				So(svc.Query, ShouldNotBeNil)
			})

			Convey("And starting it again should be a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})
	})
}

func TestService_EndToEndSubmitCompletes(t *testing.T) {
	Convey("Given a running service", t, func() {
		svc := orchestrator.New(orchestrator.WithConfig(testConfig()))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When submitting a plan", func() {
			res, err := svc.Dispatcher.Submit(ctx, samplePlan())
			So(err, ShouldBeNil)

			Convey("Then the task should eventually reach a terminal state", func() {
				deadline := time.Now().Add(4 * time.Second)
				var got task.Task
				for time.Now().Before(deadline) {
					got, err = svc.Query.GetTask(ctx, res.TaskID)
					So(err, ShouldBeNil)
					if got.Status.Terminal() {
						break
					}
					time.Sleep(20 * time.Millisecond)
				}
				So(got.Status.Terminal(), ShouldBeTrue)
			})
		})
	})
}

func TestService_RunCleanupIsTrackedAsATask(t *testing.T) {
	Convey("Given a running service", t, func() {
		svc := orchestrator.New(orchestrator.WithConfig(testConfig()))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When running a dry-run cleanup", func() {
			started, err := svc.RunCleanup(ctx, 24*time.Hour, true, maintenance.Scope{}, "test sweep")
			So(err, ShouldBeNil)
			So(started.TaskID, ShouldNotBeEmpty)
			So(started.Status, ShouldEqual, task.StatusStarted)

			Convey("Then GET /tasks/{task_id} should observe it reach a terminal state", func() {
				deadline := time.Now().Add(4 * time.Second)
				var got task.Task
				for time.Now().Before(deadline) {
					got, err = svc.GetTask(ctx, started.TaskID)
					So(err, ShouldBeNil)
					if got.Status.Terminal() {
						break
					}
					time.Sleep(10 * time.Millisecond)
				}
				So(got.Status, ShouldEqual, task.StatusSuccess)
			})
		})
	})
}
