package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/okian/llmrank/internal/domain/plan"
	"github.com/okian/llmrank/internal/domain/sample"
	"github.com/okian/llmrank/internal/orcherr"
	. "github.com/smartystreets/goconvey/convey"
)

func samplePlan() plan.Plan {
	return plan.Plan{
		SchemaVersion: "1",
		Profile: plan.Profile{
			ProblemType:  plan.ProblemMCQA,
			TargetType:   plan.TargetGeneral,
			TaskType:     plan.TaskKnowledge,
			Language:     "en",
			SubjectTypes: []string{"math", "history"},
			SampleSize:   5,
		},
		Models: []plan.ModelConfig{{Name: "gpt", Endpoint: "https://x"}},
	}
}

func TestEvaluateProducesSamplesAndProgress(t *testing.T) {
	Convey("Given an in-memory evaluator with negligible latency", t, func() {
		e := New(WithLatencyRange(time.Microsecond, 2*time.Microsecond))
		p := samplePlan()

		Convey("When evaluating the plan's single model", func() {
			var samples []sample.Sample
			var lastProgress int
			err := e.Evaluate(context.Background(), p, p.Models[0], nil,
				func(s sample.Sample) { samples = append(samples, s) },
				func(pr int) { lastProgress = pr },
			)

			Convey("Then it should emit sample_size samples and reach 100% progress", func() {
				So(err, ShouldBeNil)
				So(len(samples), ShouldEqual, 5)
				So(lastProgress, ShouldEqual, 100)
				for _, s := range samples {
					So(s.Correctness, ShouldBeBetween, -0.001, 1.001)
					So(s.ModelName, ShouldEqual, "gpt")
				}
			})
		})
	})
}

func TestEvaluateRequiresCredentialsWhenConfigured(t *testing.T) {
	Convey("Given an evaluator requiring credentials", t, func() {
		e := New(WithRequireCredentials(true))
		p := samplePlan()

		Convey("When evaluating without a credential handle", func() {
			err := e.Evaluate(context.Background(), p, p.Models[0], nil, func(sample.Sample) {}, nil)

			Convey("Then it should fail with credentials_missing", func() {
				So(err, ShouldEqual, orcherr.ErrCredentialsMissing)
			})
		})
	})
}

func TestEvaluateCancellation(t *testing.T) {
	Convey("Given an evaluator with real latency", t, func() {
		e := New(WithLatencyRange(50*time.Millisecond, 60*time.Millisecond))
		p := samplePlan()
		p.Profile.SampleSize = 100

		Convey("When the context is cancelled mid-run", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			err := e.Evaluate(ctx, p, p.Models[0], nil, func(sample.Sample) {}, nil)

			Convey("Then it should return a cancellation error", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestEvaluateRetryableFailure(t *testing.T) {
	Convey("Given an evaluator with a 100% failure rate", t, func() {
		e := New(WithLatencyRange(time.Microsecond, 2*time.Microsecond), WithFailureRate(1.0))
		p := samplePlan()

		Convey("When evaluating", func() {
			err := e.Evaluate(context.Background(), p, p.Models[0], nil, func(sample.Sample) {}, nil)

			Convey("Then it should fail retryably on the first sample", func() {
				So(err, ShouldEqual, orcherr.ErrEvaluatorRetryable)
			})
		})
	})
}
