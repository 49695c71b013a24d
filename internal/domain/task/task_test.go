package task

import (
	"testing"
	"time"

	"github.com/okian/llmrank/internal/domain/aggregate"
	"github.com/okian/llmrank/internal/domain/plan"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStatusTerminal(t *testing.T) {
	Convey("Given each status", t, func() {
		Convey("Then PENDING and STARTED are not terminal", func() {
			So(StatusPending.Terminal(), ShouldBeFalse)
			So(StatusStarted.Terminal(), ShouldBeFalse)
		})

		Convey("Then SUCCESS, FAILURE, and CANCELLED are terminal", func() {
			So(StatusSuccess.Terminal(), ShouldBeTrue)
			So(StatusFailure.Terminal(), ShouldBeTrue)
			So(StatusCancelled.Terminal(), ShouldBeTrue)
		})
	})
}

func TestCanTransition(t *testing.T) {
	Convey("Given the task lifecycle state machine", t, func() {
		Convey("When moving from PENDING", func() {
			So(CanTransition(StatusPending, StatusStarted), ShouldBeTrue)
			So(CanTransition(StatusPending, StatusCancelled), ShouldBeTrue)
			So(CanTransition(StatusPending, StatusFailure), ShouldBeTrue)
			So(CanTransition(StatusPending, StatusSuccess), ShouldBeFalse)
		})

		Convey("When moving from STARTED", func() {
			So(CanTransition(StatusStarted, StatusSuccess), ShouldBeTrue)
			So(CanTransition(StatusStarted, StatusFailure), ShouldBeTrue)
			So(CanTransition(StatusStarted, StatusCancelled), ShouldBeTrue)
			So(CanTransition(StatusStarted, StatusPending), ShouldBeFalse)
		})

		Convey("When moving from a terminal state", func() {
			Convey("Then every transition is rejected, even a no-op", func() {
				So(CanTransition(StatusSuccess, StatusFailure), ShouldBeFalse)
				So(CanTransition(StatusSuccess, StatusSuccess), ShouldBeFalse)
				So(CanTransition(StatusCancelled, StatusStarted), ShouldBeFalse)
			})
		})
	})
}

func TestTaskClone(t *testing.T) {
	Convey("Given a Task with pointer and slice fields populated", t, func() {
		started := time.Now()
		completed := started.Add(time.Minute)
		orig := Task{
			TaskID:      "task-1",
			Status:      StatusSuccess,
			StartedAt:   &started,
			CompletedAt: &completed,
			Result:      []aggregate.Row{{Key: aggregate.Key{ModelName: "gpt"}, Score: 0.9}},
			Error:       &Error{Kind: "timeout", Message: "boom"},
			PlanSnapshot: plan.Plan{
				Models:  []plan.ModelConfig{{Name: "gpt"}},
				Profile: plan.Profile{SubjectTypes: []string{"math"}},
			},
		}

		Convey("When cloning it and mutating the clone's nested state", func() {
			cp := orig.Clone()
			*cp.StartedAt = cp.StartedAt.Add(time.Hour)
			cp.Result[0].Score = 0.1
			cp.Error.Message = "mutated"
			cp.PlanSnapshot.Models[0].Name = "mutated-model"
			cp.PlanSnapshot.Profile.SubjectTypes[0] = "mutated-subject"

			Convey("Then the original's nested state is untouched", func() {
				So(*orig.StartedAt, ShouldResemble, started)
				So(orig.Result[0].Score, ShouldEqual, 0.9)
				So(orig.Error.Message, ShouldEqual, "boom")
				So(orig.PlanSnapshot.Models[0].Name, ShouldEqual, "gpt")
				So(orig.PlanSnapshot.Profile.SubjectTypes[0], ShouldEqual, "math")
			})
		})

		Convey("When cloning a Task with nil pointer and slice fields", func() {
			bare := Task{TaskID: "task-2", Status: StatusPending}

			Convey("Then Clone does not panic and leaves them nil", func() {
				cp := bare.Clone()
				So(cp.StartedAt, ShouldBeNil)
				So(cp.CompletedAt, ShouldBeNil)
				So(cp.Error, ShouldBeNil)
				So(cp.Result, ShouldBeNil)
			})
		})
	})
}
