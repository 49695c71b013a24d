package audit

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAppendAndRecent(t *testing.T) {
	Convey("Given an audit log with capacity 2", t, func() {
		ctx := context.Background()
		log := New(2)
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		Convey("When three actions are appended", func() {
			log.Append(ctx, "", ActionQuarantine, "flagged", 1, base)
			log.Append(ctx, "admin", ActionRestore, "false positive", 1, base.Add(time.Minute))
			log.Append(ctx, "admin", ActionCleanup, "ttl sweep", 5, base.Add(2*time.Minute))

			Convey("Then only the last two should be retained, newest first", func() {
				So(log.Len(), ShouldEqual, 2)
				recent := log.Recent(ctx, 10)
				So(len(recent), ShouldEqual, 2)
				So(recent[0].Action, ShouldEqual, ActionCleanup)
				So(recent[1].Action, ShouldEqual, ActionRestore)
			})

		})
	})
}

func TestAppendDefaultsEmptyActorToAdmin(t *testing.T) {
	Convey("Given an audit log", t, func() {
		ctx := context.Background()
		log := New(0)

		Convey("When an action is appended with an empty actor", func() {
			log.Append(ctx, "", ActionQuarantine, "flagged", 1, time.Now())

			Convey("Then it should default to admin", func() {
				recent := log.Recent(ctx, 1)
				So(recent[0].Actor, ShouldEqual, "admin")
			})
		})
	})
}
