package aggregate

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func sampleRow() Row {
	return Row{
		Key: Key{
			Fingerprint: "fp1",
			ModelName:   "GPT-Four",
			Language:    "en",
			SubjectType: "math",
			TaskType:    "Knowledge",
		},
		Score:       0.85,
		SampleCount: 50,
		LastUpdated: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFilterMatches(t *testing.T) {
	Convey("Given a zero-value Filter", t, func() {
		var f Filter

		Convey("When matching a non-quarantined row", func() {
			Convey("Then it matches unconditionally", func() {
				So(f.Matches(sampleRow()), ShouldBeTrue)
			})
		})

		Convey("When matching a quarantined row", func() {
			row := sampleRow()
			row.Quarantine = true

			Convey("Then it does not match by default", func() {
				So(f.Matches(row), ShouldBeFalse)
			})
		})
	})

	Convey("Given a Filter with IncludeQuarantined set", t, func() {
		f := Filter{IncludeQuarantined: true}
		row := sampleRow()
		row.Quarantine = true

		Convey("When matching a quarantined row", func() {
			Convey("Then it matches", func() {
				So(f.Matches(row), ShouldBeTrue)
			})
		})
	})

	Convey("Given a Filter constrained by language", t, func() {
		f := Filter{Language: "es"}

		Convey("When matching a row in a different language", func() {
			Convey("Then it does not match", func() {
				So(f.Matches(sampleRow()), ShouldBeFalse)
			})
		})
	})

	Convey("Given a Filter with a case-insensitive model_name substring", t, func() {
		f := Filter{ModelNameContains: "gpt-four"}

		Convey("When matching a row whose model name differs only in case", func() {
			Convey("Then it matches", func() {
				So(f.Matches(sampleRow()), ShouldBeTrue)
			})
		})

		Convey("When the substring is not present", func() {
			f2 := Filter{ModelNameContains: "claude"}
			Convey("Then it does not match", func() {
				So(f2.Matches(sampleRow()), ShouldBeFalse)
			})
		})
	})

	Convey("Given a Filter bounding score_min/score_max", t, func() {
		min := 0.9
		f := Filter{ScoreMin: &min}

		Convey("When the row's score is below score_min", func() {
			Convey("Then it does not match", func() {
				So(f.Matches(sampleRow()), ShouldBeFalse)
			})
		})

		max := 0.5
		f2 := Filter{ScoreMax: &max}
		Convey("When the row's score is above score_max", func() {
			Convey("Then it does not match", func() {
				So(f2.Matches(sampleRow()), ShouldBeFalse)
			})
		})
	})

	Convey("Given a Filter with updated_after", t, func() {
		after := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		f := Filter{UpdatedAfter: &after}

		Convey("When the row was last updated before that time", func() {
			Convey("Then it does not match", func() {
				So(f.Matches(sampleRow()), ShouldBeFalse)
			})
		})

		Convey("When the row was last updated after that time", func() {
			row := sampleRow()
			row.LastUpdated = after.Add(time.Hour)
			Convey("Then it matches", func() {
				So(f.Matches(row), ShouldBeTrue)
			})
		})
	})
}
