package sample

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSampleKeyOf(t *testing.T) {
	Convey("Given a Sample with a task, model, and index", t, func() {
		s := Sample{TaskID: "task-1", ModelName: "gpt", Index: 3, Correctness: 0.7}

		Convey("When taking its key", func() {
			k := s.KeyOf()

			Convey("Then the key carries exactly the identity fields", func() {
				So(k, ShouldResemble, Key{TaskID: "task-1", ModelName: "gpt", Index: 3})
			})
		})

		Convey("When two samples share task, model, and index but differ otherwise", func() {
			other := Sample{TaskID: "task-1", ModelName: "gpt", Index: 3, Correctness: 0.1, Answer: "different"}

			Convey("Then their keys are equal", func() {
				So(s.KeyOf(), ShouldResemble, other.KeyOf())
			})
		})

		Convey("When the index differs", func() {
			other := Sample{TaskID: "task-1", ModelName: "gpt", Index: 4}

			Convey("Then their keys differ", func() {
				So(s.KeyOf(), ShouldNotResemble, other.KeyOf())
			})
		})
	})
}
