package credential

import (
	"context"
	"testing"
	"time"

	"github.com/okian/llmrank/internal/domain/plan"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStorePutAndGet(t *testing.T) {
	Convey("Given a fresh Store", t, func() {
		s, err := NewStore(time.Hour)
		So(err, ShouldBeNil)
		defer s.Stop()

		models := []plan.ModelConfig{
			{Name: "gpt", ProviderKind: "openai", CredentialHandle: "sk-secret-1"},
			{Name: "public-model", ProviderKind: "local", CredentialHandle: ""},
		}

		Convey("When putting an envelope for a task", func() {
			err := s.Put(context.Background(), "task-1", models)
			So(err, ShouldBeNil)

			Convey("Then Get returns a handle only for the model with credentials", func() {
				handles, err := s.Get(context.Background(), "task-1")
				So(err, ShouldBeNil)
				_, hasGPT := handles["gpt"]
				_, hasPublic := handles["public-model"]
				So(hasGPT, ShouldBeTrue)
				So(hasPublic, ShouldBeFalse)
			})

			Convey("Then the handle reveals the original secret", func() {
				handles, err := s.Get(context.Background(), "task-1")
				So(err, ShouldBeNil)
				So(handles["gpt"].Reveal(), ShouldEqual, "sk-secret-1")
			})

			Convey("Then the handle's String never includes the secret", func() {
				handles, err := s.Get(context.Background(), "task-1")
				So(err, ShouldBeNil)
				So(handles["gpt"].String(), ShouldNotContainSubstring, "sk-secret-1")
				So(handles["gpt"].String(), ShouldContainSubstring, "gpt")
			})
		})

		Convey("When Get is called for an unregistered task", func() {
			_, err := s.Get(context.Background(), "never-registered")

			Convey("Then it returns ErrExpired", func() {
				So(err, ShouldEqual, ErrExpired)
			})
		})

		Convey("When Purge is called after Put", func() {
			So(s.Put(context.Background(), "task-2", models), ShouldBeNil)
			s.Purge(context.Background(), "task-2")

			Convey("Then Get returns ErrExpired", func() {
				_, err := s.Get(context.Background(), "task-2")
				So(err, ShouldEqual, ErrExpired)
			})
		})
	})
}

func TestStoreExpiry(t *testing.T) {
	Convey("Given a Store with a very short TTL", t, func() {
		s, err := NewStore(time.Millisecond)
		So(err, ShouldBeNil)
		defer s.Stop()

		originalNow := timeNow
		defer func() { timeNow = originalNow }()

		base := time.Now()
		timeNow = func() time.Time { return base }

		models := []plan.ModelConfig{{Name: "gpt", CredentialHandle: "sk-secret"}}
		So(s.Put(context.Background(), "task-3", models), ShouldBeNil)

		Convey("When the clock advances past the TTL", func() {
			timeNow = func() time.Time { return base.Add(time.Hour) }

			Convey("Then Get reports ErrExpired and purges the entry", func() {
				_, err := s.Get(context.Background(), "task-3")
				So(err, ShouldEqual, ErrExpired)

				timeNow = func() time.Time { return base }
				_, err = s.Get(context.Background(), "task-3")
				So(err, ShouldEqual, ErrExpired)
			})
		})
	})
}

func TestStoreSweeper(t *testing.T) {
	Convey("Given a Store with an expired entry and a running sweeper", t, func() {
		s, err := NewStore(time.Millisecond)
		So(err, ShouldBeNil)
		defer s.Stop()

		models := []plan.ModelConfig{{Name: "gpt", CredentialHandle: "sk-secret"}}
		So(s.Put(context.Background(), "task-4", models), ShouldBeNil)
		time.Sleep(5 * time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s.StartSweeper(ctx, 2*time.Millisecond)

		Convey("Then the sweeper eventually purges the expired entry", func() {
			deadline := time.Now().Add(200 * time.Millisecond)
			var lastErr error
			for time.Now().Before(deadline) {
				s.mu.RLock()
				_, present := s.byTask["task-4"]
				s.mu.RUnlock()
				if !present {
					lastErr = ErrExpired
					break
				}
				time.Sleep(5 * time.Millisecond)
			}
			So(lastErr, ShouldEqual, ErrExpired)
		})
	})
}
