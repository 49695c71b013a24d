package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/okian/llmrank/internal/config"
	"github.com/okian/llmrank/internal/orchestrator"
	"github.com/okian/llmrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestConfigLoadFromEnv(t *testing.T) {
	Convey("Given LLMRANK_ environment overrides", t, func() {
		os.Setenv("LLMRANK_ADDR", ":9080")
		os.Setenv("LLMRANK_WORKER_CONCURRENCY", "4")
		os.Setenv("LLMRANK_MAX_BROWSE_LIMIT", "500")
		defer func() {
			os.Unsetenv("LLMRANK_ADDR")
			os.Unsetenv("LLMRANK_WORKER_CONCURRENCY")
			os.Unsetenv("LLMRANK_MAX_BROWSE_LIMIT")
		}()

		Convey("When loading config", func() {
			cfg, err := config.Load(context.Background())

			Convey("Then the overrides take effect", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":9080")
				So(cfg.WorkerConcurrency, ShouldEqual, 4)
				So(cfg.MaxBrowseLimit, ShouldEqual, 500)
			})
		})
	})
}

func TestServiceStartStop(t *testing.T) {
	Convey("Given a default config", t, func() {
		cfg, err := config.Load(context.Background())
		So(err, ShouldBeNil)

		Convey("When starting and stopping the orchestrator service", func() {
			svc := orchestrator.New(orchestrator.WithConfig(cfg), orchestrator.WithLogger(logger.Get()))
			startErr := svc.Start(context.Background())

			Convey("Then it starts without error and stops cleanly", func() {
				So(startErr, ShouldBeNil)
				svc.Stop()
			})
		})
	})
}

func TestStatsUpdaterStopsOnContextCancel(t *testing.T) {
	Convey("Given a running orchestrator service", t, func() {
		cfg, err := config.Load(context.Background())
		So(err, ShouldBeNil)
		svc := orchestrator.New(orchestrator.WithConfig(cfg), orchestrator.WithLogger(logger.Get()))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		Convey("When starting the stats updater and cancelling its context", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				startStatsUpdater(ctx, svc)
				close(done)
			}()
			cancel()

			Convey("Then the updater goroutine returns", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					t.Fatal("stats updater did not stop")
				}
			})
		})
	})
}
