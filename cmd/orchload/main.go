// Command orchload drives a running llmrank control plane from the
// outside: submitting synthetic plans, polling tasks to completion,
// and verifying the cache-hit and coalescing behavior it promises.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/okian/llmrank/internal/loadtest"
	"github.com/okian/llmrank/pkg/logger"
	"github.com/spf13/cobra"
)

const (
	defaultNumPlans   = 200
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 30 * time.Second
	defaultPollEvery  = 200 * time.Millisecond
	defaultPollFor    = 30 * time.Second
	defaultSampleSize = 10
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	cfg := &loadtest.Config{}
	var verbose bool

	root := &cobra.Command{
		Use:   "orchload",
		Short: "Load-test and verify a running llmrank control plane",
	}
	root.PersistentFlags().StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the control plane")
	root.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "per-request HTTP timeout")
	root.PersistentFlags().DurationVar(&cfg.PollEvery, "poll-every", defaultPollEvery, "interval between task status polls")
	root.PersistentFlags().DurationVar(&cfg.PollFor, "poll-for", defaultPollFor, "max time to wait for a task to terminate")
	root.PersistentFlags().IntVar(&cfg.SampleSize, "sample-size", defaultSampleSize, "sample_size on each generated plan")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Submit plans concurrently and poll them to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Verbose = verbose
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultRunTimeout)
			defer cancel()
			return loadtest.Run(ctx, cfg)
		},
	}
	runCmd.Flags().IntVar(&cfg.NumPlans, "plans", defaultNumPlans, "number of plans to generate and submit")
	runCmd.Flags().IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "number of concurrent submitters")

	verifyCmd := &cobra.Command{
		Use:   "verify-cache",
		Short: "Submit an identical plan twice and confirm the second is served from cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Verbose = verbose
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultRunTimeout)
			defer cancel()
			if err := loadtest.VerifyCache(ctx, cfg); err != nil {
				return err
			}
			fmt.Println("cache verification passed")
			return nil
		},
	}

	var planFile string
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Submit a single plan described in a YAML file and poll it to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Verbose = verbose
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultRunTimeout)
			defer cancel()
			return loadtest.SubmitPlanFile(ctx, cfg, planFile)
		},
	}
	planCmd.Flags().StringVar(&planFile, "file", "", "path to a YAML plan file (required)")
	_ = planCmd.MarkFlagRequired("file")

	root.AddCommand(runCmd, verifyCmd, planCmd)
	if err := root.Execute(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
