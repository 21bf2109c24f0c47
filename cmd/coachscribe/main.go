// Package main provides the coachscribe command line tool for offline
// enrollment and batch transcription.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maauso/coachscribe/internal/bootstrap"
	"github.com/maauso/coachscribe/internal/config"
	"github.com/maauso/coachscribe/internal/job"
)

// service is the part of job.Service the commands use.
type service interface {
	Enroll(ctx context.Context, in job.EnrollInput) (*job.EnrollOutput, error)
	Transcribe(ctx context.Context, in job.TranscribeInput) (*job.Result, error)
	CoachProfileName() string
}

type serviceFactory func() (service, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(newService).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newService builds the service from the environment, like the API server.
func newService() (service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize dependencies: %w", err)
	}
	return deps.Service, nil
}

func newRootCmd(factory serviceFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "coachscribe",
		Short:         "Coach-aware diarization and transcription of coaching sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newEnrollCmd(factory), newBatchCmd(factory))
	return root
}
