package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/serbia-gov/platform/internal/domain/postgres"
	"github.com/serbia-gov/platform/internal/emission"
	"github.com/serbia-gov/platform/internal/messagelog"
	"github.com/serbia-gov/platform/internal/shared/config"
	"github.com/serbia-gov/platform/internal/shared/database"
	"github.com/serbia-gov/platform/internal/transport/mllp"
)

func newReplayCmd() *cobra.Command {
	var drainSeconds int
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Force a recovery sweep of undispatched outbox rows without running the listeners",
		Long: `replay loads every outbox row not yet marked dispatched (typically left
behind by a crash between commit and dispatch) and redrives it through the
same worker pool and dispatcher serve uses, then stops the pool and exits
once the --drain period has elapsed. It always waits the full period, even
when the queue empties sooner.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), time.Duration(drainSeconds)*time.Second)
		},
	}
	cmd.Flags().IntVar(&drainSeconds, "drain", 30, "seconds to let the worker pool drain the recovered queue before exiting")
	return cmd
}

func runReplay(ctx context.Context, drain time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	pgStore := postgres.New(db.Pool)
	mlog := messagelog.New(pgStore)
	dispatcher := mllp.NewClient(mllp.ClientConfig{
		AckTimeout: time.Duration(cfg.Timeouts.AckTimeoutSeconds) * time.Second,
	})

	engine := emission.New(pgStore, dispatcher, mlog, emission.Config{
		Concurrency:  cfg.Emission.Concurrency,
		QueueSize:    cfg.Emission.QueueCapacity,
		GlobalStrict: cfg.PAM.StrictPAMFR,
	})

	if err := engine.Recover(ctx); err != nil {
		return fmt.Errorf("recovery sweep failed: %w", err)
	}

	engine.Start(ctx)
	fmt.Printf("draining recovered outbox for up to %s...\n", drain)
	time.Sleep(drain)
	engine.Stop()

	fmt.Println("replay complete")
	return nil
}
