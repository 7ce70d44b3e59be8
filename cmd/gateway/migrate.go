package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/serbia-gov/platform/internal/domain/postgres"
	"github.com/serbia-gov/platform/internal/shared/config"
	"github.com/serbia-gov/platform/internal/shared/database"
	structurepostgres "github.com/serbia-gov/platform/internal/structure/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the gateway schema's embedded migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	}
}

func runMigrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db.Pool); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if err := structurepostgres.Migrate(ctx, db.Pool); err != nil {
		return fmt.Errorf("structure migration failed: %w", err)
	}

	fmt.Println("gateway schema migrated")
	return nil
}
