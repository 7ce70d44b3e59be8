package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/serbia-gov/platform/internal/adminapi"
	"github.com/serbia-gov/platform/internal/domain/postgres"
	"github.com/serbia-gov/platform/internal/emission"
	"github.com/serbia-gov/platform/internal/identity"
	"github.com/serbia-gov/platform/internal/inbound"
	"github.com/serbia-gov/platform/internal/messagelog"
	"github.com/serbia-gov/platform/internal/shared/config"
	"github.com/serbia-gov/platform/internal/shared/database"
	"github.com/serbia-gov/platform/internal/shared/events"
	"github.com/serbia-gov/platform/internal/shared/metrics"
	secmiddleware "github.com/serbia-gov/platform/internal/shared/middleware"
	"github.com/serbia-gov/platform/internal/structure"
	structurepostgres "github.com/serbia-gov/platform/internal/structure/postgres"
	"github.com/serbia-gov/platform/internal/transport/filepoller"
	"github.com/serbia-gov/platform/internal/transport/mllp"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway: MLLP/file-drop listeners, emission worker pool, and admin HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
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
		return fmt.Errorf("failed to migrate gateway schema: %w", err)
	}
	if err := structurepostgres.Migrate(ctx, db.Pool); err != nil {
		return fmt.Errorf("failed to migrate structure schema: %w", err)
	}

	pgStore := postgres.New(db.Pool)
	resolver := identity.New()
	mlog := messagelog.New(pgStore)
	structureResolver := structure.NewResolver(structurepostgres.New(db.Pool))

	bus, err := events.NewBus(ctx, cfg.KurrentDB)
	if err != nil {
		fmt.Printf("warning: KurrentDB not available, message log mirroring disabled: %v\n", err)
	} else {
		defer bus.Close()
		mlog = mlog.WithMirror(bus)
		fmt.Println("message log mirror connected to KurrentDB")
	}

	dispatcher := mllp.NewClient(mllp.ClientConfig{
		AckTimeout: time.Duration(cfg.Timeouts.AckTimeoutSeconds) * time.Second,
	})

	engine := emission.New(pgStore, dispatcher, mlog, emission.Config{
		Concurrency:  cfg.Emission.Concurrency,
		QueueSize:    cfg.Emission.QueueCapacity,
		GlobalStrict: cfg.PAM.StrictPAMFR,
	})

	handler := inbound.New(pgStore, resolver, mlog, engine, cfg.PAM.StrictPAMFR).
		WithFacility(cfg.Facility.ApplicationName, cfg.Facility.FacilityCode).
		WithStructure(structureResolver)

	if err := engine.Recover(ctx); err != nil {
		fmt.Printf("warning: outbox recovery sweep failed: %v\n", err)
	}
	engine.Start(ctx)
	defer engine.Stop()

	mllpServer := mllp.New(handler, mllp.Config{
		IdleTimeout:      time.Duration(cfg.Timeouts.SocketIdleTimeoutSeconds) * time.Second,
		BreakerThreshold: cfg.CircuitBreaker.ConsecutiveErrorThreshold,
		BreakerCooldown:  time.Duration(cfg.CircuitBreaker.CooldownSeconds) * time.Second,
	})
	for _, l := range cfg.MLLP.ListenAddresses {
		addr := fmt.Sprintf("%s:%d", l.Host, l.Port)
		if err := mllpServer.Listen(addr); err != nil {
			return fmt.Errorf("failed to listen for MLLP on %s (subscriber %s): %w", addr, l.SubscriberRef, err)
		}
		fmt.Printf("MLLP listening on %s (subscriber %s)\n", addr, l.SubscriberRef)
	}
	defer mllpServer.Stop()

	poller := filepoller.New(handler)
	for _, e := range cfg.FilePoller.Endpoints {
		poller.Watch(filepoller.Endpoint{
			Dir:          e.Dir,
			Extensions:   e.Extensions,
			PollInterval: time.Duration(e.PollIntervalSeconds) * time.Second,
		})
		fmt.Printf("file poller watching %s (subscriber %s)\n", e.Dir, e.SubscriberRef)
	}
	poller.Start(ctx)
	defer poller.Stop()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Handle("/metrics", metrics.Handler())
	r.Mount("/admin", adminapi.NewHandler(pgStore, db, cfg.Auth).Routes())

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	srvErr := make(chan error, 1)
	go func() {
		fmt.Printf("admin HTTP API listening on :%d\n", cfg.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErr <- err
		}
	}()

	select {
	case <-quit:
		fmt.Println("shutting down...")
	case err := <-srvErr:
		fmt.Printf("admin HTTP server error: %v\n", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("admin HTTP server shutdown error: %v\n", err)
	}

	return nil
}
