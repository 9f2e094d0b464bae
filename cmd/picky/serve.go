package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/picky/internal/backup"
	"github.com/dukerupert/picky/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := cmd.Context()

	provider, err := secretsProvider(cfg)
	if err != nil {
		return err
	}
	b, err := openBackend(ctx, cfg.Backend, cfg, provider)
	if err != nil {
		return err
	}
	defer b.Close()

	mgr, err := newBackupManager(ctx, b, provider)
	if err != nil {
		return err
	}

	opts := server.Options{
		Environment: string(cfg.Environment),
		Storage:     cfg.Backend,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimit,
	}
	if mgr.Status().State != backup.StateDisabled {
		opts.Backup = mgr
	}
	srv := server.New(b, opts, logger)

	bgCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if rl := srv.RateLimiter(); rl != nil {
		go rl.RunCleanup(bgCtx, time.Minute)
	}
	mgr.Start(bgCtx)
	defer mgr.Stop()

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("picky running",
			"addr", cfg.ListenAddr,
			"environment", cfg.Environment,
			"backend", cfg.Backend,
			"backup", mgr.Status().State,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return httpServer.Shutdown(shutdownCtx)
}
