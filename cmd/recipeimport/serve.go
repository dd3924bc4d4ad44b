package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/recipeimport/internal/auth"
	"github.com/jo-hoe/recipeimport/internal/fetch"
	"github.com/jo-hoe/recipeimport/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the import HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensure(false)
			if err != nil {
				return err
			}

			rootCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			records, err := openRecords(rootCtx, cfg, logger)
			if err != nil {
				return fmt.Errorf("open record store: %w", err)
			}
			defer func() { _ = records.Close() }()

			a, err := newApp(cfg, logger, records)
			if err != nil {
				return err
			}
			defer a.jobs.Close()

			verifier, err := auth.New(cfg.Auth, fetch.New(fetch.Options{}))
			if err != nil {
				return err
			}

			httpSrv := server.NewHTTPServer(&server.Service{
				Log:         logger,
				Cfg:         cfg,
				Auth:        verifier,
				Jobs:        a.jobs,
				Records:     records,
				Runner:      a.runner,
				Pipeline:    a.worker,
				Metadata:    a.metadata,
				Images:      a.images,
				Metrics:     a.metrics,
				BlobPrefix:  a.blobPrefix,
				BlobHandler: a.blobHandler,
			})

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server starting", "address", cfg.Server.Addr, "store", cfg.Store.Driver, "blob", cfg.Blob.Provider)
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			var serveErr error
			select {
			case <-rootCtx.Done():
				logger.Info("shutdown signal received")
			case serveErr = <-errCh:
				if serveErr != nil {
					logger.Error("server error", "err", serveErr)
				}
			}

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
			defer cancelShutdown()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", "err", err)
			}
			// In-flight extractions get the same grace period before their context is cancelled.
			a.runner.Shutdown(cfg.Server.ShutdownGrace)
			logger.Info("server stopped")
			return serveErr
		},
	}
}
