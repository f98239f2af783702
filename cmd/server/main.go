package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"salesync/backend/internal/httpapi"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "server",
		Short:        "Sales sync and dashboard backend",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.AddCommand(newSyncCmd(), newSummaryCmd())
	return root
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	svc := rt.service(rt.sheetsSource())
	api := httpapi.New(svc, rt.logger, httpapi.Options{
		AllowedOrigins: rt.cfg.Server.AllowedOrigins,
		SyncInterval:   rt.cfg.Sync.MinInterval.Std(),
		SyncBurst:      rt.cfg.Sync.Burst,
	})

	server := &http.Server{
		Addr:              rt.cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       rt.cfg.Server.ReadTimeout.Std(),
		WriteTimeout:      rt.cfg.Server.WriteTimeout.Std(),
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		rt.logger.Info("sales backend listening", zap.String("addr", rt.cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		rt.logger.Warn("shutdown error", zap.Error(err))
	}

	rt.logger.Info("server stopped")
	return nil
}
