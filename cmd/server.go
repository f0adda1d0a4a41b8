package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server for gateway callbacks and the operator API, with the vend dispatcher.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startHTTPServer()
	},
}

func startHTTPServer() error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer app.Close()

	dispatcher := app.StartVending()

	router, err := app.Router()
	if err != nil {
		return err
	}
	server := app.httpServer(router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Info("starting HTTP server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		app.Logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error("server shutdown error", "error", err)
		}
		// handlers still running may be queueing vends
		if err := app.Bus.WaitContext(shutdownCtx); err != nil {
			app.Logger.Error("event handlers did not finish", "error", err)
		}
		if dispatcher != nil {
			if err := dispatcher.Shutdown(shutdownCtx); err != nil {
				app.Logger.Error("dispatcher shutdown error", "error", err)
			}
		}
		if err := app.Bus.WaitContext(shutdownCtx); err != nil {
			app.Logger.Error("vend event handlers did not finish", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		app.Logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	app.Logger.Info("server stopped")
	return nil
}
