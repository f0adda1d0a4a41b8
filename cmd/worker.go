package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/frahmantamala/smartwater-vending/internal/core/events"
	"github.com/frahmantamala/smartwater-vending/internal/vending"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
}

var vendWorkerCmd = &cobra.Command{
	Use:   "vend",
	Short: "Consume payment.recorded from NATS and vend",
	Long: `Runs the vend dispatcher fed by a NATS queue subscription. Used with
vending.dispatch_mode=nats so vending scales separately from the HTTP server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startVendWorker()
	},
}

var (
	workerQueue     string
	workerCount     int
	workerQueueSize int
)

func startVendWorker() error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.NATS.URL == "" {
		return fmt.Errorf("nats.url is required for the vend worker")
	}
	if workerCount > 0 {
		cfg.Vending.Workers = workerCount
	}
	if workerQueueSize > 0 {
		cfg.Vending.QueueSize = workerQueueSize
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	// vend results still go out on NATS; payments arrive from it
	events.NewNATSBridge(app.NATS, cfg.NATS.SubjectPrefix, app.Logger).Forward(app.Bus,
		events.EventTypeVendCompleted,
		events.EventTypeVendAggregateFailed,
	)

	dispatcher := vending.NewDispatcher(app.Pipeline, vending.DispatcherConfig{
		Workers:   cfg.Vending.Workers,
		QueueSize: cfg.Vending.QueueSize,
	}, app.Logger, app.Metrics)
	dispatcher.Start()

	handler := vending.NewEventHandler(dispatcher, app.Logger)
	consumer := events.NewNATSConsumer(app.NATS, cfg.NATS.SubjectPrefix, workerQueue, handler.SubmitPayment, app.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Start(gctx)
	})

	app.Logger.Info("vend worker is running", "queue", workerQueue, "workers", cfg.Vending.Workers)
	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := dispatcher.Shutdown(shutdownCtx); serr != nil {
		app.Logger.Error("dispatcher shutdown error", "error", serr)
	}
	app.Bus.Wait()
	return err
}

func init() {
	vendWorkerCmd.Flags().StringVar(&workerQueue, "queue", "vend-workers", "NATS queue group")
	vendWorkerCmd.Flags().IntVar(&workerCount, "workers", 0, "number of vend workers (default from config)")
	vendWorkerCmd.Flags().IntVar(&workerQueueSize, "queue-size", 0, "vend job queue size (default from config)")

	workerCmd.AddCommand(vendWorkerCmd)
}
