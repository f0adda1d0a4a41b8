package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/smartwater-vending/internal/core/events"
	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish test events, replay payments onto NATS and watch the event stream`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a test event on an in-process bus",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		publishTestEvent(args[0])
	},
}

var emitPaymentCmd = &cobra.Command{
	Use:   "emit-payment",
	Short: "Publish a payment.recorded event to NATS",
	Long:  `Hands a stored payment to the vend workers again. The vend is idempotent per payment id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return emitPayment()
	},
}

var tailEventCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print every event seen on NATS",
	RunE: func(cmd *cobra.Command, args []string) error {
		return tailEvents()
	},
}

var (
	eventData string

	emitPaymentID int64
	emitTransID   string
	emitMeter     string
	emitPhone     string
	emitAmount    string
)

func publishTestEvent(eventType string) {
	lg := logger.LoggerWrapper()
	bus := events.NewEventBus(lg)

	bus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
		lg.Info("test handler received event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	testEvent := events.BaseEvent{
		ID:        fmt.Sprintf("test-%d", time.Now().Unix()),
		Type:      eventType,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"message": eventData,
			"source":  "cli-command",
		},
	}

	lg.Info("publishing test event", "event_type", eventType, "event_id", testEvent.ID)
	if err := bus.Publish(context.Background(), testEvent); err != nil {
		lg.Error("failed to publish event", "error", err)
		return
	}
	bus.Wait()
	lg.Info("test event published successfully")
}

func connectNATS() (*nats.Conn, string, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, "", err
	}
	if cfg.NATS.URL == "" {
		return nil, "", fmt.Errorf("nats.url is not configured")
	}
	conn, err := nats.Connect(cfg.NATS.URL, nats.Name("smartwater-cli"))
	if err != nil {
		return nil, "", fmt.Errorf("connect nats: %w", err)
	}
	return conn, cfg.NATS.SubjectPrefix, nil
}

func emitPayment() error {
	amount, err := decimal.NewFromString(emitAmount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", emitAmount, err)
	}

	conn, prefix, err := connectNATS()
	if err != nil {
		return err
	}
	defer conn.Close()

	lg := logger.LoggerWrapper()
	event := events.NewPaymentRecordedEvent(emitPaymentID, emitTransID, emitMeter, emitPhone, amount)
	if err := events.NewNATSBridge(conn, prefix, lg).Handle(context.Background(), event); err != nil {
		return err
	}
	if err := conn.Flush(); err != nil {
		return err
	}
	lg.Info("payment event emitted", "event_id", event.EventID(), "payment_id", emitPaymentID, "meter_number", emitMeter)
	return nil
}

func tailEvents() error {
	conn, prefix, err := connectNATS()
	if err != nil {
		return err
	}
	defer conn.Close()

	subject := events.Subject(prefix, ">")
	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		fmt.Printf("%s %s %s\n", msg.Subject, msg.Header.Get(nats.MsgIdHdr), string(msg.Data))
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	defer sub.Unsubscribe()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

func init() {
	publishEventCmd.Flags().StringVar(&eventData, "data", "test message", "Event data message")

	emitPaymentCmd.Flags().Int64Var(&emitPaymentID, "payment-id", 0, "stored payment id")
	emitPaymentCmd.Flags().StringVar(&emitTransID, "trans-id", "", "gateway transaction id")
	emitPaymentCmd.Flags().StringVar(&emitMeter, "meter", "", "meter number")
	emitPaymentCmd.Flags().StringVar(&emitPhone, "phone", "", "payer phone number")
	emitPaymentCmd.Flags().StringVar(&emitAmount, "amount", "", "amount paid")
	_ = emitPaymentCmd.MarkFlagRequired("payment-id")
	_ = emitPaymentCmd.MarkFlagRequired("meter")
	_ = emitPaymentCmd.MarkFlagRequired("amount")

	eventCmd.AddCommand(publishEventCmd)
	eventCmd.AddCommand(emitPaymentCmd)
	eventCmd.AddCommand(tailEventCmd)
}
