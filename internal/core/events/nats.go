package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// MsgPublisher is the subset of *nats.Conn used by the bridge.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// QueueSubscriber is the subset of *nats.Conn used by the consumer.
type QueueSubscriber interface {
	QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

func Subject(prefix, eventType string) string {
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}

// NATSBridge republishes bus events onto NATS subjects.
type NATSBridge struct {
	conn   MsgPublisher
	prefix string
	logger *slog.Logger
}

func NewNATSBridge(conn MsgPublisher, prefix string, logger *slog.Logger) *NATSBridge {
	return &NATSBridge{conn: conn, prefix: prefix, logger: logger}
}

// Forward subscribes the bridge to every given event type on bus.
func (b *NATSBridge) Forward(bus *EventBus, eventTypes ...string) {
	for _, eventType := range eventTypes {
		bus.Subscribe(eventType, b.Handle)
	}
}

func (b *NATSBridge) Handle(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.EventType(), err)
	}

	msg := nats.NewMsg(Subject(b.prefix, event.EventType()))
	msg.Header.Set(nats.MsgIdHdr, event.EventID())
	msg.Data = body

	if err := b.conn.PublishMsg(msg); err != nil {
		b.logger.Error("failed to forward event to nats",
			"event_type", event.EventType(),
			"event_id", event.EventID(),
			"error", err)
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}

	b.logger.Debug("event forwarded to nats", "subject", msg.Subject, "event_id", event.EventID())
	return nil
}

// PaymentRecordedHandler processes a payment.recorded event received from NATS.
type PaymentRecordedHandler func(ctx context.Context, event *PaymentRecordedEvent) error

// NATSConsumer feeds payment.recorded messages from a queue group into a handler.
type NATSConsumer struct {
	conn    QueueSubscriber
	prefix  string
	queue   string
	handler PaymentRecordedHandler
	logger  *slog.Logger
}

func NewNATSConsumer(conn QueueSubscriber, prefix, queue string, handler PaymentRecordedHandler, logger *slog.Logger) *NATSConsumer {
	return &NATSConsumer{
		conn:    conn,
		prefix:  prefix,
		queue:   queue,
		handler: handler,
		logger:  logger,
	}
}

// Start subscribes and blocks until ctx is cancelled, then drains the subscription.
func (c *NATSConsumer) Start(ctx context.Context) error {
	subject := Subject(c.prefix, EventTypePaymentRecorded)
	sub, err := c.conn.QueueSubscribe(subject, c.queue, func(msg *nats.Msg) {
		_ = c.HandleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	c.logger.Info("nats consumer started", "subject", subject, "queue", c.queue)
	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		c.logger.Warn("nats drain failed", "subject", subject, "error", err)
	}
	c.logger.Info("nats consumer stopped", "subject", subject)
	return nil
}

func (c *NATSConsumer) HandleMessage(ctx context.Context, msg *nats.Msg) error {
	var event PaymentRecordedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logger.Error("discarding undecodable message", "subject", msg.Subject, "error", err)
		return fmt.Errorf("decode %s: %w", msg.Subject, err)
	}

	if err := c.handler(ctx, &event); err != nil {
		c.logger.Error("payment.recorded handler failed",
			"event_id", event.ID,
			"trans_id", event.TransID,
			"error", err)
		return err
	}
	return nil
}
