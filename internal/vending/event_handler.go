package vending

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/smartwater-vending/internal/core/events"
)

type JobSubmitter interface {
	Submit(job VendJob) error
}

// EventHandler turns recorded payments into queued vend jobs.
type EventHandler struct {
	submitter JobSubmitter
	logger    *slog.Logger
}

func NewEventHandler(submitter JobSubmitter, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		submitter: submitter,
		logger:    logger,
	}
}

func (h *EventHandler) HandlePaymentRecorded(ctx context.Context, event events.Event) error {
	paymentEvent, ok := event.(*events.PaymentRecordedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment recorded handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentRecordedEvent, got %T", event)
	}
	return h.SubmitPayment(ctx, paymentEvent)
}

// SubmitPayment queues the vend for a recorded payment. It also serves the NATS consumer.
func (h *EventHandler) SubmitPayment(ctx context.Context, event *events.PaymentRecordedEvent) error {
	paymentID := event.PaymentID
	job := VendJob{
		TransID: event.TransID,
		Request: VendRequest{
			MeterNumber: event.MeterNumber,
			PhoneNumber: event.PhoneNumber,
			Amount:      event.Amount,
			PaymentID:   &paymentID,
		},
	}

	if err := h.submitter.Submit(job); err != nil {
		h.logger.Error("failed to queue vend for payment",
			"trans_id", event.TransID,
			"payment_id", event.PaymentID,
			"meter_number", event.MeterNumber,
			"event_id", event.EventID(),
			"error", err)
		return fmt.Errorf("queue vend for payment %s: %w", event.TransID, err)
	}

	h.logger.Info("vend queued for payment",
		"trans_id", event.TransID,
		"payment_id", event.PaymentID,
		"meter_number", event.MeterNumber,
		"event_id", event.EventID())
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentRecorded, h.HandlePaymentRecorded)

	h.logger.Info("vending event handlers registered",
		"handlers", []string{events.EventTypePaymentRecorded})
}
