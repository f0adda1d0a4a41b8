package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/smartwater-vending/internal/core/events"
	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

type recordingConn struct {
	mu   sync.Mutex
	msgs []*nats.Msg
	err  error
}

func (c *recordingConn) PublishMsg(m *nats.Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *recordingConn) published() []*nats.Msg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*nats.Msg(nil), c.msgs...)
}

var _ = Describe("EventBus", func() {
	var bus *events.EventBus

	BeforeEach(func() {
		bus = events.NewEventBus(logger.Discard())
	})

	It("runs every subscribed handler and Wait returns after they finish", func() {
		// Given
		var calls int32
		for i := 0; i < 3; i++ {
			bus.Subscribe(events.EventTypeVendCompleted, func(ctx context.Context, e events.Event) error {
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&calls, 1)
				return nil
			})
		}

		// When
		event := events.NewVendCompletedEvent(1, "ref", "MTR001", "123", decimal.NewFromInt(10), decimal.NewFromInt(100), nil)
		Expect(bus.Publish(context.Background(), event)).To(Succeed())
		bus.Wait()

		// Then
		Expect(atomic.LoadInt32(&calls)).To(Equal(int32(3)))
	})

	It("detaches async handlers from the publisher's cancellation", func() {
		// Given
		ctx, cancel := context.WithCancel(context.Background())
		var handlerErr error
		bus.Subscribe(events.EventTypePaymentRecorded, func(hctx context.Context, e events.Event) error {
			time.Sleep(5 * time.Millisecond)
			handlerErr = hctx.Err()
			return nil
		})

		// When
		Expect(bus.Publish(ctx, events.NewPaymentRecordedEvent(1, "TX1", "MTR001", "254700000000", decimal.NewFromInt(100)))).To(Succeed())
		cancel()
		bus.Wait()

		// Then
		Expect(handlerErr).NotTo(HaveOccurred())
	})

	It("returns handler errors from PublishSync", func() {
		bus.Subscribe(events.EventTypeVendAggregateFailed, func(ctx context.Context, e events.Event) error {
			return errors.New("boom")
		})

		err := bus.PublishSync(context.Background(), events.NewVendAggregateFailedEvent(1, "ref", "MTR001", decimal.NewFromInt(1), "db down"))

		Expect(err).To(HaveOccurred())
	})

	It("runs every handler in PublishSync and joins their errors", func() {
		first, second := errors.New("first"), errors.New("second")
		var ran int32
		bus.Subscribe(events.EventTypeVendCompleted, func(ctx context.Context, e events.Event) error {
			atomic.AddInt32(&ran, 1)
			return first
		})
		bus.Subscribe(events.EventTypeVendCompleted, func(ctx context.Context, e events.Event) error {
			atomic.AddInt32(&ran, 1)
			return second
		})

		err := bus.PublishSync(context.Background(), events.NewVendCompletedEvent(1, "ref", "MTR001", "123", decimal.NewFromInt(1), decimal.NewFromInt(10), nil))

		Expect(atomic.LoadInt32(&ran)).To(Equal(int32(2)))
		Expect(errors.Is(err, first)).To(BeTrue())
		Expect(errors.Is(err, second)).To(BeTrue())
	})

	It("reports a panicking handler as an error", func() {
		bus.Subscribe(events.EventTypePaymentRecorded, func(ctx context.Context, e events.Event) error {
			panic("nil meter")
		})

		err := bus.PublishSync(context.Background(), events.NewPaymentRecordedEvent(1, "TX1", "MTR001", "254700000000", decimal.NewFromInt(100)))

		Expect(err).To(MatchError(ContainSubstring("nil meter")))
	})

	It("survives a panicking async handler", func() {
		bus.Subscribe(events.EventTypePaymentRecorded, func(ctx context.Context, e events.Event) error {
			panic("boom")
		})

		Expect(bus.Publish(context.Background(), events.NewPaymentRecordedEvent(1, "TX1", "MTR001", "254700000000", decimal.NewFromInt(100)))).To(Succeed())
		bus.Wait()
	})

	It("gives up waiting when the context ends", func() {
		release := make(chan struct{})
		bus.Subscribe(events.EventTypeVendCompleted, func(ctx context.Context, e events.Event) error {
			<-release
			return nil
		})
		Expect(bus.Publish(context.Background(), events.NewVendCompletedEvent(1, "ref", "MTR001", "123", decimal.NewFromInt(1), decimal.NewFromInt(10), nil))).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		Expect(bus.WaitContext(ctx)).To(MatchError(context.DeadlineExceeded))

		close(release)
		Expect(bus.WaitContext(context.Background())).To(Succeed())
	})
})

var _ = Describe("NATSBridge", func() {
	It("publishes to the prefixed subject with the event id as message id", func() {
		// Given
		conn := &recordingConn{}
		bus := events.NewEventBus(logger.Discard())
		events.NewNATSBridge(conn, "smartwater", logger.Discard()).Forward(bus, events.EventTypePaymentRecorded)
		event := events.NewPaymentRecordedEvent(7, "TX7", "MTR002", "254711111111", decimal.RequireFromString("150.50"))

		// When
		Expect(bus.PublishSync(context.Background(), event)).To(Succeed())

		// Then
		msgs := conn.published()
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].Subject).To(Equal("smartwater.payment.recorded"))
		Expect(msgs[0].Header.Get(nats.MsgIdHdr)).To(Equal(event.EventID()))

		var decoded events.PaymentRecordedEvent
		Expect(json.Unmarshal(msgs[0].Data, &decoded)).To(Succeed())
		Expect(decoded.TransID).To(Equal("TX7"))
		Expect(decoded.Amount.Equal(decimal.RequireFromString("150.50"))).To(BeTrue())
	})

	It("surfaces publish failures", func() {
		conn := &recordingConn{err: nats.ErrConnectionClosed}
		bridge := events.NewNATSBridge(conn, "", logger.Discard())

		err := bridge.Handle(context.Background(), events.NewPaymentRecordedEvent(1, "TX1", "MTR001", "254700000000", decimal.NewFromInt(1)))

		Expect(err).To(MatchError(ContainSubstring("payment.recorded")))
	})
})

var _ = Describe("NATSConsumer", func() {
	It("decodes payment.recorded messages and hands them to the handler", func() {
		// Given
		var got *events.PaymentRecordedEvent
		consumer := events.NewNATSConsumer(nil, "smartwater", "vend-workers", func(ctx context.Context, e *events.PaymentRecordedEvent) error {
			got = e
			return nil
		}, logger.Discard())
		body, err := json.Marshal(events.NewPaymentRecordedEvent(9, "TX9", "MTR003", "254722222222", decimal.NewFromInt(50)))
		Expect(err).NotTo(HaveOccurred())

		// When
		err = consumer.HandleMessage(context.Background(), &nats.Msg{Subject: "smartwater.payment.recorded", Data: body})

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(got).NotTo(BeNil())
		Expect(got.PaymentID).To(Equal(int64(9)))
		Expect(got.MeterNumber).To(Equal("MTR003"))
	})

	It("rejects malformed payloads without calling the handler", func() {
		called := false
		consumer := events.NewNATSConsumer(nil, "", "q", func(ctx context.Context, e *events.PaymentRecordedEvent) error {
			called = true
			return nil
		}, logger.Discard())

		err := consumer.HandleMessage(context.Background(), &nats.Msg{Subject: "payment.recorded", Data: []byte("{")})

		Expect(err).To(HaveOccurred())
		Expect(called).To(BeFalse())
	})
})
