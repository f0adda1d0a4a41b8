package vending_test

import (
	"context"
	"errors"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/core/events"
	"github.com/frahmantamala/smartwater-vending/internal/vending"
	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

func job(meter string) vending.VendJob {
	return vending.VendJob{
		TransID: "TX-" + meter,
		Request: vending.VendRequest{MeterNumber: meter, PhoneNumber: "254700000000", Amount: decimal.NewFromInt(100)},
	}
}

var _ = Describe("Dispatcher", func() {
	It("runs submitted jobs on the worker pool", func() {
		// Given
		vender := &stubVender{}
		dispatcher := vending.NewDispatcher(vender, vending.DispatcherConfig{Workers: 2, QueueSize: 10}, logger.Discard(), nil)
		dispatcher.Start()

		// When
		for _, m := range []string{"MTR001", "MTR002", "MTR003"} {
			Expect(dispatcher.Submit(job(m))).To(Succeed())
		}

		// Then
		Eventually(vender.handled).Should(Equal(3))
		Expect(dispatcher.Shutdown(context.Background())).To(Succeed())
	})

	It("fails fast with VEND_QUEUE_FULL when the queue is full", func() {
		// Given
		vender := &stubVender{release: make(chan struct{})}
		dispatcher := vending.NewDispatcher(vender, vending.DispatcherConfig{Workers: 1, QueueSize: 1}, logger.Discard(), nil)
		dispatcher.Start()

		// keep submitting until the blocked worker, the dispatcher and the queue are all occupied
		Expect(dispatcher.Submit(job("MTR001"))).To(Succeed())
		Eventually(func() error { return dispatcher.Submit(job("MTR002")) }).Should(Succeed())

		var err error
		Eventually(func() error {
			err = dispatcher.Submit(job("MTR003"))
			return err
		}, time.Second).Should(HaveOccurred())

		// Then
		Expect(errors.Is(err, apperrors.ErrVendQueueFull)).To(BeTrue())
		close(vender.release)
		Expect(dispatcher.Shutdown(context.Background())).To(Succeed())
	})

	It("drains queued jobs on shutdown and refuses new ones", func() {
		// Given
		vender := &stubVender{}
		dispatcher := vending.NewDispatcher(vender, vending.DispatcherConfig{Workers: 1, QueueSize: 5}, logger.Discard(), nil)
		for _, m := range []string{"MTR001", "MTR002", "MTR003"} {
			Expect(dispatcher.Submit(job(m))).To(Succeed())
		}

		// When
		dispatcher.Start()
		Expect(dispatcher.Shutdown(context.Background())).To(Succeed())

		// Then
		Expect(vender.handled()).To(Equal(3))
		Expect(dispatcher.Submit(job("MTR004"))).To(MatchError(apperrors.ErrVendQueueFull))
	})

	It("logs the jobs it drops when shutdown runs out of time", func() {
		// Given
		logs := gbytes.NewBuffer()
		vender := &stubVender{started: make(chan string, 1), release: make(chan struct{})}
		dispatcher := vending.NewDispatcher(vender, vending.DispatcherConfig{Workers: 1, QueueSize: 5},
			slog.New(slog.NewJSONHandler(logs, nil)), nil)
		for _, m := range []string{"MTR001", "MTR002", "MTR003"} {
			Expect(dispatcher.Submit(job(m))).To(Succeed())
		}
		dispatcher.Start()
		Eventually(vender.started).Should(Receive(Equal("MTR001")))

		// When
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := dispatcher.Shutdown(ctx)

		// Then
		Expect(err).To(MatchError(context.DeadlineExceeded))
		Expect(logs).To(gbytes.Say("reconcile revend"))
		Expect(logs).To(gbytes.Say(`"dropped_jobs":2,"trans_ids":\["TX-MTR002","TX-MTR003"\]`))

		close(vender.release)
		Eventually(vender.handled).Should(Equal(1))
		Consistently(vender.handled, 100*time.Millisecond).Should(Equal(1))
	})
})

var _ = Describe("EventHandler", func() {
	It("queues a vend for every recorded payment", func() {
		// Given
		vender := &stubVender{}
		dispatcher := vending.NewDispatcher(vender, vending.DispatcherConfig{Workers: 1, QueueSize: 5}, logger.Discard(), nil)
		dispatcher.Start()
		bus := events.NewEventBus(logger.Discard())
		vending.NewEventHandler(dispatcher, logger.Discard()).RegisterEventHandlers(bus)

		// When
		err := bus.PublishSync(context.Background(), events.NewPaymentRecordedEvent(5, "TX5", "MTR001", "254700000000", decimal.NewFromInt(100)))

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(dispatcher.Shutdown(context.Background())).To(Succeed())
		Expect(vender.requests).To(HaveLen(1))
		Expect(*vender.requests[0].PaymentID).To(Equal(int64(5)))
		Expect(vender.requests[0].Amount.Equal(decimal.NewFromInt(100))).To(BeTrue())
	})

	It("rejects events of the wrong type", func() {
		handler := vending.NewEventHandler(nil, logger.Discard())

		err := handler.HandlePaymentRecorded(context.Background(), events.NewVendCompletedEvent(1, "r", "MTR001", "t", decimal.Zero, decimal.Zero, nil))

		Expect(err).To(HaveOccurred())
	})
})
