package vending_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/smartwater-vending/internal"
	vendingDatamodel "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/vending"
	"github.com/frahmantamala/smartwater-vending/internal/core/events"
	"github.com/frahmantamala/smartwater-vending/internal/tokengen"
	"github.com/frahmantamala/smartwater-vending/internal/vending"
	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

var _ = Describe("Pipeline", func() {
	var (
		repo       *mockVendRepository
		generator  *sequenceGenerator
		notifier   *mockNotifier
		aggregates *mockAggregates
		bus        *events.EventBus
		pipeline   *vending.Pipeline
		ctx        context.Context
	)

	BeforeEach(func() {
		repo = &mockVendRepository{}
		generator = &sequenceGenerator{tokens: []string{"11111111111111111111", "22222222222222222222", "33333333333333333333"}}
		notifier = &mockNotifier{ok: true}
		aggregates = &mockAggregates{}
		bus = events.NewEventBus(logger.Discard())
		ctx = context.Background()

		converter, err := tokengen.NewConverter(tokengen.DefaultRate)
		Expect(err).NotTo(HaveOccurred())
		pipeline = vending.NewPipeline(repo, generator, converter, notifier, aggregates, logger.Discard(),
			vending.PipelineConfig{MaxTokenAttempts: 3}, vending.WithPublisher(bus))
	})

	request := func(amount string) vending.VendRequest {
		return vending.VendRequest{
			MeterNumber: "MTR001",
			PhoneNumber: "254700000000",
			Amount:      decimal.RequireFromString(amount),
		}
	}

	Context("with valid input", func() {
		It("persists the vend, notifies the payer and updates the aggregate", func() {
			// When
			record, err := pipeline.Vend(ctx, request("100"))

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Units.Equal(decimal.NewFromInt(10))).To(BeTrue())
			Expect(record.Token).To(Equal("11111111111111111111"))
			Expect(record.Reference).To(HaveLen(26))
			Expect(repo.count()).To(Equal(1))
			Expect(notifier.calls).To(HaveLen(1))
			Expect(notifier.calls[0].Phone).To(Equal("254700000000"))
			Expect(notifier.calls[0].Token).To(Equal(record.Token))
			Expect(aggregates.deltas).To(HaveLen(1))
			Expect(aggregates.deltas[0].Units.Equal(record.Units)).To(BeTrue())
			Expect(aggregates.deltas[0].Payer).To(Equal("254700000000"))
		})

		It("publishes vend.completed", func() {
			// Given
			received := make(chan events.Event, 1)
			bus.Subscribe(events.EventTypeVendCompleted, func(ctx context.Context, e events.Event) error {
				received <- e
				return nil
			})

			// When
			record, err := pipeline.Vend(ctx, request("55"))
			Expect(err).NotTo(HaveOccurred())

			// Then
			var event events.Event
			Eventually(received).Should(Receive(&event))
			Expect(event.(*events.VendCompletedEvent).Reference).To(Equal(record.Reference))
		})
	})

	Context("with an invalid amount", func() {
		DescribeTable("fails with INVALID_AMOUNT and leaves no trace",
			func(amount string) {
				_, err := pipeline.Vend(ctx, request(amount))

				Expect(errors.Is(err, apperrors.ErrInvalidAmount)).To(BeTrue())
				Expect(repo.count()).To(BeZero())
				Expect(aggregates.deltas).To(BeEmpty())
				Expect(notifier.calls).To(BeEmpty())
			},
			Entry("zero", "0"),
			Entry("negative", "-5"),
		)
	})

	DescribeTable("rejects a missing vend target before persisting",
		func(meter, phone string) {
			req := request("100")
			req.MeterNumber = meter
			req.PhoneNumber = phone

			_, err := pipeline.Vend(ctx, req)

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeValidationFailed))
			Expect(repo.count()).To(BeZero())
			Expect(aggregates.deltas).To(BeEmpty())
		},
		Entry("blank meter", "   ", "254700000000"),
		Entry("empty phone", "MTR001", ""),
	)

	Context("with identifiers the payment provider accepts as-is", func() {
		It("vends for a free-form bill reference and a masked MSISDN", func() {
			// Given
			req := request("100")
			req.MeterNumber = "MTR 001"
			req.PhoneNumber = "2547 ***** 678"

			// When
			record, err := pipeline.Vend(ctx, req)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(record.MeterNumber).To(Equal("MTR 001"))
			Expect(repo.count()).To(Equal(1))
			Expect(notifier.calls[0].Phone).To(Equal("2547 ***** 678"))
		})

		It("vends for a hashed MSISDN", func() {
			// Given
			req := request("100")
			req.PhoneNumber = hashedMSISDN

			// When
			record, err := pipeline.Vend(ctx, req)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(record.PhoneNumber).To(Equal(hashedMSISDN))
			Expect(aggregates.deltas[0].Payer).To(Equal(hashedMSISDN))
		})
	})

	Context("when tokens collide", func() {
		It("regenerates when the token is already stored", func() {
			// Given
			_, err := pipeline.Vend(ctx, request("10"))
			Expect(err).NotTo(HaveOccurred())
			generator.tokens = []string{"11111111111111111111", "44444444444444444444"}

			// When
			record, err := pipeline.Vend(ctx, request("20"))

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Token).To(Equal("44444444444444444444"))
		})

		It("regenerates when the insert hits the unique constraint", func() {
			repo.createErr = []error{vending.ErrTokenTaken}

			record, err := pipeline.Vend(ctx, request("10"))

			Expect(err).NotTo(HaveOccurred())
			Expect(record.Token).To(Equal("22222222222222222222"))
			Expect(repo.count()).To(Equal(1))
		})

		It("fails with TOKEN_GENERATION_EXHAUSTED after the attempt bound", func() {
			repo.createErr = []error{vending.ErrTokenTaken, vending.ErrTokenTaken, vending.ErrTokenTaken}

			record, err := pipeline.Vend(ctx, request("10"))

			Expect(record).To(BeNil())
			Expect(errors.Is(err, apperrors.ErrTokenGenerationExhausted)).To(BeTrue())
			Expect(repo.count()).To(BeZero())
			Expect(aggregates.deltas).To(BeEmpty())
		})

		It("counts generator failures against the bound", func() {
			generator.err = errors.New("entropy unavailable")

			_, err := pipeline.Vend(ctx, request("10"))

			Expect(errors.Is(err, apperrors.ErrTokenGenerationExhausted)).To(BeTrue())
		})
	})

	It("still succeeds when the notifier fails", func() {
		notifier.ok = false

		record, err := pipeline.Vend(ctx, request("30"))

		Expect(err).NotTo(HaveOccurred())
		Expect(record).NotTo(BeNil())
		Expect(aggregates.deltas).To(HaveLen(1))
	})

	It("returns the durable record with AGGREGATE_UPDATE_FAILED when the aggregate update fails", func() {
		// Given
		aggregates.err = errors.New("database unavailable")
		received := make(chan events.Event, 1)
		bus.Subscribe(events.EventTypeVendAggregateFailed, func(ctx context.Context, e events.Event) error {
			received <- e
			return nil
		})

		// When
		record, err := pipeline.Vend(ctx, request("40"))

		// Then
		Expect(errors.Is(err, apperrors.ErrAggregateUpdateFailed)).To(BeTrue())
		Expect(record).NotTo(BeNil())
		Expect(repo.count()).To(Equal(1))
		Eventually(received).Should(Receive())
	})

	Context("with a payment id", func() {
		It("returns the existing vend instead of vending twice", func() {
			// Given
			paymentID := int64(42)
			req := request("100")
			req.PaymentID = &paymentID
			first, err := pipeline.Vend(ctx, req)
			Expect(err).NotTo(HaveOccurred())

			// When
			second, err := pipeline.Vend(ctx, req)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(second.ID).To(Equal(first.ID))
			Expect(repo.count()).To(Equal(1))
			Expect(notifier.calls).To(HaveLen(1))
			Expect(aggregates.deltas).To(HaveLen(1))
		})

		It("returns the concurrent winner when the insert loses the payment race", func() {
			// Given
			paymentID := int64(7)
			winner := request("100")
			winner.PaymentID = &paymentID
			_, err := pipeline.Vend(ctx, winner)
			Expect(err).NotTo(HaveOccurred())

			var ids []int64
			for _, r := range repo.rows {
				ids = append(ids, r.ID)
			}
			// a second pipeline whose lookup misses the existing row, as a racing caller would
			racing := &racingRepository{mockVendRepository: repo}
			converter, _ := tokengen.NewConverter(tokengen.DefaultRate)
			other := vending.NewPipeline(racing, &sequenceGenerator{tokens: []string{"99999999999999999999"}}, converter, notifier, aggregates, logger.Discard(), vending.PipelineConfig{})

			// When
			record, err := other.Vend(ctx, winner)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(record.ID).To(Equal(ids[0]))
			Expect(aggregates.deltas).To(HaveLen(1))
		})
	})
})

// racingRepository hides the existing vend on the first lookup and rejects the insert.
type racingRepository struct {
	*mockVendRepository
	lookups int
}

func (r *racingRepository) GetByPaymentID(ctx context.Context, id int64) (*vendingDatamodel.VendToken, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, nil
	}
	return r.mockVendRepository.GetByPaymentID(ctx, id)
}

func (r *racingRepository) Create(_ context.Context, _ *vendingDatamodel.VendToken) error {
	return vending.ErrPaymentAlreadyVended
}
