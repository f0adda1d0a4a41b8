package payment_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apperrors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/aggregate"
	aggregatePostgres "github.com/frahmantamala/smartwater-vending/internal/aggregate/postgres"
	"github.com/frahmantamala/smartwater-vending/internal/core/datamodel"
	gatewaytypes "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/smartwater-vending/internal/core/events"
	"github.com/frahmantamala/smartwater-vending/internal/lock"
	"github.com/frahmantamala/smartwater-vending/internal/payment"
	paymentPostgres "github.com/frahmantamala/smartwater-vending/internal/payment/postgres"
	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

func openTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	Expect(err).NotTo(HaveOccurred())

	sqlDB, err := db.DB()
	Expect(err).NotTo(HaveOccurred())
	sqlDB.SetMaxOpenConns(1)

	Expect(db.AutoMigrate(datamodel.Models()...)).To(Succeed())
	return db
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

type failingAggregates struct{}

func (failingAggregates) ApplyPayment(context.Context, string, aggregate.PaymentDelta) (*aggregate.MeterAggregate, error) {
	return nil, errors.New("database is locked")
}

type stubMeters struct {
	known map[string]bool
	err   error
}

func (s stubMeters) Exists(_ context.Context, meter string) (bool, error) {
	return s.known[meter], s.err
}

func confirmation(transID, meter string, amount int64) payment.Confirmation {
	return payment.Confirmation{
		TransactionType: "Pay Bill",
		TransID:         transID,
		TransTime:       "20251016120000",
		Amount:          decimal.NewFromInt(amount),
		ShortCode:       "600980",
		MeterNumber:     meter,
		PhoneNumber:     "254700000000",
		FirstName:       "Jane",
		LastName:        "Doe",
	}
}

var _ = Describe("Service", func() {
	var (
		ctx        context.Context
		aggregates *aggregate.Service
		publisher  *recordingPublisher
		service    *payment.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		db := openTestDB()
		aggregates = aggregate.NewService(aggregatePostgres.NewAggregateRepository(db), lock.NewMemoryLocker(), logger.Discard())
		publisher = &recordingPublisher{}
		service = payment.NewService(
			paymentPostgres.NewPaymentRepository(db),
			aggregates,
			stubMeters{known: map[string]bool{"MTR001": true}},
			publisher,
			nil,
			logger.Discard(),
			payment.ServiceConfig{RequireRegisteredMeter: true},
		)
	})

	Describe("Record", func() {
		It("stores the payment, credits the meter and announces it", func() {
			// When
			result, err := service.Record(ctx, confirmation("QAB1", "MTR001", 100))

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Duplicate).To(BeFalse())
			Expect(result.Transaction.ID).To(BeNumerically(">", 0))

			agg, err := aggregates.Get(ctx, "MTR001")
			Expect(err).NotTo(HaveOccurred())
			Expect(agg.TotalAmountPaid.Equal(decimal.NewFromInt(100))).To(BeTrue())
			Expect(agg.TotalPaymentCount).To(Equal(int64(1)))
			Expect(*agg.LastPayer).To(Equal("254700000000"))

			published := publisher.published()
			Expect(published).To(HaveLen(1))
			recorded, ok := published[0].(*events.PaymentRecordedEvent)
			Expect(ok).To(BeTrue())
			Expect(recorded.PaymentID).To(Equal(result.Transaction.ID))
			Expect(recorded.MeterNumber).To(Equal("MTR001"))
		})

		It("treats a redelivered trans_id as a no-op", func() {
			// Given
			first, err := service.Record(ctx, confirmation("QAB1", "MTR001", 100))
			Expect(err).NotTo(HaveOccurred())

			// When
			second, err := service.Record(ctx, confirmation("QAB1", "MTR001", 100))

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Duplicate).To(BeTrue())
			Expect(second.Transaction.ID).To(Equal(first.Transaction.ID))

			agg, err := aggregates.Get(ctx, "MTR001")
			Expect(err).NotTo(HaveOccurred())
			Expect(agg.TotalPaymentCount).To(Equal(int64(1)))
			Expect(publisher.published()).To(HaveLen(1))
		})

		It("sums sequential payments for one meter", func() {
			_, err := service.Record(ctx, confirmation("QAB1", "MTR001", 50))
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Record(ctx, confirmation("QAB2", "MTR001", 150))
			Expect(err).NotTo(HaveOccurred())

			agg, err := aggregates.Get(ctx, "MTR001")
			Expect(err).NotTo(HaveOccurred())
			Expect(agg.TotalAmountPaid.Equal(decimal.NewFromInt(200))).To(BeTrue())
			Expect(agg.TotalPaymentCount).To(Equal(int64(2)))
		})

		DescribeTable("rejects invalid confirmations without side effects",
			func(c payment.Confirmation) {
				_, err := service.Record(ctx, c)

				Expect(err).To(HaveOccurred())
				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
				count, err := service.Count(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(count).To(BeZero())
				Expect(publisher.published()).To(BeEmpty())
			},
			Entry("missing trans id", confirmation("", "MTR001", 100)),
			Entry("missing meter", confirmation("QAB1", "", 100)),
			Entry("zero amount", confirmation("QAB1", "MTR001", 0)),
			Entry("negative amount", confirmation("QAB1", "MTR001", -5)),
			Entry("missing msisdn", func() payment.Confirmation {
				c := confirmation("QAB1", "MTR001", 100)
				c.PhoneNumber = " "
				return c
			}()),
			Entry("amount that rounds to zero cents", func() payment.Confirmation {
				c := confirmation("QAB1", "MTR001", 0)
				c.Amount = decimal.RequireFromString("0.004")
				return c
			}()),
		)

		It("reports a sub-cent amount as INVALID_AMOUNT", func() {
			c := confirmation("QAB1", "MTR001", 0)
			c.Amount = decimal.RequireFromString("0.004")

			_, err := service.Record(ctx, c)

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Details).To(BeAssignableToTypeOf(apperrors.ValidationErrors{}))
			Expect(appErr.Details.(apperrors.ValidationErrors).Errors[0].Code).To(Equal(string(apperrors.ErrCodeInvalidAmount)))
		})

		It("stores an amount that rounds up to a cent", func() {
			c := confirmation("QAB1", "MTR001", 0)
			c.Amount = decimal.RequireFromString("0.005")

			result, err := service.Record(ctx, c)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Transaction.TransAmount.String()).To(Equal("0.01"))
		})

		It("records a free-form bill reference and a hashed MSISDN as sent", func() {
			// Given
			hashed := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
			c := confirmation("QAB7", "MTR 001", 100)
			c.PhoneNumber = hashed

			// When
			result, err := service.Record(ctx, c)

			// Then
			Expect(err).NotTo(HaveOccurred())
			stored, err := service.GetByTransID(ctx, "QAB7")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ID).To(Equal(result.Transaction.ID))

			agg, err := aggregates.Get(ctx, "MTR 001")
			Expect(err).NotTo(HaveOccurred())
			Expect(*agg.LastPayer).To(Equal(hashed))
			recorded := publisher.published()[0].(*events.PaymentRecordedEvent)
			Expect(recorded.MeterNumber).To(Equal("MTR 001"))
			Expect(recorded.PhoneNumber).To(Equal(hashed))
		})

		It("keeps the payment and still announces it when the aggregate update fails", func() {
			// Given
			db := openTestDB()
			service = payment.NewService(
				paymentPostgres.NewPaymentRepository(db),
				failingAggregates{},
				nil,
				publisher,
				nil,
				logger.Discard(),
				payment.ServiceConfig{},
			)

			// When
			result, err := service.Record(ctx, confirmation("QAB9", "MTR001", 100))

			// Then
			Expect(errors.Is(err, apperrors.ErrAggregateUpdateFailed)).To(BeTrue())
			Expect(result).NotTo(BeNil())
			Expect(result.Transaction.TransID).To(Equal("QAB9"))
			Expect(publisher.published()).To(HaveLen(1))
		})
	})

	Describe("CheckValidation", func() {
		callback := func(meter string, amount string) gatewaytypes.C2BCallback {
			return gatewaytypes.C2BCallback{
				TransID:       "QAB1",
				BillRefNumber: meter,
				TransAmount:   decimal.RequireFromString(amount),
				MSISDN:        "254700000000",
			}
		}

		DescribeTable("answers with the gateway result code",
			func(cb gatewaytypes.C2BCallback, code interface{}, desc string) {
				result := service.CheckValidation(ctx, cb)

				Expect(result.ResultCode).To(Equal(code))
				Expect(result.ResultDesc).To(Equal(desc))
			},
			Entry("accepted", callback("MTR001", "100"), 0, "Accepted"),
			Entry("missing account", callback("", "100"), gatewaytypes.ResultInvalidAccount, "Invalid account number"),
			Entry("amount below one", callback("MTR001", "0.5"), gatewaytypes.ResultAmountTooLow, "Amount too low"),
			Entry("unregistered meter", callback("MTR404", "100"), gatewaytypes.ResultInvalidMeter, "Invalid meter number"),
		)

		It("accepts unknown meters when registration is not required", func() {
			service = payment.NewService(nil, nil, stubMeters{}, nil, nil, logger.Discard(), payment.ServiceConfig{})

			result := service.CheckValidation(ctx, callback("MTR404", "100"))

			Expect(result.ResultCode).To(Equal(0))
		})

		It("accepts when the meter lookup fails", func() {
			service = payment.NewService(nil, nil, stubMeters{err: errors.New("timeout")}, nil, nil, logger.Discard(),
				payment.ServiceConfig{RequireRegisteredMeter: true})

			result := service.CheckValidation(ctx, callback("MTR404", "100"))

			Expect(result.ResultCode).To(Equal(0))
		})
	})

	Describe("reads", func() {
		It("returns TRANSACTION_NOT_FOUND for an unknown id", func() {
			_, err := service.GetByTransID(ctx, "missing")

			Expect(errors.Is(err, apperrors.ErrTransactionNotFound)).To(BeTrue())
		})

		It("lists the newest transactions first", func() {
			for _, id := range []string{"T1", "T2"} {
				_, err := service.Record(ctx, confirmation(id, "MTR001", 10))
				Expect(err).NotTo(HaveOccurred())
			}

			txns, err := service.List(ctx, 0)

			Expect(err).NotTo(HaveOccurred())
			Expect(txns).To(HaveLen(2))
			Expect(txns[0].TransID).To(Equal("T2"))
		})
	})
})
