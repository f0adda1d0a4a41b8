package aggregate_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/aggregate"
	meterDatamodel "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/meter"
	"github.com/frahmantamala/smartwater-vending/internal/transport"
	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

type mockAggregateRepository struct {
	rows       map[string]*meterDatamodel.MeterAggregate
	applyError error
	getError   error
	lastVend   aggregate.VendDelta
}

func newMockAggregateRepository() *mockAggregateRepository {
	return &mockAggregateRepository{rows: make(map[string]*meterDatamodel.MeterAggregate)}
}

func (m *mockAggregateRepository) row(meter string) *meterDatamodel.MeterAggregate {
	r, ok := m.rows[meter]
	if !ok {
		r = &meterDatamodel.MeterAggregate{MeterNumber: meter}
		m.rows[meter] = r
	}
	return r
}

func (m *mockAggregateRepository) GetOrCreate(_ context.Context, meter string) (*meterDatamodel.MeterAggregate, error) {
	return m.row(meter), nil
}

func (m *mockAggregateRepository) ApplyPayment(_ context.Context, meter string, d aggregate.PaymentDelta) (*meterDatamodel.MeterAggregate, error) {
	if m.applyError != nil {
		return nil, m.applyError
	}
	r := m.row(meter)
	r.TotalAmountPaid = r.TotalAmountPaid.Add(d.Amount)
	r.TotalPaymentCount++
	r.LastEnteredAmount = &d.Amount
	r.LastPayer = &d.Payer
	r.LastPaymentTime = &d.At
	return r, nil
}

func (m *mockAggregateRepository) ApplyVend(_ context.Context, meter string, d aggregate.VendDelta) (*meterDatamodel.MeterAggregate, error) {
	if m.applyError != nil {
		return nil, m.applyError
	}
	m.lastVend = d
	r := m.row(meter)
	r.TotalDispensedUnits = r.TotalDispensedUnits.Add(d.Units)
	r.TotalTokenCount++
	r.LastEnteredUnits = &d.Units
	r.LastUpdateAt = &d.At
	return r, nil
}

func (m *mockAggregateRepository) OverwriteTotals(_ context.Context, meter string, t aggregate.Totals) (*meterDatamodel.MeterAggregate, error) {
	r := m.row(meter)
	r.TotalDispensedUnits = t.DispensedUnits
	r.TotalTokenCount = t.TokenCount
	r.TotalAmountPaid = t.AmountPaid
	r.TotalPaymentCount = t.PaymentCount
	return r, nil
}

func (m *mockAggregateRepository) Get(_ context.Context, meter string) (*meterDatamodel.MeterAggregate, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	return m.rows[meter], nil
}

func (m *mockAggregateRepository) List(_ context.Context) ([]*meterDatamodel.MeterAggregate, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	out := make([]*meterDatamodel.MeterAggregate, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

type blockedLocker struct{}

func (blockedLocker) Lock(ctx context.Context, _ string) (func(), error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

var _ = Describe("Service", func() {
	var (
		repo    *mockAggregateRepository
		service *aggregate.Service
		ctx     context.Context
	)

	BeforeEach(func() {
		repo = newMockAggregateRepository()
		service = aggregate.NewService(repo, nil, logger.Discard())
		ctx = context.Background()
	})

	Describe("ApplyVend", func() {
		It("should stamp the event time when the caller leaves it empty", func() {
			// When
			_, err := service.ApplyVend(ctx, "MTR001", aggregate.VendDelta{Units: decimal.NewFromInt(3)})

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.lastVend.At).NotTo(BeZero())
		})

		It("should wrap repository failures", func() {
			repo.applyError = errors.New("disk full")

			_, err := service.ApplyVend(ctx, "MTR001", aggregate.VendDelta{Units: decimal.NewFromInt(3)})

			Expect(err).To(MatchError(ContainSubstring("disk full")))
		})

		It("should give up when the meter lock cannot be taken", func() {
			// Given
			service = aggregate.NewService(repo, blockedLocker{}, logger.Discard())
			ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()

			// When
			_, err := service.ApplyPayment(ctx, "MTR001", aggregate.PaymentDelta{Amount: decimal.NewFromInt(1)})

			// Then
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
			Expect(repo.rows).To(BeEmpty())
		})
	})

	Describe("Get", func() {
		It("should report a missing meter as not found", func() {
			_, err := service.Get(ctx, "MTR404")

			Expect(errors.Is(err, apperrors.ErrAggregateNotFound)).To(BeTrue())
		})

		It("should report repository failures as internal errors", func() {
			repo.getError = errors.New("connection reset")

			_, err := service.Get(ctx, "MTR001")

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("GetHomeSummary", func() {
		It("should project the last-entered fields", func() {
			// Given
			_, err := service.ApplyPayment(ctx, "MTR001", aggregate.PaymentDelta{Amount: decimal.NewFromInt(100), Payer: "254700000000"})
			Expect(err).NotTo(HaveOccurred())
			_, err = service.ApplyVend(ctx, "MTR001", aggregate.VendDelta{Units: decimal.NewFromInt(10)})
			Expect(err).NotTo(HaveOccurred())

			// When
			summary, err := service.GetHomeSummary(ctx, "MTR001")

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.MeterNumber).To(Equal("MTR001"))
			Expect(summary.LastUnits.Equal(decimal.NewFromInt(10))).To(BeTrue())
			Expect(summary.LastAmount.Equal(decimal.NewFromInt(100))).To(BeTrue())
			Expect(*summary.LastPhoneNumber).To(Equal("254700000000"))
		})
	})
})

var _ = Describe("Handler", func() {
	var (
		repo   *mockAggregateRepository
		router *chi.Mux
	)

	BeforeEach(func() {
		repo = newMockAggregateRepository()
		service := aggregate.NewService(repo, nil, logger.Discard())
		handler := aggregate.NewHandler(transport.NewBaseHandler(logger.Discard()), service)

		router = chi.NewRouter()
		router.Get("/meters/{meter}/aggregate", handler.GetMeterAggregate)
		router.Get("/aggregates/home", handler.ListHomeSummaries)
		router.Get("/aggregates/home/{meter}", handler.GetHomeSummary)
	})

	It("should return 404 for a meter without events", func() {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/meters/MTR404/aggregate", nil))

		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(rec.Body.String()).To(ContainSubstring(string(apperrors.ErrCodeAggregateNotFound)))
	})

	It("should list home summaries", func() {
		// Given
		repo.row("MTR001")
		repo.row("MTR002")

		// When
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/aggregates/home", nil))

		// Then
		Expect(rec.Code).To(Equal(http.StatusOK))
		var body aggregate.HomeSummariesResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Count).To(Equal(2))
	})

	It("should return the full aggregate", func() {
		repo.row("MTR001").TotalTokenCount = 4

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/meters/MTR001/aggregate", nil))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"total_token_count":4`))
	})
})
