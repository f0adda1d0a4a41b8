package vending_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/transport"
	"github.com/frahmantamala/smartwater-vending/internal/vending"
	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

type fakeVendService struct {
	record    *vending.VendRecord
	vendErr   error
	lastReq   vending.VendRequest
	lastLimit int
}

func (f *fakeVendService) Vend(_ context.Context, req vending.VendRequest) (*vending.VendRecord, error) {
	f.lastReq = req
	return f.record, f.vendErr
}

func (f *fakeVendService) GetByToken(_ context.Context, token string) (*vending.VendRecord, error) {
	if f.record != nil && f.record.Token == token {
		return f.record, nil
	}
	return nil, apperrors.ErrVendNotFound
}

func (f *fakeVendService) ListByMeter(_ context.Context, meter string, limit int) ([]*vending.VendRecord, error) {
	f.lastLimit = limit
	if f.record == nil {
		return nil, nil
	}
	return []*vending.VendRecord{f.record}, nil
}

var _ = Describe("Handler", func() {
	var (
		service *fakeVendService
		router  chi.Router
	)

	BeforeEach(func() {
		service = &fakeVendService{record: &vending.VendRecord{
			ID:          1,
			MeterNumber: "MTR001",
			PhoneNumber: "254700000000",
			Amount:      decimal.NewFromInt(100),
			Units:       decimal.NewFromInt(10),
			Token:       "12345678901234567890",
		}}
		h := vending.NewHandler(transport.NewBaseHandler(logger.Discard()), service)
		router = chi.NewRouter()
		router.Post("/vending/generate", h.GenerateToken)
		router.Get("/vending/tokens/{token}", h.GetByToken)
		router.Get("/meters/{meter}/vends", h.ListByMeter)
	})

	serve := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	Describe("GenerateToken", func() {
		It("returns 201 with the vend", func() {
			rec := serve(http.MethodPost, "/vending/generate", `{"meter_number":"MTR001","phone_number":"254700000000","amount":100}`)

			Expect(rec.Code).To(Equal(http.StatusCreated))
			var body vending.VendRecord
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Token).To(Equal("12345678901234567890"))
			Expect(service.lastReq.Amount.Equal(decimal.NewFromInt(100))).To(BeTrue())
		})

		It("returns 400 INVALID_AMOUNT for a zero amount", func() {
			rec := serve(http.MethodPost, "/vending/generate", `{"meter_number":"MTR001","phone_number":"254700000000","amount":0}`)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring(string(apperrors.ErrCodeInvalidAmount)))
		})

		It("keeps the strict meter format for operator-issued vends", func() {
			rec := serve(http.MethodPost, "/vending/generate", `{"meter_number":"MTR 001","phone_number":"254700000000","amount":100}`)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring(string(apperrors.ErrCodeValidationFailed)))
			Expect(service.lastReq.MeterNumber).To(BeEmpty())
		})

		It("returns 400 for malformed JSON", func() {
			rec := serve(http.MethodPost, "/vending/generate", `{`)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns the vend alongside AGGREGATE_UPDATE_FAILED", func() {
			service.vendErr = apperrors.NewAggregateUpdateFailedError("MTR001", errors.New("db down"))

			rec := serve(http.MethodPost, "/vending/generate", `{"meter_number":"MTR001","phone_number":"254700000000","amount":100}`)

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(rec.Body.String()).To(ContainSubstring(string(apperrors.ErrCodeAggregateUpdateFailed)))
			Expect(rec.Body.String()).To(ContainSubstring("12345678901234567890"))
		})

		It("returns 503 when tokens are exhausted", func() {
			service.record = nil
			service.vendErr = apperrors.NewTokenGenerationExhaustedError(5, vending.ErrTokenTaken)

			rec := serve(http.MethodPost, "/vending/generate", `{"meter_number":"MTR001","phone_number":"254700000000","amount":100}`)

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Describe("GetByToken", func() {
		It("returns 404 for an unknown token", func() {
			rec := serve(http.MethodGet, "/vending/tokens/000", "")

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("ListByMeter", func() {
		It("passes the limit through", func() {
			rec := serve(http.MethodGet, "/meters/MTR001/vends?limit=5", "")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(service.lastLimit).To(Equal(5))
			var body vending.VendListResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Count).To(Equal(1))
		})

		It("rejects a non-numeric limit", func() {
			rec := serve(http.MethodGet, "/meters/MTR001/vends?limit=abc", "")

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
