package vending_test

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/smartwater-vending/internal/aggregate"
	vendingDatamodel "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/vending"
	"github.com/frahmantamala/smartwater-vending/internal/vending"
)

// hashedMSISDN is how newer Daraja callbacks deliver the payer: a SHA-256 hex digest.
const hashedMSISDN = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

type mockVendRepository struct {
	mu        sync.Mutex
	rows      []*vendingDatamodel.VendToken
	createErr []error
	existsErr error
	nextID    int64
}

func (m *mockVendRepository) Create(_ context.Context, t *vendingDatamodel.VendToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.createErr) > 0 {
		err := m.createErr[0]
		m.createErr = m.createErr[1:]
		if err != nil {
			return err
		}
	}
	m.nextID++
	t.ID = m.nextID
	m.rows = append(m.rows, t)
	return nil
}

func (m *mockVendRepository) TokenExists(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	for _, r := range m.rows {
		if r.Token == token {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockVendRepository) GetByToken(_ context.Context, token string) (*vendingDatamodel.VendToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Token == token {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockVendRepository) GetByPaymentID(_ context.Context, id int64) (*vendingDatamodel.VendToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.PaymentID != nil && *r.PaymentID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockVendRepository) ListByMeter(_ context.Context, meter string, limit int) ([]*vendingDatamodel.VendToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*vendingDatamodel.VendToken
	for _, r := range m.rows {
		if r.MeterNumber == meter && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockVendRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// sequenceGenerator replays tokens in order.
type sequenceGenerator struct {
	mu     sync.Mutex
	tokens []string
	err    error
}

func (g *sequenceGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	if len(g.tokens) == 0 {
		return "00000000000000000000", nil
	}
	t := g.tokens[0]
	g.tokens = g.tokens[1:]
	return t, nil
}

type notifyCall struct {
	Phone, Token, Meter string
	Units               decimal.Decimal
}

type mockNotifier struct {
	mu    sync.Mutex
	ok    bool
	calls []notifyCall
}

func (n *mockNotifier) NotifyVend(_ context.Context, phone, token string, units decimal.Decimal, meter string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{Phone: phone, Token: token, Meter: meter, Units: units})
	return n.ok
}

type mockAggregates struct {
	mu     sync.Mutex
	err    error
	deltas []aggregate.VendDelta
}

func (a *mockAggregates) ApplyVend(_ context.Context, meter string, d aggregate.VendDelta) (*aggregate.MeterAggregate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	a.deltas = append(a.deltas, d)
	return &aggregate.MeterAggregate{MeterNumber: meter}, nil
}

type stubVender struct {
	mu       sync.Mutex
	requests []vending.VendRequest
	started  chan string
	release  chan struct{}
}

func (s *stubVender) Vend(_ context.Context, req vending.VendRequest) (*vending.VendRecord, error) {
	if s.started != nil {
		s.started <- req.MeterNumber
	}
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return &vending.VendRecord{MeterNumber: req.MeterNumber, Reference: "ref"}, nil
}

func (s *stubVender) handled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
