package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/frahmantamala/smartwater-vending/internal/metrics"
)

const vendMessageFormat = "SmartWater Vending\nMeter: %s\nUnits: %s\nToken: %s\nThank you for using SmartWater!"

// FormatVendMessage renders the SMS a payer receives after a vend.
func FormatVendMessage(meterNumber, token string, units decimal.Decimal) string {
	return fmt.Sprintf(vendMessageFormat, meterNumber, units.StringFixed(2), token)
}

// Service wraps a Provider so that sending never fails its caller: every
// outcome becomes a boolean, and every send is bounded by the timeout.
type Service struct {
	provider Provider
	timeout  time.Duration
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithBulkRate paces SendBulk to perSecond messages. Zero or less disables pacing.
func WithBulkRate(perSecond float64) Option {
	return func(s *Service) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func NewService(provider Provider, timeout time.Duration, logger *slog.Logger, opts ...Option) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &Service{
		provider: provider,
		timeout:  timeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ProviderName() string {
	return s.provider.Name()
}

func (s *Service) Send(ctx context.Context, phone, message string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.provider.Send(ctx, phone, message)
	ok := err == nil
	s.metrics.RecordNotification(s.provider.Name(), ok)
	if !ok {
		s.logger.Error("failed to send sms",
			"provider", s.provider.Name(),
			"to", phone,
			"error", err)
		return false
	}

	s.logger.Info("sms sent", "provider", s.provider.Name(), "to", phone)
	return true
}

// SendBulk sends every message and reports whether all of them went out.
func (s *Service) SendBulk(ctx context.Context, messages []Message) bool {
	allSent := true
	for _, m := range messages {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				s.logger.Warn("bulk sms aborted", "remaining_from", m.To, "error", err)
				return false
			}
		}
		if !s.Send(ctx, m.To, m.Body) {
			allSent = false
		}
	}
	return allSent
}

func (s *Service) NotifyVend(ctx context.Context, phone, token string, units decimal.Decimal, meterNumber string) bool {
	return s.Send(ctx, phone, FormatVendMessage(meterNumber, token, units))
}
