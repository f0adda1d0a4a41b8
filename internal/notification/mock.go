package notification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrMockFailure = errors.New("mock provider configured to fail")

// MockProvider logs and records messages instead of sending them.
type MockProvider struct {
	logger *slog.Logger

	mu       sync.Mutex
	sent     []Message
	failWith error
}

func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{logger: logger}
}

func (p *MockProvider) Name() string {
	return ProviderMock
}

// FailWith makes every later Send return err; nil restores success.
func (p *MockProvider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

func (p *MockProvider) Send(ctx context.Context, to, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.sent = append(p.sent, Message{To: to, Body: message})
	p.logger.Info("mock sms", "to", to, "message", message)
	return nil
}

func (p *MockProvider) Sent() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.sent))
	copy(out, p.sent)
	return out
}
