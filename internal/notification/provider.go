package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	ProviderMock           = "mock"
	ProviderTwilio         = "twilio"
	ProviderAfricasTalking = "africastalking"
	ProviderMobizon        = "mobizon"
)

// Provider delivers one SMS. Implementations return an error for any
// non-delivery; the Service turns that into a boolean for its callers.
type Provider interface {
	Name() string
	Send(ctx context.Context, to, message string) error
}

type Message struct {
	To   string `json:"to"`
	Body string `json:"message"`
}

// postForm sends a form-encoded request and returns the status and body.
// decorate, when set, adds provider specific auth to the request.
func postForm(ctx context.Context, client *http.Client, endpoint string, form string, decorate func(*http.Request)) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if decorate != nil {
		decorate(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
