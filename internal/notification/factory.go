package notification

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/frahmantamala/smartwater-vending/internal"
)

// NewProvider selects the provider named in cfg. An unknown name is a configuration error.
func NewProvider(cfg internal.SMSConfig, client *http.Client, logger *slog.Logger) (Provider, error) {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderMock:
		return NewMockProvider(logger), nil
	case ProviderTwilio:
		return NewTwilioProvider(cfg.Twilio.BaseURL, cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber, client), nil
	case ProviderAfricasTalking:
		return NewAfricasTalkingProvider(cfg.AfricasTalking.BaseURL, cfg.AfricasTalking.Username, cfg.AfricasTalking.APIKey, cfg.SenderID, client), nil
	case ProviderMobizon:
		return NewMobizonProvider(cfg.Mobizon.BaseURL, cfg.Mobizon.APIKey, cfg.SenderID, client), nil
	default:
		return nil, fmt.Errorf("unknown sms provider %q", cfg.Provider)
	}
}
