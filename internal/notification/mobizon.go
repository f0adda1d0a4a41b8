package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultMobizonBaseURL = "https://api.mobizon.kz"

type MobizonProvider struct {
	baseURL  string
	apiKey   string
	senderID string
	client   *http.Client
}

func NewMobizonProvider(baseURL, apiKey, senderID string, client *http.Client) *MobizonProvider {
	if baseURL == "" {
		baseURL = defaultMobizonBaseURL
	}
	return &MobizonProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		senderID: senderID,
		client:   client,
	}
}

func (p *MobizonProvider) Name() string {
	return ProviderMobizon
}

func (p *MobizonProvider) Send(ctx context.Context, to, message string) error {
	form := url.Values{}
	form.Set("apiKey", p.apiKey)
	form.Set("recipient", strings.TrimPrefix(to, "+"))
	form.Set("text", message)
	if p.senderID != "" {
		form.Set("from", p.senderID)
	}

	status, body, err := postForm(ctx, p.client, p.baseURL+"/service/message/sendsmsmessage", form.Encode(), nil)
	if err != nil {
		return err
	}
	if status >= http.StatusMultipleChoices {
		return fmt.Errorf("mobizon rejected message: status %d", status)
	}

	var result struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode mobizon response: %w", err)
	}
	if result.Code != 0 {
		return fmt.Errorf("mobizon error: %s (code %d)", result.Message, result.Code)
	}
	return nil
}
