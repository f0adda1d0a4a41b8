package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultAfricasTalkingBaseURL = "https://api.africastalking.com"

type AfricasTalkingProvider struct {
	baseURL  string
	username string
	apiKey   string
	senderID string
	client   *http.Client
}

type africasTalkingResponse struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			StatusCode int    `json:"statusCode"`
			Number     string `json:"number"`
			Status     string `json:"status"`
			MessageID  string `json:"messageId"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

func NewAfricasTalkingProvider(baseURL, username, apiKey, senderID string, client *http.Client) *AfricasTalkingProvider {
	if baseURL == "" {
		baseURL = defaultAfricasTalkingBaseURL
	}
	return &AfricasTalkingProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		apiKey:   apiKey,
		senderID: senderID,
		client:   client,
	}
}

func (p *AfricasTalkingProvider) Name() string {
	return ProviderAfricasTalking
}

func (p *AfricasTalkingProvider) Send(ctx context.Context, to, message string) error {
	form := url.Values{}
	form.Set("username", p.username)
	form.Set("to", to)
	form.Set("message", message)
	if p.senderID != "" {
		form.Set("from", p.senderID)
	}

	status, body, err := postForm(ctx, p.client, p.baseURL+"/version1/messaging", form.Encode(), func(req *http.Request) {
		req.Header.Set("apiKey", p.apiKey)
	})
	if err != nil {
		return err
	}
	if status >= http.StatusMultipleChoices {
		return fmt.Errorf("africastalking rejected message: status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var resp africasTalkingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to decode africastalking response: %w", err)
	}
	if len(resp.SMSMessageData.Recipients) == 0 {
		return fmt.Errorf("africastalking accepted no recipients: %s", resp.SMSMessageData.Message)
	}
	for _, r := range resp.SMSMessageData.Recipients {
		if r.Status != "Success" {
			return fmt.Errorf("africastalking delivery to %s failed: %s", r.Number, r.Status)
		}
	}
	return nil
}
