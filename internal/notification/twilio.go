package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

type TwilioProvider struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	client     *http.Client
}

func NewTwilioProvider(baseURL, accountSID, authToken, from string, client *http.Client) *TwilioProvider {
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	return &TwilioProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		client:     client,
	}
}

func (p *TwilioProvider) Name() string {
	return ProviderTwilio
}

func (p *TwilioProvider) Send(ctx context.Context, to, message string) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.baseURL, url.PathEscape(p.accountSID))

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", p.from)
	form.Set("Body", message)

	status, body, err := postForm(ctx, p.client, endpoint, form.Encode(), func(req *http.Request) {
		req.SetBasicAuth(p.accountSID, p.authToken)
	})
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return fmt.Errorf("twilio rejected message: status %d, code %d: %s", status, apiErr.Code, apiErr.Message)
	}
	return nil
}
