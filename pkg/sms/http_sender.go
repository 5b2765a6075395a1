package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bloodbridge/platform/pkg/gateway/httpclient"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type HTTPConfig struct {
	GatewayURL   string
	SenderID     string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
	Attempts     int
}

// HTTPSender posts messages to a carrier gateway as JSON. When client credentials are
// configured, requests carry an OAuth2 bearer token fetched from TokenURL.
type HTTPSender struct {
	client   *http.Client
	url      string
	senderID string
	attempts int
}

type gatewayMessage struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Text string `json:"text"`
}

func NewHTTPSender(cfg HTTPConfig) (*HTTPSender, error) {
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("sms gateway url required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := httpclient.New(cfg.Timeout)
	if cfg.ClientID != "" && cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       []string{"sms.send"},
		}
		base := client
		client = cc.Client(context.WithValue(context.Background(), oauth2.HTTPClient, base))
		client.Timeout = cfg.Timeout
	}

	return &HTTPSender{
		client:   client,
		url:      cfg.GatewayURL,
		senderID: cfg.SenderID,
		attempts: cfg.Attempts,
	}, nil
}

func (s *HTTPSender) Send(ctx context.Context, phone, text string) error {
	if err := validatePhone(phone); err != nil {
		return err
	}

	body, err := json.Marshal(gatewayMessage{From: s.senderID, To: phone, Text: text})
	if err != nil {
		return err
	}

	return httpclient.Retry(ctx, s.attempts, 200*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return httpclient.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			if httpclient.IsRetriable(err) {
				return err
			}
			return httpclient.Permanent(err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("sms gateway returned %d", resp.StatusCode)
		default:
			return httpclient.Permanent(fmt.Errorf("sms gateway rejected message: %d", resp.StatusCode))
		}
	})
}
