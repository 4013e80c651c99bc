package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"teamnetwork/internal/types"
)

// sendGridAPIBase is the default SendGrid API base URL.
const sendGridAPIBase = "https://api.sendgrid.com"

// SendGridMailerConfig holds configuration for the SendGrid client.
type SendGridMailerConfig struct {
	APIKey      string
	FromAddress string
	FromName    string
	BaseURL     string // Override for testing; defaults to sendGridAPIBase
	Logger      *slog.Logger
}

// SendGridMailer delivers transactional email through the SendGrid v3
// Mail Send API, routed through BaseClient for circuit breaking and
// retries. Used by the notify worker.
type SendGridMailer struct {
	base        *BaseClient
	apiKey      string
	fromAddress string
	fromName    string
	baseURL     string
	logger      *slog.Logger
}

// NewSendGridMailer creates a SendGridMailer.
func NewSendGridMailer(httpClient *http.Client, cfg SendGridMailerConfig) *SendGridMailer {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := NewBaseClient(
		httpClient,
		"sendgrid",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    time.Second,
			MaxWait:    10 * time.Second,
		},
		"TeamNetwork/1.0",
	)
	return &SendGridMailer{
		base:        base,
		apiKey:      cfg.APIKey,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		logger:      logger,
	}
}

// sendGridRequest is the v3 Mail Send request body.
type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send delivers a single plain-text email.
func (m *SendGridMailer) Send(ctx context.Context, to, subject, body string) error {
	payload := sendGridRequest{
		Personalizations: []sendGridPersonalization{
			{To: []sendGridAddress{{Email: to}}},
		},
		From:    sendGridAddress{Email: m.fromAddress, Name: m.fromName},
		Subject: subject,
		Content: []sendGridContent{
			{Type: "text/plain", Value: body},
		},
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode mail request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v3/mail/send", bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// SendGrid returns 202 Accepted on success.
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		m.logger.Warn("sendgrid send rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(snippet)),
		)
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("SendGrid rejected mail send with status %d", resp.StatusCode),
			nil,
		)
	}
	return nil
}
