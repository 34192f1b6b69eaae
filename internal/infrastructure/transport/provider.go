// Package transport implements the upstream SMS provider client.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
	"github.com/servicelane/sms-compliance-gateway/internal/infrastructure/config"
)

// ProviderClient sends messages through a Twilio-style REST API: form-encoded
// POST, basic auth, JSON response carrying the message SID.
type ProviderClient struct {
	httpClient *http.Client
	baseURL    string
	accountSID string
	authToken  string
	logger     *zap.Logger
}

// NewProviderClient creates the HTTP transport.
func NewProviderClient(cfg config.ProviderConfig, logger *zap.Logger) *ProviderClient {
	return &ProviderClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		logger:     logger,
	}
}

type providerResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendRawMessage delivers one message and returns the provider SID.
func (c *ProviderClient) SendRawMessage(ctx context.Context, to, from, body string, mediaURLs []string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)
	for _, mediaURL := range mediaURLs {
		form.Add("MediaUrl", mediaURL)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.NewInternalError("building provider request").WithCause(err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.NewExternalError("sms_provider", "provider request failed").WithCause(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.NewExternalError("sms_provider", "reading provider response").WithCause(err)
	}

	var parsed providerResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", errors.NewExternalError("sms_provider",
			fmt.Sprintf("unparseable provider response (status %d)", resp.StatusCode)).WithCause(err)
	}

	if resp.StatusCode >= 400 {
		return "", errors.NewExternalError("sms_provider",
			fmt.Sprintf("provider error %d: %s", parsed.Code, parsed.Message))
	}
	return parsed.SID, nil
}

// LogTransport accepts every message without delivering it. Used when no
// provider is configured, for development and integration environments.
type LogTransport struct {
	logger *zap.Logger
	mu     sync.Mutex
	seq    int
}

// NewLogTransport creates the no-delivery transport.
func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) SendRawMessage(ctx context.Context, to, from, body string, mediaURLs []string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	sid := fmt.Sprintf("LOG%029d", t.seq)
	t.logger.Info("message accepted by log transport",
		zap.String("sid", sid),
		zap.String("to", to),
		zap.String("from", from),
		zap.Int("body_len", len(body)),
		zap.Int("media", len(mediaURLs)),
	)
	return sid, nil
}
