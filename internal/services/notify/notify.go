// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package notify delivers outbound email requests to the notification service.
package notify

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

	"github.com/sethvargo/go-retry"
)

// SendEmailPath is the notifier endpoint accepting send-email commands.
const SendEmailPath = "/api/notifications/send-email"

// Message is the send-email command payload.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Dispatcher sends a single email.
type Dispatcher interface {
	SendEmail(ctx context.Context, msg Message) error
}

// ClientOptions tunes the HTTP dispatcher.
type ClientOptions struct {
	Timeout    time.Duration
	MaxRetries uint64
	Backoff    time.Duration
}

// Client posts send-email commands to the notifier over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	backoff    time.Duration
}

// NewClient creates a dispatcher for the notifier at baseURL.
func NewClient(baseURL string, opts ClientOptions) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("notifier URL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
	}, nil
}

// SendEmail posts msg to the notifier. Network errors and 5xx responses are
// retried with exponential backoff; 4xx responses are returned immediately.
func (c *Client) SendEmail(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding email: %w", err)
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		return c.post(ctx, payload)
	})
}

func (c *Client) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+SendEmailPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building notifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.RetryableError(fmt.Errorf("calling notifier: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 500:
		return retry.RetryableError(fmt.Errorf("notifier returned status %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		return fmt.Errorf("notifier rejected email with status %d", resp.StatusCode)
	}
	return nil
}

// LogDispatcher writes emails to the log instead of sending them.
// Used when no notifier is configured.
type LogDispatcher struct {
	Logger *slog.Logger
}

// SendEmail implements Dispatcher.
func (d LogDispatcher) SendEmail(_ context.Context, msg Message) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email_not_sent", "to", msg.To, "subject", msg.Subject, "reason", "no notifier configured")
	return nil
}
