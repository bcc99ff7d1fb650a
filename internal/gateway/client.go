// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package gateway contains the pieces of the edge gateway that talk to other
// services: the token validation client and the reverse proxy routes.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codeberg.org/oliverandrich/onetouch-auth/internal/identity"
	"codeberg.org/oliverandrich/onetouch-auth/internal/metrics"
)

// ValidatePath is the authority endpoint that resolves a token.
const ValidatePath = "/api/auth/validate"

const maxResponseSize = 64 << 10

// ErrRejected is returned when the authority refuses a token.
var ErrRejected = errors.New("token rejected by authority")

// Client validates tokens against the authentication authority.
type Client struct {
	validateURL string
	http        *http.Client
	metrics     *metrics.Gateway
}

// NewClient creates a validation client. Every call is bounded by timeout.
func NewClient(authorityURL string, timeout time.Duration, m *metrics.Gateway) (*Client, error) {
	if authorityURL == "" {
		return nil, errors.New("authority URL is required")
	}
	if timeout <= 0 {
		return nil, errors.New("validate timeout must be positive")
	}
	return &Client{
		validateURL: strings.TrimSuffix(authorityURL, "/") + ValidatePath,
		http:        &http.Client{Timeout: timeout},
		metrics:     m,
	}, nil
}

type validateRequest struct {
	Token string `json:"token"`
}

// ValidateToken asks the authority for the identity behind token. Transport
// errors, non-2xx responses and incomplete identities are all errors.
func (c *Client) ValidateToken(ctx context.Context, token string) (identity.Identity, error) {
	start := time.Now()
	defer func() { c.metrics.ObserveValidate(time.Since(start)) }()

	payload, err := json.Marshal(validateRequest{Token: token})
	if err != nil {
		return identity.Identity{}, fmt.Errorf("encoding validate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.validateURL, bytes.NewReader(payload))
	if err != nil {
		return identity.Identity{}, fmt.Errorf("building validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("calling authority: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body := io.LimitReader(resp.Body, maxResponseSize)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, body)
		return identity.Identity{}, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var id identity.Identity
	if err := json.NewDecoder(body).Decode(&id); err != nil {
		return identity.Identity{}, fmt.Errorf("decoding validate response: %w", err)
	}
	if !id.Complete() {
		return identity.Identity{}, fmt.Errorf("%w: incomplete identity", ErrRejected)
	}
	return id, nil
}
