// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"codeberg.org/oliverandrich/onetouch-auth/internal/identity"
	"codeberg.org/oliverandrich/onetouch-auth/internal/metrics"
	"github.com/labstack/echo/v4"
)

const bearerPrefix = "Bearer "

// Rejection messages of the gateway filter. These are the only bodies it emits.
var (
	ErrMissingAuthorization   = errors.New("Missing authorization header") //nolint:staticcheck // client-facing message
	ErrMalformedAuthorization = errors.New("Invalid authorization header") //nolint:staticcheck // client-facing message
	ErrInvalidToken           = errors.New("Invalid or expired token")     //nolint:staticcheck // client-facing message
)

// DefaultPublicPaths bypass authentication unless configured otherwise.
var DefaultPublicPaths = []string{"/api/auth/", "/actuator/"}

// TokenValidator resolves a bearer token into the identity it asserts.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (identity.Identity, error)
}

// GatewayAuthConfig configures GatewayAuth.
type GatewayAuthConfig struct {
	Validator   TokenValidator
	PublicPaths []string
	Metrics     *metrics.Gateway
}

// GatewayAuth authenticates every request before it is proxied.
//
// Client-supplied identity headers are always removed. Requests under a public
// prefix pass through; all others need a bearer token that the validator
// accepts, after which the validated identity is asserted via X-User-* headers.
// Any validator failure rejects the request.
func GatewayAuth(cfg GatewayAuthConfig) echo.MiddlewareFunc {
	public := cfg.PublicPaths
	if public == nil {
		public = DefaultPublicPaths
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			identity.Strip(req.Header)

			if isPublic(req.URL.Path, public) {
				cfg.Metrics.Decision(metrics.OutcomeBypassed)
				return next(c)
			}

			header := req.Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return reject(c, cfg.Metrics, metrics.OutcomeRejectedMissing, ErrMissingAuthorization)
			}
			if !strings.HasPrefix(header, bearerPrefix) {
				return reject(c, cfg.Metrics, metrics.OutcomeRejectedMalformed, ErrMalformedAuthorization)
			}

			token := header[len(bearerPrefix):]
			if token == "" {
				return reject(c, cfg.Metrics, metrics.OutcomeRejectedInvalid, ErrInvalidToken)
			}

			id, err := cfg.Validator.ValidateToken(req.Context(), token)
			if err != nil {
				slog.Debug("gateway_validate_failed", "path", req.URL.Path, "error", err)
				return reject(c, cfg.Metrics, metrics.OutcomeRejectedInvalid, ErrInvalidToken)
			}

			identity.Apply(req.Header, id)
			cfg.Metrics.Decision(metrics.OutcomeAuthenticated)
			return next(c)
		}
	}
}

func reject(c echo.Context, m *metrics.Gateway, outcome string, err error) error {
	m.Decision(outcome)
	slog.Warn("gateway_rejected",
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
		"reason", outcome,
	)
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
}

// isPublic matches p against the public prefixes. Both the raw and the
// cleaned path must match, so dot segments cannot climb out of a public prefix.
func isPublic(p string, prefixes []string) bool {
	cleaned := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(p, prefix) && strings.HasPrefix(cleaned, prefix) {
			return true
		}
	}
	return false
}
