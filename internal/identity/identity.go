// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package identity carries a verified caller identity between the gateway and
// downstream services through trusted X-User-* request headers.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"codeberg.org/oliverandrich/onetouch-auth/internal/ctxkeys"
	"codeberg.org/oliverandrich/onetouch-auth/internal/models"
	"github.com/labstack/echo/v4"
)

// Identity headers set by the gateway after successful validation.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

// Headers lists every identity header.
var Headers = []string{HeaderUserID, HeaderUserEmail, HeaderUserRole}

// ErrMissing is returned when a request carries no identity headers.
var ErrMissing = errors.New("identity headers missing")

// Identity is the validated caller, as returned by the authority.
type Identity struct {
	UserID int64       `json:"userId"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
}

// Complete reports whether every field holds a usable value.
func (id Identity) Complete() bool {
	return id.UserID > 0 && id.Email != "" && id.Role.Valid()
}

// Strip removes all identity headers, whatever their casing or count.
func Strip(h http.Header) {
	for _, name := range Headers {
		h.Del(name)
	}
}

// Apply sets the identity headers, replacing any existing values.
func Apply(h http.Header, id Identity) {
	h.Set(HeaderUserID, strconv.FormatInt(id.UserID, 10))
	h.Set(HeaderUserEmail, id.Email)
	h.Set(HeaderUserRole, id.Role.String())
}

// FromHeaders parses the identity headers. Only trust the result behind the gateway.
func FromHeaders(h http.Header) (Identity, error) {
	rawID := strings.TrimSpace(h.Get(HeaderUserID))
	email := h.Get(HeaderUserEmail)
	rawRole := h.Get(HeaderUserRole)
	if rawID == "" && email == "" && rawRole == "" {
		return Identity{}, ErrMissing
	}

	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, fmt.Errorf("invalid %s header", HeaderUserID)
	}
	if email == "" {
		return Identity{}, fmt.Errorf("missing %s header", HeaderUserEmail)
	}
	role, err := models.ParseRole(rawRole)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid %s header: %w", HeaderUserRole, err)
	}

	return Identity{UserID: userID, Email: email, Role: role}, nil
}

// WithIdentity stores id in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxkeys.Identity{}, id)
}

// FromContext returns the identity stored in the context, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxkeys.Identity{}).(Identity)
	return id, ok
}

// Middleware lifts gateway-asserted identity headers into the request context
// for services running behind the gateway. Requests without headers pass
// through anonymously; malformed headers are rejected with 401.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := FromHeaders(c.Request().Header)
			switch {
			case errors.Is(err, ErrMissing):
				return next(c)
			case err != nil:
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid identity headers"})
			}

			req := c.Request()
			c.SetRequest(req.WithContext(WithIdentity(req.Context(), id)))
			return next(c)
		}
	}
}

// Require rejects requests that reached the handler without an identity.
func Require() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := FromContext(c.Request().Context()); !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Authentication required"})
			}
			return next(c)
		}
	}
}
