// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/onetouch-auth/internal/services/auth"
	"github.com/labstack/echo/v4"
)

const internalErrorMessage = "Internal server error"

// StatusFor maps every error kind to its HTTP status.
func StatusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindDuplicateAccount:
		return http.StatusConflict
	case auth.KindAccountNotFound, auth.KindInvalidCredentials, auth.KindInvalidOrExpiredToken:
		return http.StatusUnauthorized
	case auth.KindEmailNotVerified:
		return http.StatusForbidden
	case auth.KindAlreadyVerified, auth.KindInvalidVerificationCode, auth.KindVerificationCodeExpired, auth.KindValidation:
		return http.StatusBadRequest
	case auth.KindUnknown:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": message}, or as a field map for
// validation failures. Unclassified errors are logged and hidden.
func writeError(c echo.Context, err error) error {
	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		slog.Error("request_failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"error", err,
		)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": internalErrorMessage})
	}

	status := StatusFor(authErr.Kind)
	if authErr.Kind == auth.KindValidation {
		return c.JSON(status, authErr.Fields)
	}
	return c.JSON(status, map[string]string{"error": authErr.Message})
}
