// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/mail"

	"codeberg.org/oliverandrich/onetouch-auth/internal/services/auth"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/labstack/echo/v4"
)

var errMalformedBody = auth.ValidationError(map[string]string{"body": "Malformed JSON request body"})

// bindAndValidate decodes the JSON body into req and runs its rules.
// Rule violations become a KindValidation error keyed by JSON field name.
func bindAndValidate(c echo.Context, req validation.Validatable) error {
	if err := c.Bind(req); err != nil {
		return errMalformedBody
	}

	err := req.Validate()
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	fields := make(map[string]string, len(fieldErrs))
	for name, ferr := range fieldErrs {
		fields[name] = ferr.Error()
	}
	return auth.ValidationError(fields)
}

// emailFormat accepts a bare RFC 5322 address without display name.
// Empty values pass so that Required reports them.
func emailFormat(message string) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s {
			return errors.New(message)
		}
		return nil
	})
}
