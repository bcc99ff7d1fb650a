// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import "errors"

// Kind classifies the failures of the account lifecycle.
type Kind int

const (
	KindUnknown Kind = iota
	KindDuplicateAccount
	KindAccountNotFound
	KindInvalidCredentials
	KindEmailNotVerified
	KindAlreadyVerified
	KindInvalidVerificationCode
	KindVerificationCodeExpired
	KindInvalidOrExpiredToken
	KindValidation
)

var kindNames = map[Kind]string{
	KindUnknown:                 "unknown",
	KindDuplicateAccount:        "duplicate_account",
	KindAccountNotFound:         "account_not_found",
	KindInvalidCredentials:      "invalid_credentials",
	KindEmailNotVerified:        "email_not_verified",
	KindAlreadyVerified:         "already_verified",
	KindInvalidVerificationCode: "invalid_verification_code",
	KindVerificationCodeExpired: "verification_code_expired",
	KindInvalidOrExpiredToken:   "invalid_or_expired_token",
	KindValidation:              "validation_failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Error is a classified lifecycle failure. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string // KindValidation only
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrDuplicateAccount        = &Error{Kind: KindDuplicateAccount, Message: "Email already registered"}
	ErrAccountNotFound         = &Error{Kind: KindAccountNotFound, Message: "User not found"}
	ErrInvalidCredentials      = &Error{Kind: KindInvalidCredentials, Message: "Invalid credentials"}
	ErrEmailNotVerified        = &Error{Kind: KindEmailNotVerified, Message: "Email not verified. Please check your inbox"}
	ErrAlreadyVerified         = &Error{Kind: KindAlreadyVerified, Message: "Email already verified"}
	ErrInvalidVerificationCode = &Error{Kind: KindInvalidVerificationCode, Message: "Invalid verification code"}
	ErrVerificationCodeExpired = &Error{Kind: KindVerificationCodeExpired, Message: "Verification code expired"}
	ErrInvalidOrExpiredToken   = &Error{Kind: KindInvalidOrExpiredToken, Message: "Invalid or expired token"}
	ErrValidation              = &Error{Kind: KindValidation, Message: "Validation failed"}
)

// ValidationError reports request fields that failed validation.
func ValidationError(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: ErrValidation.Message, Fields: fields}
}

// KindOf returns the kind of err, or KindUnknown for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
