// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Account is a registered identity. Email is unique across all accounts.
// VerificationCode and VerificationCodeExpiresAt are either both set or both nil.
type Account struct { //nolint:govet // fieldalignment: readability over optimization
	ID                        int64      `db:"id" json:"id"`
	Email                     string     `db:"email" json:"email"`
	PasswordHash              string     `db:"password_hash" json:"-"`
	Role                      Role       `db:"role" json:"role"`
	EmailVerified             bool       `db:"email_verified" json:"email_verified"`
	VerificationCode          *string    `db:"verification_code" json:"-"`
	VerificationCodeExpiresAt *time.Time `db:"verification_code_expires_at" json:"-"`
	CreatedAt                 time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                 time.Time  `db:"updated_at" json:"updated_at"`
}

// HasPendingCode reports whether a verification code is attached.
func (a *Account) HasPendingCode() bool {
	return a.VerificationCode != nil && a.VerificationCodeExpiresAt != nil
}

// CodeExpired reports whether the attached code is past its expiry at now.
// The expiry instant itself is still valid.
func (a *Account) CodeExpired(now time.Time) bool {
	if a.VerificationCodeExpiresAt == nil {
		return true
	}
	return now.After(*a.VerificationCodeExpiresAt)
}
