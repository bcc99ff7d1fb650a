// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/onetouch-auth/internal/models"
)

const accountColumns = `id, email, password_hash, role, email_verified,
	verification_code, verification_code_expires_at, created_at, updated_at`

// CreateAccount inserts a new account and sets its ID.
// Returns ErrDuplicate if the email is already taken; the UNIQUE constraint
// makes the existence check and the insert a single atomic step.
func (r *Repository) CreateAccount(ctx context.Context, acct *models.Account) error {
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (email, password_hash, role, email_verified,
			verification_code, verification_code_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		acct.Email, acct.PasswordHash, acct.Role, acct.EmailVerified,
		acct.VerificationCode, utcPtr(acct.VerificationCodeExpiresAt), acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return wrapError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	acct.ID = id
	return nil
}

// GetAccountByEmail retrieves an account by its email address.
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var acct models.Account
	err := r.db.GetContext(ctx, &acct, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &acct, nil
}

// GetAccountByID retrieves an account by ID.
func (r *Repository) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	var acct models.Account
	err := r.db.GetContext(ctx, &acct, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &acct, nil
}

// ReplaceVerificationCode overwrites the pending code of an unverified account.
// The previous code stops working immediately. Returns ErrNotFound if the
// account does not exist or is already verified.
func (r *Repository) ReplaceVerificationCode(ctx context.Context, id int64, code string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		SET verification_code = ?, verification_code_expires_at = ?, updated_at = ?
		WHERE id = ? AND email_verified = 0`,
		code, expiresAt.UTC(), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireOneRow(res.RowsAffected())
}

// ConsumeVerificationCode marks the account verified and clears its code, but
// only if code is still the pending one. Concurrent callers presenting the same
// code race on a single conditional UPDATE: exactly one wins, the rest get
// ErrNotFound.
func (r *Repository) ConsumeVerificationCode(ctx context.Context, id int64, code string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		SET email_verified = 1, verification_code = NULL, verification_code_expires_at = NULL, updated_at = ?
		WHERE id = ? AND email_verified = 0 AND verification_code = ?`,
		time.Now().UTC(), id, code)
	if err != nil {
		return err
	}
	return requireOneRow(res.RowsAffected())
}

func requireOneRow(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
