// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/onetouch-auth/internal/database"
	"codeberg.org/oliverandrich/onetouch-auth/internal/models"
	"codeberg.org/oliverandrich/onetouch-auth/internal/repository"
	"codeberg.org/oliverandrich/onetouch-auth/internal/services/notify"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// TestSecret is a signing secret long enough for HS256.
const TestSecret = "test-secret-0123456789abcdef-0123456789abcdef"

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestAccount creates an account with the given password. A verified account
// has no pending code; an unverified one gets code "123456" valid for 15 minutes.
func NewTestAccount(t *testing.T, repo *repository.Repository, email, password string, role models.Role, verified bool) *models.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	acct := &models.Account{
		Email:         email,
		PasswordHash:  string(hash),
		Role:          role,
		EmailVerified: verified,
	}
	if !verified {
		code := "123456"
		expiresAt := time.Now().Add(15 * time.Minute)
		acct.VerificationCode = &code
		acct.VerificationCodeExpiresAt = &expiresAt
	}

	require.NoError(t, repo.CreateAccount(context.Background(), acct))
	return acct
}

// CountAccounts returns the number of stored accounts.
func CountAccounts(t *testing.T, db *sqlx.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Get(&count, `SELECT count(*) FROM accounts`))
	return count
}

// DeleteAccount removes an account directly from the store.
func DeleteAccount(t *testing.T, db *sqlx.DB, id int64) {
	t.Helper()
	_, err := db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	require.NoError(t, err)
}

// Clock is a settable time source for deterministic tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current frozen time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Mailbox records dispatched emails instead of sending them.
type Mailbox struct {
	mu       sync.Mutex
	messages []notify.Message
	Err      error
}

// SendEmail implements notify.Dispatcher.
func (m *Mailbox) SendEmail(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return m.Err
}

// Messages returns a copy of all recorded messages.
func (m *Mailbox) Messages() []notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Message(nil), m.messages...)
}

// Last returns the most recent message, or the zero value if none was sent.
func (m *Mailbox) Last() notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return notify.Message{}
	}
	return m.messages[len(m.messages)-1]
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewEchoContextWithHeaders creates an Echo context with custom headers.
func NewEchoContextWithHeaders(e *echo.Echo, method, path string, body io.Reader, headers map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}
