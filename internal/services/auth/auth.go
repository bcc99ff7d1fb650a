// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements the account lifecycle of the authentication
// authority: registration, email verification, login and token validation.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"codeberg.org/oliverandrich/onetouch-auth/internal/i18n"
	"codeberg.org/oliverandrich/onetouch-auth/internal/identity"
	"codeberg.org/oliverandrich/onetouch-auth/internal/metrics"
	"codeberg.org/oliverandrich/onetouch-auth/internal/models"
	"codeberg.org/oliverandrich/onetouch-auth/internal/repository"
	"codeberg.org/oliverandrich/onetouch-auth/internal/services/notify"
	"codeberg.org/oliverandrich/onetouch-auth/internal/services/verification"
	"codeberg.org/oliverandrich/onetouch-auth/internal/token"
	"golang.org/x/crypto/bcrypt"
)

// dispatchTimeout bounds a single background email dispatch.
const dispatchTimeout = 30 * time.Second

// AccountStore is the persistence the service needs.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct *models.Account) error
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccountByID(ctx context.Context, id int64) (*models.Account, error)
	ReplaceVerificationCode(ctx context.Context, id int64, code string, expiresAt time.Time) error
	ConsumeVerificationCode(ctx context.Context, id int64, code string) error
}

// Options configures a Service.
type Options struct {
	// RequireEmailVerification false creates accounts verified and returns a token on register.
	RequireEmailVerification bool
	Codes                    *verification.Generator
	Metrics                  *metrics.Authority
	Now                      func() time.Time
	BcryptCost               int
}

type Service struct {
	store               AccountStore
	tokens              *token.Codec
	codes               *verification.Generator
	mailer              notify.Dispatcher
	metrics             *metrics.Authority
	now                 func() time.Time
	bcryptCost          int
	requireVerification bool
	inflight            sync.WaitGroup

	// dummyHash is compared on unknown accounts so both login failures cost
	// the same bcrypt work. Generated once at the configured cost.
	dummyOnce sync.Once
	dummyHash []byte
}

func NewService(store AccountStore, tokens *token.Codec, mailer notify.Dispatcher, opts Options) *Service {
	if opts.Codes == nil {
		opts.Codes = verification.NewGenerator(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if mailer == nil {
		mailer = notify.LogDispatcher{}
	}

	return &Service{
		store:               store,
		tokens:              tokens,
		codes:               opts.Codes,
		mailer:              mailer,
		metrics:             opts.Metrics,
		now:                 opts.Now,
		bcryptCost:          opts.BcryptCost,
		requireVerification: opts.RequireEmailVerification,
	}
}

// RegisterParams holds the parameters for account registration
type RegisterParams struct {
	Email    string
	Password string
	Role     models.Role
}

// VerificationSent acknowledges that a code was dispatched.
type VerificationSent struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

// AuthResult carries a freshly issued token.
type AuthResult struct {
	Token  string      `json:"token"`
	UserID int64       `json:"userId"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
}

// Profile is the account view of an authenticated caller.
type Profile struct {
	UserID        int64       `json:"userId"`
	Email         string      `json:"email"`
	Role          models.Role `json:"role"`
	EmailVerified bool        `json:"emailVerified"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// RegisterResult holds exactly one of Sent (verification required) or Auth.
type RegisterResult struct {
	Sent *VerificationSent
	Auth *AuthResult
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new account pending verification and mails its code.
func (s *Service) Register(ctx context.Context, params RegisterParams) (res *RegisterResult, err error) {
	defer func() { s.observe("register", err) }()

	email := NormalizeEmail(params.Email)
	if !params.Role.Valid() {
		return nil, ValidationError(map[string]string{"role": "Role must be CUSTOMER or COURIER"})
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(params.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	acct := &models.Account{
		Email:         email,
		PasswordHash:  string(passwordHash),
		Role:          params.Role,
		EmailVerified: !s.requireVerification,
	}

	var code string
	if s.requireVerification {
		code, err = s.codes.Generate()
		if err != nil {
			return nil, err
		}
		expiresAt := verification.ExpiresAt(s.now())
		acct.VerificationCode = &code
		acct.VerificationCodeExpiresAt = &expiresAt
	}

	if err := s.store.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			slog.Warn("register_failed", "email", email, "reason", "duplicate")
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	slog.Info("register_success", "user_id", acct.ID, "email", email, "role", acct.Role)

	if !s.requireVerification {
		auth, err := s.issue(acct)
		if err != nil {
			return nil, err
		}
		return &RegisterResult{Auth: auth}, nil
	}

	s.dispatchCode(ctx, email, code)
	return &RegisterResult{Sent: verificationSent(email)}, nil
}

// VerifyEmail consumes a pending code and returns a token for the now verified account.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (res *AuthResult, err error) {
	defer func() { s.observe("verify_email", err) }()

	acct, err := s.lookup(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if acct.EmailVerified {
		return nil, ErrAlreadyVerified
	}
	if !acct.HasPendingCode() || subtle.ConstantTimeCompare([]byte(*acct.VerificationCode), []byte(code)) != 1 {
		slog.Warn("verify_failed", "user_id", acct.ID, "reason", "invalid_code")
		return nil, ErrInvalidVerificationCode
	}
	if acct.CodeExpired(s.now()) {
		slog.Warn("verify_failed", "user_id", acct.ID, "reason", "expired")
		return nil, ErrVerificationCodeExpired
	}

	if err := s.store.ConsumeVerificationCode(ctx, acct.ID, code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// a concurrent verify or resend got there first
			return nil, ErrInvalidVerificationCode
		}
		return nil, fmt.Errorf("failed to verify account: %w", err)
	}
	acct.EmailVerified = true

	slog.Info("verify_success", "user_id", acct.ID, "email", acct.Email)
	return s.issue(acct)
}

// ResendVerificationCode replaces the pending code and mails the new one.
// The previous code stops working.
func (s *Service) ResendVerificationCode(ctx context.Context, email string) (res *VerificationSent, err error) {
	defer func() { s.observe("resend_verification", err) }()

	acct, err := s.lookup(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if acct.EmailVerified {
		return nil, ErrAlreadyVerified
	}

	code, err := s.codes.Generate()
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceVerificationCode(ctx, acct.ID, code, verification.ExpiresAt(s.now())); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAlreadyVerified
		}
		return nil, fmt.Errorf("failed to store verification code: %w", err)
	}

	slog.Info("verification_resent", "user_id", acct.ID, "email", acct.Email)
	s.dispatchCode(ctx, acct.Email, code)
	return verificationSent(acct.Email), nil
}

// Login authenticates an account by password and returns a token.
func (s *Service) Login(ctx context.Context, email, password string) (res *AuthResult, err error) {
	defer func() { s.observe("login", err) }()

	email = NormalizeEmail(email)
	acct, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = bcrypt.CompareHashAndPassword(s.timingHash(), []byte(password))
			slog.Warn("login_failed", "email", email, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login_failed", "email", email, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	if !acct.EmailVerified {
		slog.Warn("login_failed", "user_id", acct.ID, "reason", "email_not_verified")
		return nil, ErrEmailNotVerified
	}

	slog.Info("login_success", "user_id", acct.ID, "email", email)
	return s.issue(acct)
}

// ValidateToken decodes a token into the identity it asserts. It never
// consults the store: a token stays valid until it expires.
func (s *Service) ValidateToken(tok string) (id identity.Identity, err error) {
	defer func() { s.observe("validate", err) }()

	claims, err := s.tokens.Verify(tok)
	if err != nil {
		slog.Debug("validate_failed", "error", err)
		return identity.Identity{}, ErrInvalidOrExpiredToken
	}

	return identity.Identity{
		UserID: claims.UserID,
		Email:  claims.Email(),
		Role:   claims.Role,
	}, nil
}

// Profile loads the account behind a gateway-asserted identity. An account
// deleted after its token was issued yields AccountNotFound.
func (s *Service) Profile(ctx context.Context, id identity.Identity) (res *Profile, err error) {
	defer func() { s.observe("profile", err) }()

	acct, err := s.store.GetAccountByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &Profile{
		UserID:        acct.ID,
		Email:         acct.Email,
		Role:          acct.Role,
		EmailVerified: acct.EmailVerified,
		CreatedAt:     acct.CreatedAt,
	}, nil
}

// Wait blocks until all background email dispatches have finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) timingHash() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), s.bcryptCost)
	})
	return s.dummyHash
}

func (s *Service) lookup(ctx context.Context, email string) (*models.Account, error) {
	acct, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acct, nil
}

func (s *Service) issue(acct *models.Account) (*AuthResult, error) {
	tok, err := s.tokens.Issue(acct.Email, acct.ID, acct.Role, s.now())
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Token:  tok,
		UserID: acct.ID,
		Email:  acct.Email,
		Role:   acct.Role,
	}, nil
}

// dispatchCode sends the code in the background. Delivery failures are
// logged and never fail the calling operation.
func (s *Service) dispatchCode(ctx context.Context, email, code string) {
	msg := notify.Message{
		To:      email,
		Subject: i18n.T(ctx, "email_verification_subject"),
		Body: i18n.TData(ctx, "email_verification_body", map[string]any{
			"Code":    code,
			"Minutes": int(verification.CodeTTL.Minutes()),
		}),
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		if err := s.mailer.SendEmail(sendCtx, msg); err != nil {
			slog.Error("verification_email_failed", "email", email, "error", err)
			return
		}
		slog.Debug("verification_email_sent", "email", email)
	}()
}

func (s *Service) observe(operation string, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = KindOf(err).String()
	}
	s.metrics.Operation(operation, result)
}

func verificationSent(email string) *VerificationSent {
	return &VerificationSent{
		Message: "Verification code sent to " + email,
		Email:   email,
	}
}
