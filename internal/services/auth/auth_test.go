// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/onetouch-auth/internal/i18n"
	"codeberg.org/oliverandrich/onetouch-auth/internal/identity"
	"codeberg.org/oliverandrich/onetouch-auth/internal/models"
	"codeberg.org/oliverandrich/onetouch-auth/internal/repository"
	"codeberg.org/oliverandrich/onetouch-auth/internal/services/auth"
	"codeberg.org/oliverandrich/onetouch-auth/internal/services/verification"
	"codeberg.org/oliverandrich/onetouch-auth/internal/testutil"
	"codeberg.org/oliverandrich/onetouch-auth/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"
)

var start = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *auth.Service
	db      *sqlx.DB
	repo    *repository.Repository
	mailbox *testutil.Mailbox
	clock   *testutil.Clock
	codec   *token.Codec
}

func setup(t *testing.T, mutate ...func(*auth.Options)) *fixture {
	t.Helper()
	require.NoError(t, i18n.Init())

	db, repo := testutil.NewTestDB(t)
	clock := testutil.NewClock(start)
	codec, err := token.NewCodec([]byte(testutil.TestSecret), 24*time.Hour, token.WithClock(clock.Now))
	require.NoError(t, err)
	mailbox := &testutil.Mailbox{}

	opts := auth.Options{
		RequireEmailVerification: true,
		Now:                      clock.Now,
		BcryptCost:               bcrypt.MinCost,
	}
	for _, m := range mutate {
		m(&opts)
	}

	svc := auth.NewService(repo, codec, mailbox, opts)
	t.Cleanup(svc.Wait)

	return &fixture{svc: svc, db: db, repo: repo, mailbox: mailbox, clock: clock, codec: codec}
}

func fixedCodes(o *auth.Options) {
	o.Codes = verification.NewGenerator(bytes.NewReader(bytes.Repeat([]byte{0x00, 0x00, 0x2A}, 16)))
}

func (f *fixture) register(t *testing.T, email string) {
	t.Helper()
	_, err := f.svc.Register(context.Background(), auth.RegisterParams{
		Email:    email,
		Password: "secret-pass",
		Role:     models.RoleCustomer,
	})
	require.NoError(t, err)
	f.svc.Wait()
}

func (f *fixture) pendingCode(t *testing.T, email string) string {
	t.Helper()
	acct, err := f.repo.GetAccountByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, acct.VerificationCode)
	return *acct.VerificationCode
}

func TestRegister(t *testing.T) {
	f := setup(t, fixedCodes)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, auth.RegisterParams{
		Email:    "a@b.com",
		Password: "secret-pass",
		Role:     models.RoleCustomer,
	})
	require.NoError(t, err)
	f.svc.Wait()

	require.NotNil(t, res.Sent)
	assert.Nil(t, res.Auth)
	assert.Equal(t, "Verification code sent to a@b.com", res.Sent.Message)
	assert.Equal(t, "a@b.com", res.Sent.Email)

	acct, err := f.repo.GetAccountByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	assert.False(t, acct.EmailVerified)
	assert.Equal(t, models.RoleCustomer, acct.Role)
	require.NotNil(t, acct.VerificationCode)
	assert.Equal(t, "000042", *acct.VerificationCode)
	require.NotNil(t, acct.VerificationCodeExpiresAt)
	assert.True(t, start.Add(15*time.Minute).Equal(*acct.VerificationCodeExpiresAt))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte("secret-pass")))

	msg := f.mailbox.Last()
	assert.Equal(t, "a@b.com", msg.To)
	assert.Equal(t, "Verify your email - One Touch Delivery", msg.Subject)
	assert.Equal(t, "Your verification code is: 000042\n\nThis code expires in 15 minutes.", msg.Body)
}

func TestRegister_LocalizedEmail(t *testing.T) {
	f := setup(t, fixedCodes)
	ctx := i18n.WithLocale(context.Background(), language.German)

	_, err := f.svc.Register(ctx, auth.RegisterParams{Email: "a@b.com", Password: "secret-pass", Role: models.RoleCourier})
	require.NoError(t, err)
	f.svc.Wait()

	msg := f.mailbox.Last()
	assert.Contains(t, msg.Body, "000042")
	assert.Contains(t, msg.Body, "Bestätigungscode")
}

func TestRegister_NormalizesEmail(t *testing.T) {
	f := setup(t)

	res, err := f.svc.Register(context.Background(), auth.RegisterParams{
		Email:    "  Alice@Example.COM ",
		Password: "secret-pass",
		Role:     models.RoleCustomer,
	})
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", res.Sent.Email)
}

func TestRegister_Duplicate(t *testing.T) {
	f := setup(t)
	f.register(t, "a@b.com")

	for _, email := range []string{"a@b.com", "A@B.com"} {
		_, err := f.svc.Register(context.Background(), auth.RegisterParams{
			Email:    email,
			Password: "different-pass",
			Role:     models.RoleCourier,
		})
		require.ErrorIs(t, err, auth.ErrDuplicateAccount)
		assert.Equal(t, auth.KindDuplicateAccount, auth.KindOf(err))
	}

	assert.Equal(t, int64(1), testutil.CountAccounts(t, f.db))
}

func TestRegister_ConcurrentDuplicates(t *testing.T) {
	f := setup(t)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Register(context.Background(), auth.RegisterParams{
				Email:    "race@b.com",
				Password: "secret-pass",
				Role:     models.RoleCustomer,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, auth.ErrDuplicateAccount)
	}
	assert.Equal(t, 1, succeeded)
}

func TestRegister_InvalidRole(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Register(context.Background(), auth.RegisterParams{
		Email:    "a@b.com",
		Password: "secret-pass",
		Role:     "ADMIN",
	})

	require.ErrorIs(t, err, auth.ErrValidation)
	var authErr *auth.Error
	require.True(t, errors.As(err, &authErr))
	assert.Contains(t, authErr.Fields, "role")
}

func TestRegister_DispatchFailureIsNotFatal(t *testing.T) {
	f := setup(t)
	f.mailbox.Err = errors.New("notifier down")

	res, err := f.svc.Register(context.Background(), auth.RegisterParams{
		Email:    "a@b.com",
		Password: "secret-pass",
		Role:     models.RoleCustomer,
	})
	f.svc.Wait()

	require.NoError(t, err)
	assert.NotNil(t, res.Sent)
	assert.Len(t, f.mailbox.Messages(), 1)
}

func TestRegister_WithoutVerification(t *testing.T) {
	f := setup(t, func(o *auth.Options) { o.RequireEmailVerification = false })

	res, err := f.svc.Register(context.Background(), auth.RegisterParams{
		Email:    "a@b.com",
		Password: "secret-pass",
		Role:     models.RoleCourier,
	})
	require.NoError(t, err)
	f.svc.Wait()

	require.NotNil(t, res.Auth)
	assert.Nil(t, res.Sent)
	assert.Equal(t, "a@b.com", res.Auth.Email)
	assert.Equal(t, models.RoleCourier, res.Auth.Role)
	assert.Empty(t, f.mailbox.Messages())

	claims, err := f.codec.Verify(res.Auth.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Auth.UserID, claims.UserID)

	_, err = f.svc.Login(context.Background(), "a@b.com", "secret-pass")
	require.NoError(t, err)
}

func TestVerifyEmail(t *testing.T) {
	f := setup(t, fixedCodes)
	f.register(t, "a@b.com")

	res, err := f.svc.VerifyEmail(context.Background(), "a@b.com", "000042")
	require.NoError(t, err)

	assert.Equal(t, "a@b.com", res.Email)
	assert.Equal(t, models.RoleCustomer, res.Role)
	claims, err := f.codec.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", claims.Email())
	assert.Equal(t, res.UserID, claims.UserID)
	assert.Equal(t, start, claims.IssuedAt.Time.UTC())

	acct, err := f.repo.GetAccountByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.True(t, acct.EmailVerified)
	assert.Nil(t, acct.VerificationCode)
	assert.Nil(t, acct.VerificationCodeExpiresAt)
}

func TestVerifyEmail_SingleUse(t *testing.T) {
	f := setup(t, fixedCodes)
	f.register(t, "a@b.com")

	_, err := f.svc.VerifyEmail(context.Background(), "a@b.com", "000042")
	require.NoError(t, err)

	_, err = f.svc.VerifyEmail(context.Background(), "a@b.com", "000042")
	require.ErrorIs(t, err, auth.ErrAlreadyVerified)
}

func TestVerifyEmail_Concurrent(t *testing.T) {
	f := setup(t, fixedCodes)
	f.register(t, "a@b.com")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.VerifyEmail(context.Background(), "a@b.com", "000042")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		kind := auth.KindOf(err)
		assert.Contains(t, []auth.Kind{auth.KindAlreadyVerified, auth.KindInvalidVerificationCode}, kind)
	}
	assert.Equal(t, 1, succeeded)
}

func TestVerifyEmail_Failures(t *testing.T) {
	f := setup(t, fixedCodes)
	f.register(t, "a@b.com")

	_, err := f.svc.VerifyEmail(context.Background(), "nobody@b.com", "000042")
	require.ErrorIs(t, err, auth.ErrAccountNotFound)

	_, err = f.svc.VerifyEmail(context.Background(), "a@b.com", "999999")
	require.ErrorIs(t, err, auth.ErrInvalidVerificationCode)

	_, err = f.svc.VerifyEmail(context.Background(), "a@b.com", "")
	require.ErrorIs(t, err, auth.ErrInvalidVerificationCode)

	acct, err := f.repo.GetAccountByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.False(t, acct.EmailVerified, "failed attempts must not change state")
}

func TestVerifyEmail_ExpiryBoundary(t *testing.T) {
	f := setup(t, fixedCodes)
	f.register(t, "a@b.com")
	f.register(t, "c@d.com")

	f.clock.Advance(15 * time.Minute)
	_, err := f.svc.VerifyEmail(context.Background(), "a@b.com", "000042")
	require.NoError(t, err, "the expiry instant itself is still valid")

	f.clock.Advance(time.Second)
	_, err = f.svc.VerifyEmail(context.Background(), "c@d.com", "000042")
	require.ErrorIs(t, err, auth.ErrVerificationCodeExpired)
}

func TestVerifyEmail_WrongCodeBeatsExpiry(t *testing.T) {
	f := setup(t, fixedCodes)
	f.register(t, "a@b.com")
	f.clock.Advance(time.Hour)

	_, err := f.svc.VerifyEmail(context.Background(), "a@b.com", "111111")

	require.ErrorIs(t, err, auth.ErrInvalidVerificationCode)
}

func TestResendVerificationCode(t *testing.T) {
	f := setup(t)
	f.register(t, "a@b.com")
	oldCode := f.pendingCode(t, "a@b.com")

	var newCode string
	for newCode == "" || newCode == oldCode {
		f.clock.Advance(time.Minute)
		res, err := f.svc.ResendVerificationCode(context.Background(), "A@b.com")
		require.NoError(t, err)
		f.svc.Wait()
		assert.Equal(t, "Verification code sent to a@b.com", res.Message)
		newCode = f.pendingCode(t, "a@b.com")
	}

	assert.Contains(t, f.mailbox.Last().Body, newCode)

	acct, err := f.repo.GetAccountByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.True(t, f.clock.Now().Add(15*time.Minute).Equal(*acct.VerificationCodeExpiresAt))

	_, err = f.svc.VerifyEmail(context.Background(), "a@b.com", oldCode)
	require.ErrorIs(t, err, auth.ErrInvalidVerificationCode)

	_, err = f.svc.VerifyEmail(context.Background(), "a@b.com", newCode)
	require.NoError(t, err)
}

func TestResendVerificationCode_Failures(t *testing.T) {
	f := setup(t, fixedCodes)
	f.register(t, "a@b.com")

	_, err := f.svc.ResendVerificationCode(context.Background(), "nobody@b.com")
	require.ErrorIs(t, err, auth.ErrAccountNotFound)

	_, err = f.svc.VerifyEmail(context.Background(), "a@b.com", "000042")
	require.NoError(t, err)

	_, err = f.svc.ResendVerificationCode(context.Background(), "a@b.com")
	require.ErrorIs(t, err, auth.ErrAlreadyVerified)
}

func TestLogin(t *testing.T) {
	f := setup(t)
	acct := testutil.NewTestAccount(t, f.repo, "a@b.com", "secret-pass", models.RoleCourier, true)

	res, err := f.svc.Login(context.Background(), " A@B.COM", "secret-pass")
	require.NoError(t, err)

	assert.Equal(t, acct.ID, res.UserID)
	assert.Equal(t, "a@b.com", res.Email)
	assert.Equal(t, models.RoleCourier, res.Role)

	claims, err := f.codec.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, claims.UserID)
	assert.Equal(t, models.RoleCourier, claims.Role)
}

func TestLogin_CollapsesUnknownAccountAndBadPassword(t *testing.T) {
	f := setup(t)
	testutil.NewTestAccount(t, f.repo, "a@b.com", "secret-pass", models.RoleCustomer, true)

	_, errUnknown := f.svc.Login(context.Background(), "nobody@b.com", "secret-pass")
	_, errWrong := f.svc.Login(context.Background(), "a@b.com", "wrong-pass")

	require.ErrorIs(t, errUnknown, auth.ErrInvalidCredentials)
	require.ErrorIs(t, errWrong, auth.ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
}

func TestLogin_Unverified(t *testing.T) {
	f := setup(t)
	testutil.NewTestAccount(t, f.repo, "a@b.com", "secret-pass", models.RoleCustomer, false)

	_, err := f.svc.Login(context.Background(), "a@b.com", "secret-pass")
	require.ErrorIs(t, err, auth.ErrEmailNotVerified)

	_, err = f.svc.Login(context.Background(), "a@b.com", "wrong-pass")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials, "bad password wins over unverified")
}

func TestValidateToken(t *testing.T) {
	f := setup(t)
	acct := testutil.NewTestAccount(t, f.repo, "a@b.com", "secret-pass", models.RoleCustomer, true)
	res, err := f.svc.Login(context.Background(), "a@b.com", "secret-pass")
	require.NoError(t, err)

	id, err := f.svc.ValidateToken(res.Token)

	require.NoError(t, err)
	assert.Equal(t, identity.Identity{UserID: acct.ID, Email: "a@b.com", Role: models.RoleCustomer}, id)
}

func TestValidateToken_Invalid(t *testing.T) {
	f := setup(t)

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		_, err := f.svc.ValidateToken(tok)
		require.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	f := setup(t)
	testutil.NewTestAccount(t, f.repo, "a@b.com", "secret-pass", models.RoleCustomer, true)
	res, err := f.svc.Login(context.Background(), "a@b.com", "secret-pass")
	require.NoError(t, err)

	f.clock.Advance(24*time.Hour - time.Second)
	_, err = f.svc.ValidateToken(res.Token)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.svc.ValidateToken(res.Token)
	require.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
}

func TestValidateToken_NoRevocation(t *testing.T) {
	f := setup(t)
	acct := testutil.NewTestAccount(t, f.repo, "a@b.com", "secret-pass", models.RoleCustomer, true)
	res, err := f.svc.Login(context.Background(), "a@b.com", "secret-pass")
	require.NoError(t, err)

	testutil.DeleteAccount(t, f.db, acct.ID)

	id, err := f.svc.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, id.UserID)
}

func TestProfile(t *testing.T) {
	f := setup(t)
	acct := testutil.NewTestAccount(t, f.repo, "a@b.com", "secret-pass", models.RoleCourier, false)

	profile, err := f.svc.Profile(context.Background(), identity.Identity{UserID: acct.ID, Email: "a@b.com", Role: models.RoleCourier})

	require.NoError(t, err)
	assert.Equal(t, acct.ID, profile.UserID)
	assert.Equal(t, "a@b.com", profile.Email)
	assert.Equal(t, models.RoleCourier, profile.Role)
	assert.False(t, profile.EmailVerified)
	assert.False(t, profile.CreatedAt.IsZero())
}

func TestProfile_DeletedAccount(t *testing.T) {
	f := setup(t)
	acct := testutil.NewTestAccount(t, f.repo, "a@b.com", "secret-pass", models.RoleCustomer, true)
	testutil.DeleteAccount(t, f.db, acct.ID)

	_, err := f.svc.Profile(context.Background(), identity.Identity{UserID: acct.ID, Email: "a@b.com", Role: models.RoleCustomer})

	require.ErrorIs(t, err, auth.ErrAccountNotFound)
}

type failingStore struct {
	auth.AccountStore
}

func (failingStore) GetAccountByEmail(context.Context, string) (*models.Account, error) {
	return nil, errors.New("disk on fire")
}

func TestStorageErrorsAreUnclassified(t *testing.T) {
	codec, err := token.NewCodec([]byte(testutil.TestSecret), time.Hour)
	require.NoError(t, err)
	svc := auth.NewService(failingStore{}, codec, &testutil.Mailbox{}, auth.Options{RequireEmailVerification: true})

	_, err = svc.Login(context.Background(), "a@b.com", "x")
	require.Error(t, err)
	assert.Equal(t, auth.KindUnknown, auth.KindOf(err))

	_, err = svc.VerifyEmail(context.Background(), "a@b.com", "000000")
	require.Error(t, err)
	assert.Equal(t, auth.KindUnknown, auth.KindOf(err))
}
