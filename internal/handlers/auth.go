// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/onetouch-auth/internal/identity"
	"codeberg.org/oliverandrich/onetouch-auth/internal/models"
	"codeberg.org/oliverandrich/onetouch-auth/internal/services/auth"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/labstack/echo/v4"
)

// AuthHandlers exposes the authority operations under /api/auth.
type AuthHandlers struct {
	svc *auth.Service
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(svc *auth.Service) *AuthHandlers {
	return &AuthHandlers{svc: svc}
}

// MountAccounts registers the routes for authenticated callers on g. The
// caller identity comes from the headers the gateway asserted.
func (h *AuthHandlers) MountAccounts(g *echo.Group) {
	g.Use(identity.Middleware(), identity.Require())
	g.GET("/me", h.Me)
}

// Mount registers the authority routes on g.
func (h *AuthHandlers) Mount(g *echo.Group) {
	g.POST("/register", h.RegisterAccount)
	g.POST("/verify-email", h.VerifyEmail)
	g.POST("/resend-verification", h.ResendVerification)
	g.POST("/login", h.Login)
	g.POST("/validate", h.Validate)
}

func emailRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("Email is required"),
		emailFormat("Email must be valid"),
	}
}

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Validate implements validation.Validatable.
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, emailRules()...),
		validation.Field(&r.Password,
			validation.Required.Error("Password is required"),
			validation.Length(8, 72).Error("Password must be between 8 and 72 characters"),
		),
		validation.Field(&r.Role,
			validation.Required.Error("Role is required"),
			validation.In(string(models.RoleCustomer), string(models.RoleCourier)).Error("Role must be CUSTOMER or COURIER"),
		),
	)
}

// VerifyEmailRequest is the request body for email verification.
type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// Validate implements validation.Validatable.
func (r VerifyEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, emailRules()...),
		validation.Field(&r.Code,
			validation.Required.Error("Verification code is required"),
			validation.Length(6, 6).Error("Code must be 6 digits"),
			is.Digit.Error("Code must be 6 digits"),
		),
	)
}

// ResendVerificationRequest is the request body for resending a code.
type ResendVerificationRequest struct {
	Email string `json:"email"`
}

// Validate implements validation.Validatable.
func (r ResendVerificationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, emailRules()...),
	)
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate implements validation.Validatable.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, emailRules()...),
		validation.Field(&r.Password, validation.Required.Error("Password is required")),
	)
}

// ValidateTokenRequest is the request body for token validation.
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// Validate implements validation.Validatable.
func (r ValidateTokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required.Error("Token is required")),
	)
}

// RegisterAccount creates an account. Responds 201 with a verification
// acknowledgment, or with a token when verification is disabled.
func (h *AuthHandlers) RegisterAccount(c echo.Context) error {
	var req RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	res, err := h.svc.Register(c.Request().Context(), auth.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Role:     models.Role(req.Role),
	})
	if err != nil {
		return writeError(c, err)
	}

	if res.Auth != nil {
		return c.JSON(http.StatusCreated, res.Auth)
	}
	return c.JSON(http.StatusCreated, res.Sent)
}

// VerifyEmail consumes a verification code and returns a token.
func (h *AuthHandlers) VerifyEmail(c echo.Context) error {
	var req VerifyEmailRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	res, err := h.svc.VerifyEmail(c.Request().Context(), req.Email, req.Code)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ResendVerification issues a fresh verification code.
func (h *AuthHandlers) ResendVerification(c echo.Context) error {
	var req ResendVerificationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	res, err := h.svc.ResendVerificationCode(c.Request().Context(), req.Email)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Login authenticates by password and returns a token.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Validate decodes a token into the identity it carries.
func (h *AuthHandlers) Validate(c echo.Context) error {
	var req ValidateTokenRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	id, err := h.svc.ValidateToken(req.Token)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, id)
}

// Me returns the profile of the authenticated caller.
func (h *AuthHandlers) Me(c echo.Context) error {
	id, _ := identity.FromContext(c.Request().Context())

	profile, err := h.svc.Profile(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}
