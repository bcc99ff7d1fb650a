// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/onetouch-auth/internal/services/notify"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/labstack/echo/v4"
)

// NotificationHandlers exposes the notifier under /api/notifications.
type NotificationHandlers struct {
	sender notify.Dispatcher
	now    func() time.Time
}

// NewNotifications creates a new NotificationHandlers instance.
func NewNotifications(sender notify.Dispatcher, now func() time.Time) *NotificationHandlers {
	if now == nil {
		now = time.Now
	}
	return &NotificationHandlers{sender: sender, now: now}
}

// Mount registers the notifier routes on g.
func (h *NotificationHandlers) Mount(g *echo.Group) {
	g.POST("/send-email", h.SendEmail)
	g.GET("/health", h.Health)
}

// SendEmailRequest is the send-email command.
type SendEmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Validate implements validation.Validatable.
func (r SendEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.To,
			validation.Required.Error("Recipient email is required"),
			emailFormat("Invalid email format"),
		),
		validation.Field(&r.Subject,
			validation.Required.Error("Email subject is required"),
			validation.RuneLength(0, 200).Error("Subject must be at most 200 characters"),
		),
		validation.Field(&r.Body,
			validation.Required.Error("Email body is required"),
			validation.RuneLength(0, 5000).Error("Body must be at most 5000 characters"),
		),
	)
}

// SendEmailResponse acknowledges a delivered email.
type SendEmailResponse struct {
	Message   string    `json:"message"`
	Recipient string    `json:"recipient"`
	SentAt    time.Time `json:"sentAt"`
}

// SendEmail relays one email through SMTP.
func (h *NotificationHandlers) SendEmail(c echo.Context) error {
	var req SendEmailRequest
	if err := bindAndValidate(c, &req); err != nil {
		slog.Warn("send_email_rejected", "error", err)
		return writeError(c, err)
	}

	slog.Info("send_email_received", "to", req.To)

	err := h.sender.SendEmail(c.Request().Context(), notify.Message{
		To:      req.To,
		Subject: req.Subject,
		Body:    req.Body,
	})
	if err != nil {
		slog.Error("send_email_failed", "to", req.To, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "Failed to send email",
			"message": err.Error(),
		})
	}

	slog.Info("send_email_success", "to", req.To)
	return c.JSON(http.StatusOK, SendEmailResponse{
		Message:   "Email sent successfully",
		Recipient: req.To,
		SentAt:    h.now().UTC(),
	})
}

// Health reports notifier liveness with a timestamp.
func (h *NotificationHandlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "UP",
		"timestamp": h.now().UTC(),
	})
}
