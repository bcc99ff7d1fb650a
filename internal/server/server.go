// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires and runs the authority, gateway and notifier services.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/onetouch-auth/internal/config"
	"codeberg.org/oliverandrich/onetouch-auth/internal/database"
	"codeberg.org/oliverandrich/onetouch-auth/internal/i18n"
	"codeberg.org/oliverandrich/onetouch-auth/internal/repository"
	"codeberg.org/oliverandrich/onetouch-auth/internal/services/email"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

// load reads and validates the configuration and sets up logging.
func load(cmd *cli.Command, service string) (*config.Config, error) {
	cfg := config.NewFromCLI(cmd)
	if err := cfg.Validate(service); err != nil {
		return nil, fmt.Errorf("invalid %s configuration: %w", service, err)
	}
	setupLogger(cfg.Log.Level, cfg.Log.Format, service)

	if err := i18n.Init(); err != nil {
		return nil, fmt.Errorf("failed to init i18n: %w", err)
	}
	return cfg, nil
}

// RunAuthority starts the authentication authority.
func RunAuthority(ctx context.Context, cmd *cli.Command) error {
	cfg, err := load(cmd, config.ServiceAuthority)
	if err != nil {
		return err
	}

	slog.Info("starting authority",
		"addr", cfg.Server.Address(),
		"require_email_verification", cfg.Auth.RequireEmailVerification,
		"notifier_url", cfg.Auth.NotifierURL,
	)

	// Database
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := database.Close(db); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	mailer, err := newMailer(&cfg.Auth)
	if err != nil {
		return err
	}

	e, svc, err := buildAuthority(cfg, repository.New(db), mailer)
	if err != nil {
		return err
	}

	// Pending verification emails are flushed before the database closes.
	return startWithGracefulShutdown(ctx, e, cfg, svc.Wait)
}

// RunGateway starts the edge gateway.
func RunGateway(ctx context.Context, cmd *cli.Command) error {
	cfg, err := load(cmd, config.ServiceGateway)
	if err != nil {
		return err
	}

	slog.Info("starting gateway",
		"addr", cfg.Server.Address(),
		"authority_url", cfg.Gateway.AuthorityURL,
		"public_paths", cfg.Gateway.PublicPaths,
	)

	e, err := buildGateway(cfg)
	if err != nil {
		return err
	}
	return startWithGracefulShutdown(ctx, e, cfg, nil)
}

// RunNotifier starts the notification service.
func RunNotifier(ctx context.Context, cmd *cli.Command) error {
	cfg, err := load(cmd, config.ServiceNotifier)
	if err != nil {
		return err
	}

	slog.Info("starting notifier",
		"addr", cfg.Server.Address(),
		"smtp_host", cfg.SMTP.Host,
		"smtp_port", cfg.SMTP.Port,
	)

	sender, err := email.NewSender(&cfg.SMTP)
	if err != nil {
		return fmt.Errorf("failed to create email sender: %w", err)
	}
	return startWithGracefulShutdown(ctx, buildNotifier(cfg, sender), cfg, nil)
}

// startWithGracefulShutdown serves until ctx is cancelled or SIGINT/SIGTERM
// arrives, then drains in-flight requests. drain runs after the server stopped.
func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config, drain func()) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Server running", "addr", cfg.Server.Address())
		if err := e.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if drain != nil {
		drain()
	}

	slog.Info("server stopped")
	return nil
}
