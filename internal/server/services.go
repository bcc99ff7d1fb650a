// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"fmt"
	"time"

	"codeberg.org/oliverandrich/onetouch-auth/internal/config"
	"codeberg.org/oliverandrich/onetouch-auth/internal/gateway"
	"codeberg.org/oliverandrich/onetouch-auth/internal/handlers"
	"codeberg.org/oliverandrich/onetouch-auth/internal/metrics"
	mw "codeberg.org/oliverandrich/onetouch-auth/internal/middleware"
	"codeberg.org/oliverandrich/onetouch-auth/internal/services/auth"
	"codeberg.org/oliverandrich/onetouch-auth/internal/services/notify"
	"codeberg.org/oliverandrich/onetouch-auth/internal/token"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const notifierBackoff = 200 * time.Millisecond

// newEcho creates an echo instance with the shared middleware and the
// actuator endpoints every service exposes.
func newEcho(cfg *config.Config, service string) (*echo.Echo, *prometheus.Registry) {
	reg := metrics.NewRegistry()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg, metrics.NewHTTP(reg, service))

	e.GET("/actuator/health", handlers.Health)
	e.GET("/actuator/prometheus", echo.WrapHandler(metrics.Handler(reg)))

	return e, reg
}

// newMailer returns the HTTP notifier client, or a log-only dispatcher when
// no notifier is configured.
func newMailer(cfg *config.AuthConfig) (notify.Dispatcher, error) {
	if cfg.NotifierURL == "" {
		return notify.LogDispatcher{}, nil
	}
	retries := cfg.NotifierRetries
	if retries < 0 {
		retries = 0
	}
	return notify.NewClient(cfg.NotifierURL, notify.ClientOptions{
		Timeout:    cfg.NotifierTimeout,
		MaxRetries: uint64(retries),
		Backoff:    notifierBackoff,
	})
}

func buildAuthority(cfg *config.Config, store auth.AccountStore, mailer notify.Dispatcher) (*echo.Echo, *auth.Service, error) {
	codec, err := token.NewCodec([]byte(cfg.Token.Secret), cfg.Token.TTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token codec: %w", err)
	}

	e, reg := newEcho(cfg, config.ServiceAuthority)

	svc := auth.NewService(store, codec, mailer, auth.Options{
		RequireEmailVerification: cfg.Auth.RequireEmailVerification,
		Metrics:                  metrics.NewAuthority(reg),
	})
	h := handlers.NewAuth(svc)
	h.Mount(e.Group("/api/auth"))
	h.MountAccounts(e.Group("/api/accounts"))

	return e, svc, nil
}

func buildGateway(cfg *config.Config) (*echo.Echo, error) {
	e, reg := newEcho(cfg, config.ServiceGateway)
	gatewayMetrics := metrics.NewGateway(reg)

	client, err := gateway.NewClient(cfg.Gateway.AuthorityURL, cfg.Gateway.ValidateTimeout, gatewayMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation client: %w", err)
	}

	e.Use(mw.GatewayAuth(mw.GatewayAuthConfig{
		Validator:   client,
		PublicPaths: cfg.Gateway.PublicPaths,
		Metrics:     gatewayMetrics,
	}))
	gateway.MountRoutes(e, cfg.Gateway.Routes)

	return e, nil
}

func buildNotifier(cfg *config.Config, sender notify.Dispatcher) *echo.Echo {
	e, _ := newEcho(cfg, config.ServiceNotifier)
	handlers.NewNotifications(sender, nil).Mount(e.Group("/api/notifications"))
	return e
}
