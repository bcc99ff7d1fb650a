// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package gateway

import (
	"log/slog"

	"codeberg.org/oliverandrich/onetouch-auth/internal/config"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// MountRoutes proxies every configured prefix to its upstream. Paths are
// forwarded unchanged, including the prefix.
func MountRoutes(e *echo.Echo, routes []config.Route) {
	for _, route := range routes {
		balancer := middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{
			{Name: route.Prefix, URL: route.Target},
		})
		e.Group(route.Prefix, middleware.ProxyWithConfig(middleware.ProxyConfig{
			Balancer: balancer,
		}))
		slog.Info("gateway_route", "prefix", route.Prefix, "target", route.Target.String())
	}
}
