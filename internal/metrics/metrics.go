// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package metrics defines the Prometheus instruments of all three services.
// Every recording method is safe to call on a nil receiver so components can
// run without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gateway decision outcomes.
const (
	OutcomeBypassed          = "bypassed"
	OutcomeAuthenticated     = "authenticated"
	OutcomeRejectedMissing   = "rejected_missing"
	OutcomeRejectedMalformed = "rejected_malformed"
	OutcomeRejectedInvalid   = "rejected_invalid"
)

// ResultSuccess labels a successful authority operation.
const ResultSuccess = "success"

// NewRegistry returns a registry preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// HTTP holds request metrics shared by all services.
type HTTP struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTP creates and registers request metrics for service.
func NewHTTP(reg prometheus.Registerer, service string) *HTTP {
	m := &HTTP{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: prometheus.Labels{"service": service},
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request duration in seconds",
				ConstLabels: prometheus.Labels{"service": service},
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// Middleware records every request by its matched route pattern.
func (m *HTTP) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			m.requests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			m.duration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Gateway holds the gateway filter metrics.
type Gateway struct {
	decisions        *prometheus.CounterVec
	validateDuration prometheus.Histogram
}

// NewGateway creates and registers the gateway metrics.
func NewGateway(reg prometheus.Registerer) *Gateway {
	m := &Gateway{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_auth_decisions_total",
				Help: "Authentication decisions taken by the gateway filter",
			},
			[]string{"outcome"},
		),
		validateDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gateway_validate_duration_seconds",
				Help:    "Latency of token validation calls to the authority",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
	}
	reg.MustRegister(m.decisions, m.validateDuration)
	return m
}

// Decision counts one filter outcome.
func (m *Gateway) Decision(outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
}

// ObserveValidate records the duration of one validate call.
func (m *Gateway) ObserveValidate(d time.Duration) {
	if m == nil {
		return
	}
	m.validateDuration.Observe(d.Seconds())
}

// Authority holds the authority service metrics.
type Authority struct {
	operations *prometheus.CounterVec
}

// NewAuthority creates and registers the authority metrics.
func NewAuthority(reg prometheus.Registerer) *Authority {
	m := &Authority{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authority_operations_total",
				Help: "Account lifecycle operations by result",
			},
			[]string{"operation", "result"},
		),
	}
	reg.MustRegister(m.operations)
	return m
}

// Operation counts one finished operation.
func (m *Authority) Operation(operation, result string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, result).Inc()
}
