// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var (
	configPath = "config.toml"
	configFile = altsrc.NewStringPtrSourcer(&configPath)
)

// MinTokenSecretLength mirrors the HS256 key requirement of the token codec.
const MinTokenSecretLength = 32

// Service names, also used as TOML section names for per-service settings.
const (
	ServiceAuthority = "authority"
	ServiceGateway   = "gateway"
	ServiceNotifier  = "notifier"
)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Token    TokenConfig
	Auth     AuthConfig
	SMTP     SMTPConfig
	Gateway  GatewayConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type TokenConfig struct {
	Secret string
	TTL    time.Duration
}

type AuthConfig struct { //nolint:govet // fieldalignment not critical for config structs
	RequireEmailVerification bool
	NotifierURL              string // empty: emails are logged, not sent
	NotifierTimeout          time.Duration
	NotifierRetries          int
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

type GatewayConfig struct { //nolint:govet // fieldalignment not critical for config structs
	AuthorityURL    string
	ValidateTimeout time.Duration
	PublicPaths     []string
	RouteSpecs      []string // "prefix=url"
	Routes          []Route  // parsed from RouteSpecs by Validate
}

// Route maps a path prefix to an upstream base URL.
type Route struct {
	Prefix string
	Target *url.URL
}

func NewFromCLI(cmd *cli.Command) *Config {
	return &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Token: TokenConfig{
			Secret: cmd.String("token-secret"),
			TTL:    cmd.Duration("token-ttl"),
		},
		Auth: AuthConfig{
			RequireEmailVerification: cmd.Bool("require-email-verification"),
			NotifierURL:              cmd.String("notifier-url"),
			NotifierTimeout:          cmd.Duration("notifier-timeout"),
			NotifierRetries:          int(cmd.Int("notifier-retries")),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-user"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Gateway: GatewayConfig{
			AuthorityURL:    cmd.String("authority-url"),
			ValidateTimeout: cmd.Duration("validate-timeout"),
			PublicPaths:     cmd.StringSlice("public-path"),
			RouteSpecs:      cmd.StringSlice("route"),
		},
	}
}

// Validate checks the settings the given service needs to start.
func (c *Config) Validate(service string) error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}

	switch service {
	case ServiceAuthority:
		if len(c.Token.Secret) < MinTokenSecretLength {
			return fmt.Errorf("token secret must be at least %d bytes", MinTokenSecretLength)
		}
		if c.Token.TTL <= 0 {
			return fmt.Errorf("token ttl must be positive")
		}
	case ServiceGateway:
		if _, err := parseBaseURL(c.Gateway.AuthorityURL); err != nil {
			return fmt.Errorf("authority url: %w", err)
		}
		if c.Gateway.ValidateTimeout <= 0 {
			return fmt.Errorf("validate timeout must be positive")
		}
		routes, err := ParseRoutes(c.Gateway.RouteSpecs)
		if err != nil {
			return err
		}
		c.Gateway.Routes = routes
	case ServiceNotifier:
		if c.SMTP.Host == "" {
			return fmt.Errorf("SMTP host is required")
		}
		if c.SMTP.From == "" {
			return fmt.Errorf("SMTP from address is required")
		}
	default:
		return fmt.Errorf("unknown service %q", service)
	}

	return nil
}

// ParseRoutes parses "prefix=url" route specs.
func ParseRoutes(specs []string) ([]Route, error) {
	routes := make([]Route, 0, len(specs))
	for _, spec := range specs {
		prefix, target, ok := strings.Cut(spec, "=")
		prefix = strings.TrimSpace(prefix)
		if !ok || !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("invalid route %q: expected /prefix=url", spec)
		}
		u, err := parseBaseURL(strings.TrimSpace(target))
		if err != nil {
			return nil, fmt.Errorf("invalid route %q: %w", spec, err)
		}
		routes = append(routes, Route{Prefix: strings.TrimSuffix(prefix, "/"), Target: u})
	}
	return routes, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme in %q", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host in %q", raw)
	}
	return u, nil
}

// Address returns the listen address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func sources(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

func portSources(service string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(strings.ToUpper(service)+"_PORT"), cli.EnvVar("PORT"),
		toml.TOML(service+".port", configFile))
}

func serverFlags(service string, port cli.Flag) []cli.Flag {
	prefix := strings.ToUpper(service) + "_"
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       "config.toml",
			Usage:       "Path to configuration file",
			Destination: &configPath,
			Sources:     cli.EnvVars("CONFIG"),
		},
		&cli.StringFlag{
			Name:  "host",
			Value: "localhost",
			Usage: "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar(prefix+"HOST"), cli.EnvVar("HOST"),
				toml.TOML(service+".host", configFile)),
		},
		port,
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: sources("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: sources("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: sources("LOG_FORMAT", "log.format"),
		},
	}
}

// AuthorityFlags returns the flags of the authority subcommand.
func AuthorityFlags() []cli.Flag {
	port := &cli.IntFlag{
		Name:    "port",
		Value:   8081,
		Usage:   "Port to listen on",
		Sources: portSources(ServiceAuthority),
	}
	return append(serverFlags(ServiceAuthority, port),
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/accounts.db",
			Usage:   "Database DSN",
			Sources: sources("DATABASE_DSN", "database.dsn"),
		},
		&cli.StringFlag{
			Name:    "token-secret",
			Usage:   "HS256 signing secret (at least 32 bytes)",
			Sources: sources("TOKEN_SECRET", "token.secret"),
		},
		&cli.DurationFlag{
			Name:    "token-ttl",
			Value:   24 * time.Hour,
			Usage:   "Token lifetime",
			Sources: sources("TOKEN_TTL", "token.ttl"),
		},
		&cli.BoolFlag{
			Name:    "require-email-verification",
			Value:   true,
			Usage:   "Require email verification before issuing tokens",
			Sources: sources("REQUIRE_EMAIL_VERIFICATION", "auth.require_email_verification"),
		},
		&cli.StringFlag{
			Name:    "notifier-url",
			Usage:   "Base URL of the notification service (emails are logged if empty)",
			Sources: sources("NOTIFIER_URL", "auth.notifier_url"),
		},
		&cli.DurationFlag{
			Name:    "notifier-timeout",
			Value:   5 * time.Second,
			Usage:   "Timeout per notification request",
			Sources: sources("NOTIFIER_TIMEOUT", "auth.notifier_timeout"),
		},
		&cli.IntFlag{
			Name:    "notifier-retries",
			Value:   2,
			Usage:   "Retries for failed notification requests",
			Sources: sources("NOTIFIER_RETRIES", "auth.notifier_retries"),
		},
	)
}

// GatewayFlags returns the flags of the gateway subcommand.
func GatewayFlags() []cli.Flag {
	port := &cli.IntFlag{
		Name:    "port",
		Value:   8080,
		Usage:   "Port to listen on",
		Sources: portSources(ServiceGateway),
	}
	return append(serverFlags(ServiceGateway, port),
		&cli.StringFlag{
			Name:    "authority-url",
			Value:   "http://localhost:8081",
			Usage:   "Base URL of the authentication authority",
			Sources: sources("AUTHORITY_URL", "gateway.authority_url"),
		},
		&cli.DurationFlag{
			Name:    "validate-timeout",
			Value:   5 * time.Second,
			Usage:   "Timeout for token validation calls",
			Sources: sources("VALIDATE_TIMEOUT", "gateway.validate_timeout"),
		},
		&cli.StringSliceFlag{
			Name:    "public-path",
			Value:   []string{"/api/auth/", "/actuator/"},
			Usage:   "Path prefix that bypasses authentication (repeatable)",
			Sources: sources("PUBLIC_PATHS", "gateway.public_paths"),
		},
		&cli.StringSliceFlag{
			Name:  "route",
			Value: []string{
				"/api/auth=http://localhost:8081",
				"/api/accounts=http://localhost:8081",
				"/api/orders=http://localhost:8083",
			},
			Usage:   "Upstream route as prefix=url (repeatable)",
			Sources: sources("ROUTES", "gateway.routes"),
		},
	)
}

// NotifierFlags returns the flags of the notifier subcommand.
func NotifierFlags() []cli.Flag {
	port := &cli.IntFlag{
		Name:    "port",
		Value:   8082,
		Usage:   "Port to listen on",
		Sources: portSources(ServiceNotifier),
	}
	return append(serverFlags(ServiceNotifier, port),
		&cli.StringFlag{
			Name:    "smtp-host",
			Value:   "localhost",
			Usage:   "SMTP server host",
			Sources: sources("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: sources("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-user",
			Usage:   "SMTP username",
			Sources: sources("SMTP_USER", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: sources("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Value:   "noreply@onetouch.local",
			Usage:   "Sender address",
			Sources: sources("SMTP_FROM", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "One Touch Delivery",
			Usage:   "Sender display name",
			Sources: sources("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: sources("SMTP_TLS", "smtp.tls"),
		},
	)
}
