// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"codeberg.org/oliverandrich/onetouch-auth/internal/config"
	"codeberg.org/oliverandrich/onetouch-auth/internal/server"
	"github.com/urfave/cli/v3"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cmd := &cli.Command{
		Name:    "onetouch",
		Usage:   "Authentication services of the One Touch delivery platform",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Commands: []*cli.Command{
			{
				Name:   config.ServiceAuthority,
				Usage:  "Run the authentication authority (accounts, verification, tokens)",
				Flags:  config.AuthorityFlags(),
				Action: server.RunAuthority,
			},
			{
				Name:   config.ServiceGateway,
				Usage:  "Run the edge gateway that authenticates and routes requests",
				Flags:  config.GatewayFlags(),
				Action: server.RunGateway,
			},
			{
				Name:   config.ServiceNotifier,
				Usage:  "Run the notification service that delivers emails over SMTP",
				Flags:  config.NotifierFlags(),
				Action: server.RunNotifier,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
