// Command lembasctl is a terminal client for a Lembas server.
//
// It talks to the server over the same realtime channel as the web client,
// so saves and deletes made here are pushed to every other open session.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	runner := NewRunner(RunnerOpts{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(runner).Run(ctx, os.Args); err != nil {
		runner.logger.Fatal("lembasctl failed", "err", err)
	}
}

func newApp(runner *Runner) *cli.Command {
	return &cli.Command{
		Name:    "lembasctl",
		Usage:   "Manage recipes on a Lembas server",
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Server base URL",
				Value:   "http://localhost:3000",
				Sources: cli.EnvVars("LEMBAS_SERVER"),
			},
			&cli.StringFlag{
				Name:  "protocol",
				Usage: "Realtime encoding (json, cbor)",
				Value: "json",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before:   runner.before,
		Commands: runner.register(),
	}
}
