// Command atscheck is a terminal client for the resume checker.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mihaimyh/atscheck/internal/app"
	"github.com/mihaimyh/atscheck/internal/config"
	"github.com/mihaimyh/atscheck/internal/logger"
	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, relying on system environment variables.")
	}
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "atscheck: %v\n", err)
		return 2
	}
	log := logger.New(cfg.Development(), cfg.LogLevel)

	if len(args) == 0 {
		usage(os.Stderr)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to start")
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}()

	c := &cli{app: a, out: os.Stdout}
	if err := c.run(ctx, args[0], args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		log.Debug().Err(err).Str("kind", string(atscheck.Classify(err))).Msg("command failed")
		fmt.Fprintln(os.Stderr, atscheck.UserMessage(err))
		return 1
	}
	return 0
}
