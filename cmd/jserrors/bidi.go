package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alcounit/jserrorcollector/pkg/bidi"
	"github.com/alcounit/jserrorcollector/pkg/env"
	"github.com/alcounit/jserrorcollector/pkg/extension"
	"github.com/spf13/cobra"
)

type bidiConfig struct {
	page         string
	consoleLevel string
	wait         time.Duration
	timeout      time.Duration
}

func getCmdBiDi(gs *globalState) *cobra.Command {
	var cfg bidiConfig

	cmd := &cobra.Command{
		Use:   "bidi WEBSOCKET_URL",
		Short: "Read JavaScript errors over a WebDriver BiDi connection",
		Long: `Connect to a WebDriver BiDi endpoint, such as the webSocketUrl of a
session, install the collector as a preload script and print the errors
collected.

  With --page the top-level browsing context is navigated first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBiDi(cmd.Context(), gs, cfg, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.page, "page", "", "page to open once the collector is installed")
	consoleLevelFlag(flags, &cfg.consoleLevel)
	flags.DurationVar(&cfg.wait, "wait", env.GetEnvDurationOrDefault("PAGE_WAIT", 2*time.Second), "time to let the page run before reading errors")
	flags.DurationVar(&cfg.timeout, "timeout", env.GetEnvDurationOrDefault("BIDI_TIMEOUT", 30*time.Second), "timeout of one BiDi command")

	return cmd
}

func runBiDi(ctx context.Context, gs *globalState, cfg bidiConfig, wsURL string) error {
	log := gs.logger

	client, err := bidi.Dial(ctx, wsURL, bidi.WithLogger(log), bidi.WithTimeout(cfg.timeout))
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := client.Register(ctx, extension.WithConsoleLevel(cfg.consoleLevel)); err != nil {
		return fmt.Errorf("register collector: %w", err)
	}

	if cfg.page != "" {
		id, err := client.BrowsingContext(ctx)
		if err != nil {
			return err
		}

		log.Info().Str("url", cfg.page).Str("context", id).Msg("navigating")
		if _, err := client.Send(ctx, "browsingContext.navigate", map[string]any{
			"context": id,
			"url":     cfg.page,
			"wait":    "complete",
		}); err != nil {
			return fmt.Errorf("open %s: %w", cfg.page, err)
		}

		if err := sleep(ctx, cfg.wait); err != nil {
			return err
		}
	}

	errs, err := client.ReadErrors()
	if err != nil {
		return err
	}

	return printErrors(gs.stdout, gs.flags.output, errs)
}
