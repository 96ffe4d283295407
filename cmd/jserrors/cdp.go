package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alcounit/jserrorcollector/pkg/cdp"
	"github.com/alcounit/jserrorcollector/pkg/env"
	"github.com/alcounit/jserrorcollector/pkg/extension"
	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"
)

type cdpConfig struct {
	execPath     string
	headless     bool
	consoleLevel string
	wait         time.Duration
	timeout      time.Duration
}

func getCmdCDP(gs *globalState) *cobra.Command {
	var cfg cdpConfig

	cmd := &cobra.Command{
		Use:   "cdp URL",
		Short: "Open a page in a local Chrome over DevTools and print its JavaScript errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCDP(cmd.Context(), gs, cfg, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.execPath, "chrome", env.GetEnvOrDefault("CHROME_PATH", ""), "Chrome executable, looked up when empty")
	flags.BoolVar(&cfg.headless, "headless", env.GetEnvBoolOrDefault("HEADLESS", true), "run Chrome headless")
	consoleLevelFlag(flags, &cfg.consoleLevel)
	flags.DurationVar(&cfg.wait, "wait", env.GetEnvDurationOrDefault("PAGE_WAIT", 2*time.Second), "time to let the page run before reading errors")
	flags.DurationVar(&cfg.timeout, "timeout", env.GetEnvDurationOrDefault("CDP_TIMEOUT", time.Minute), "overall timeout")

	return cmd
}

func runCDP(ctx context.Context, gs *globalState, cfg cdpConfig, page string) error {
	log := gs.logger

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", cfg.headless))
	if cfg.execPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.execPath))
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) { log.Debug().Msgf(format, args...) }),
		chromedp.WithErrorf(func(format string, args ...any) { log.Warn().Msgf(format, args...) }),
	)
	defer cancelBrowser()

	log.Info().Str("url", page).Msg("opening page over devtools")
	if err := chromedp.Run(browserCtx,
		cdp.Register(extension.WithConsoleLevel(cfg.consoleLevel)),
		chromedp.Navigate(page),
		chromedp.Sleep(cfg.wait),
	); err != nil {
		return fmt.Errorf("open %s: %w", page, err)
	}

	errs, err := cdp.ReadErrors(browserCtx)
	if err != nil {
		return err
	}

	return printErrors(gs.stdout, gs.flags.output, errs)
}
