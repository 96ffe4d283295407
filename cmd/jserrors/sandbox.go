package main

import (
	"fmt"

	"github.com/alcounit/jserrorcollector/pkg/collector"
	"github.com/alcounit/jserrorcollector/pkg/extension"
	"github.com/alcounit/jserrorcollector/pkg/sandbox"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type sandboxConfig struct {
	pageURL      string
	consoleLevel string
}

func getCmdSandbox(gs *globalState) *cobra.Command {
	var cfg sandboxConfig

	cmd := &cobra.Command{
		Use:   "sandbox FILE...",
		Short: "Run scripts in an embedded page and print their JavaScript errors",
		Long: `Run JavaScript files, in order, in an embedded runtime with the collector
installed, then print the errors they raised. No browser is needed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSandbox(gs, cfg, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.pageURL, "url", "http://localhost/", "URL of the embedded page")
	consoleLevelFlag(flags, &cfg.consoleLevel)
	return cmd
}

func runSandbox(gs *globalState, cfg sandboxConfig, files []string) error {
	log := gs.logger

	page, err := sandbox.New(
		sandbox.WithCollector(extension.WithConsoleLevel(cfg.consoleLevel)),
		sandbox.WithLogger(log),
	)
	if err != nil {
		return err
	}
	if err := page.Navigate(cfg.pageURL); err != nil {
		return err
	}

	for _, name := range files {
		src, err := afero.ReadFile(gs.fs, name)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		if err := page.Run(name, string(src)); err != nil {
			return fmt.Errorf("run %s: %w", name, err)
		}
	}

	errs, err := collector.New(page, collector.WithLogger(log)).ReadErrors()
	if err != nil {
		return err
	}

	return printErrors(gs.stdout, gs.flags.output, errs)
}
