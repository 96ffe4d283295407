package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"dario.cat/mergo"
	"github.com/alcounit/jserrorcollector/pkg/collector"
	"github.com/alcounit/jserrorcollector/pkg/env"
	"github.com/alcounit/jserrorcollector/pkg/profile"
	"github.com/alcounit/jserrorcollector/pkg/selenium"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	tebeka "github.com/tebeka/selenium"
	"k8s.io/apimachinery/pkg/util/yaml"
)

type visitConfig struct {
	hubURL          string
	browser         string
	capsFile        string
	profileDir      string
	consoleLogLevel string
	wait            time.Duration
}

func getCmdVisit(gs *globalState) *cobra.Command {
	var cfg visitConfig

	cmd := &cobra.Command{
		Use:   "visit URL",
		Short: "Open a page in a remote browser and print its JavaScript errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("browser") {
				cfg.browser = ""
			}
			return runVisit(cmd.Context(), gs, cfg, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.hubURL, "hub", env.GetEnvOrDefault("SELENIUM_URL", "http://localhost:4444/wd/hub"), "Selenium hub URL")
	flags.StringVarP(&cfg.browser, "browser", "b", env.GetEnvOrDefault("BROWSER_NAME", profile.Firefox), "browser name")
	flags.StringVarP(&cfg.capsFile, "capabilities", "c", "", "JSON or YAML file with extra session capabilities")
	flags.StringVar(&cfg.profileDir, "firefox-profile", env.GetEnvOrDefault("FIREFOX_PROFILE", ""), "Firefox profile directory the collector is added to")
	consoleLevelFlag(flags, &cfg.consoleLogLevel)
	flags.DurationVar(&cfg.wait, "wait", env.GetEnvDurationOrDefault("PAGE_WAIT", 2*time.Second), "time to let the page run before reading errors")

	return cmd
}

func runVisit(ctx context.Context, gs *globalState, cfg visitConfig, page string) error {
	log := gs.logger

	caps, err := sessionCapabilities(gs.fs, cfg)
	if err != nil {
		return err
	}
	browser := caps.GetBrowserName()

	tc := tebeka.Capabilities(caps)
	err = profile.Add(tc, browser,
		profile.WithFs(gs.fs),
		profile.WithProfileDir(cfg.profileDir),
		profile.WithConsoleLogLevel(cfg.consoleLogLevel),
	)
	if err != nil {
		return err
	}

	log.Info().Str("browser", browser).Str("hub", cfg.hubURL).Msg("starting session")
	wd, err := tebeka.NewRemote(tc, cfg.hubURL)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer wd.Quit()

	if err := wd.Get(page); err != nil {
		return fmt.Errorf("open %s: %w", page, err)
	}

	if err := sleep(ctx, cfg.wait); err != nil {
		return err
	}

	errs, err := collector.New(wd, collector.WithLogger(log)).ReadErrors()
	if err != nil {
		return err
	}

	return printErrors(gs.stdout, gs.flags.output, errs)
}

// sessionCapabilities merges the capabilities file, flattened, with the
// browser flag. An explicit browser flag wins over the file.
func sessionCapabilities(fs afero.Fs, cfg visitConfig) (selenium.Capabilities, error) {
	caps := selenium.Capabilities{}

	if cfg.capsFile != "" {
		raw, err := loadCapabilities(fs, cfg.capsFile)
		if err != nil {
			return nil, err
		}
		flat, err := raw.Flatten()
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(&caps, flat); err != nil {
			return nil, fmt.Errorf("merge capabilities: %w", err)
		}
	}

	switch {
	case cfg.browser != "":
		caps["browserName"] = cfg.browser
	case caps.GetBrowserName() == "":
		caps["browserName"] = env.GetEnvOrDefault("BROWSER_NAME", profile.Firefox)
	}

	return caps, nil
}

func loadCapabilities(fs afero.Fs, path string) (selenium.Capabilities, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read capabilities file: %w", err)
	}
	defer f.Close()

	var caps selenium.Capabilities
	if err := yaml.NewYAMLOrJSONDecoder(f, 4096).Decode(&caps); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse capabilities file: %w", err)
	}
	if caps == nil {
		caps = selenium.Capabilities{}
	}
	return caps, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
