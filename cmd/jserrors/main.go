package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alcounit/jserrorcollector/pkg/env"
	"github.com/alcounit/jserrorcollector/pkg/extension"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type globalFlags struct {
	output   string
	logLevel string
	noColor  bool
}

type globalState struct {
	ctx    context.Context
	fs     afero.Fs
	stdout io.Writer
	logger zerolog.Logger
	flags  globalFlags
}

func globalFlagSet(flags *globalFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet("", pflag.ContinueOnError)
	fs.StringVarP(&flags.output, "output", "o", env.GetEnvOrDefault("OUTPUT", outputText), "output format: text or json")
	fs.StringVar(&flags.logLevel, "log-level", env.GetEnvOrDefault("LOG_LEVEL", "info"), "log level")
	fs.BoolVar(&flags.noColor, "no-color", env.GetEnvBoolOrDefault("NO_COLOR", false), "disable colored output")
	return fs
}

func consoleLevelFlag(flags *pflag.FlagSet, level *string) {
	flags.StringVar(level, "console-log-level", env.GetEnvOrDefault("CONSOLE_LOG_LEVEL", extension.DefaultConsoleLevel),
		"lowest console level attached to errors: "+strings.Join(extension.ConsoleLevels, ", "))
}

func newRootCommand(gs *globalState) *cobra.Command {
	root := &cobra.Command{
		Use:           "jserrors",
		Short:         "Collect JavaScript errors from browser sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(gs.flags.logLevel)
			if err != nil {
				return err
			}
			gs.logger = gs.logger.Level(level)

			if gs.flags.noColor {
				color.NoColor = true
			}
			return validateOutput(gs.flags.output)
		},
	}

	root.PersistentFlags().AddFlagSet(globalFlagSet(&gs.flags))
	root.SetOut(gs.stdout)

	root.AddCommand(
		getCmdServe(gs),
		getCmdVisit(gs),
		getCmdCDP(gs),
		getCmdBiDi(gs),
		getCmdSandbox(gs),
	)
	return root
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gs := &globalState{
		ctx:    ctx,
		fs:     afero.NewOsFs(),
		stdout: os.Stdout,
		logger: log,
	}

	if err := newRootCommand(gs).ExecuteContext(ctx); err != nil {
		gs.logger.Error().Err(err).Msg("command failed")
		stop()
		os.Exit(1)
	}
}
