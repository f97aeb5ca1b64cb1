package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/victornm/livequiz/internal/config"
	"github.com/victornm/livequiz/internal/server"
)

const releaseVersion = "0.1.0"

type flags struct {
	config  string
	verbose bool
}

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "livequiz",
		Short:         "Live trivia rooms over websocket.",
		Args:          cobra.ExactArgs(0),
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.verbose {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}

			c, err := loadConfig(f.config)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			return run(c)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&f.config, "config", "c", os.Getenv("CONFIG_PATH"), "path to the config file (env: CONFIG_PATH)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log at debug level")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetVersionTemplate("livequiz v{{.Version}}\n")

	return cmd
}

func run(c server.Config) error {
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
	return nil
}

func loadConfig(file string) (server.Config, error) {
	c := server.DefaultConfig()

	if err := config.Load(file, &c); err != nil {
		return c, err
	}

	return c, nil
}
