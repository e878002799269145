// Package main provides the wedge CLI.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/born-ml/wedge/config"
	"github.com/born-ml/wedge/engine"
	"github.com/born-ml/wedge/graph"
)

const version = "v0.1.0-dev"

// cli holds the persistent flag values shared by every subcommand.
type cli struct {
	configPath string
	backend    string
	logLevel   string

	cfg    config.Options
	logger *slog.Logger
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wedge: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "wedge",
		Short:         "Compile neural network graphs into fragment-shader programs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.setup(stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "options file (.toml, .yaml)")
	flags.StringVar(&c.backend, "backend", "soft", "device backend: soft or gl")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides the options file)")

	root.AddCommand(
		newVersionCmd(),
		newShadersCmd(c),
		newVerifyCmd(c),
		newConvertCmd(c),
	)
	return root
}

func (c *cli) setup(stderr io.Writer) error {
	cfg := config.Default()
	if c.configPath != "" {
		var err error
		if cfg, err = config.Load(c.configPath); err != nil {
			return err
		}
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	logger, err := config.NewLogger(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	c.cfg, c.logger = cfg, logger
	return nil
}

// compile opens the selected backend and compiles m on it. The returned
// cleanup releases the engine and then the device.
func (c *cli) compile(m *graph.Model) (*engine.Engine, func(), error) {
	cfg := c.cfg
	dev, err := openDevice(c.backend, &cfg, c.logger)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.Compile(dev, m, engine.Options{Config: cfg, Logger: c.logger})
	if err != nil {
		dev.Release()
		return nil, nil, err
	}
	return eng, func() {
		eng.Release()
		dev.Release()
	}, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wedge %s\n", version)
		},
	}
}
