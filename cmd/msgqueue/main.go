// Command msgqueue demonstrates deferred queues and timers: it replays the
// timer scenario, runs a two-queue frame pipeline, or serves configured
// queues with Prometheus metrics.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-message-queue/config"
	"github.com/Swind/go-message-queue/logging"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "msgqueue",
		Usage:     "Deferred work queues and deadline timers",
		Writer:    stdout,
		ErrWriter: stderr,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				EnvVars: []string{"MSGQUEUE_CONFIG"},
				Usage:   "Path to a YAML or JSON configuration file",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Log at debug level",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format: console or json (overrides the config file)",
			},
		},

		Commands: []*cli.Command{
			TimersCommand(),
			PipelineCommand(),
			ServeCommand(),
		},
	}
}

// loadConfig reads the configured file (or the defaults) and applies the
// global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	applyFlags(c, cfg)
	return cfg, nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.Bool("debug") {
		cfg.Log.Level = "debug"
	}
	if format := c.String("log-format"); format != "" {
		cfg.Log.Format = format
	}
}

func newLogService(c *cli.Context, cfg *config.Config) *logging.Service {
	return logging.NewService(cfg.Log, c.App.ErrWriter)
}
