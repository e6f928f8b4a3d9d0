// cmd/lpagent/main.go
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "lpagent",
		Usage:   "Solana liquidity agent: transaction execution and valuation",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "configs/config.json",
				Usage:   "Path to the configuration file",
				EnvVars: []string{"SOLANA_LP_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve Prometheus metrics on this address while the command runs",
				EnvVars: []string{"SOLANA_LP_METRICS_ADDR"},
			},
			&cli.StringFlag{
				Name:  "owner",
				Usage: "Reference owner for valuation (defaults to the configured wallet)",
			},
		},
		Commands: []*cli.Command{
			summarizeCommand(),
			decodeCommand(),
			idlCommand(),
			exportCommand(),
			statusCommand(),
			ensureATACommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
