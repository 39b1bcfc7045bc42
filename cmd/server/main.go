// Package main is the genqueue server: an HTTP front end over the in-memory
// generation task scheduler, with optional NATS event publishing and a
// Postgres credit ledger.
package main

import (
	"fmt"
	"os"

	"github.com/phrazzld/genqueue/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Set at build time with -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
)

var cfgFile string

// flagBindings maps persistent flags to configuration keys
var flagBindings = map[string]string{
	"log-level": "server.log_level",
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "genqueue",
		Short:        "genqueue schedules AI generation jobs behind an HTTP API",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./config.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level: debug | info | warn | error")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newTokenCmd(), newVersionCmd())
	return root
}

// loadConfig reads configuration, letting any flag the user set on cmd win.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	var opts []config.Option
	bind := func(fs *pflag.FlagSet, flagName, key string) {
		if f := fs.Lookup(flagName); f != nil {
			opts = append(opts, config.WithFlag(key, f))
		}
	}
	for flagName, key := range flagBindings {
		bind(cmd.Flags(), flagName, key)
	}
	for flagName, key := range bindings {
		bind(cmd.Flags(), flagName, key)
	}

	cfg, err := config.Load(cfgFile, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
