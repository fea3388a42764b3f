// Command nsbus runs and talks to a namespace pub/sub server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/nsbus/internal/config"
	"github.com/vango-dev/nsbus/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "nsbus",
		Short: "Namespace pub/sub over WebSocket",
		Long: `nsbus routes namespaced events between a server and its WebSocket
clients. Clients subscribe with wildcard patterns (* for one segment,
** for any number) and keep their identity across reconnects.

Configuration is read from nsbus.toml, then NSBUS_* environment
variables (optionally from a .env file), then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Config file (default ./nsbus.toml if present)")
	pf.StringVar(&flags.envFile, "env-file", ".env", "Env file loaded before NSBUS_* variables are read")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: json, text")

	rootCmd.AddCommand(
		serveCmd(&flags),
		pubCmd(&flags),
		subCmd(&flags),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig layers file, environment and global flags, then installs the
// process logger.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	if err := config.LoadEnvFile(flags.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	if _, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return nil, err
	}
	return cfg, nil
}
