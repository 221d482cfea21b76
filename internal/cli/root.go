// Package cli wires the relay's commands: serve, tenant management, and
// version.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sitechat/relay/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	log *logging.Logger
)

// defaultConfigPath is used when --config is not given. A missing file is
// fine; the relay then runs on defaults plus environment variables.
const defaultConfigPath = "relay.yaml"

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return defaultConfigPath
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitechat-relay",
		Short: "SiteChat relay — multi-tenant website chat over Vertex AI",
		Long: "SiteChat relay brokers chat requests from embedded website widgets to " +
			"Vertex AI, streaming model output back over SSE with per-tenant " +
			"prompts, origin policy, and rate limiting.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Local development reads credentials from .env; absence is fine.
			godotenv.Load()

			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default relay.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newTenantCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
