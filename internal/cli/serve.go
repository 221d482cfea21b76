package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sitechat/relay/internal/config"
	"github.com/sitechat/relay/internal/logging"
	"github.com/sitechat/relay/internal/server"
	"github.com/sitechat/relay/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath())
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			log = logging.New(nil, cfg.Logging.Level)

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			stores, cleanup, err := openStores(cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return server.New(cfg, stores, log).Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override listen port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}

// openStores builds the configured store backend. The cleanup func closes
// whatever the backend holds open.
func openStores(cfg config.Config, log *logging.Logger) (store.Stores, func(), error) {
	switch cfg.Store.Backend {
	case "sqlite":
		db, err := store.Open(cfg.Store.Path, log)
		if err != nil {
			return store.Stores{}, nil, fmt.Errorf("opening database: %w", err)
		}
		log.Info().Str("path", cfg.Store.Path).Msg("using SQLite store")
		return db.Stores(), func() { db.Close() }, nil
	case "supabase":
		sb, err := store.NewSupabase(cfg.Store.Supabase.URL, cfg.Store.Supabase.ServiceKey, log)
		if err != nil {
			return store.Stores{}, nil, fmt.Errorf("connecting to Supabase: %w", err)
		}
		log.Info().Str("url", cfg.Store.Supabase.URL).Msg("using Supabase store")
		return sb.Stores(), func() {}, nil
	default:
		log.Warn().Msg("using in-memory store; tenants and audit rows are not persisted")
		return store.NewMemory().Stores(), func() {}, nil
	}
}
