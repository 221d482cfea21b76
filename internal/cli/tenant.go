package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sitechat/relay/internal/config"
	"github.com/sitechat/relay/internal/domain"
	"github.com/sitechat/relay/internal/store"
)

func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants in the SQLite store",
	}

	cmd.AddCommand(newTenantAddCmd())
	cmd.AddCommand(newTenantShowCmd())
	return cmd
}

func newTenantAddCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a tenant from a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var tenant domain.TenantConfig
			if err := json.Unmarshal(raw, &tenant); err != nil {
				return fmt.Errorf("parsing tenant file: %w", err)
			}
			if tenant.ID == "" {
				return fmt.Errorf("tenant file is missing an id")
			}

			db, err := openSQLite()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.PutTenant(context.Background(), &tenant); err != nil {
				return err
			}
			log.Info().Str("clientId", tenant.ID).Bool("active", tenant.Active).Msg("tenant stored")
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "tenant JSON file")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newTenantShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <clientId>",
		Short: "Print a stored tenant as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openSQLite()
			if err != nil {
				return err
			}
			defer db.Close()

			tenant, err := db.Stores().Tenants.Lookup(context.Background(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(tenant, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func openSQLite() (*store.DB, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, err
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path == "" {
		return nil, fmt.Errorf("tenant commands need store.backend=sqlite with a path")
	}
	return store.Open(cfg.Store.Path, log)
}
