package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/matheus3301/wpphub/internal/config"
	"github.com/matheus3301/wpphub/internal/store"
)

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with fresh secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
			}
			cfg := config.Default()
			cfg.Webhook.VerifyToken = uuid.NewString()
			cfg.Auth.JWTSecret = uuid.NewString() + uuid.NewString()
			if err := config.Save(configPath, cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\nwebhook verify token: %s\n", configPath, cfg.Webhook.VerifyToken)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			res, err := db.Migrate()
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(res)
			}
			if res.Changed {
				fmt.Printf("migrated to version %d\n", res.Version)
			} else {
				fmt.Printf("up to date at version %d\n", res.Version)
			}
			return nil
		},
	}
}
