package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matheus3301/wpphub/internal/config"
	"github.com/matheus3301/wpphub/internal/store"
)

var (
	configPath string
	jsonOutput bool
)

func main() {
	root := &cobra.Command{
		Use:           "wpphubctl",
		Short:         "Administer wpphub channel links, tokens and storage",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "path to config.toml")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	root.AddCommand(initCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(channelCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(messagesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	return cfg, nil
}

// openStore opens and migrates the configured database.
func openStore(cfg *config.Config) (*store.DB, error) {
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
