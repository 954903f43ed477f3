package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/wpphub/internal/auth"
	"github.com/matheus3301/wpphub/internal/tenant"
)

func tokenCmd() *cobra.Command {
	var (
		tenantID string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := tenant.ValidateID(tenantID); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if ttl == 0 {
				if ttl, err = cfg.Auth.TTL(); err != nil {
					return err
				}
			}
			token, expiresAt, err := auth.GenerateToken(tenantID, cfg.Auth.JWTSecret, ttl)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]string{
					"token":      token,
					"expires_at": expiresAt.Format(time.RFC3339),
				})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
