package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/wpphub/internal/store"
	"github.com/matheus3301/wpphub/internal/tenant"
)

func channelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Manage tenant channel links",
	}
	cmd.AddCommand(channelLinkCmd())
	cmd.AddCommand(channelStateCmd("disconnect", "Disconnect a tenant's channel (the link is kept)", store.Disconnected))
	cmd.AddCommand(channelStateCmd("reconnect", "Reconnect a previously linked channel", store.Connected))
	cmd.AddCommand(channelAutoReplyCmd())
	cmd.AddCommand(channelListCmd())
	return cmd
}

func channelLinkCmd() *cobra.Command {
	var c store.ChannelConfig
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link a tenant to a provider phone number",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := tenant.ValidateID(c.TenantID); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := db.LinkChannel(cmd.Context(), &c); err != nil {
				return err
			}
			fmt.Printf("linked tenant %s to phone number id %s\n", c.TenantID, c.PhoneNumberID)
			return nil
		},
	}
	cmd.Flags().StringVar(&c.TenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&c.PhoneNumberID, "phone-number-id", "", "provider phone number id (routing key)")
	cmd.Flags().StringVar(&c.AccessToken, "access-token", "", "provider access token")
	cmd.Flags().StringVar(&c.TemplateLanguage, "template-language", "en_US", "language code for template messages")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("phone-number-id")
	_ = cmd.MarkFlagRequired("access-token")
	return cmd
}

func channelStateCmd(use, short string, state store.ConnState) *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := db.SetChannelState(cmd.Context(), tenantID, store.ChannelWhatsApp, state); err != nil {
				return fmt.Errorf("tenant %s: %w", tenantID, err)
			}
			fmt.Printf("tenant %s: %s\n", tenantID, state)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func channelAutoReplyCmd() *cobra.Command {
	var (
		tenantID string
		enabled  bool
		welcome  string
	)
	cmd := &cobra.Command{
		Use:   "autoreply",
		Short: "Configure the first-contact welcome message",
		RunE: func(cmd *cobra.Command, args []string) error {
			if enabled && welcome == "" {
				return fmt.Errorf("--welcome is required when enabling auto-reply")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := db.SetAutoReply(cmd.Context(), tenantID, store.ChannelWhatsApp, enabled, welcome); err != nil {
				return fmt.Errorf("tenant %s: %w", tenantID, err)
			}
			fmt.Printf("tenant %s: auto-reply enabled=%v\n", tenantID, enabled)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "enable auto-reply")
	cmd.Flags().StringVar(&welcome, "welcome", "", "welcome text")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

type channelRow struct {
	TenantID         string `json:"tenant_id"`
	PhoneNumberID    string `json:"phone_number_id"`
	State            string `json:"state"`
	AutoReplyEnabled bool   `json:"auto_reply_enabled"`
	TemplateLanguage string `json:"template_language"`
	UpdatedAt        string `json:"updated_at"`
}

func channelListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List channel links",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			channels, err := db.ListChannels(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([]channelRow, 0, len(channels))
			for _, c := range channels {
				rows = append(rows, channelRow{
					TenantID:         c.TenantID,
					PhoneNumberID:    c.PhoneNumberID,
					State:            string(c.State),
					AutoReplyEnabled: c.AutoReplyEnabled,
					TemplateLanguage: c.TemplateLanguage,
					UpdatedAt:        time.UnixMilli(c.UpdatedAt).Format(time.RFC3339),
				})
			}
			if jsonOutput {
				return printJSON(rows)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TENANT\tPHONE NUMBER ID\tSTATE\tAUTO-REPLY\tUPDATED")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n", r.TenantID, r.PhoneNumberID, r.State, r.AutoReplyEnabled, r.UpdatedAt)
			}
			return w.Flush()
		},
	}
}
