package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func messagesCmd() *cobra.Command {
	var (
		tenantID     string
		counterparty string
		before       int64
		limit        int
	)
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List a tenant's stored messages, newest first",
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

			msgs, err := db.ListMessages(cmd.Context(), tenantID, counterparty, before, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(msgs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tDIR\tCONTACT\tSTATUS\tBODY")
			for _, m := range msgs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04"),
					m.Direction, m.Counterparty, m.Status, truncate(m.Body, 60))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&counterparty, "counterparty", "", "filter by contact address")
	cmd.Flags().Int64Var(&before, "before", 0, "only messages older than this unix ms timestamp")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of messages")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}
