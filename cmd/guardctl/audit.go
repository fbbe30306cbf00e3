package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the audit ledger",
	}

	cmd.AddCommand(newAuditSearchCmd(), newAuditCleanupCmd())
	return cmd
}

func newAuditSearchCmd() *cobra.Command {
	var (
		userID   string
		category string
		severity string
		since    string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search audit ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if userID != "" {
				q.Set("user_id", userID)
			}
			if category != "" {
				q.Set("category", category)
			}
			if severity != "" {
				q.Set("severity", severity)
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				q.Set("from", t.Format(time.RFC3339))
			}
			q.Set("limit", strconv.Itoa(limit))

			var out []map[string]interface{}
			if err := call(http.MethodGet, "/v1/audit?"+q.Encode(), nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "filter by actor/user id")
	cmd.Flags().StringVar(&category, "category", "", "filter by category (auth, payment, ...)")
	cmd.Flags().StringVar(&severity, "severity", "", "filter by severity (info, warning, critical)")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")
	return cmd
}

func newAuditCleanupCmd() *cobra.Command {
	var retentionDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired non-critical entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			body := map[string]int{"retention_days": retentionDays}
			if err := call(http.MethodPost, "/v1/audit/cleanup", body, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().IntVar(&retentionDays, "retention-days", 90, "entries older than this are removed")
	return cmd
}
