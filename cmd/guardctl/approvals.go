package main

import (
	"net/http"

	"github.com/spf13/cobra"
)

func newApprovalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "Review the human-in-the-loop approval queue",
	}

	cmd.AddCommand(
		newApprovalsListCmd(),
		newApprovalsShowCmd(),
		newApprovalsDecideCmd(),
		newApprovalsHistoryCmd(),
	)
	return cmd
}

func newApprovalsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending approval requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []map[string]interface{}
			if err := call(http.MethodGet, "/v1/approvals/", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newApprovalsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one approval request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			if err := call(http.MethodGet, "/v1/approvals/"+args[0]+"/", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newApprovalsDecideCmd() *cobra.Command {
	var (
		approve bool
		reject  bool
		comment string
	)

	cmd := &cobra.Command{
		Use:   "decide <id>",
		Short: "Approve or reject a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approve == reject {
				return cmd.Help()
			}
			var out map[string]interface{}
			body := map[string]interface{}{"approved": approve, "comment": comment}
			if err := call(http.MethodPost, "/v1/approvals/"+args[0]+"/decide", body, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().BoolVar(&approve, "approve", false, "approve the request")
	cmd.Flags().BoolVar(&reject, "reject", false, "reject the request")
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "reviewer comment")
	return cmd
}

func newApprovalsHistoryCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List processed approvals from the durable store",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/approvals/history"
			if status != "" {
				path += "?status=" + status
			}
			var out []map[string]interface{}
			if err := call(http.MethodGet, path, nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter: PENDING, APPROVED or REJECTED")
	return cmd
}
