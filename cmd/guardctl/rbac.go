package main

import (
	"net/http"

	"github.com/spf13/cobra"
)

func newRBACCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rbac",
		Short: "Inspect actor permissions and rolling counters",
	}

	cmd.AddCommand(newRBACStatusCmd(), newRBACCheckCmd())
	return cmd
}

func newRBACStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-actor counters and limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			if err := call(http.MethodGet, "/v1/rbac/status", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newRBACCheckCmd() *cobra.Command {
	var (
		actor  string
		action string
		spend  int64
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Dry-run an authorization decision (no quota charged)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			body := map[string]interface{}{"actor": actor, "action": action, "spend": spend}
			if err := call(http.MethodPost, "/v1/rbac/check", body, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "actor/subsystem name")
	cmd.Flags().StringVar(&action, "action", "", "action name")
	cmd.Flags().Int64Var(&spend, "spend", 0, "projected spend in cents")
	cmd.MarkFlagRequired("actor")
	cmd.MarkFlagRequired("action")
	return cmd
}
