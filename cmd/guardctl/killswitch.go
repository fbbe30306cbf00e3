package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newKillCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Engage the global emergency stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			if err := call(http.MethodPost, "/v1/killswitch/kill",
				map[string]string{"reason": reason}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "why the stop is engaged")
	cmd.MarkFlagRequired("reason")
	return cmd
}

func newResumeCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Release the global emergency stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			if err := call(http.MethodPost, "/v1/killswitch/resume",
				map[string]string{"reason": reason}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "operator resume", "resume note")
	return cmd
}

func newSystemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "systems",
		Short: "Per-subsystem kill switch control",
	}

	cmd.AddCommand(
		newSystemsStatusCmd(),
		newSystemsKillCmd(),
		newSystemsResumeCmd(),
		newSystemsTrailCmd(),
	)
	return cmd
}

func newSystemsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show registered subsystems and kill state",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			if err := call(http.MethodGet, "/v1/killswitch/status", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newSystemsKillCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "kill <name>",
		Short: "Halt a single subsystem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			path := fmt.Sprintf("/v1/killswitch/systems/%s/kill", args[0])
			if err := call(http.MethodPost, path, map[string]string{"reason": reason}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "why the subsystem is halted")
	cmd.MarkFlagRequired("reason")
	return cmd
}

func newSystemsResumeCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "resume <name>",
		Short: "Resume a single subsystem (refused while global stop is active)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			path := fmt.Sprintf("/v1/killswitch/systems/%s/resume", args[0])
			if err := call(http.MethodPost, path, map[string]string{"reason": reason}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "operator resume", "resume note")
	return cmd
}

func newSystemsTrailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trail",
		Short: "Show the in-memory kill switch audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []map[string]interface{}
			if err := call(http.MethodGet, "/v1/killswitch/trail", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}
