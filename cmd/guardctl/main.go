package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	apiAddr  string
	apiToken string
)

func main() {
	root := &cobra.Command{
		Use:     "guardctl",
		Short:   "guardctl — operator CLI for the guardplane console API",
		Version: version,
	}

	root.PersistentFlags().StringVar(&apiAddr, "addr", envOr("GUARDCTL_ADDR", "http://localhost:8080"), "console API address")
	root.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("GUARDCTL_TOKEN"), "bearer token (or GUARDCTL_TOKEN)")

	root.AddCommand(
		newKillCmd(),
		newResumeCmd(),
		newSystemsCmd(),
		newApprovalsCmd(),
		newAuditCmd(),
		newRBACCmd(),
		newLoginCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// call выполняет запрос к консоли и декодирует JSON-ответ в out (если не nil).
func call(method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, apiAddr+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+apiToken)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(raw))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// printJSON — единый формат вывода: pretty JSON, удобно для jq.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLoginCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain a bearer token from the console API",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				AccessToken string `json:"access_token"`
			}
			err := call(http.MethodPost, "/auth/token",
				map[string]string{"username": username, "password": password}, &out)
			if err != nil {
				return err
			}
			fmt.Println(out.AccessToken)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "operator username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "operator password")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("password")
	return cmd
}
