package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/parley/internal/ledger"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print answered requests from a running engine",
	Long: `Print the durable cross-restart history of completed requests, or
with --session the current session's ledger including cancelled entries.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().String("server", "http://127.0.0.1:7601", "Engine API base URL")
	historyCmd.Flags().Bool("session", false, "Show the session ledger instead of durable history")
}

func runHistory(cmd *cobra.Command, args []string) error {
	server, err := cmd.Flags().GetString("server")
	if err != nil {
		return err
	}
	sessionOnly, err := cmd.Flags().GetBool("session")
	if err != nil {
		return err
	}

	path := "/v1/history"
	if sessionOnly {
		path = "/v1/session"
	}

	resp, err := http.Get(server + path)
	if err != nil {
		return fmt.Errorf("failed to reach engine at %s: %w", server, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine returned status %d", resp.StatusCode)
	}

	var entries []ledger.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "no entries")
		return nil
	}

	for _, e := range entries {
		fmt.Fprintln(out, formatEntry(e))
	}
	return nil
}

func formatEntry(e ledger.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Status, e.CreatedAt.Format(time.RFC3339))
	if e.ViaQueue {
		b.WriteString(" (queue)")
	}
	fmt.Fprintf(&b, "\n  q: %s", e.Prompt)
	if e.Response != "" {
		fmt.Fprintf(&b, "\n  a: %s", e.Response)
	}
	return b.String()
}
