package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/parley/internal/protocol"
	"github.com/iambrandonn/parley/internal/toolapi"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Submit a question to a running engine and wait for the answer",
	Long: `Submit a single question to a running engine over its local API.
The command blocks until the human answers, a queued answer satisfies it, or
the request is cancelled.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().String("server", "http://127.0.0.1:7601", "Engine API base URL")
	askCmd.Flags().String("context", "", "Free-form context shown alongside the question")
	askCmd.Flags().StringArray("choice", nil, "Explicit choice as label=value (repeatable)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	server, err := cmd.Flags().GetString("server")
	if err != nil {
		return err
	}
	contextBlob, err := cmd.Flags().GetString("context")
	if err != nil {
		return err
	}
	rawChoices, err := cmd.Flags().GetStringArray("choice")
	if err != nil {
		return err
	}

	var explicit []protocol.Choice
	for _, raw := range rawChoices {
		label, value, found := strings.Cut(raw, "=")
		if !found {
			value = label
		}
		explicit = append(explicit, protocol.Choice{Label: label, Value: value})
	}

	body, err := json.Marshal(toolapi.AskRequest{
		Question: strings.Join(args, " "),
		Context:  contextBlob,
		Choices:  explicit,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := http.Post(server+"/v1/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to reach engine at %s: %w", server, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("engine rejected request: %s", apiErr.Error)
		}
		return fmt.Errorf("engine returned status %d", resp.StatusCode)
	}

	var res protocol.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	out := cmd.OutOrStdout()
	if res.Cancelled {
		fmt.Fprintf(out, "cancelled: %s\n", res.Value)
		return nil
	}
	fmt.Fprintln(out, res.Value)
	if res.Queue {
		fmt.Fprintln(out, "(answered from queue)")
	}
	for _, a := range res.Attachments {
		fmt.Fprintf(out, "attachment: %s\n", a)
	}
	return nil
}
