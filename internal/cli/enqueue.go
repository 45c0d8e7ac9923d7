package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/harun/warden/pkg/taskqueue"
	"github.com/spf13/cobra"
)

var (
	enqueueName     string
	enqueuePriority int
	enqueueMeta     []string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <prompt>",
	Short: "Queue a manual prompt",
	Long: `Queue a manual prompt on the running daemon. Lower priority values run
first; manual tasks default to priority 5 and the name "manual_task".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueName, "name", "", "task name (default manual_task)")
	enqueueCmd.Flags().IntVar(&enqueuePriority, "priority", taskqueue.PriorityManual, "task priority, lower runs first")
	enqueueCmd.Flags().StringArrayVar(&enqueueMeta, "meta", nil, "metadata as key=value, repeatable")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	metadata, err := parseMetadata(enqueueMeta)
	if err != nil {
		return err
	}

	body := map[string]any{
		"prompt":   strings.Join(args, " "),
		"priority": enqueuePriority,
	}
	if enqueueName != "" {
		body["name"] = enqueueName
	}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}

	data, err := client.do(http.MethodPost, "/api/add-task", body)
	if err != nil {
		return err
	}

	var resp struct {
		Task taskqueue.Task `json:"task"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Queued %s (%s) with priority %d\n", resp.Task.Name, resp.Task.ID, resp.Task.Priority)
	return nil
}

func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q, want key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
