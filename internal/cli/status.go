package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/harun/warden/pkg/agent"
	"github.com/spf13/cobra"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status",
	Long:  `Show the agent state, counters, queue and session as reported by the daemon's control API.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	st, err := client.status()
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Daemon: %s\n", red("unreachable"))
		return err
	}

	printStatus(cmd.OutOrStdout(), st, time.Now())
	return nil
}

func printStatus(w io.Writer, st agent.Status, now time.Time) {
	fmt.Fprintf(w, "State: %s\n", stateLabel(st.State))
	if st.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", st.RunID)
	}
	if !st.Stats.StartedAt.IsZero() && st.State != agent.StateStopped {
		fmt.Fprintf(w, "Uptime: %s\n", formatDuration(now.Sub(st.Stats.StartedAt)))
	}
	fmt.Fprintf(w, "Tasks: %d completed, %d failed\n", st.Stats.TasksCompleted, st.Stats.TasksFailed)
	fmt.Fprintf(w, "Conversations rotated: %d\n", st.Stats.ConversationsRotated)
	fmt.Fprintf(w, "Queue: %d pending\n", st.QueueSize)
	if st.CurrentTask != "" {
		fmt.Fprintf(w, "Current task: %s\n", st.CurrentTask)
	}
	if st.Session != nil {
		fmt.Fprintf(w, "Session: %s (%d/%d messages)\n", st.Session.Kind, st.Session.MessageCount, st.Session.RotationThreshold)
	}
	if !st.Stats.LastActivity.IsZero() {
		fmt.Fprintf(w, "Last activity: %s ago\n", formatDuration(now.Sub(st.Stats.LastActivity)))
	}
}

func stateLabel(s agent.State) string {
	switch s {
	case agent.StateRunning:
		return green(s)
	case agent.StatePaused:
		return yellow(s)
	default:
		return gray(s)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
