package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Start or stop the agent inside a running daemon",
}

var agentStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Open a fresh session and start the worker",
	RunE:  actionRunner("start", "Agent started", "Agent already running or failed to open its session"),
}

var agentStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the worker and close the session",
	RunE:  actionRunner("stop", "Agent stopped", "Agent is not running"),
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the agent; queued tasks are kept",
	RunE:  actionRunner("pause", "Agent paused", "Agent is not running"),
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused agent",
	RunE:  actionRunner("resume", "Agent resumed", "Agent is not running"),
}

func init() {
	agentCmd.AddCommand(agentStartCmd, agentStopCmd)
	rootCmd.AddCommand(agentCmd, pauseCmd, resumeCmd)
}

// actionRunner posts a lifecycle action. A refused action is reported, not
// treated as a command failure.
func actionRunner(action, ok, refused string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		success, err := client.action(action)
		if err != nil {
			return err
		}

		if success {
			fmt.Fprintln(cmd.OutOrStdout(), ok)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), refused)
		}
		return nil
	}
}
