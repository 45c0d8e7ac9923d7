package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/harun/warden/pkg/agent"
	"github.com/spf13/cobra"
)

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "List scheduled tasks and their next run",
	RunE:  runSchedules,
}

func init() {
	rootCmd.AddCommand(schedulesCmd)
}

func runSchedules(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	st, err := client.status()
	if err != nil {
		return err
	}

	printSchedules(cmd.OutOrStdout(), st)
	return nil
}

func printSchedules(out io.Writer, st agent.Status) {
	if len(st.Schedules) == 0 && len(st.Skipped) == 0 {
		fmt.Fprintln(out, "No schedules configured")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCRON\tENABLED\tNEXT RUN\tFIRES")
	for _, e := range st.Schedules {
		next := "-"
		if e.Enabled && !e.NextRun.IsZero() {
			next = e.NextRun.Format(time.RFC3339)
		}
		expr := e.Expr
		if e.TZ != "" {
			expr += " (" + e.TZ + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%d\n", e.Name, expr, e.Enabled, next, e.Fires)
	}
	w.Flush()

	for _, s := range st.Skipped {
		if s.Error != "" {
			fmt.Fprintf(out, "skipped %s: %s (%s)\n", s.Name, s.Reason, s.Error)
		} else {
			fmt.Fprintf(out, "skipped %s: %s\n", s.Name, s.Reason)
		}
	}
}
