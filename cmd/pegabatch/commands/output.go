package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/pipeline"
	"github.com/teranos/pegabatch/tracker"
)

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func printSummary(cmd *cobra.Command, sum pipeline.Summary) {
	out := cmd.OutOrStdout()
	if sum.Held {
		fmt.Fprintln(out, pterm.Yellow("Quota cooldown active; no job was run."))
	}
	fmt.Fprintf(out, "Accepted: %d  Rejected: %d\n", sum.Accepted, sum.Rejected)
	fmt.Fprintf(out, "Completed: %d  Failed: %d  Suspended: %d  Skipped: %d  Interrupted: %d\n",
		sum.Completed, sum.Failed, sum.Suspended, sum.Skipped, sum.Interrupted)
}

func statusColor(s tracker.Status) string {
	switch s {
	case tracker.StatusComplete:
		return pterm.Green(string(s))
	case tracker.StatusError:
		return pterm.Red(string(s))
	case tracker.StatusAnalysing:
		return pterm.LightCyan(string(s))
	default:
		return pterm.Gray(string(s))
	}
}

func requestTable(reqs []*tracker.Request) pterm.TableData {
	data := pterm.TableData{{"ID", "STATUS", "PROGRESS", "FILE", "CREATED"}}
	for _, r := range reqs {
		data = append(data, []string{
			r.ID,
			statusColor(r.Status),
			strconv.Itoa(r.Progress) + "%",
			r.InputFile,
			r.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return data
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
