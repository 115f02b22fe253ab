package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/pulse/checkpoint"
	"github.com/teranos/pegabatch/source"
	"github.com/teranos/pegabatch/sym"
	"github.com/teranos/pegabatch/tracker"
)

// JobsCmd groups request management commands.
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: sym.IX + " Manage analysis requests",
	Long: sym.IX + ` Analysis requests.

Each upload becomes a request that moves waiting -> analysing -> complete
or error. A request suspended for quota stays analysing until it resumes.

Examples:
  pegabatch jobs ls --status analysing
  pegabatch jobs status 42
  pegabatch jobs add lista.xlsx --id 42 --email ana@example.org
  pegabatch jobs add --from https://example.org/lista.csv
  pegabatch jobs update-state 42 --state waiting`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List requests",
	RunE:  runJobsLs,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show one request and its checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsAddCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Queue a spreadsheet for analysis",
	Long: `Copy a local spreadsheet (or download one with --from) into the inbox as
<id>_<name>. The next pass picks it up. Without --id a new id is assigned.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobsAdd,
}

var jobsUpdateStateCmd = &cobra.Command{
	Use:   "update-state <id>",
	Short: "Set the status of a request",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsUpdateState,
}

func init() {
	jobsLsCmd.Flags().String("status", "", "Only show requests in this status (waiting|analysing|complete|error)")
	jobsAddCmd.Flags().String("from", "", "Download the spreadsheet from a URL or go-getter source")
	jobsAddCmd.Flags().String("id", "", "Request id (default: a new UUID)")
	jobsAddCmd.Flags().String("email", "", "Owner address for notifications")
	jobsUpdateStateCmd.Flags().String("state", "", "New status (waiting|analysing|complete|error)")
	_ = jobsUpdateStateCmd.MarkFlagRequired("state")

	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsStatusCmd)
	JobsCmd.AddCommand(jobsAddCmd)
	JobsCmd.AddCommand(jobsUpdateStateCmd)
}

func runJobsLs(cmd *cobra.Command, args []string) error {
	var statuses []tracker.Status
	if s, _ := cmd.Flags().GetString("status"); s != "" {
		st, err := tracker.ParseStatus(s)
		if err != nil {
			return err
		}
		statuses = append(statuses, st)
	}

	a, err := openStores(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	reqs, err := a.tracker.List(cmd.Context(), statuses...)
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(cmd, reqs)
	}
	if len(reqs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No requests.")
		return nil
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(requestTable(reqs)).Render()
}

// jobStatus is the view printed by `jobs status`.
type jobStatus struct {
	Request        *tracker.Request `json:"request"`
	CheckpointRows int              `json:"checkpoint_rows"`
	LineErrors     int              `json:"line_errors"`
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	a, err := openStores(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	req, err := a.tracker.Get(ctx, args[0])
	if err != nil {
		return err
	}
	cp, err := a.checkpoints.Load(ctx, req.ID)
	if err != nil {
		return err
	}
	view := jobStatus{Request: req, CheckpointRows: len(cp.Results), LineErrors: len(cp.Errors)}
	if jsonOutput(cmd) {
		return printJSON(cmd, view)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Request %s\n", sym.IX, pterm.Bold.Sprint(req.ID))
	fmt.Fprintf(out, "  Status:     %s\n", statusColor(req.Status))
	fmt.Fprintf(out, "  Progress:   %d%%\n", req.Progress)
	fmt.Fprintf(out, "  Email:      %s\n", req.Email)
	fmt.Fprintf(out, "  Input:      %s\n", req.InputFile)
	if req.OutputFile != "" {
		fmt.Fprintf(out, "  Output:     %s\n", req.OutputFile)
	}
	fmt.Fprintf(out, "  Created:    %s\n", formatTime(&req.CreatedAt))
	fmt.Fprintf(out, "  Analysed:   %s\n", formatTime(req.AnalysisDate))
	if view.CheckpointRows > 0 || view.LineErrors > 0 {
		fmt.Fprintf(out, "  Checkpoint: %d results, %d line errors (keys %s, %s)\n",
			view.CheckpointRows, view.LineErrors, checkpoint.ResultsKey(req.ID), checkpoint.ErrorsKey(req.ID))
	}
	if req.Error != "" {
		fmt.Fprintf(out, "  %s\n%s\n", pterm.Red("Error:"), indent(req.Error))
	}
	return nil
}

func runJobsAdd(cmd *cobra.Command, args []string) error {
	from, _ := cmd.Flags().GetString("from")
	if (from == "") == (len(args) == 0) {
		return errors.WithHint(
			errors.Wrap(errors.ErrInvalidRequest, "give either a file or --from"),
			"pegabatch jobs add lista.xlsx  or  pegabatch jobs add --from https://...")
	}

	a, err := openStores(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		id = uuid.NewString()
	}
	if strings.Contains(id, "_") {
		return errors.Wrapf(errors.ErrInvalidRequest, "request id %q must not contain '_'", id)
	}
	email, _ := cmd.Flags().GetString("email")

	src := from
	if src == "" {
		src = args[0]
	} else {
		staging, err := os.MkdirTemp("", "pegabatch-fetch-")
		if err != nil {
			return errors.Wrap(err, "failed to create staging dir")
		}
		defer os.RemoveAll(staging)

		spinner, _ := pterm.DefaultSpinner.WithWriter(cmd.ErrOrStderr()).Start("Downloading " + from)
		src, err = source.Fetch(ctx, from, staging)
		if err != nil {
			if spinner != nil {
				spinner.Fail(err.Error())
			}
			return err
		}
		if spinner != nil {
			spinner.Success("Downloaded " + filepath.Base(src))
		}
	}

	if source.IsInvalidFile(filepath.Base(src)) && !source.IsArchive(src) {
		return errors.WithHint(
			errors.Wrapf(errors.ErrInvalidRequest, "%s is not a spreadsheet", filepath.Base(src)),
			source.MsgInvalidExtension)
	}

	if _, err := a.tracker.Get(ctx, id); errors.IsNotFoundError(err) {
		if err := a.tracker.Create(ctx, &tracker.Request{ID: id, Email: email}); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	dst, err := source.Drop(src, a.cfg.Inbox.Dir, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Request %s queued: %s\n", sym.IX, id, dst)
	return nil
}

func runJobsUpdateState(cmd *cobra.Command, args []string) error {
	state, _ := cmd.Flags().GetString("state")
	st, err := tracker.ParseStatus(state)
	if err != nil {
		return err
	}

	a, err := openStores(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.tracker.SetStatus(cmd.Context(), args[0], st); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Item %s atualizado com sucesso!\n", args[0])
	return nil
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n    ")
}
