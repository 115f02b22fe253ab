package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pegabatch/sym"
)

// CooldownCmd groups quota cooldown commands.
var CooldownCmd = &cobra.Command{
	Use:   "cooldown",
	Short: sym.Hold + " Show or clear the quota cooldown",
	Long: sym.Hold + ` Quota cooldown.

When remaining API calls reach quota.threshold the running job is suspended
and no job may call the API until the stored deadline passes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// cooldownView is the JSON shape of `cooldown show`.
type cooldownView struct {
	Active bool       `json:"active"`
	Until  *time.Time `json:"until,omitempty"`
}

var cooldownShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the cooldown deadline",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		until, err := a.checkpoints.Cooldown(cmd.Context())
		if err != nil {
			return err
		}
		view := cooldownView{Until: until, Active: until != nil && time.Now().Before(*until)}
		if jsonOutput(cmd) {
			return printJSON(cmd, view)
		}

		out := cmd.OutOrStdout()
		switch {
		case until == nil:
			fmt.Fprintf(out, "%s No cooldown set\n", sym.Hold)
		case view.Active:
			fmt.Fprintf(out, "%s Cooldown active until %s (%s left)\n", sym.Hold,
				pterm.Yellow(until.Local().Format(time.DateTime)),
				time.Until(*until).Round(time.Second))
		default:
			fmt.Fprintf(out, "%s Cooldown expired at %s\n", sym.Hold, until.Local().Format(time.DateTime))
		}
		return nil
	},
}

var cooldownClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the cooldown so the next pass may call the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.checkpoints.ClearCooldown(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Cooldown cleared\n", sym.Hold)
		return nil
	},
}

func init() {
	CooldownCmd.AddCommand(cooldownShowCmd)
	CooldownCmd.AddCommand(cooldownClearCmd)
}
