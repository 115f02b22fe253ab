package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/sym"
)

// CacheCmd groups response cache commands.
var CacheCmd = &cobra.Command{
	Use:   "cache",
	Short: sym.Memo + " Inspect the response cache",
	Long: sym.Memo + ` Response cache.

Scores are remembered per normalized identifier and reused across jobs, so
an identifier is never paid for twice while its entry is fresh (cache.ttl).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and age",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.cache.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(cmd, st)
		}
		ttl := "never"
		if a.cfg.Cache.TTL > 0 {
			ttl = a.cfg.Cache.TTL.String()
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s Cache\n", sym.Memo)
		fmt.Fprintf(out, "  Entries: %s\n", pterm.Green(st.Entries))
		fmt.Fprintf(out, "  Expired: %d (ttl: %s)\n", st.Expired, ttl)
		fmt.Fprintf(out, "  Oldest:  %s\n", formatTime(st.Oldest))
		fmt.Fprintf(out, "  Newest:  %s\n", formatTime(st.Newest))
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cache entries",
	Long: `Delete cache entries stored longer ago than --older-than.
--older-than 0 deletes every entry.

Examples:
  pegabatch cache purge --older-than 720h
  pegabatch cache purge --older-than 0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("older-than") {
			return errors.WithHint(
				errors.Wrap(errors.ErrInvalidRequest, "--older-than is required"),
				"use --older-than 0 to delete everything")
		}
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan < 0 {
			return errors.Wrap(errors.ErrInvalidRequest, "--older-than must not be negative")
		}

		a, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.cache.Purge(cmd.Context(), olderThan)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Purged %d entries\n", sym.Memo, n)
		return nil
	},
}

func init() {
	cachePurgeCmd.Flags().Duration("older-than", time.Duration(0), "Only delete entries older than this")
	CacheCmd.AddCommand(cacheStatsCmd)
	CacheCmd.AddCommand(cachePurgeCmd)
}
