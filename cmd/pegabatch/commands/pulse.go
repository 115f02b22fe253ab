package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pegabatch/am"
	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/logger"
	"github.com/teranos/pegabatch/pulse/schedule"
	"github.com/teranos/pegabatch/server"
	"github.com/teranos/pegabatch/source"
	"github.com/teranos/pegabatch/sym"
)

// PulseCmd groups daemon commands.
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: sym.Pulse + " Run the enrichment daemon",
	Long: sym.Pulse + ` Pulse daemon - scheduled enrichment passes.

Every tick the daemon takes new uploads from the inbox, then advances
pending requests until the quota threshold is reached. A suspended job
resumes on the first tick after the cooldown expires.

Example:
  pegabatch pulse start            # Start in foreground
  pegabatch pulse start --addr :8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// PulseStartCmd starts the daemon in the foreground.
var PulseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	Long: `Start the daemon in foreground mode.

The daemon will:
- Run a pass immediately, then one per pulse.ticker_interval
- Trigger an early pass when files land in the inbox (inbox.watch)
- Apply quota and interval changes from the config file without restart
- Serve read-only status on server.addr when set
- On Ctrl+C, stop after the current row; the job keeps its checkpoint`,
	RunE: runPulseStart,
}

func init() {
	PulseStartCmd.Flags().String("addr", "", "Status server address (overrides server.addr)")
	PulseCmd.AddCommand(PulseStartCmd)
}

func runPulseStart(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := schedule.NewTickerWithContext(ctx, a.pass, schedule.TickerConfig{Interval: cfg.Pulse.TickerInterval}, nil)

	if cfg.Inbox.Watch {
		w, err := source.NewWatcher(cfg.Inbox.Dir, source.DefaultDebounce, a.ignore, logger.AddIXSymbol(logger.ComponentLogger("inbox")))
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx, ticker.Trigger); err != nil {
				a.log.Warnw("Inbox watcher stopped", logger.FieldError, err)
			}
		}()
	}

	if cw := watchConfig(a, ticker); cw != nil {
		defer cw.Stop()
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Server.Addr
	}
	var srv *server.Server
	if addr != "" {
		srv = server.New(server.Options{
			Addr:      addr,
			Jobs:      a.tracker,
			Cooldowns: a.checkpoints,
			Cache:     a.cache,
			LastPass:  ticker.LastSummary,
		})
		if err := srv.Start(); err != nil {
			return err
		}
	}

	ticker.Start()

	pterm.Printf("%s Pulse daemon started\n", sym.PulseOpen)
	pterm.Printf("  Database: %s\n", cfg.GetDatabasePath())
	pterm.Printf("  Inbox: %s (watch: %t)\n", cfg.Inbox.Dir, cfg.Inbox.Watch)
	pterm.Printf("  Interval: %v\n", cfg.Pulse.TickerInterval)
	pterm.Printf("  Quota threshold: %d\n", cfg.Quota.Threshold)
	if srv != nil {
		pterm.Printf("  Status: http://%s/status\n", srv.Addr())
	}
	pterm.Printf("\n%s Press Ctrl+C for graceful shutdown\n\n", sym.Pulse)

	<-ctx.Done()

	pterm.Printf("\n%s Stopping; the current job keeps its checkpoint...\n", sym.PulseClose)
	ticker.Stop()
	if srv != nil {
		if err := srv.Shutdown(context.Background()); err != nil {
			a.log.Warnw("Status server shutdown failed", logger.FieldError, err)
		}
	}
	pterm.Printf("%s Pulse daemon stopped\n", sym.PulseClose)
	return nil
}

// watchConfig hot-applies quota and interval changes from the highest
// precedence config file. It returns nil when no file was loaded.
func watchConfig(a *app, ticker *schedule.Ticker) *am.ConfigWatcher {
	files := am.ConfigFiles()
	if len(files) == 0 {
		return nil
	}
	cw, err := am.NewConfigWatcher(files[len(files)-1])
	if err != nil {
		a.log.Warnw("Config hot reload disabled", logger.FieldError, err)
		return nil
	}
	cw.OnReload(func(cfg *am.Config) error {
		a.policy.Update(policyConfig(cfg))
		ticker.SetInterval(cfg.Pulse.TickerInterval)
		logger.PulseInfow("Quota settings applied",
			"threshold", cfg.Quota.Threshold,
			"default_cooldown", cfg.Quota.DefaultCooldown,
			"interval", cfg.Pulse.TickerInterval)
		return nil
	})
	am.SetGlobalWatcher(cw)
	cw.Start()
	return cw
}

// RunCmd runs a single pass.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: sym.Pulse + " Run one pass and exit",
	Long: `Run one pass: take new uploads, then advance pending requests until
they finish or the quota threshold suspends them. Suitable for cron.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sum, err := a.pass.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(cmd, sum)
		}
		printSummary(cmd, sum)
		return nil
	},
}
