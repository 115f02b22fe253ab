// Package commands implements the pegabatch CLI.
package commands

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/pegabatch/am"
	"github.com/teranos/pegabatch/db"
	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/logger"
	"github.com/teranos/pegabatch/mail"
	"github.com/teranos/pegabatch/pegabot"
	"github.com/teranos/pegabatch/pipeline"
	"github.com/teranos/pegabatch/pulse/batch"
	"github.com/teranos/pegabatch/pulse/cache"
	"github.com/teranos/pegabatch/pulse/checkpoint"
	"github.com/teranos/pegabatch/pulse/quota"
	"github.com/teranos/pegabatch/source"
	"github.com/teranos/pegabatch/tracker"
)

// app holds every collaborator a command may need, built from one config.
type app struct {
	cfg          *am.Config
	db           *sql.DB
	tracker      *tracker.Tracker
	checkpoints  *checkpoint.Store
	cache        *cache.Cache
	policy       *quota.Policy
	ignore       *source.Ignore
	orchestrator *batch.Orchestrator
	pass         *pipeline.Pass
	log          *zap.SugaredLogger
}

// loadConfig loads and validates configuration, applying the --db override.
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if path, _ := cmd.Flags().GetString("db"); path != "" {
		c := *cfg
		c.Database.Path = path
		cfg = &c
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// openDatabase opens and migrates the configured database.
func openDatabase(cfg *am.Config) (*sql.DB, error) {
	path := cfg.GetDatabasePath()
	database, err := db.OpenWithMigrations(path, logger.AddDBSymbol(logger.ComponentLogger("db")))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}
	return database, nil
}

// openStores is the light variant for commands that only read or edit state.
func openStores(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:         cfg,
		db:          database,
		tracker:     tracker.New(database),
		checkpoints: checkpoint.NewStore(database),
		cache:       cache.New(database, cfg.Cache.TTL),
		log:         logger.Logger,
	}, nil
}

// newApp wires the full pipeline.
func newApp(cmd *cobra.Command) (*app, error) {
	a, err := openStores(cmd)
	if err != nil {
		return nil, err
	}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	cfg := a.cfg

	ignore, err := source.NewIgnore(cfg.Inbox.Ignore)
	if err != nil {
		return errors.Wrap(err, "invalid inbox.ignore")
	}
	a.ignore = ignore

	for _, dir := range []string{cfg.Inbox.Dir, cfg.Inbox.WorkDir, cfg.Inbox.OutDir} {
		if err := os.MkdirAll(dir, am.DefaultDirPermissions); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}

	a.policy = quota.NewPolicy(policyConfig(cfg))

	var limiter *quota.Limiter
	if cfg.Quota.WindowCalls > 0 {
		limiter = quota.NewLimiter(cfg.Quota.WindowCalls, cfg.Quota.Window)
	}

	client := pegabot.NewClient(pegabot.Config{
		BaseURL:           cfg.Pegabot.BaseURL,
		APIKey:            cfg.Pegabot.APIKey,
		Timeout:           cfg.Pegabot.Timeout,
		RequestsPerSecond: cfg.Pegabot.RequestsPerSecond,
		MaxRetries:        cfg.Pegabot.MaxRetries,
		BlockPrivateIP:    cfg.Pegabot.BlockPrivateIP,
		Logger:            logger.ComponentLogger("pegabot"),
	})

	a.orchestrator = batch.NewOrchestrator(batch.Config{
		Store:    a.checkpoints,
		Cache:    a.cache,
		Client:   client,
		Policy:   a.policy,
		Limiter:  limiter,
		Progress: a.tracker,
		Logger:   logger.ComponentLogger("pulse.batch"),
	})

	a.pass = &pipeline.Pass{
		Inbox: &source.Inbox{
			Dir:      cfg.Inbox.Dir,
			WorkDir:  cfg.Inbox.WorkDir,
			Ignore:   ignore,
			Requests: a.tracker,
			Logger:   logger.AddIXSymbol(logger.ComponentLogger("inbox")),
		},
		Requests:     a.tracker,
		Orchestrator: a.orchestrator,
		Checkpoints:  a.checkpoints,
		Policy:       a.policy,
		OutDir:       cfg.Inbox.OutDir,
		Archive:      cfg.Inbox.ArchiveResults,
		Logger:       logger.AddPulseSymbol(logger.ComponentLogger("pipeline")),
	}

	if cfg.Mail.Enabled {
		sender, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
		if err != nil {
			return errors.Wrap(err, "invalid mail configuration")
		}
		a.pass.Notifier = mail.NewNotifier(sender, a.tracker, cfg.Mail.FileHost)
	}
	return nil
}

// Close releases the database.
func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func policyConfig(cfg *am.Config) quota.Config {
	return quota.Config{
		Threshold:       cfg.Quota.Threshold,
		DefaultCooldown: cfg.Quota.DefaultCooldown,
		ResetUnit:       quota.ResetUnit(cfg.Quota.ResetUnit),
	}
}

// AddGlobalFlags registers the persistent flags every command reads.
func AddGlobalFlags(root *cobra.Command) {
	root.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	root.PersistentFlags().Bool("json", false, "JSON logs and JSON command output")
	root.PersistentFlags().String("db", "", "Database path (overrides database.path)")
}

// jsonOutput reports whether the persistent --json flag is set.
func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// FormatError renders an error with its hints for the terminal.
func FormatError(err error) string {
	var b strings.Builder
	b.WriteString(pterm.Red("Error: ") + err.Error())
	for _, hint := range errors.GetAllHints(err) {
		b.WriteString(fmt.Sprintf("\n  %s %s", pterm.Yellow("hint:"), hint))
	}
	return b.String()
}
