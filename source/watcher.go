package source

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/logger"
)

// DefaultDebounce coalesces the burst of events a single upload produces.
const DefaultDebounce = 2 * time.Second

// Watcher signals when new uploads land in the inbox.
type Watcher struct {
	dir      string
	debounce time.Duration
	ignore   *Ignore
	fs       *fsnotify.Watcher
	logger   *zap.SugaredLogger
}

// NewWatcher watches dir. A zero debounce uses DefaultDebounce.
func NewWatcher(dir string, debounce time.Duration, ignore *Ignore, log *zap.SugaredLogger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logger.AddIXSymbol(logger.ComponentLogger("source.watch"))
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "failed to watch inbox %s", dir)
	}
	return &Watcher{dir: dir, debounce: debounce, ignore: ignore, fs: fw, logger: log}, nil
}

// Run calls onChange once per quiet period after files are created, written
// or renamed in the inbox. It returns when ctx is done.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	defer w.fs.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 || w.ignore.Match(ev.Name) {
				continue
			}
			w.logger.Debugw("Inbox change", logger.FieldFile, ev.Name, "op", ev.Op.String())
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true

		case <-timer.C:
			pending = false
			onChange()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnw("Inbox watcher error", logger.FieldError, err)
		}
	}
}
