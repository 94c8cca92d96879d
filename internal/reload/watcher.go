package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ppiankov/riskwatch/internal/engine"
	"github.com/ppiankov/riskwatch/internal/logger"
	"github.com/ppiankov/riskwatch/internal/rules"
)

// DefaultDebounce coalesces the burst of events editors emit on save
const DefaultDebounce = 250 * time.Millisecond

// Target swaps in a new rule catalog
type Target interface {
	ReloadCatalog(src rules.Source) error
	Snapshot() *engine.Snapshot
}

// Watcher reloads a rule file whenever it changes on disk
type Watcher struct {
	path     string
	target   Target
	debounce time.Duration
	log      *logger.Logger

	// OnReload is called after each reload attempt, if set
	OnReload func(err error)
}

// NewWatcher creates a watcher for the rule file at path
func NewWatcher(path string, target Target, debounce time.Duration, log *logger.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Watcher{
		path:     abs,
		target:   target,
		debounce: debounce,
		log:      log.WithComponent("reload"),
	}, nil
}

// Run watches until ctx is canceled. The parent directory is watched rather
// than the file so atomic renames by editors are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.log.Info().Str("path", w.path).Msg("watching rule set")

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.log.Debug().Str("op", ev.Op.String()).Msg("rule set changed")

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				w.reload()
			})
			mu.Unlock()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) reload() {
	// engine logs the outcome
	err := w.target.ReloadCatalog(rules.FileSource{Path: w.path})
	if w.OnReload != nil {
		w.OnReload(err)
	}
}
