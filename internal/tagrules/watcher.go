package tagrules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

// reloadDelay is the quiet period after the last file event before a reload.
const reloadDelay = 100 * time.Millisecond

// RuleSetter receives reloaded rules. *memory.Tagger implements it.
type RuleSetter interface {
	SetRules(rules []memory.Rule)
}

// Watcher reloads a rule file into a RuleSetter whenever the file changes.
// A file that fails to load leaves the current rules in place.
type Watcher struct {
	path    string
	target  RuleSetter
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	stopOnce sync.Once
	stop     chan struct{}

	// reloaded is signalled after every reload attempt. Tests use it.
	reloaded chan error
}

// NewWatcher creates a watcher for path. The containing directory is
// watched so atomic-rename saves are seen.
func NewWatcher(path string, target RuleSetter, logger *zap.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("rule file path is required")
	}
	if target == nil {
		return nil, fmt.Errorf("rule target cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving rule file path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		target:   target,
		logger:   logger.Named("tagrules").With(zap.String("path", abs)),
		watcher:  w,
		stop:     make(chan struct{}),
		reloaded: make(chan error, 1),
	}, nil
}

// Reload loads the file now and applies it. A missing file restores the
// built-in rules.
func (w *Watcher) Reload() error {
	rules, err := Load(w.path)
	switch {
	case os.IsNotExist(err):
		w.target.SetRules(nil)
		w.logger.Info("tag rule file missing, using built-in rules")
		return nil
	case err != nil:
		w.logger.Warn("tag rule reload failed, keeping current rules", zap.Error(err))
		return err
	}
	w.target.SetRules(rules)
	w.logger.Info("tag rules reloaded", zap.Int("rules", len(rules)))
	return nil
}

// Run processes file events until ctx is done or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stop:
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			err := w.Reload()
			select {
			case w.reloaded <- err:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

// Stop ends Run and releases the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()
	})
}
