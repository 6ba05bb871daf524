// Package watch keeps an index current while files change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jward/ppindex/internal/pp"
)

// DefaultDebounce is the quiet period after the last event before a batch
// is applied.
const DefaultDebounce = 300 * time.Millisecond

// sourceExtensions are the files whose changes can alter the index.
var sourceExtensions = map[string]bool{
	".c": true, ".cc": true, ".cpp": true, ".cxx": true, ".c++": true,
	".h": true, ".hh": true, ".hpp": true, ".hxx": true, ".inc": true, ".inl": true, ".ipp": true,
}

// Indexer is the part of the engine a Watcher drives.
type Indexer interface {
	// UnitFilter reports which paths below root are units the indexer
	// would pick up on its own.
	UnitFilter(root string) (func(path string) bool, error)
	UnitsAffectedBy(paths []string) ([]string, error)
	IndexUnits(ctx context.Context, paths []string) error
	RemoveUnit(path string) error
}

// Batch reports one applied set of changes.
type Batch struct {
	Changed   []string
	Reindexed []string
	Removed   []string
	Err       error
}

// Watcher turns file system events below a root into re-index and remove
// calls on an Indexer.
type Watcher struct {
	root     string
	indexer  Indexer
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration
	onBatch  func(Batch)
	isUnit   func(path string) bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets the quiet period. Non-positive values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOnBatch registers a function called after every applied batch.
func WithOnBatch(fn func(Batch)) Option {
	return func(w *Watcher) {
		w.onBatch = fn
	}
}

// New watches root and every directory below it except hidden ones.
func New(root string, indexer Indexer, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}
	isUnit, err := indexer.UnitFilter(abs)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{
		root:     abs,
		indexer:  indexer,
		isUnit:   isUnit,
		fsw:      fsw,
		logger:   slog.New(slog.DiscardHandler),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.addTree(abs); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Close releases the underlying watcher. Run returns once it is closed.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run applies batches until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	pending := map[string]bool{}
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Warn("watch.add_failed", "dir", ev.Name, "err", err)
					}
					continue
				}
			}
			if !relevant(ev) {
				continue
			}
			pending[filepath.Clean(ev.Name)] = true
			timer.Reset(w.debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			clear(pending)
			slices.Sort(changed)
			w.apply(ctx, changed)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch.error", "err", err)
		}
	}
}

// apply removes units whose main file is gone, then re-indexes every unit
// that entered a changed file plus changed files the indexer counts as units.
func (w *Watcher) apply(ctx context.Context, changed []string) {
	b := Batch{Changed: changed}
	var errs []error

	var existing []string
	for _, p := range changed {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
			continue
		}
		if !pp.IsUnitFile(p) {
			continue
		}
		if err := w.indexer.RemoveUnit(p); err != nil {
			w.logger.Debug("watch.remove_skipped", "unit", p, "err", err)
			continue
		}
		b.Removed = append(b.Removed, p)
	}

	affected, err := w.indexer.UnitsAffectedBy(changed)
	if err != nil {
		errs = append(errs, err)
	}
	reindex := map[string]bool{}
	for _, u := range affected {
		if _, err := os.Stat(u); err == nil {
			reindex[u] = true
		}
	}
	for _, p := range existing {
		if w.isUnit(p) {
			reindex[p] = true
		}
	}
	for u := range reindex {
		b.Reindexed = append(b.Reindexed, u)
	}
	slices.Sort(b.Reindexed)

	if len(b.Reindexed) > 0 {
		if err := w.indexer.IndexUnits(ctx, b.Reindexed); err != nil {
			errs = append(errs, err)
		}
	}
	b.Err = errors.Join(errs...)

	w.logger.Info("watch.batch", "changed", len(b.Changed), "reindexed", len(b.Reindexed), "removed", len(b.Removed))
	if b.Err != nil {
		w.logger.Error("watch.batch_failed", "err", b.Err)
	}
	if w.onBatch != nil {
		w.onBatch(b)
	}
}

func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return sourceExtensions[strings.ToLower(filepath.Ext(ev.Name))]
}

// addTree watches dir and its subdirectories, skipping hidden ones.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("watch: %w", err)
			}
			w.logger.Warn("watch.walk_failed", "path", path, "err", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("watch.add_failed", "dir", path, "err", err)
		}
		return nil
	})
}
