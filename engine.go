package ppindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jward/ppindex/internal/collect"
	"github.com/jward/ppindex/internal/pathid"
	"github.com/jward/ppindex/internal/pp"
	"github.com/jward/ppindex/internal/store"
)

// ErrNotIndexed is returned for a unit path the index does not know.
var ErrNotIndexed = errors.New("ppindex: unit not indexed")

// DefaultUnitPatterns selects C and C++ translation units.
var DefaultUnitPatterns = []string{"**/*.c", "**/*.cc", "**/*.cpp", "**/*.cxx"}

// Engine orchestrates the ppindex pipeline: unit discovery, change
// detection, preprocessing with a fresh collector per unit, storage and
// query access.
type Engine struct {
	store  *store.Store
	paths  *pathid.Cache
	logger *slog.Logger

	ppConfig pp.Config

	// configKey folds ppConfig into every unit fingerprint.
	configKey string

	unitPatterns   []string
	ignorePatterns []string

	// useParallel enables the parallel preprocessing pipeline.
	useParallel bool
	workers     int

	// force re-indexes units even when their fingerprint is unchanged.
	force bool

	// progress, when set, is called once per unit with the unit path.
	progress func(path string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithParallel controls parallel preprocessing. When true (default),
// IndexUnits preprocesses units on a bounded worker pool while a single
// writer commits batches to SQLite. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithWorkers bounds the worker pool. Zero or less means runtime.NumCPU.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithPreprocessorOptions sets include paths, predefined macros and the
// include depth limit used for every unit.
func WithPreprocessorOptions(cfg pp.Config) Option {
	return func(e *Engine) {
		e.ppConfig = cfg
	}
}

// WithUnitPatterns sets the globs IndexDirectory uses to pick units and to
// skip paths.
func WithUnitPatterns(units, ignore []string) Option {
	return func(e *Engine) {
		if len(units) > 0 {
			e.unitPatterns = units
		}
		e.ignorePatterns = ignore
	}
}

// WithForce disables fingerprint-based skipping.
func WithForce(force bool) Option {
	return func(e *Engine) {
		e.force = force
	}
}

// WithProgress registers a callback invoked after each unit is handled,
// whether indexed, skipped or failed.
func WithProgress(fn func(path string)) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// New creates an Engine backed by a SQLite database at dbPath.
func New(dbPath string, opts ...Option) (*Engine, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ppindex: create database dir: %w", err)
		}
	}
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("ppindex: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("ppindex: migrate: %w", err)
	}

	e := &Engine{
		store:        s,
		paths:        pathid.NewCache(s),
		logger:       slog.New(slog.DiscardHandler),
		unitPatterns: DefaultUnitPatterns,
		useParallel:  true,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.configKey = configKey(e.ppConfig)
	return e, nil
}

// configKey renders the parts of cfg that change how a unit preprocesses.
func configKey(cfg pp.Config) string {
	depth := cfg.MaxIncludeDepth
	if depth <= 0 {
		depth = pp.DefaultMaxIncludeDepth
	}
	return fmt.Sprintf("I%q S%q D%q depth=%d", cfg.IncludePaths, cfg.SystemIncludePaths, cfg.Defines, depth)
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// unitItem carries one unit through the pipeline.
type unitItem struct {
	path    string
	content []byte
	fileID  pathid.FilePathID
	usrRoot string
}

// unitOutcome is what preprocessing produced for one unit.
type unitOutcome struct {
	item   unitItem
	commit *store.UnitCommit
	err    error
}

// IndexUnits indexes the given translation units. When WithParallel is
// enabled, units are preprocessed on a worker pool and committed in
// batches. Otherwise each unit is preprocessed and committed in turn.
//
// For each unit:
//  1. Read the main file and compute its fingerprint from the stored
//     entered-file list
//  2. Skip the unit when the fingerprint is unchanged and no include
//     candidate that was missing last time exists now
//  3. Preprocess with a fresh collector
//  4. Replace the unit's facts in one transaction
//
// Errors on individual units are logged and skipped; processing continues.
func (e *Engine) IndexUnits(ctx context.Context, paths []string) error {
	if e.useParallel {
		return e.IndexUnitsParallel(ctx, paths)
	}
	return e.indexUnitsSerial(ctx, paths)
}

func (e *Engine) indexUnitsSerial(ctx context.Context, paths []string) error {
	var errs []error
	root := e.usrRoot()
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.indexUnit(ctx, path, root); err != nil {
			e.logger.Warn("index.unit_failed", "unit", path, "err", err)
			errs = append(errs, fmt.Errorf("index %s: %w", path, err))
		}
		e.reportProgress(path)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

func (e *Engine) indexUnit(ctx context.Context, path, usrRoot string) error {
	item, skip, err := e.prepareUnit(path, usrRoot)
	if err != nil || skip {
		return err
	}
	out := e.preprocessUnit(ctx, item)
	if out.err != nil {
		return out.err
	}
	if _, err := e.store.CommitUnit(out.commit); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	e.logger.Debug("index.unit_committed", "unit", item.path,
		"symbols", len(out.commit.Result.Symbols), "files", len(out.commit.Result.Files))
	return nil
}

func (e *Engine) reportProgress(path string) {
	if e.progress != nil {
		e.progress(path)
	}
}

// usrRoot is the directory symbol references are made relative to: the
// root of the last IndexDirectory, or none.
func (e *Engine) usrRoot() string {
	root, ok, err := e.store.Metadata("root")
	if err != nil || !ok {
		return ""
	}
	return root
}

// prepareUnit reads the unit and decides whether it needs indexing.
// Returns (item, skip, error).
func (e *Engine) prepareUnit(path, usrRoot string) (unitItem, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return unitItem{}, false, fmt.Errorf("resolve path: %w", err)
	}
	abs = pathid.Normalize(abs)

	content, err := os.ReadFile(abs)
	if err != nil {
		return unitItem{}, false, fmt.Errorf("read unit: %w", err)
	}

	if !e.force {
		existing, err := e.store.UnitByPath(abs)
		if err != nil {
			return unitItem{}, false, fmt.Errorf("lookup unit: %w", err)
		}
		if existing != nil {
			fp, ok, err := e.currentFingerprint(existing.ID, content)
			if err != nil {
				return unitItem{}, false, err
			}
			if ok && fp == existing.Fingerprint {
				e.logger.Debug("index.unit_unchanged", "unit", abs)
				return unitItem{}, true, nil
			}
		}
	}

	fileID, err := e.paths.FilePathID(abs)
	if err != nil {
		return unitItem{}, false, fmt.Errorf("file id: %w", err)
	}
	return unitItem{path: abs, content: content, fileID: fileID, usrRoot: usrRoot}, false, nil
}

// currentFingerprint recomputes a stored unit's fingerprint from the files
// as they are on disk now. ok is false when one of them is gone, or when a
// file now exists where an include found nothing.
func (e *Engine) currentFingerprint(unitID int64, content []byte) (string, bool, error) {
	files, err := e.store.UnitFiles(unitID)
	if err != nil {
		return "", false, fmt.Errorf("unit files: %w", err)
	}
	stamps := make([]store.FileStamp, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			return "", false, nil
		}
		stamps = append(stamps, store.FileStamp{Path: f.Path, Size: info.Size(), ModTime: info.ModTime()})
	}

	absent, err := e.store.UnitAbsentPaths(unitID)
	if err != nil {
		return "", false, fmt.Errorf("unit absent paths: %w", err)
	}
	for _, path := range absent {
		if _, err := os.Stat(path); err == nil {
			e.logger.Debug("index.include_appeared", "path", path)
			return "", false, nil
		}
	}
	return store.Fingerprint(content, stamps, e.configKey), true, nil
}

// preprocessUnit runs the preprocessor over one unit with a fresh collector.
// It touches the database only through the path cache, so it is safe to
// call from several goroutines.
func (e *Engine) preprocessUnit(ctx context.Context, item unitItem) unitOutcome {
	logger := e.logger.With("unit", item.path)

	var p *pp.Preprocessor
	guards := collect.HeaderGuardFunc(func(name string) bool { return p.IsHeaderGuard(name) })
	c := collect.New(e.paths, guards, collect.WithLogger(logger), collect.WithUSRRoot(item.usrRoot))
	p = pp.New(c, pp.WithConfig(e.ppConfig), pp.WithLogger(logger))

	if err := p.Run(ctx, item.path); err != nil {
		return unitOutcome{item: item, err: fmt.Errorf("preprocess: %w", err)}
	}
	res, err := c.Result()
	if err != nil {
		return unitOutcome{item: item, err: fmt.Errorf("collect: %w", err)}
	}
	if n := len(p.Diagnostics()); n > 0 {
		logger.Debug("index.unit_diagnostics", "count", n)
	}

	stamps := make([]store.FileStamp, 0, len(res.FileInfos))
	for _, fi := range res.FileInfos {
		path, err := e.paths.FilePath(fi.FileID)
		if err != nil {
			return unitOutcome{item: item, err: fmt.Errorf("file path: %w", err)}
		}
		stamps = append(stamps, store.FileStamp{Path: path, Size: fi.Size, ModTime: fi.ModTime})
	}

	absent := p.AbsentIncludes()
	for i, path := range absent {
		absent[i] = pathid.Normalize(path)
	}

	return unitOutcome{
		item: item,
		commit: &store.UnitCommit{
			FileID:      int64(item.fileID),
			Fingerprint: store.Fingerprint(item.content, stamps, e.configKey),
			IndexedAt:   time.Now(),
			Result:      res,
			AbsentPaths: absent,
		},
	}
}

// IndexDirectory discovers translation units under root and indexes them.
// If root is inside a git repository, uses git ls-files to respect
// .gitignore. Falls back to a filesystem walk honoring the root .gitignore.
func (e *Engine) IndexDirectory(ctx context.Context, root string) error {
	units, err := e.DiscoverUnits(root)
	if err != nil {
		return err
	}
	e.logger.Info("index.discovered", "root", root, "units", len(units))
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("ppindex: resolve root: %w", err)
	}
	if err := e.store.SetMetadata("root", pathid.Normalize(abs)); err != nil {
		return fmt.Errorf("ppindex: %w", err)
	}
	if err := e.removeStaleUnits(root, units); err != nil {
		return err
	}
	return e.IndexUnits(ctx, units)
}

// removeStaleUnits drops indexed units below root that discovery no longer
// returns: deleted files and files that stopped matching the patterns.
func (e *Engine) removeStaleUnits(root string, discovered []string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("ppindex: resolve root: %w", err)
	}
	prefix := pathid.Normalize(abs)
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	keep := make(map[string]bool, len(discovered))
	for _, p := range discovered {
		keep[pathid.Normalize(p)] = true
	}

	existing, err := e.store.Units()
	if err != nil {
		return fmt.Errorf("ppindex: list units: %w", err)
	}
	for _, u := range existing {
		if !strings.HasPrefix(u.Path, prefix) || keep[u.Path] {
			continue
		}
		if err := e.store.DeleteUnit(u.ID); err != nil {
			return fmt.Errorf("ppindex: remove stale unit: %w", err)
		}
		e.logger.Debug("index.unit_removed", "unit", u.Path, "reason", "stale")
	}
	return nil
}

// DiscoverUnits lists the translation units under root without indexing
// them.
func (e *Engine) DiscoverUnits(root string) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("ppindex: resolve root: %w", err)
	}
	d, err := newUnitDiscovery(abs, e.unitPatterns, e.ignorePatterns)
	if err != nil {
		return nil, err
	}
	return d.list()
}

// UnitFilter returns a predicate reporting whether IndexDirectory(root)
// would pick path as a unit: the unit and ignore patterns apply, and so
// does .gitignore.
func (e *Engine) UnitFilter(root string) (func(path string) bool, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("ppindex: resolve root: %w", err)
	}
	d, err := newUnitDiscovery(abs, e.unitPatterns, e.ignorePatterns)
	if err != nil {
		return nil, err
	}
	f := d.filter()
	return func(path string) bool {
		abs, err := filepath.Abs(path)
		return err == nil && f.wants(abs)
	}, nil
}

// RemoveUnit deletes a unit and every fact it contributed.
func (e *Engine) RemoveUnit(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("ppindex: resolve path: %w", err)
	}
	abs = pathid.Normalize(abs)
	u, err := e.store.UnitByPath(abs)
	if err != nil {
		return fmt.Errorf("ppindex: remove unit: %w", err)
	}
	if u == nil {
		return fmt.Errorf("%w: %s", ErrNotIndexed, abs)
	}
	if err := e.store.DeleteUnit(u.ID); err != nil {
		return fmt.Errorf("ppindex: remove unit: %w", err)
	}
	e.logger.Debug("index.unit_removed", "unit", abs)
	return nil
}

// UnitsAffectedBy returns the paths of indexed units that entered any of
// the given files, including units whose main file is one of them, and the
// units whose includes looked for one of them and found nothing.
func (e *Engine) UnitsAffectedBy(paths []string) ([]string, error) {
	var ids []int64
	normalized := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("ppindex: resolve path: %w", err)
		}
		abs = pathid.Normalize(abs)
		normalized = append(normalized, abs)
		f, err := e.store.FileByPath(abs)
		if err != nil {
			return nil, fmt.Errorf("ppindex: units affected: %w", err)
		}
		if f != nil {
			ids = append(ids, f.ID)
		}
	}
	unitIDs, err := e.store.UnitsContainingFiles(ids)
	if err != nil {
		return nil, fmt.Errorf("ppindex: units affected: %w", err)
	}
	missing, err := e.store.UnitsMissingPaths(normalized)
	if err != nil {
		return nil, fmt.Errorf("ppindex: units affected: %w", err)
	}
	unitIDs = append(unitIDs, missing...)
	units, err := e.store.UnitsByIDs(unitIDs)
	if err != nil {
		return nil, fmt.Errorf("ppindex: units affected: %w", err)
	}
	out := make([]string, 0, len(units))
	for _, u := range units {
		out = append(out, u.Path)
	}
	return out, nil
}
