package collect

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jward/ppindex/internal/pathid"
	"github.com/jward/ppindex/internal/pp"
)

// ErrNotFinished is returned by Result before EndOfMainFile was delivered.
var ErrNotFinished = errors.New("collect: translation unit not finished")

// HeaderGuardOracle answers whether the current definition of a macro is an
// include guard. The preprocessor implements it.
type HeaderGuardOracle interface {
	IsHeaderGuard(name string) bool
}

// HeaderGuardFunc adapts a function to HeaderGuardOracle.
type HeaderGuardFunc func(name string) bool

func (f HeaderGuardFunc) IsHeaderGuard(name string) bool { return f(name) }

type state int

const (
	stateCollecting state = iota
	stateReconciling
	stateDone
)

func (s state) String() string {
	switch s {
	case stateCollecting:
		return "collecting"
	case stateReconciling:
		return "reconciling"
	case stateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger used for dropped facts.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUSRRoot makes symbol references name files relative to root.
func WithUSRRoot(root string) Option {
	return func(c *Collector) {
		c.usrRoot = root
	}
}

// Collector consumes the preprocessing events of one translation unit. It
// is single-threaded and must not be reused for another unit.
type Collector struct {
	resolver *LocationResolver
	guards   HeaderGuardOracle
	logger   *slog.Logger
	state    state
	usrRoot  string

	symbols   SymbolEntries
	locations []SourceLocationEntry
	files     []pathid.FilePathID
	fileInfos []FileInformation
	deps      []SourceDependency
	used      []UsedMacro
	maybeUsed []UsedMacro

	symbolIDs   map[*pp.MacroInfo]SymbolID
	noUSR       map[SymbolID]bool
	nextSymbol  SymbolID
	skipInclude bool
}

var _ pp.Callbacks = (*Collector)(nil)

// New creates a Collector. guards may be nil, in which case no maybe-used
// macro is treated as a header guard.
func New(paths pathid.Caching, guards HeaderGuardOracle, opts ...Option) *Collector {
	c := &Collector{
		resolver:   NewLocationResolver(paths),
		guards:     guards,
		logger:     slog.New(slog.DiscardHandler),
		symbols:    make(SymbolEntries),
		symbolIDs:  make(map[*pp.MacroInfo]SymbolID),
		noUSR:      make(map[SymbolID]bool),
		nextSymbol: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Err returns the first error of the file path service. A unit with an
// error must be discarded.
func (c *Collector) Err() error {
	if err := c.resolver.Err(); err != nil {
		return fmt.Errorf("collect: file path service: %w", err)
	}
	return nil
}

// Done reports whether the unit was reconciled.
func (c *Collector) Done() bool {
	return c.state == stateDone
}

// Result returns the collected facts. It fails before EndOfMainFile and
// when the path service failed.
func (c *Collector) Result() (*Result, error) {
	if c.state != stateDone {
		return nil, ErrNotFinished
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return &Result{
		Symbols:      c.symbols,
		Locations:    c.locations,
		Files:        c.files,
		FileInfos:    c.fileInfos,
		Dependencies: c.deps,
		UsedMacros:   c.used,
	}, nil
}

func (c *Collector) collecting(event string) bool {
	if c.state == stateCollecting {
		return true
	}
	c.logger.Debug("collect.event_ignored", "event", event, "state", c.state.String())
	return false
}

// =============================================================================
// pp.Callbacks
// =============================================================================

func (c *Collector) FileChanged(loc pp.SourceLocation, reason pp.FileChangeReason) {
	if !c.collecting("FileChanged") || reason != pp.EnterFile || loc.File == nil {
		return
	}
	id := c.resolver.FileID(loc.File)
	if !id.IsValid() {
		c.logger.Debug("collect.unresolved_file", "path", loc.File.Path)
		return
	}
	if c.addSourceFile(id) {
		c.fileInfos = append(c.fileInfos, FileInformation{
			FileID:  id,
			Size:    loc.File.Size,
			ModTime: loc.File.ModTime,
		})
	}
}

func (c *Collector) InclusionDirective(hash pp.SourceLocation, _ string, _ bool, file *pp.FileEntry) {
	if !c.collecting("InclusionDirective") {
		return
	}
	if !c.skipInclude && file != nil {
		c.addSourceDependency(hash, file)
	}
	c.skipInclude = false
}

func (c *Collector) FileNotFound(string) {
	if !c.collecting("FileNotFound") {
		return
	}
	c.skipInclude = true
}

func (c *Collector) MacroDefined(name pp.Token, md *pp.MacroDirective) {
	if !c.collecting("MacroDefined") {
		return
	}
	c.addMacroAsSymbol(name, firstMacroInfo(md), Definition)
}

func (c *Collector) MacroUndefined(name pp.Token, def pp.MacroDefinition, _ *pp.MacroDirective) {
	if !c.collecting("MacroUndefined") {
		return
	}
	c.addMacroAsSymbol(name, firstMacroInfo(def.Local), Undefinition)
}

func (c *Collector) MacroExpands(name pp.Token, def pp.MacroDefinition) {
	if c.collecting("MacroExpands") {
		c.addUsage(name, def)
	}
}

func (c *Collector) Ifdef(_ pp.SourceLocation, name pp.Token, def pp.MacroDefinition) {
	if c.collecting("Ifdef") {
		c.addUsage(name, def)
	}
}

func (c *Collector) Ifndef(_ pp.SourceLocation, name pp.Token, def pp.MacroDefinition) {
	if c.collecting("Ifndef") {
		c.addUsage(name, def)
	}
}

func (c *Collector) Defined(name pp.Token, def pp.MacroDefinition) {
	if c.collecting("Defined") {
		c.addUsage(name, def)
	}
}

// EndOfMainFile reconciles the unit. Only the first call has an effect.
func (c *Collector) EndOfMainFile() {
	if !c.collecting("EndOfMainFile") {
		return
	}
	c.state = stateReconciling
	c.reconcile()
	c.state = stateDone
}

// =============================================================================
// Recording
// =============================================================================

// addSourceFile inserts id into the sorted file list. It reports whether id
// was new.
func (c *Collector) addSourceFile(id pathid.FilePathID) bool {
	i, found := slices.BinarySearch(c.files, id)
	if found {
		return false
	}
	c.files = slices.Insert(c.files, i, id)
	return true
}

func (c *Collector) addSourceDependency(hash pp.SourceLocation, file *pp.FileEntry) {
	including := c.resolver.FileID(hash.File)
	included := c.resolver.FileID(file)
	if !including.IsValid() || !included.IsValid() {
		c.logger.Debug("collect.unresolved_include", "at", hash.String(), "file", file.Path)
		return
	}
	c.deps = append(c.deps, SourceDependency{Including: including, Included: included})
}

func (c *Collector) addUsage(name pp.Token, def pp.MacroDefinition) {
	c.addUsedMacro(name, def)
	c.addMacroAsSymbol(name, firstMacroInfo(def.Local), Usage)
}

// addUsedMacro files the reference under confirmed when a definition is
// live and under maybe otherwise. Expansions inside macro bodies count for
// the file they were expanded in.
func (c *Collector) addUsedMacro(name pp.Token, def pp.MacroDefinition) {
	id := c.resolver.FileID(name.Loc.File)
	if !id.IsValid() {
		c.logger.Debug("collect.unresolved_usage", "macro", name.Name, "at", name.Loc.String())
		return
	}
	used := UsedMacro{Name: name.Name, FileID: id}
	if def.MacroInfo() != nil {
		c.used = insertUsedMacro(c.used, used)
	} else {
		c.maybeUsed = insertUsedMacro(c.maybeUsed, used)
	}
}

func insertUsedMacro(list []UsedMacro, u UsedMacro) []UsedMacro {
	i, found := slices.BinarySearchFunc(list, u, UsedMacro.Compare)
	if found {
		return list
	}
	return slices.Insert(list, i, u)
}

// addMacroAsSymbol records an occurrence of the chain whose first
// definition is info. Nothing is recorded without a definition, outside a
// real file position or when the chain has no USR.
func (c *Collector) addMacroAsSymbol(name pp.Token, info *pp.MacroInfo, kind UsageKind) {
	if info == nil || !name.Loc.IsFileID() {
		return
	}
	fileID, line, col := c.resolver.Resolve(name.Loc)
	if !fileID.IsValid() {
		c.logger.Debug("collect.unresolved_location", "macro", name.Name, "at", name.Loc.String())
		return
	}

	id := c.symbolID(info)
	if c.noUSR[id] {
		return
	}
	if _, ok := c.symbols[id]; !ok {
		usr, ok := macroUSR(info.Name, info.Loc, c.usrRoot)
		if !ok {
			c.logger.Debug("collect.no_usr", "macro", name.Name, "defined_at", info.Loc.String())
			c.noUSR[id] = true
			return
		}
		c.symbols[id] = SymbolEntry{USR: usr, Name: name.Name}
	}
	c.locations = append(c.locations, SourceLocationEntry{
		SymbolID: id,
		FileID:   fileID,
		Line:     line,
		Column:   col,
		Kind:     kind,
	})
}

func (c *Collector) symbolID(info *pp.MacroInfo) SymbolID {
	if id, ok := c.symbolIDs[info]; ok {
		return id
	}
	id := c.nextSymbol
	c.nextSymbol++
	c.symbolIDs[info] = id
	return id
}

// firstMacroInfo returns the definition that started md's chain.
func firstMacroInfo(md *pp.MacroDirective) *pp.MacroInfo {
	if origin := md.Origin(); origin != nil {
		return origin.Info
	}
	return nil
}
