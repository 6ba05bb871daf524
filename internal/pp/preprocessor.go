package pp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrIncludeDepth is reported when an #include would nest deeper than the
// configured maximum. The include is skipped.
var ErrIncludeDepth = errors.New("pp: include depth exceeded")

// DefaultMaxIncludeDepth matches the nesting limit of common compilers.
const DefaultMaxIncludeDepth = 200

// Config holds the search paths and predefined macros of one unit.
type Config struct {
	IncludePaths       []string
	SystemIncludePaths []string
	Defines            []string // NAME or NAME=VALUE
	MaxIncludeDepth    int
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithConfig sets include paths, predefined macros and the depth limit.
func WithConfig(cfg Config) Option {
	return func(p *Preprocessor) { p.cfg = cfg }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(p *Preprocessor) {
		if l != nil {
			p.logger = l
		}
	}
}

// Preprocessor runs one translation unit. It is not safe for concurrent use
// and cannot be reused.
type Preprocessor struct {
	cb     Callbacks
	cfg    Config
	logger *slog.Logger

	parser   *sitter.Parser
	unitLang string
	ran      bool

	macros  map[string]*MacroDirective // live #define per name
	entries map[string]*FileEntry
	guards  map[string]string // file path -> include guard macro
	once    map[string]bool   // files marked #pragma once
	absent  map[string]bool   // include candidates searched and not found
	diags   []error
}

// New creates a Preprocessor delivering events to cb.
func New(cb Callbacks, opts ...Option) *Preprocessor {
	p := &Preprocessor{
		cb:      cb,
		logger:  slog.New(slog.DiscardHandler),
		macros:  make(map[string]*MacroDirective),
		entries: make(map[string]*FileEntry),
		guards:  make(map[string]string),
		once:    make(map[string]bool),
		absent:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cfg.MaxIncludeDepth <= 0 {
		p.cfg.MaxIncludeDepth = DefaultMaxIncludeDepth
	}
	return p
}

// Run preprocesses mainFile. EndOfMainFile is delivered only when the whole
// unit was walked; on error the caller should discard what it collected.
func (p *Preprocessor) Run(ctx context.Context, mainFile string) error {
	if p.ran {
		return errors.New("pp: preprocessor already ran")
	}
	p.ran = true

	abs, err := filepath.Abs(mainFile)
	if err != nil {
		return fmt.Errorf("pp: resolve %s: %w", mainFile, err)
	}
	entry, err := p.fileEntry(abs, false)
	if err != nil {
		return fmt.Errorf("pp: open unit: %w", err)
	}
	p.unitLang = LanguageForFile(abs, "c")

	p.parser = sitter.NewParser()
	defer p.parser.Close()

	if err := p.predefine(); err != nil {
		return err
	}
	if err := p.enterFile(ctx, entry, 0); err != nil {
		return err
	}
	p.cb.EndOfMainFile()
	return nil
}

// IsHeaderGuard reports whether the current definition of name is an
// include guard.
func (p *Preprocessor) IsHeaderGuard(name string) bool {
	md := p.macros[name]
	return md != nil && md.Info.UsedForHeaderGuard
}

// MacroInfo returns the live definition of name, or nil.
func (p *Preprocessor) MacroInfo(name string) *MacroInfo {
	if md := p.macros[name]; md != nil {
		return md.Info
	}
	return nil
}

// AbsentIncludes returns, sorted, every candidate path an #include searched
// without finding a file: all candidates of an unresolved include and the
// ones searched before the hit of a resolved one. A file appearing at any
// of them changes how the unit preprocesses.
func (p *Preprocessor) AbsentIncludes() []string {
	out := make([]string, 0, len(p.absent))
	for path := range p.absent {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Diagnostics returns the non-fatal problems met while running: skipped
// includes and unreadable headers.
func (p *Preprocessor) Diagnostics() []error {
	return p.diags
}

func (p *Preprocessor) diag(err error) {
	p.logger.Warn("pp.diagnostic", "err", err)
	p.diags = append(p.diags, err)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseDefine splits a command-line style define, "NAME" or "NAME=VALUE".
// A bare name is defined to 1.
func ParseDefine(s string) (name, value string, err error) {
	name, value, found := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !identRe.MatchString(name) {
		return "", "", fmt.Errorf("pp: invalid define %q", s)
	}
	if !found {
		value = "1"
	}
	return name, strings.TrimSpace(value), nil
}

func (p *Preprocessor) predefine() error {
	for i, d := range p.cfg.Defines {
		name, value, err := ParseDefine(d)
		if err != nil {
			return err
		}
		loc := SourceLocation{Line: i + 1, Column: 1, Kind: LocBuiltin}
		p.defineMacro(Token{Name: name, Loc: loc}, &MacroInfo{Name: name, Loc: loc, Body: value}, loc)
	}
	return nil
}

func (p *Preprocessor) defineMacro(tok Token, info *MacroInfo, loc SourceLocation) {
	md := &MacroDirective{
		Kind:     DirectiveDefine,
		Info:     info,
		Loc:      loc,
		Previous: p.macros[tok.Name],
	}
	p.macros[tok.Name] = md
	p.cb.MacroDefined(tok, md)
}

func (p *Preprocessor) undefineMacro(tok Token, loc SourceLocation) {
	live := p.macros[tok.Name]
	var undef *MacroDirective
	if live != nil {
		undef = &MacroDirective{Kind: DirectiveUndef, Loc: loc, Previous: live}
		delete(p.macros, tok.Name)
	}
	p.cb.MacroUndefined(tok, MacroDefinition{Local: live}, undef)
}

// fileEntry returns the shared entry for path, or an error when path is not
// a regular file.
func (p *Preprocessor) fileEntry(path string, system bool) (*FileEntry, error) {
	path = filepath.Clean(path)
	if f, ok := p.entries[path]; ok {
		return f, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: not a regular file", path)
	}
	f := &FileEntry{Path: path, Size: info.Size(), ModTime: info.ModTime(), System: system}
	p.entries[path] = f
	return f, nil
}

func (p *Preprocessor) parse(ctx context.Context, lang string, src []byte) (*sitter.Tree, error) {
	p.parser.SetLanguage(grammarFor(lang))
	return p.parser.ParseCtx(ctx, nil, src)
}

func (p *Preprocessor) enterFile(ctx context.Context, f *FileEntry, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("pp: read %s: %w", f.Path, err)
	}
	lang := LanguageForFile(f.Path, p.unitLang)
	tree, err := p.parse(ctx, lang, src)
	if err != nil {
		return fmt.Errorf("pp: parse %s: %w", f.Path, err)
	}
	defer tree.Close()
	root := tree.RootNode()

	p.cb.FileChanged(SourceLocation{File: f, Line: 1, Column: 1}, EnterFile)

	w := &walker{ctx: ctx, p: p, file: f, src: src, lang: lang, depth: depth}
	w.guard = detectGuard(root, src)
	if w.guard.wholeFile {
		p.guards[f.Path] = w.guard.name
	}
	if err := w.walkChildren(root); err != nil {
		return err
	}

	end := root.EndPoint()
	p.cb.FileChanged(SourceLocation{
		File:   f,
		Offset: len(src),
		Line:   int(end.Row) + 1,
		Column: int(end.Column) + 1,
	}, ExitFile)
	return nil
}
