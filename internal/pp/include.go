package pp

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

func (w *walker) include(n *sitter.Node) error {
	pathNode := n.ChildByFieldName("path")
	if pathNode == nil {
		return nil
	}
	hash := w.location(n)
	text := pathNode.Content(w.src)

	var name string
	var angled bool
	switch pathNode.Type() {
	case "string_literal":
		name = strings.Trim(text, `"`)
	case "system_lib_string":
		name = strings.TrimSuffix(strings.TrimPrefix(text, "<"), ">")
		angled = true
	default:
		w.p.diag(fmt.Errorf("pp: %s: computed include %q not supported", hash, text))
		return nil
	}

	f, ok := w.p.lookupInclude(name, angled, filepath.Dir(w.file.Path))
	if !ok {
		w.p.logger.Debug("pp.include_not_found", "at", hash.String(), "name", name)
		w.p.cb.FileNotFound(name)
		w.p.cb.InclusionDirective(hash, name, angled, nil)
		return nil
	}
	w.p.cb.InclusionDirective(hash, name, angled, f)

	if w.p.skipReentry(f) {
		return nil
	}
	if w.depth+1 > w.p.cfg.MaxIncludeDepth {
		w.p.diag(fmt.Errorf("%w: %s at %s", ErrIncludeDepth, name, hash))
		return nil
	}
	if err := w.p.enterFile(w.ctx, f, w.depth+1); err != nil {
		if ctxErr := w.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		w.p.diag(err)
	}
	return nil
}

// lookupInclude searches the includer's directory (quoted form only), then
// the include paths, then the system include paths.
func (p *Preprocessor) lookupInclude(name string, angled bool, includerDir string) (*FileEntry, bool) {
	if filepath.IsAbs(name) {
		return p.lookupCandidate(name, false)
	}
	type searchDir struct {
		path   string
		system bool
	}
	var dirs []searchDir
	if !angled {
		dirs = append(dirs, searchDir{includerDir, false})
	}
	for _, d := range p.cfg.IncludePaths {
		dirs = append(dirs, searchDir{d, false})
	}
	for _, d := range p.cfg.SystemIncludePaths {
		dirs = append(dirs, searchDir{d, true})
	}
	for _, d := range dirs {
		candidate, err := filepath.Abs(filepath.Join(d.path, name))
		if err != nil {
			continue
		}
		if f, ok := p.lookupCandidate(candidate, d.system); ok {
			return f, true
		}
	}
	return nil, false
}

// lookupCandidate looks path up and remembers it when nothing exists there.
func (p *Preprocessor) lookupCandidate(path string, system bool) (*FileEntry, bool) {
	f, err := p.fileEntry(path, system)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.absent[filepath.Clean(path)] = true
		}
		return nil, false
	}
	return f, true
}

// skipReentry reports whether f must not be entered again: it was marked
// #pragma once, or it is entirely wrapped in an include guard that is
// still defined.
func (p *Preprocessor) skipReentry(f *FileEntry) bool {
	if p.once[f.Path] {
		return true
	}
	guard, ok := p.guards[f.Path]
	return ok && p.macros[guard] != nil
}
