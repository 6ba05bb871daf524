package pp

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// identifierTypes are the leaf node types that may name a macro.
var identifierTypes = map[string]bool{
	"identifier":           true,
	"type_identifier":      true,
	"field_identifier":     true,
	"statement_identifier": true,
	"namespace_identifier": true,
}

// walker visits the active parts of one file.
type walker struct {
	ctx   context.Context
	p     *Preprocessor
	file  *FileEntry
	src   []byte
	lang  string
	depth int
	guard guardInfo
}

func (w *walker) location(n *sitter.Node) SourceLocation {
	pt := n.StartPoint()
	return SourceLocation{
		File:   w.file,
		Offset: int(n.StartByte()),
		Line:   int(pt.Row) + 1,
		Column: int(pt.Column) + 1,
	}
}

func (w *walker) walkChildren(n *sitter.Node) error {
	for i := 0; i < int(n.ChildCount()); i++ {
		if err := w.walk(n.Child(i)); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) walk(n *sitter.Node) error {
	switch n.Type() {
	case "preproc_include":
		return w.include(n)
	case "preproc_def", "preproc_function_def":
		w.define(n)
	case "preproc_call":
		w.directive(n)
	case "preproc_ifdef", "preproc_if", "preproc_elifdef", "preproc_elif":
		return w.conditional(n)
	case "comment", "string_literal", "char_literal", "raw_string_literal",
		"system_lib_string", "number_literal":
	default:
		if n.ChildCount() == 0 {
			if identifierTypes[n.Type()] {
				w.reference(n)
			}
			return nil
		}
		return w.walkChildren(n)
	}
	return nil
}

// walkBody walks the controlled text of a conditional, skipping the
// directive's own name, condition and alternative.
func (w *walker) walkBody(n *sitter.Node) error {
	skip := []*sitter.Node{
		n.ChildByFieldName("name"),
		n.ChildByFieldName("condition"),
		n.ChildByFieldName("alternative"),
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if containsNode(skip, child) {
			continue
		}
		if err := w.walk(child); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) define(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nameNode.Content(w.src)
	info := &MacroInfo{Name: name, Loc: w.location(nameNode)}
	if v := n.ChildByFieldName("value"); v != nil {
		info.Body = cleanBody(v.Content(w.src))
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		info.FunctionLike = true
		for i := 0; i < int(params.ChildCount()); i++ {
			c := params.Child(i)
			switch c.Type() {
			case "identifier":
				info.Params = append(info.Params, c.Content(w.src))
			case "...":
				info.Variadic = true
			}
		}
	}
	if w.guard.define != nil && sameNode(n, w.guard.define) {
		info.UsedForHeaderGuard = true
	}
	w.p.defineMacro(Token{Name: name, Loc: info.Loc}, info, w.location(n))
}

// directive handles the directives tree-sitter leaves generic: #undef,
// #pragma and the diagnostics.
func (w *walker) directive(n *sitter.Node) {
	dirNode := n.ChildByFieldName("directive")
	if dirNode == nil {
		return
	}
	arg := n.ChildByFieldName("argument")
	switch normalizeDirective(dirNode.Content(w.src)) {
	case "#undef":
		if arg == nil {
			return
		}
		name, loc, ok := w.firstWord(arg)
		if !ok {
			return
		}
		w.p.undefineMacro(Token{Name: name, Loc: loc}, w.location(n))
	case "#pragma":
		if arg != nil && strings.TrimSpace(arg.Content(w.src)) == "once" {
			w.p.once[w.file.Path] = true
		}
	case "#error", "#warning":
		msg := ""
		if arg != nil {
			msg = arg.Content(w.src)
		}
		w.p.logger.Debug("pp.directive", "at", w.location(n).String(), "directive", dirNode.Content(w.src), "msg", msg)
	}
}

// reference handles an identifier in active code.
func (w *walker) reference(n *sitter.Node) {
	name := n.Content(w.src)
	md := w.p.macros[name]
	if md == nil {
		return
	}
	if md.Info.FunctionLike && !followedByParen(w.src, int(n.EndByte())) {
		return
	}
	loc := w.location(n)
	w.p.expand(Token{Name: name, Loc: loc}, md, loc, nil)
}

// firstWord returns the identifier that starts n's text.
func (w *walker) firstWord(n *sitter.Node) (string, SourceLocation, bool) {
	text := n.Content(w.src)
	lead := len(text) - len(strings.TrimLeft(text, " \t"))
	text = text[lead:]
	end := 0
	for end < len(text) && isIdentByte(text[end], end == 0) {
		end++
	}
	if end == 0 {
		return "", SourceLocation{}, false
	}
	loc := w.location(n)
	loc.Offset += lead
	loc.Column += lead
	return text[:end], loc, true
}

// guardInfo describes a "#ifndef X / #define X / ... / #endif" block at the
// top of a file.
type guardInfo struct {
	name      string
	define    *sitter.Node
	wholeFile bool // nothing but comments outside the block
}

func detectGuard(root *sitter.Node, src []byte) guardInfo {
	items := significantChildren(root, nil)
	if len(items) == 0 {
		return guardInfo{}
	}
	first := items[0]
	if first.Type() != "preproc_ifdef" || first.ChildCount() == 0 || first.Child(0).Type() != "#ifndef" {
		return guardInfo{}
	}
	nameNode := first.ChildByFieldName("name")
	if nameNode == nil {
		return guardInfo{}
	}
	body := significantChildren(first, []*sitter.Node{nameNode, first.ChildByFieldName("alternative")})
	if len(body) == 0 || body[0].Type() != "preproc_def" {
		return guardInfo{}
	}
	defName := body[0].ChildByFieldName("name")
	if defName == nil || defName.Content(src) != nameNode.Content(src) {
		return guardInfo{}
	}
	return guardInfo{
		name:      nameNode.Content(src),
		define:    body[0],
		wholeFile: len(items) == 1 && first.ChildByFieldName("alternative") == nil,
	}
}

// significantChildren returns the named children of n that are not comments
// and not in skip.
func significantChildren(n *sitter.Node, skip []*sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "comment" || containsNode(skip, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

func containsNode(list []*sitter.Node, n *sitter.Node) bool {
	for _, c := range list {
		if sameNode(c, n) {
			return true
		}
	}
	return false
}

// normalizeDirective turns "# undef" into "#undef".
func normalizeDirective(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
}

// cleanBody joins continued lines of a macro body.
func cleanBody(s string) string {
	s = strings.ReplaceAll(s, "\\\r\n", " ")
	s = strings.ReplaceAll(s, "\\\n", " ")
	return strings.TrimSpace(s)
}
