package pp

import (
	"context"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// conditional walks the taken branch of an #if/#ifdef/#ifndef chain.
func (w *walker) conditional(n *sitter.Node) error {
	var taken bool
	switch n.Type() {
	case "preproc_ifdef", "preproc_elifdef":
		nameNode := n.ChildByFieldName("name")
		if nameNode == nil || n.ChildCount() == 0 {
			return nil
		}
		name := nameNode.Content(w.src)
		tok := Token{Name: name, Loc: w.location(nameNode)}
		md := w.p.macros[name]
		def := MacroDefinition{Local: md}
		switch n.Child(0).Type() {
		case "#ifdef", "#elifdef":
			w.p.cb.Ifdef(w.location(n), tok, def)
			taken = md != nil
		case "#ifndef", "#elifndef":
			w.p.cb.Ifndef(w.location(n), tok, def)
			taken = md == nil
		}
	case "preproc_if", "preproc_elif":
		if cond := n.ChildByFieldName("condition"); cond != nil {
			ev := &evaluator{p: w.p, w: w, src: w.src, hide: make(map[string]bool)}
			taken = ev.eval(cond) != 0
		}
	}

	if taken {
		return w.walkBody(n)
	}
	alt := n.ChildByFieldName("alternative")
	if alt == nil {
		return nil
	}
	if alt.Type() == "preproc_else" {
		return w.walkBody(alt)
	}
	return w.conditional(alt)
}

// evaluator computes the value of a preprocessor expression. With a walker
// it reports the macros and defined() operators it meets; without one it is
// silent, which is how macro bodies are evaluated.
type evaluator struct {
	p    *Preprocessor
	w    *walker
	src  []byte
	hide map[string]bool
}

func (e *evaluator) eval(n *sitter.Node) int64 {
	if n == nil {
		return 0
	}
	switch n.Type() {
	case "number_literal":
		return parseNumber(n.Content(e.src))
	case "char_literal":
		return parseChar(n.Content(e.src))
	case "true":
		return 1
	case "false":
		return 0
	case "identifier":
		return e.identifier(n)
	case "preproc_defined":
		return e.defined(n)
	case "parenthesized_expression":
		return e.eval(n.NamedChild(0))
	case "unary_expression":
		return e.unary(n)
	case "binary_expression":
		return e.binary(n)
	case "conditional_expression":
		c := e.eval(n.ChildByFieldName("condition"))
		a := e.eval(n.ChildByFieldName("consequence"))
		b := e.eval(n.ChildByFieldName("alternative"))
		if c != 0 {
			return a
		}
		return b
	case "call_expression":
		e.call(n)
		return 0
	}
	e.p.logger.Debug("pp.unsupported_expression", "type", n.Type(), "text", n.Content(e.src))
	return 0
}

func (e *evaluator) identifier(n *sitter.Node) int64 {
	name := n.Content(e.src)
	if e.hide[name] {
		return 0
	}
	md := e.p.macros[name]
	if md == nil || md.Info.FunctionLike {
		return 0
	}
	if e.w != nil {
		loc := e.w.location(n)
		e.p.expand(Token{Name: name, Loc: loc}, md, loc, nil)
	}
	return e.p.macroValue(md.Info, e.hide)
}

func (e *evaluator) defined(n *sitter.Node) int64 {
	var id *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "identifier" {
			id = c
			break
		}
	}
	if id == nil {
		return 0
	}
	name := id.Content(e.src)
	md := e.p.macros[name]
	if e.w != nil {
		e.p.cb.Defined(Token{Name: name, Loc: e.w.location(id)}, MacroDefinition{Local: md})
	}
	if md != nil {
		return 1
	}
	return 0
}

// call handles FOO(...) in a condition. Function-like macros are reported
// but their value is not computed; the arguments are visited for the macros
// they name.
func (e *evaluator) call(n *sitter.Node) {
	if fn := n.ChildByFieldName("function"); fn != nil && fn.Type() == "identifier" && e.w != nil {
		name := fn.Content(e.src)
		if md := e.p.macros[name]; md != nil && md.Info.FunctionLike {
			loc := e.w.location(fn)
			e.p.expand(Token{Name: name, Loc: loc}, md, loc, nil)
		}
	}
	if args := n.ChildByFieldName("arguments"); args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			e.eval(args.NamedChild(i))
		}
	}
}

func (e *evaluator) unary(n *sitter.Node) int64 {
	v := e.eval(n.ChildByFieldName("argument"))
	op := n.ChildByFieldName("operator")
	if op == nil {
		return v
	}
	switch op.Type() {
	case "!":
		return boolInt(v == 0)
	case "~":
		return ^v
	case "-":
		return -v
	}
	return v
}

func (e *evaluator) binary(n *sitter.Node) int64 {
	// Both sides are always visited so every macro reference is reported.
	l := e.eval(n.ChildByFieldName("left"))
	r := e.eval(n.ChildByFieldName("right"))
	op := n.ChildByFieldName("operator")
	if op == nil {
		return 0
	}
	switch op.Type() {
	case "||":
		return boolInt(l != 0 || r != 0)
	case "&&":
		return boolInt(l != 0 && r != 0)
	case "|":
		return l | r
	case "^":
		return l ^ r
	case "&":
		return l & r
	case "==":
		return boolInt(l == r)
	case "!=":
		return boolInt(l != r)
	case "<":
		return boolInt(l < r)
	case "<=":
		return boolInt(l <= r)
	case ">":
		return boolInt(l > r)
	case ">=":
		return boolInt(l >= r)
	case "<<":
		return l << uint64(r&63)
	case ">>":
		return l >> uint64(r&63)
	case "+":
		return l + r
	case "-":
		return l - r
	case "*":
		return l * r
	case "/", "%":
		if r == 0 {
			e.p.logger.Debug("pp.division_by_zero", "text", n.Content(e.src))
			return 0
		}
		if op.Type() == "/" {
			return l / r
		}
		return l % r
	}
	return 0
}

// macroValue evaluates the body of an object-like macro as an expression.
func (p *Preprocessor) macroValue(info *MacroInfo, hide map[string]bool) int64 {
	if info.Body == "" || hide[info.Name] {
		return 0
	}
	hide[info.Name] = true
	defer delete(hide, info.Name)

	src := []byte("#if " + info.Body + "\n#endif\n")
	tree, err := p.parse(context.Background(), p.unitLang, src)
	if err != nil {
		return 0
	}
	defer tree.Close()
	root := tree.RootNode()
	if root.NamedChildCount() == 0 {
		return 0
	}
	ifNode := root.NamedChild(0)
	if ifNode.Type() != "preproc_if" {
		return 0
	}
	ev := &evaluator{p: p, src: src, hide: hide}
	return ev.eval(ifNode.ChildByFieldName("condition"))
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func parseNumber(s string) int64 {
	s = strings.TrimRight(strings.ReplaceAll(s, "'", ""), "uUlL")
	if len(s) > 2 && (s[:2] == "0b" || s[:2] == "0B") {
		v, _ := strconv.ParseInt(s[2:], 2, 64)
		return v
	}
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseUint(s, 0, 64); err == nil {
		return int64(v)
	}
	return 0
}

func parseChar(s string) int64 {
	start := strings.IndexByte(s, '\'')
	if start < 0 || len(s) < start+3 {
		return 0
	}
	v, _, _, err := strconv.UnquoteChar(s[start+1:len(s)-1], '\'')
	if err != nil {
		return 0
	}
	return int64(v)
}
