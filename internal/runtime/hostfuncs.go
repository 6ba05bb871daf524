package runtime

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/ppindex/internal/pp"
)

// parsedSource is what a script-parsed tree was built from.
type parsedSource struct {
	src  []byte
	lang *sitter.Language
}

// sourceStore remembers the source and grammar of every tree a script
// parsed. Node.Content needs the bytes and queries need the grammar, but a
// Node cannot reach its Tree, so trees are keyed by their root node. The
// binding caches Node values, so the root reached through Parent() is the
// same pointer RootNode() returned.
type sourceStore struct {
	mu    sync.RWMutex
	trees map[*sitter.Node]parsedSource
}

func newSourceStore() *sourceStore {
	return &sourceStore{trees: make(map[*sitter.Node]parsedSource)}
}

func (s *sourceStore) add(tree *sitter.Tree, src []byte, lang *sitter.Language) {
	s.mu.Lock()
	s.trees[tree.RootNode()] = parsedSource{src: src, lang: lang}
	s.mu.Unlock()
}

func (s *sourceStore) lookup(node *sitter.Node) (parsedSource, bool) {
	for node.Parent() != nil {
		node = node.Parent()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.trees[node]
	return ps, ok
}

// nodeArg unwraps a proxied *sitter.Node argument.
func nodeArg(fn string, obj object.Object) (*sitter.Node, object.Object) {
	proxy, ok := obj.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected a node, got %s", fn, obj.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok || node == nil {
		return nil, object.Errorf("%s: expected a node, got %T", fn, proxy.Interface())
	}
	return node, nil
}

// parseArgs reads (text[, language]) with lang as the default language.
func parseArgs(fn string, args []object.Object, lang func(string) string) (string, string, object.Object) {
	if len(args) < 1 || len(args) > 2 {
		return "", "", object.Errorf("%s: expected 1 or 2 arguments, got %d", fn, len(args))
	}
	text, err := toString(args[0])
	if err != nil {
		return "", "", object.Errorf("%s: %v", fn, err)
	}
	if len(args) == 1 {
		return text, lang(text), nil
	}
	name, err := toString(args[1])
	if err != nil {
		return "", "", object.Errorf("%s: language: %v", fn, err)
	}
	return text, name, nil
}

// parse(path[, language]) → Tree
//
// The language defaults to the one implied by the extension; headers are C.
func makeParseFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("parse", func(ctx context.Context, args ...object.Object) object.Object {
		path, lang, errObj := parseArgs("parse", args, func(p string) string { return pp.LanguageForFile(p, "c") })
		if errObj != nil {
			return errObj
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return object.Errorf("parse: %v", err)
		}
		return parseSource(ctx, ss, src, lang)
	})
}

// parse_src(source[, language="c"]) → Tree
func makeParseSrcFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		src, lang, errObj := parseArgs("parse_src", args, func(string) string { return "c" })
		if errObj != nil {
			return errObj
		}
		return parseSource(ctx, ss, []byte(src), lang)
	})
}

func parseSource(ctx context.Context, ss *sourceStore, src []byte, langName string) object.Object {
	lang, ok := pp.Grammar(langName)
	if !ok {
		return object.Errorf("parse: unsupported language %q", langName)
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return object.Errorf("parse: %v", err)
	}
	ss.add(tree, src, lang)
	return proxyOrError("parse", tree)
}

// node_text(node) → string
//
// Risor cannot pass a []byte to Node.Content, so scripts go through here.
func makeNodeTextFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		ps, ok := ss.lookup(node)
		if !ok {
			return object.Errorf("node_text: node does not belong to a parsed tree")
		}
		return object.NewString(node.Content(ps.src))
	})
}

// query(pattern, node) → [{capture: node}]
func makeQueryFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, err := toString(args[0])
		if err != nil {
			return object.Errorf("query: pattern: %v", err)
		}
		node, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		ps, ok := ss.lookup(node)
		if !ok {
			return object.Errorf("query: node does not belong to a parsed tree")
		}

		q, err := sitter.NewQuery([]byte(pattern), ps.lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()
		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, ps.src)
			captures := make(map[string]object.Object, len(match.Captures))
			for _, c := range match.Captures {
				name := q.CaptureNameForId(c.Index)
				p := proxyOrError("query", c.Node)
				if _, failed := p.(*object.Error); failed {
					return p
				}
				captures[name] = p
			}
			results = append(results, object.NewMap(captures))
		}
		return object.NewList(results)
	})
}

// node_child(node, field) → node or nil
//
// ChildByFieldName returns a nil *Node, which would otherwise reach the
// script as a non-nil proxy.
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, err := toString(args[1])
		if err != nil {
			return object.Errorf("node_child: field: %v", err)
		}
		child := node.ChildByFieldName(field)
		if child == nil {
			return object.Nil
		}
		return proxyOrError("node_child", child)
	})
}

// directives(node) → [{kind, name, line}]
//
// Lists the preprocessor directives below node in source order, without
// evaluating conditionals. kind is the directive keyword ("define",
// "include", "ifdef", ...); name is the macro or header named by it.
func makeDirectivesFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("directives", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("directives", 1, len(args))
		}
		node, errObj := nodeArg("directives", args[0])
		if errObj != nil {
			return errObj
		}
		ps, ok := ss.lookup(node)
		if !ok {
			return object.Errorf("directives: node does not belong to a parsed tree")
		}
		items := []object.Object{}
		collectDirectives(node, ps.src, &items)
		return object.NewList(items)
	})
}

func collectDirectives(n *sitter.Node, src []byte, out *[]object.Object) {
	if kind, field, ok := directiveKind(n, src); ok {
		name := ""
		if child := n.ChildByFieldName(field); child != nil {
			name = strings.Trim(child.Content(src), `"<>`)
		}
		*out = append(*out, object.NewMap(map[string]object.Object{
			"kind": object.NewString(kind),
			"name": object.NewString(name),
			"line": object.NewInt(int64(n.StartPoint().Row) + 1),
		}))
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		collectDirectives(n.NamedChild(i), src, out)
	}
}

// directiveKind maps a tree-sitter node type to a directive keyword and the
// field holding its name.
func directiveKind(n *sitter.Node, src []byte) (kind, field string, ok bool) {
	switch n.Type() {
	case "preproc_def", "preproc_function_def":
		return "define", "name", true
	case "preproc_include":
		return "include", "path", true
	case "preproc_ifdef":
		// #ifdef and #ifndef share a node type; the first token tells them apart.
		if n.ChildCount() > 0 && n.Child(0).Type() == "#ifndef" {
			return "ifndef", "name", true
		}
		return "ifdef", "name", true
	case "preproc_if":
		return "if", "condition", true
	case "preproc_call":
		d := n.ChildByFieldName("directive")
		if d == nil {
			return "", "", false
		}
		return strings.TrimPrefix(d.Content(src), "#"), "argument", true
	}
	return "", "", false
}

func proxyOrError(fn string, v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		return object.Errorf("%s: %v", fn, err)
	}
	return p
}

// logObject backs the scripts' log global with the runtime's logger.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg, "source", "script")
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg, "source", "script")
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg, "source", "script")
}
