package pp

import "strings"

// expand reports the expansion of md at tok and then every live macro named
// in its body, recursively. Nested expansions get a LocMacro location at the
// outermost expansion point. hide holds the names being expanded.
func (p *Preprocessor) expand(tok Token, md *MacroDirective, at SourceLocation, hide map[string]bool) {
	p.cb.MacroExpands(tok, MacroDefinition{Local: md})

	if hide == nil {
		hide = make(map[string]bool)
	}
	hide[tok.Name] = true
	defer delete(hide, tok.Name)

	info := md.Info
	nested := at
	nested.Kind = LocMacro
	body := []byte(info.Body)
	for _, id := range scanIdentifiers(info.Body) {
		if hide[id.name] || info.IsParam(id.name) {
			continue
		}
		inner := p.macros[id.name]
		if inner == nil {
			continue
		}
		if inner.Info.FunctionLike && !followedByParen(body, id.end) {
			continue
		}
		p.expand(Token{Name: id.name, Loc: nested}, inner, nested, hide)
	}
}

type bodyIdent struct {
	name string
	end  int
}

// scanIdentifiers lists the identifiers of a macro body, skipping string and
// character literals, numbers, comments and the operand of "defined".
func scanIdentifiers(body string) []bodyIdent {
	var out []bodyIdent
	skipNext := false
	for i := 0; i < len(body); {
		c := body[i]
		switch {
		case c == '"' || c == '\'':
			i = skipQuoted(body, i)
		case c == '/' && i+1 < len(body) && body[i+1] == '/':
			return out
		case c == '/' && i+1 < len(body) && body[i+1] == '*':
			end := strings.Index(body[i+2:], "*/")
			if end < 0 {
				return out
			}
			i += end + 4
		case c >= '0' && c <= '9':
			i++
			for i < len(body) && (isIdentByte(body[i], false) || body[i] == '.') {
				i++
			}
		case isIdentByte(c, true):
			start := i
			for i < len(body) && isIdentByte(body[i], false) {
				i++
			}
			name := body[start:i]
			switch {
			case name == "defined":
				skipNext = true
			case skipNext:
				skipNext = false
			default:
				out = append(out, bodyIdent{name: name, end: i})
			}
		default:
			i++
		}
	}
	return out
}

func skipQuoted(s string, i int) int {
	quote := s[i]
	i++
	for i < len(s) {
		switch s[i] {
		case '\\':
			i += 2
			continue
		case quote:
			return i + 1
		}
		i++
	}
	return i
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}

// followedByParen reports whether the next non-blank byte at or after pos
// is '('. Line continuations count as blank.
func followedByParen(src []byte, pos int) bool {
	for pos < len(src) {
		switch src[pos] {
		case ' ', '\t', '\n', '\r':
			pos++
		case '\\':
			if pos+1 < len(src) && (src[pos+1] == '\n' || src[pos+1] == '\r') {
				pos += 2
				continue
			}
			return false
		case '(':
			return true
		default:
			return false
		}
	}
	return false
}
