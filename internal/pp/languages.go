package pp

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
)

// extToLanguage maps file extensions to canonical language names. Headers
// with an ambiguous extension take the language of the unit.
var extToLanguage = map[string]string{
	".c":   "c",
	".cc":  "cpp",
	".cpp": "cpp",
	".cxx": "cpp",
	".c++": "cpp",
	".hpp": "cpp",
	".hh":  "cpp",
	".hxx": "cpp",
	".ipp": "cpp",
}

var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"c":   c.GetLanguage(),
			"cpp": cpp.GetLanguage(),
		}
	})
}

// LanguageForFile returns the canonical language name for path. Unknown
// extensions, including ".h", return fallback.
func LanguageForFile(path, fallback string) string {
	if lang, ok := extToLanguage[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return fallback
}

// IsUnitFile reports whether path has a translation unit extension.
func IsUnitFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".c", ".cc", ".cpp", ".cxx", ".c++":
		return true
	}
	return false
}

func grammarFor(lang string) *sitter.Language {
	initGrammars()
	if g, ok := langToGrammar[lang]; ok {
		return g
	}
	return langToGrammar["c"]
}

// Grammar returns the tree-sitter grammar for a canonical language name.
func Grammar(lang string) (*sitter.Language, bool) {
	initGrammars()
	g, ok := langToGrammar[lang]
	return g, ok
}
