package collect

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jward/ppindex/internal/pp"
)

// macroUSR builds a clang-style unified symbol reference for a macro
// defined at loc: "c:<file>@<offset>@macro@<name>". <file> is the path
// relative to root when the file lies below it, else the full path, so
// equally named headers in different directories stay distinct. Macros from
// system headers drop the location part. Macros without a file position
// have no USR.
func macroUSR(name string, loc pp.SourceLocation, root string) (string, bool) {
	if name == "" || !loc.IsFileID() {
		return "", false
	}
	var b strings.Builder
	b.WriteString("c:")
	if !loc.File.System {
		b.WriteString(usrPath(loc.File.Path, root))
		b.WriteByte('@')
		b.WriteString(strconv.Itoa(loc.Offset))
	}
	b.WriteString("@macro@")
	b.WriteString(name)
	return b.String(), true
}

func usrPath(path, root string) string {
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}
