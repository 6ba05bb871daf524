package ppindex

import (
	"bytes"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
)

// compiledPattern holds both the pattern string and compiled glob.
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// unitDiscovery selects translation units under a root directory.
type unitDiscovery struct {
	root   string
	units  []compiledPattern
	ignore []compiledPattern
}

func compilePatterns(patterns []string) ([]compiledPattern, error) {
	out := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		out = append(out, compiledPattern{pattern: p, glob: g})
	}
	return out, nil
}

func newUnitDiscovery(root string, units, ignorePatterns []string) (*unitDiscovery, error) {
	d := &unitDiscovery{root: root}
	var err error
	if d.units, err = compilePatterns(units); err != nil {
		return nil, fmt.Errorf("ppindex: unit patterns: %w", err)
	}
	if d.ignore, err = compilePatterns(ignorePatterns); err != nil {
		return nil, fmt.Errorf("ppindex: ignore patterns: %w", err)
	}
	return d, nil
}

// wants reports whether rel, a slash-separated path relative to root, is a
// unit to index.
func (d *unitDiscovery) wants(rel string) bool {
	return !matchesAny(rel, d.ignore) && matchesAny(rel, d.units)
}

// matchesAny also tries a leading slash so that "**/x.c" matches a file at
// the root.
func matchesAny(rel string, patterns []compiledPattern) bool {
	for _, cp := range patterns {
		if cp.glob.Match(rel) || cp.glob.Match("/"+rel) {
			return true
		}
	}
	return false
}

// list returns absolute unit paths, sorted. git ls-files is tried first;
// the walk fallback honors the root .gitignore.
func (d *unitDiscovery) list() ([]string, error) {
	rels, err := gitListFiles(d.root)
	if err != nil {
		rels, err = walkListFiles(d.root)
		if err != nil {
			return nil, err
		}
	}
	var paths []string
	for _, rel := range rels {
		rel = filepath.ToSlash(rel)
		if d.wants(rel) {
			paths = append(paths, filepath.Join(d.root, filepath.FromSlash(rel)))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// unitFilter answers for one path what list answers for the whole tree.
type unitFilter struct {
	d   *unitDiscovery
	git bool
	gi  *ignore.GitIgnore
}

func (d *unitDiscovery) filter() *unitFilter {
	f := &unitFilter{d: d}
	if err := exec.Command("git", "-C", d.root, "rev-parse", "--is-inside-work-tree").Run(); err == nil {
		f.git = true
		return f
	}
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(d.root, ".gitignore")); err == nil {
		f.gi = gi
	}
	return f
}

// wants reports whether path, absolute, is a unit discovery would return.
// The file itself need not exist.
func (f *unitFilter) wants(path string) bool {
	rel, err := filepath.Rel(f.d.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	rel = filepath.ToSlash(rel)
	if !f.d.wants(rel) {
		return false
	}
	if f.git {
		// Exit status 0 means ignored.
		cmd := exec.Command("git", "check-ignore", "-q", "--", rel)
		cmd.Dir = f.d.root
		return cmd.Run() != nil
	}

	dirs := strings.Split(rel, "/")
	dirs = dirs[:len(dirs)-1]
	for i, name := range dirs {
		if strings.HasPrefix(name, ".") {
			return false
		}
		if f.gi != nil && f.gi.MatchesPath(strings.Join(dirs[:i+1], "/")+"/") {
			return false
		}
	}
	return f.gi == nil || !f.gi.MatchesPath(rel)
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) files under root.
func gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var rels []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			rels = append(rels, line)
		}
	}
	return rels, nil
}

// walkListFiles discovers files by walking the filesystem when git is not
// available. Hidden directories are skipped.
func walkListFiles(root string) ([]string, error) {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		gi = nil
	}

	var rels []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || (gi != nil && gi.MatchesPath(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		rels = append(rels, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return rels, nil
}
