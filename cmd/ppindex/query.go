package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/ppindex"
)

func (c *cli) queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the macro index",
		Long:  "Run queries against an indexed project. Line and column numbers are 1-based.",
	}
	cmd.PersistentFlags().IntVar(&c.limit, "limit", 50, "pagination limit (max 500)")
	cmd.PersistentFlags().IntVar(&c.offset, "offset", 0, "pagination offset")

	cmd.AddCommand(c.macroCmd())
	cmd.AddCommand(c.refsCmd())
	cmd.AddCommand(c.detailCmd())
	cmd.AddCommand(c.usedCmd())
	cmd.AddCommand(c.unusedCmd())
	cmd.AddCommand(c.filesCmd())
	cmd.AddCommand(c.unitsCmd())
	cmd.AddCommand(c.summaryCmd())
	cmd.AddCommand(c.depsCmd())
	cmd.AddCommand(c.dependentsCmd())
	cmd.AddCommand(c.includesCmd())
	cmd.AddCommand(c.includersCmd())
	cmd.AddCommand(c.includePathCmd())
	cmd.AddCommand(c.includeTreeCmd())
	cmd.AddCommand(c.cyclesCmd())
	cmd.AddCommand(c.dirsCmd())
	return cmd
}

// --- Helpers ---

// withQuery opens the index, runs fn and writes its result or error.
func (c *cli) withQuery(command string, fn func(q *ppindex.QueryBuilder) (CLIResult, error)) error {
	engine, _, err := c.openExisting()
	if err != nil {
		return c.outputError(command, err)
	}
	defer engine.Close()

	result, err := fn(engine.Query())
	if err != nil {
		return c.outputError(command, err)
	}
	result.Command = command
	return c.outputResult(result)
}

// resolveFilePath converts a file argument to an absolute path.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// parseIntArg parses a positional argument as a non-negative integer.
func parseIntArg(value, name string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

func (c *cli) pagination() ppindex.Pagination {
	return ppindex.Pagination{Limit: c.limit, Offset: c.offset}
}

func (c *cli) outputResult(result CLIResult) error {
	if c.format == "text" {
		return outputResultText(c.out, result)
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func (c *cli) outputError(command string, err error) error {
	c.errorHandled = true
	if c.format == "text" {
		fmt.Fprintf(c.errOut, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

func locationsToCLI(locs []ppindex.Location) []CLILocation {
	out := make([]CLILocation, 0, len(locs))
	for _, l := range locs {
		out = append(out, CLILocation{File: l.File, Line: l.Line, Col: l.Col, Kind: l.Kind})
	}
	return out
}

func macroToCLI(m ppindex.MacroResult) CLIMacro {
	return CLIMacro{ID: m.ID, Name: m.Name, USR: m.USR, Definitions: locationsToCLI(m.Definitions)}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func nodesToCLI(nodes []ppindex.IncludeNode) []CLIIncludeNode {
	out := make([]CLIIncludeNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, CLIIncludeNode{Path: n.Path, Depth: n.Depth})
	}
	return out
}

func treeToCLI(t *ppindex.IncludeTree) *CLIIncludeTree {
	if t == nil {
		return nil
	}
	node := &CLIIncludeTree{Path: t.Path, Repeated: t.Repeated}
	for _, child := range t.Children {
		node.Children = append(node.Children, treeToCLI(child))
	}
	return node
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// --- Macro Commands ---

func (c *cli) macroCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "macro <name>",
		Short: "Show the definition chains of a macro",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withQuery("macro", func(q *ppindex.QueryBuilder) (CLIResult, error) {
				macros, err := q.Macro(args[0])
				if err != nil {
					return CLIResult{}, err
				}
				if len(macros) == 0 {
					hint, err := q.Suggest(args[0], 3)
					if err != nil {
						return CLIResult{}, err
					}
					if len(hint) > 0 {
						return CLIResult{}, fmt.Errorf("no macro named %q (did you mean %s?)", args[0], strings.Join(hint, ", "))
					}
					return CLIResult{}, fmt.Errorf("no macro named %q", args[0])
				}
				out := make([]CLIMacro, 0, len(macros))
				for _, m := range macros {
					out = append(out, macroToCLI(*m))
				}
				return CLIResult{Results: out}, nil
			})
		},
	}
}

func (c *cli) refsCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "refs <name>",
		Short: "List the occurrences of a macro",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch kind {
			case "", "definition", "undefinition", "usage":
			default:
				return c.outputError("refs", fmt.Errorf("invalid kind %q: must be definition, undefinition or usage", kind))
			}
			return c.withQuery("refs", func(q *ppindex.QueryBuilder) (CLIResult, error) {
				locs, err := q.ReferencesByName(args[0], kind)
				if err != nil {
					return CLIResult{}, err
				}
				return CLIResult{Results: locationsToCLI(locs)}, nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only occurrences of this kind: definition|undefinition|usage")
	return cmd
}

func (c *cli) detailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detail <macro-id>",
		Short: "Show one definition chain with all its occurrences",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIntArg(args[0], "macro id")
			if err != nil {
				return c.outputError("detail", err)
			}
			return c.withQuery("detail", func(q *ppindex.QueryBuilder) (CLIResult, error) {
				d, err := q.MacroDetail(id)
				if err != nil {
					return CLIResult{}, err
				}
				if d == nil {
					return CLIResult{}, fmt.Errorf("no macro with id %d", id)
				}
				return CLIResult{Results: CLIMacroDetail{
					CLIMacro:      macroToCLI(d.MacroResult),
					Undefinitions: locationsToCLI(d.Undefinitions),
					Usages:        locationsToCLI(d.Usages),
					UsedIn:        nonNil(d.UsedIn),
				}}, nil
			})
		},
	}
}

func (c *cli) usedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "used <file>",
		Short: "List the macro names a file references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.fileQuery("used", args[0], func(q *ppindex.QueryBuilder, file string) (any, error) {
				names, err := q.UsedMacros(file)
				return nonNil(names), err
			})
		},
	}
}

func (c *cli) unusedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unused",
		Short: "List macros defined but never used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withQuery("unused", func(q *ppindex.QueryBuilder) (CLIResult, error) {
				res, err := q.UnusedMacros(c.pagination())
				if err != nil {
					return CLIResult{}, err
				}
				out := make([]CLIMacro, 0, len(res.Items))
				for _, m := range res.Items {
					out = append(out, macroToCLI(m))
				}
				return CLIResult{Results: out, TotalCount: &res.TotalCount}, nil
			})
		},
	}
}

// --- Discovery Commands ---

func (c *cli) filesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files [prefix]",
		Short: "List known files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, err := optionalPrefix(args)
			if err != nil {
				return c.outputError("files", err)
			}
			return c.withQuery("files", func(q *ppindex.QueryBuilder) (CLIResult, error) {
				res, err := q.Files(prefix, c.pagination())
				if err != nil {
					return CLIResult{}, err
				}
				out := make([]CLIFile, 0, len(res.Items))
				for _, f := range res.Items {
					out = append(out, CLIFile{ID: f.ID, Path: f.Path, Size: f.Size, ModTime: formatTime(f.ModTime)})
				}
				return CLIResult{Results: out, TotalCount: &res.TotalCount}, nil
			})
		},
	}
}

func (c *cli) unitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "units [prefix]",
		Short: "List indexed translation units",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, err := optionalPrefix(args)
			if err != nil {
				return c.outputError("units", err)
			}
			return c.withQuery("units", func(q *ppindex.QueryBuilder) (CLIResult, error) {
				res, err := q.Units(prefix, c.pagination())
				if err != nil {
					return CLIResult{}, err
				}
				out := make([]CLIUnit, 0, len(res.Items))
				for _, u := range res.Items {
					out = append(out, CLIUnit{ID: u.ID, Path: u.Path, Fingerprint: u.Fingerprint, LastIndexed: formatTime(u.LastIndexed)})
				}
				return CLIResult{Results: out, TotalCount: &res.TotalCount}, nil
			})
		},
	}
}

func optionalPrefix(args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	return resolveFilePath(args[0])
}

func (c *cli) summaryCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show index totals and the most used macros",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withQuery("summary", func(q *ppindex.QueryBuilder) (CLIResult, error) {
				s, err := q.Summary(top)
				if err != nil {
					return CLIResult{}, err
				}
				out := CLISummary{
					Files:        s.Files,
					Units:        s.Units,
					Macros:       s.Macros,
					Occurrences:  s.Occurrences,
					UsedMacros:   s.UsedMacros,
					Dependencies: s.Dependencies,
					LastIndexed:  formatTime(s.LastIndexed),
					TopUsed:      []CLIMacroUse{},
				}
				for _, mu := range s.TopUsed {
					out.TopUsed = append(out.TopUsed, CLIMacroUse{Name: mu.Name, Files: mu.Files})
				}
				return CLIResult{Results: out}, nil
			})
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of most used macros to list")
	return cmd
}

// --- Include Graph Commands ---

// fileQuery resolves a file argument and wraps fn's value in a result.
func (c *cli) fileQuery(command, arg string, fn func(q *ppindex.QueryBuilder, file string) (any, error)) error {
	file, err := resolveFilePath(arg)
	if err != nil {
		return c.outputError(command, err)
	}
	return c.withQuery(command, func(q *ppindex.QueryBuilder) (CLIResult, error) {
		v, err := fn(q, file)
		if err != nil {
			return CLIResult{}, err
		}
		return CLIResult{Results: v}, nil
	})
}

func (c *cli) depsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deps <file>",
		Short: "List the files a file includes directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.fileQuery("deps", args[0], func(q *ppindex.QueryBuilder, file string) (any, error) {
				deps, err := q.Dependencies(file)
				return nonNil(deps), err
			})
		},
	}
}

func (c *cli) dependentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dependents <file>",
		Short: "List the files that include a file directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.fileQuery("dependents", args[0], func(q *ppindex.QueryBuilder, file string) (any, error) {
				deps, err := q.Dependents(file)
				return nonNil(deps), err
			})
		},
	}
}

func (c *cli) includesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "includes <file>",
		Short: "List every file reachable from a file through includes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.fileQuery("includes", args[0], func(q *ppindex.QueryBuilder, file string) (any, error) {
				nodes, err := q.TransitiveIncludes(file)
				return nodesToCLI(nodes), err
			})
		},
	}
}

func (c *cli) includersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "includers <file>",
		Short: "List every file that reaches a file through includes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.fileQuery("includers", args[0], func(q *ppindex.QueryBuilder, file string) (any, error) {
				nodes, err := q.TransitiveIncluders(file)
				return nodesToCLI(nodes), err
			})
		},
	}
}

func (c *cli) includePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "include-path <from> <to>",
		Short: "Show the shortest include chain between two files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := resolveFilePath(args[1])
			if err != nil {
				return c.outputError("include-path", err)
			}
			return c.fileQuery("include-path", args[0], func(q *ppindex.QueryBuilder, from string) (any, error) {
				chain, err := q.IncludePath(from, to)
				return nonNil(chain), err
			})
		},
	}
}

func (c *cli) includeTreeCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "include-tree <file>",
		Short: "Show the include hierarchy below a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.fileQuery("include-tree", args[0], func(q *ppindex.QueryBuilder, file string) (any, error) {
				tree, err := q.IncludeTree(file, depth)
				if err != nil {
					return nil, err
				}
				if tree == nil {
					return nil, fmt.Errorf("file not indexed: %s", file)
				}
				return treeToCLI(tree), nil
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "maximum depth (0 = unlimited)")
	return cmd
}

func (c *cli) cyclesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycles",
		Short: "List include cycles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withQuery("cycles", func(q *ppindex.QueryBuilder) (CLIResult, error) {
				cycles, err := q.IncludeCycles()
				if err != nil {
					return CLIResult{}, err
				}
				if cycles == nil {
					cycles = [][]string{}
				}
				return CLIResult{Results: cycles}, nil
			})
		},
	}
}

func (c *cli) dirsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dirs",
		Short: "Show the include graph collapsed to directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withQuery("dirs", func(q *ppindex.QueryBuilder) (CLIResult, error) {
				dg, err := q.DirectoryDependencyGraph()
				if err != nil {
					return CLIResult{}, err
				}
				out := CLIDirectoryGraph{Directories: []CLIDirectoryNode{}, Edges: []CLIDirectoryEdge{}}
				for _, d := range dg.Directories {
					out.Directories = append(out.Directories, CLIDirectoryNode{Path: d.Path, FileCount: d.FileCount})
				}
				for _, e := range dg.Edges {
					out.Edges = append(out.Edges, CLIDirectoryEdge{From: e.From, To: e.To, IncludeCount: e.IncludeCount})
				}
				return CLIResult{Results: out}, nil
			})
		},
	}
}
