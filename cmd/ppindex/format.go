package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// formatLocationsText formats CLILocation results as "file:line:col kind" lines.
func formatLocationsText(w io.Writer, locs []CLILocation) {
	for _, loc := range locs {
		fmt.Fprintf(w, "%s:%d:%d\t%s\n", loc.File, loc.Line, loc.Col, loc.Kind)
	}
}

// formatMacrosText formats CLIMacro results as aligned columns, one row per
// definition.
func formatMacrosText(w io.Writer, macros []CLIMacro) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUSR\tDEFINED AT")
	for _, m := range macros {
		if len(m.Definitions) == 0 {
			fmt.Fprintf(tw, "%d\t%s\t%s\t-\n", m.ID, m.Name, m.USR)
			continue
		}
		for _, d := range m.Definitions {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s:%d:%d\n", m.ID, m.Name, m.USR, d.File, d.Line, d.Col)
		}
	}
	tw.Flush()
}

func formatMacroDetailText(w io.Writer, d CLIMacroDetail) {
	formatMacrosText(w, []CLIMacro{d.CLIMacro})
	if len(d.Undefinitions) > 0 {
		fmt.Fprintln(w, "\nUndefined at:")
		formatLocationsText(w, d.Undefinitions)
	}
	if len(d.Usages) > 0 {
		fmt.Fprintln(w, "\nUsed at:")
		formatLocationsText(w, d.Usages)
	}
	if len(d.UsedIn) > 0 {
		fmt.Fprintln(w, "\nUsed in:")
		for _, f := range d.UsedIn {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
}

// formatFilesText formats CLIFile results as aligned columns.
func formatFilesText(w io.Writer, files []CLIFile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATH\tSIZE")
	for _, f := range files {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", f.ID, f.Path, f.Size)
	}
	tw.Flush()
}

func formatUnitsText(w io.Writer, units []CLIUnit) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATH\tLAST INDEXED")
	for _, u := range units {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", u.ID, u.Path, u.LastIndexed)
	}
	tw.Flush()
}

func formatIncludeNodesText(w io.Writer, nodes []CLIIncludeNode) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPTH\tPATH")
	for _, n := range nodes {
		fmt.Fprintf(tw, "%d\t%s\n", n.Depth, n.Path)
	}
	tw.Flush()
}

// formatIncludeTreeText prints the hierarchy indented two spaces per level.
// Files already expanded elsewhere in the tree are marked with (*).
func formatIncludeTreeText(w io.Writer, t *CLIIncludeTree, depth int) {
	mark := ""
	if t.Repeated {
		mark = " (*)"
	}
	fmt.Fprintf(w, "%s%s%s\n", strings.Repeat("  ", depth), t.Path, mark)
	for _, child := range t.Children {
		formatIncludeTreeText(w, child, depth+1)
	}
}

func formatDirectoryGraphText(w io.Writer, g CLIDirectoryGraph) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DIRECTORY\tFILES")
	for _, d := range g.Directories {
		fmt.Fprintf(tw, "%s\t%d\n", d.Path, d.FileCount)
	}
	tw.Flush()
	if len(g.Edges) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tINCLUDES")
	for _, e := range g.Edges {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", e.From, e.To, e.IncludeCount)
	}
	tw.Flush()
}

// formatSummaryText formats CLISummary as readable text.
func formatSummaryText(w io.Writer, s CLISummary) {
	fmt.Fprintln(w, "Index Summary")
	fmt.Fprintln(w, "=============")
	fmt.Fprintf(w, "Files: %d\n", s.Files)
	fmt.Fprintf(w, "Units: %d\n", s.Units)
	fmt.Fprintf(w, "Macros: %d\n", s.Macros)
	fmt.Fprintf(w, "Occurrences: %d\n", s.Occurrences)
	fmt.Fprintf(w, "Used macros: %d\n", s.UsedMacros)
	fmt.Fprintf(w, "Include edges: %d\n", s.Dependencies)
	if s.LastIndexed != "" {
		fmt.Fprintf(w, "Last indexed: %s\n", s.LastIndexed)
	}

	if len(s.TopUsed) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Most Used Macros:")
		for _, mu := range s.TopUsed {
			fmt.Fprintf(w, "  %s - %d files\n", mu.Name, mu.Files)
		}
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLILocation:
		formatLocationsText(w, v)
	case []CLIMacro:
		formatMacrosText(w, v)
	case CLIMacroDetail:
		formatMacroDetailText(w, v)
	case []CLIFile:
		formatFilesText(w, v)
	case []CLIUnit:
		formatUnitsText(w, v)
	case []CLIIncludeNode:
		formatIncludeNodesText(w, v)
	case *CLIIncludeTree:
		formatIncludeTreeText(w, v, 0)
	case CLIDirectoryGraph:
		formatDirectoryGraphText(w, v)
	case CLISummary:
		formatSummaryText(w, v)
	case []string:
		for _, s := range v {
			fmt.Fprintln(w, s)
		}
	case [][]string:
		for _, cycle := range v {
			fmt.Fprintln(w, strings.Join(cycle, " -> "))
		}
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	// Pagination footer.
	if result.TotalCount != nil {
		count := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, count)
		}
	}
	return nil
}

// resultLen returns the length of a paginated result slice.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLIMacro:
		return len(r)
	case []CLIFile:
		return len(r)
	case []CLIUnit:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
