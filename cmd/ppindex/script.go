package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/ppindex/internal/runtime"
)

func (c *cli) scriptCmd() *cobra.Command {
	var vars []string
	cmd := &cobra.Command{
		Use:   "script <file.risor>",
		Short: "Run a Risor script against the index",
		Long:  "Runs a Risor script with read-only access to the index. The value of the script's last expression is printed as the result. Imports resolve relative to the script's directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveFilePath(args[0])
			if err != nil {
				return c.outputError("script", err)
			}
			globals, err := parseVars(vars)
			if err != nil {
				return c.outputError("script", err)
			}

			engine, _, err := c.openExisting()
			if err != nil {
				return c.outputError("script", err)
			}
			defer engine.Close()

			rt := runtime.NewRuntime(engine.Store(), filepath.Dir(path), runtime.WithRuntimeLogger(c.logger))
			v, err := rt.RunScript(cmd.Context(), filepath.Base(path), globals)
			if err != nil {
				return c.outputError("script", err)
			}
			if c.format == "text" {
				if v != nil {
					fmt.Fprintln(c.out, v)
				}
				return nil
			}
			return c.outputResult(CLIResult{Command: "script", Results: v})
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "global passed to the script as name=value (repeatable)")
	return cmd
}

// parseVars turns name=value flags into script globals.
func parseVars(vars []string) (map[string]any, error) {
	out := make(map[string]any, len(vars))
	for _, v := range vars {
		name, value, ok := strings.Cut(v, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q: want name=value", v)
		}
		out[name] = value
	}
	return out, nil
}
