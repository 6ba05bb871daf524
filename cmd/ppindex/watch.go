package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/ppindex/internal/config"
	"github.com/jward/ppindex/internal/watch"
)

func (c *cli) watchCmd() *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Index a directory and keep the index current as files change",
		Long:  "Indexes the directory, then watches it. When a file changes, every unit that entered it is re-indexed. Deleted units are removed from the index. Stop with Ctrl-C.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetDir, err := resolveTargetDir(args)
			if err != nil {
				return err
			}
			repoRoot := findRepoRoot(targetDir)
			cfg, err := config.LoadConfigFromDir(repoRoot)
			if err != nil {
				return err
			}
			engine, dbPath, err := c.openEngine(repoRoot, cfg)
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx := cmd.Context()
			if err := engine.IndexDirectory(ctx, targetDir); err != nil {
				// A partial index is still worth watching.
				fmt.Fprintf(c.errOut, "Initial index: %s\n", err)
			}

			w, err := watch.New(targetDir, engine,
				watch.WithLogger(c.logger),
				watch.WithDebounce(debounce),
				watch.WithOnBatch(func(b watch.Batch) {
					fmt.Fprintf(c.errOut, "%s: %d changed, %d re-indexed, %d removed\n",
						time.Now().Format(time.TimeOnly), len(b.Changed), len(b.Reindexed), len(b.Removed))
					if b.Err != nil {
						fmt.Fprintf(c.errOut, "Error: %s\n", b.Err)
					}
				}),
			)
			if err != nil {
				return err
			}
			defer w.Close()

			fmt.Fprintf(c.errOut, "Watching %s (database: %s)\n", targetDir, dbPath)
			err = w.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before changes are applied")
	return cmd
}
