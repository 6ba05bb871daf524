package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jward/ppindex"
	"github.com/jward/ppindex/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := &cli{}
	if err := c.rootCmd().ExecuteContext(ctx); err != nil {
		if !c.errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

// cli holds the flag values and output streams of one invocation.
type cli struct {
	db      string
	format  string
	verbose bool

	limit  int
	offset int

	out    io.Writer
	errOut io.Writer
	logger *slog.Logger

	// errorHandled is set by outputError so main doesn't double-print.
	errorHandled bool
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ppindex",
		Short:         "Index C and C++ preprocessor macro usage",
		Long:          "ppindex runs a preprocessor over every translation unit of a project and records macro definitions, usages, used-macro lists and include dependencies in a SQLite database.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.out = cmd.OutOrStdout()
			c.errOut = cmd.ErrOrStderr()
			level := slog.LevelWarn
			if c.verbose {
				level = slog.LevelDebug
			}
			c.logger = slog.New(slog.NewTextHandler(c.errOut, &slog.HandlerOptions{Level: level}))
			return validateFormat(c.format)
		},
	}
	root.PersistentFlags().StringVar(&c.db, "db", "", "database path (default: storage.db_path from config, relative to repo root)")
	root.PersistentFlags().StringVar(&c.format, "format", "json", "output format: json|text")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log progress and diagnostics to stderr")

	root.AddCommand(c.indexCmd())
	root.AddCommand(c.queryCmd())
	root.AddCommand(c.scriptCmd())
	root.AddCommand(c.watchCmd())
	return root
}

func (c *cli) indexCmd() *cobra.Command {
	var force, noParallel, noProgress bool
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index the translation units below a directory",
		Long:  "Discovers translation units, preprocesses each one and writes the collected macro facts to the database. Units whose content and included files are unchanged are skipped unless --force is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			targetDir, err := resolveTargetDir(args)
			if err != nil {
				return err
			}
			repoRoot := findRepoRoot(targetDir)
			cfg, err := config.LoadConfigFromDir(repoRoot)
			if err != nil {
				return err
			}
			if noParallel {
				cfg.Index.Parallel = false
			}

			var bar *progressbar.ProgressBar
			opts := []ppindex.Option{ppindex.WithForce(force)}
			if !noProgress {
				opts = append(opts, ppindex.WithProgress(func(string) {
					if bar != nil {
						_ = bar.Add(1)
					}
				}))
			}
			engine, dbPath, err := c.openEngine(repoRoot, cfg, opts...)
			if err != nil {
				return err
			}
			defer engine.Close()

			units, err := engine.DiscoverUnits(targetDir)
			if err != nil {
				return fmt.Errorf("discovering units: %w", err)
			}
			if !noProgress {
				bar = progressbar.NewOptions(len(units),
					progressbar.OptionSetWriter(c.errOut),
					progressbar.OptionSetDescription("Indexing units"),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionThrottle(65*time.Millisecond),
					progressbar.OptionClearOnFinish(),
				)
			}

			err = engine.IndexDirectory(cmd.Context(), targetDir)
			if bar != nil {
				_ = bar.Finish()
			}
			if err != nil {
				return fmt.Errorf("indexing: %w", err)
			}

			fmt.Fprintf(c.errOut, "Indexed %d units in %s in %s\n",
				len(units), targetDir, time.Since(start).Round(time.Millisecond))
			fmt.Fprintf(c.errOut, "Database: %s\n", dbPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-index every unit even if unchanged")
	cmd.Flags().BoolVar(&noParallel, "no-parallel", false, "preprocess units one at a time")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "do not draw a progress bar")
	return cmd
}

// openEngine creates the engine for repoRoot with the settings from cfg.
func (c *cli) openEngine(repoRoot string, cfg *config.Config, extra ...ppindex.Option) (*ppindex.Engine, string, error) {
	dbPath := c.resolveDBPath(repoRoot, cfg)
	opts := []ppindex.Option{
		ppindex.WithLogger(c.logger),
		ppindex.WithPreprocessorOptions(cfg.PPConfig(repoRoot)),
		ppindex.WithUnitPatterns(cfg.Paths.Units, cfg.Paths.Ignore),
		ppindex.WithParallel(cfg.Index.Parallel),
		ppindex.WithWorkers(cfg.Index.Workers),
	}
	engine, err := ppindex.New(dbPath, append(opts, extra...)...)
	if err != nil {
		return nil, "", fmt.Errorf("creating engine: %w", err)
	}
	return engine, dbPath, nil
}

// openExisting opens the index of the repository containing the working
// directory. It fails if nothing has been indexed yet.
func (c *cli) openExisting() (*ppindex.Engine, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("getting cwd: %w", err)
	}
	repoRoot := findRepoRoot(cwd)
	cfg, err := config.LoadConfigFromDir(repoRoot)
	if err != nil {
		return nil, "", err
	}
	dbPath := c.resolveDBPath(repoRoot, cfg)
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("database not found: %s (run 'ppindex index' first)", dbPath)
	}
	return c.openEngine(repoRoot, cfg)
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the --db flag path, or the configured path, made
// absolute against repoRoot.
func (c *cli) resolveDBPath(repoRoot string, cfg *config.Config) string {
	if c.db != "" {
		if filepath.IsAbs(c.db) {
			return c.db
		}
		return filepath.Join(repoRoot, c.db)
	}
	return cfg.DBPath(repoRoot)
}
