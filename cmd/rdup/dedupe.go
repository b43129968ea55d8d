package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ivoronin/rdup/internal/config"
	"github.com/ivoronin/rdup/internal/hasher"
	"github.com/ivoronin/rdup/internal/index"
	"github.com/ivoronin/rdup/internal/journal"
	"github.com/ivoronin/rdup/internal/replace"
	"github.com/ivoronin/rdup/internal/resolver"
	"github.com/ivoronin/rdup/internal/scanner"
	"github.com/ivoronin/rdup/internal/screener"
	"github.com/spf13/cobra"
)

// newDedupeCmd creates the dedupe subcommand.
func newDedupeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedupe [paths...]",
		Short: "Find duplicates and replace redundant copies with links",
		Long: `Scans for files with identical content and replaces every copy but one with a
link to the copy that is kept.

The first path given is searched first; within a group of duplicates the
first file found is kept unless --prefer names a substring of another path.
For example:
  rdup dedupe /primary /secondary --link soft
keeps files in /primary, with /secondary containing symlinks pointing to them.

While a copy is replaced it is renamed to <file>.rdup and put back if the link
cannot be created. Use --journal to record replacements in flight so an
interrupted run can be settled with "rdup recover".

Options may also be set as RDUP_<FLAG> environment variables (dashes become
underscores) or in a --config file.

Use --dry-run to list duplicate groups without making changes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cmd.Flags(), file)
			if err != nil {
				return err
			}
			return runDedupe(args, cfg, os.Stdout, os.Stderr)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runDedupe executes the pipeline: scan → screen → hash → index → resolve.
func runDedupe(paths []string, cfg *config.Config, stdout, stderr io.Writer) error {
	if err := checkRoots(paths); err != nil {
		return err
	}

	showProgress := cfg.ShowProgress()

	// Create shared error channel
	errs, stopErrors := startErrorDrain(stderr)
	defer stopErrors()

	// Phase 1: Scan filesystem
	files := scanner.New(paths, cfg.MinSizeBytes, cfg.Excludes, cfg.Workers, showProgress, errs).Run()

	// Phase 2: Drop files that cannot have a duplicate
	candidates := screener.New(files, showProgress).Run()
	if len(candidates) == 0 {
		return nil
	}

	// Phase 3: Fingerprint contents
	hashed, err := hasher.New(candidates, cfg.Algorithm, cfg.Workers, cfg.OnError, showProgress, errs).Run()
	if err != nil {
		return err
	}

	// Phase 4: Group by fingerprint on this goroutine only
	ix := index.New()
	ix.InsertAll(hashed)
	groups := index.Duplicates(ix.Drain())

	if cfg.DryRun {
		printGroups(stdout, groups)
		return nil
	}

	// Phase 5: Replace redundant copies
	jrnl, err := journal.Open(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = jrnl.Close() }()

	opts := []resolver.Option{
		resolver.WithProgress(showProgress),
		resolver.WithErrors(errs),
		resolver.WithReplaceOptions(replace.WithJournal(jrnl)),
	}
	if cfg.Verbose {
		opts = append(opts, resolver.WithNotices(stdout))
	}
	summary := resolver.New(cfg.Policy(), selectorFor(cfg.Prefer), opts...).Run(groups)

	return reportLost(stderr, summary.Lost)
}

// selectorFor maps --prefer to a canonical-source selector.
func selectorFor(prefer []string) resolver.Selector {
	if len(prefer) == 0 {
		return resolver.FirstSeen
	}
	return resolver.PreferSubstring(prefer...)
}

// checkRoots fails fast on roots that do not exist.
func checkRoots(paths []string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("root %s: %w", p, err)
		}
	}
	return nil
}
