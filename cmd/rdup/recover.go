package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ivoronin/rdup/internal/config"
	"github.com/ivoronin/rdup/internal/journal"
	"github.com/ivoronin/rdup/internal/replace"
	"github.com/ivoronin/rdup/internal/resolver"
	"github.com/ivoronin/rdup/internal/types"
	"github.com/spf13/cobra"
)

// newRecoverCmd creates the recover subcommand.
func newRecoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Settle replacements left unfinished by an interrupted run",
		Long: `Reads the journal written by "rdup dedupe --journal" and settles every
replacement that was in flight when the run stopped:

  only <file>.rdup exists      the original is renamed back
  only <file>, already linked  the link was made, nothing to do
  only <file>, not linked      the original was never moved, nothing to do
  both exist, same content     the backup is removed
  both exist, different        both are left for inspection (error)
  neither exists               the file is reported as lost (error)

Settled entries are removed from the journal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, _ := cmd.Flags().GetString("config")
			path, err := config.LoadJournalPath(cmd.Flags(), file)
			if err != nil {
				return err
			}
			return runRecover(path, replace.New(), os.Stdout, os.Stderr)
		},
	}

	config.RegisterJournalFlag(cmd.Flags())
	config.RegisterConfigFlag(cmd.Flags())
	return cmd
}

// runRecover settles every pending journal entry with r.
func runRecover(path string, r *replace.Replacer, stdout, stderr io.Writer) error {
	// Opening would create an empty journal; a missing one is a user error.
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("journal %s: %w", path, err)
	}

	jrnl, err := journal.Open(path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = jrnl.Close() }()

	pending, err := jrnl.Pending()
	if err != nil {
		return err
	}

	var lost []*resolver.Result
	var failed int
	for _, e := range pending {
		state, err := r.Recover(e.Source, e.Target, e.Kind)
		switch {
		case err == nil:
			_, _ = fmt.Fprintf(stdout, "%s: %s\n", types.EscapePath(e.Target), state)
			if err := jrnl.Commit(e.Target); err != nil {
				return err
			}
		case replace.IsLost(err):
			lost = append(lost, &resolver.Result{
				Source: e.Source,
				Target: e.Target,
				Action: resolver.ActionLost,
				State:  state,
				Err:    err,
			})
		default:
			failed++
			_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		}
	}

	if err := reportLost(stderr, lost); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d journal entries left unsettled", failed)
	}
	return nil
}
