package main

import (
	"fmt"
	"io"

	"github.com/ivoronin/rdup/internal/replace"
	"github.com/ivoronin/rdup/internal/resolver"
	"github.com/ivoronin/rdup/internal/types"
)

// startErrorDrain returns a channel whose errors are written to w, and a
// stop function that closes it and waits until everything is printed.
func startErrorDrain(w io.Writer) (chan error, func()) {
	errs := make(chan error, 100)
	done := make(chan struct{})
	go func() {
		drainErrors(errs, w)
		close(done)
	}()
	return errs, func() {
		close(errs)
		<-done
	}
}

// drainErrors consumes errors from a channel and writes them to w.
// Clears progress bar line before printing to avoid visual collision.
func drainErrors(errs <-chan error, w io.Writer) {
	for err := range errs {
		_, _ = fmt.Fprintf(w, "\r\033[Kerror: %v\n", err)
	}
}

// printGroups lists duplicate groups: fingerprint, then one indented path
// per member, groups separated by a blank line.
func printGroups(w io.Writer, groups []types.DuplicateGroup) {
	for i, g := range groups {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		_, _ = fmt.Fprintln(w, g.Fingerprint())
		for _, p := range g.Paths() {
			_, _ = fmt.Fprintf(w, "  %s\n", types.EscapePath(p))
		}
	}
}

// reportLost prints every lost target with the reason it could not be
// restored, and fails the run if there are any.
func reportLost(w io.Writer, lost []*resolver.Result) error {
	for _, res := range lost {
		_, _ = fmt.Fprintf(w, "\r\033[KLOST: %s: %v (original may remain at %s)\n",
			types.EscapePath(res.Target), res.Err, types.EscapePath(replace.BackupPath(res.Target)))
	}
	if len(lost) > 0 {
		return fmt.Errorf("%d file(s) lost", len(lost))
	}
	return nil
}
