package resolver

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ivoronin/rdup/internal/replace"
	"github.com/ivoronin/rdup/internal/types"
)

var (
	ErrModified = errors.New("file modified since scan")
	ErrLocked   = errors.New("file in use (locked by another process)")
)

// ActionType describes what happened to one redundant path.
type ActionType int

const (
	ActionHardlink      ActionType = iota
	ActionSymlink                  // Soft link policy
	ActionAlreadyLinked            // Target already shares the source inode
	ActionSkipped                  // Left untouched due to error
	ActionLost                     // Link and restore both failed
)

// Result describes the outcome for a single target.
type Result struct {
	Source     string        // Canonical path kept
	Target     string        // Redundant path
	Action     ActionType    // What was done
	State      replace.State // Final state of the target path
	BytesSaved int64         // Bytes reclaimed (0 unless linked)
	Err        error         // Non-nil if skipped or lost
}

// String formats the result for display.
func (r *Result) String() string {
	switch r.Action {
	case ActionHardlink:
		return fmt.Sprintf("Replaced %s with hardlink to %s", types.EscapePath(r.Target), types.EscapePath(r.Source))
	case ActionSymlink:
		return fmt.Sprintf("Replaced %s with symlink to %s", types.EscapePath(r.Target), types.EscapePath(r.Source))
	case ActionAlreadyLinked:
		return fmt.Sprintf("%s already linked to %s", types.EscapePath(r.Target), types.EscapePath(r.Source))
	case ActionSkipped:
		return fmt.Sprintf("skipped %s: %v", types.EscapePath(r.Target), r.Err)
	case ActionLost:
		return fmt.Sprintf("LOST: %v", r.Err)
	default:
		return fmt.Sprintf("Unknown action for %s", types.EscapePath(r.Target))
	}
}

// Summary tallies one resolution run.
type Summary struct {
	Sets          int
	Linked        int
	AlreadyLinked int
	Skipped       int
	Lost          []*Result // Targets whose link and restore both failed
	SavedBytes    int64
	startTime     time.Time
}

func (s *Summary) add(r *Result) {
	switch r.Action {
	case ActionHardlink, ActionSymlink:
		s.Linked++
		s.SavedBytes += r.BytesSaved
	case ActionAlreadyLinked:
		s.AlreadyLinked++
	case ActionSkipped:
		s.Skipped++
	case ActionLost:
		s.Lost = append(s.Lost, r)
	}
}

func (s *Summary) String() string {
	return fmt.Sprintf("Linked %d files in %d sets (%d already linked, %d skipped, %d lost), saved %s in %.1fs",
		s.Linked, s.Sets,
		s.AlreadyLinked, s.Skipped, len(s.Lost),
		humanize.IBytes(uint64(s.SavedBytes)),
		time.Since(s.startTime).Seconds())
}
