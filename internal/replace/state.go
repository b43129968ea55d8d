package replace

import (
	"errors"
	"fmt"
	"os"
)

// State is the position of one target path in the replacement state machine.
//
//	Original ──► BackedUp ──► Linked
//	                 │
//	                 ├──► Restored   (link failed, original back in place)
//	                 └──► Lost       (link failed and the restore failed too)
//
// Linked and Restored are the normal terminal states. Lost means the
// original content now exists only at the backup path, if at all.
type State int

const (
	StateOriginal State = iota
	StateBackedUp
	StateLinked
	StateRestored
	StateLost
)

func (s State) String() string {
	switch s {
	case StateOriginal:
		return "original"
	case StateBackedUp:
		return "backed-up"
	case StateLinked:
		return "linked"
	case StateRestored:
		return "restored"
	case StateLost:
		return "lost"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrBackupExists is returned when <target>.rdup is already present.
	// The target is left untouched so the existing file is never overwritten.
	ErrBackupExists = errors.New("backup path already exists")

	// ErrConflict is returned by Recover when target and backup both exist
	// with different content.
	ErrConflict = errors.New("target and backup both exist with different content")
)

// LinkError reports a failed link creation after which the original target
// was put back (or, with no backup taken, never moved).
type LinkError struct {
	Op     string // "link" or "symlink"
	Source string
	Target string
	Err    error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%s %s -> %s: %v (original kept)", e.Op, e.Target, e.Source, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// RestoreError reports a target that is missing because both the link and
// the restore from backup failed.
type RestoreError struct {
	Target  string
	Backup  string
	LinkErr error
	Err     error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("%s is MISSING: link failed (%v) and restoring from %s failed: %v",
		e.Target, e.LinkErr, e.Backup, e.Err)
}

func (e *RestoreError) Unwrap() []error { return []error{e.LinkErr, e.Err} }

// IsLost reports whether err means a target path was lost.
func IsLost(err error) bool {
	var re *RestoreError
	return errors.As(err, &re)
}

// exists reports whether name is present (without following symlinks).
func exists(fs FS, name string) (bool, error) {
	_, err := fs.Lstat(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
