package types

import "fmt"

// LinkKind selects what replaces a redundant copy.
type LinkKind int

const (
	LinkHard LinkKind = iota // Second directory entry for the same inode
	LinkSoft                 // Path reference resolved at access time
)

// String returns the flag spelling of the kind.
func (k LinkKind) String() string {
	switch k {
	case LinkHard:
		return "hard"
	case LinkSoft:
		return "soft"
	default:
		return fmt.Sprintf("LinkKind(%d)", int(k))
	}
}

// ParseLinkKind parses "hard" or "soft".
func ParseLinkKind(s string) (LinkKind, error) {
	switch s {
	case "hard", "":
		return LinkHard, nil
	case "soft", "sym", "symlink":
		return LinkSoft, nil
	default:
		return 0, fmt.Errorf("unknown link kind %q (want hard or soft)", s)
	}
}

// LinkPolicy is the immutable configuration of one resolution run.
type LinkPolicy struct {
	Destructive      bool     // Perform filesystem mutations (false = dry run)
	Kind             LinkKind // Link type created at redundant paths
	RelativeSymlinks bool     // Symlink values relative to the target directory
}
