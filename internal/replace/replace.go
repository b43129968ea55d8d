// Package replace swaps a file for a link to another file without ever
// leaving the path empty on the failure path.
//
// # Algorithm
//
//	Replace(source, target)
//	    │
//	    ├──► refuse if <target>.rdup exists, or source is missing
//	    ├──► journal.Begin
//	    ├──► rename target → <target>.rdup               Original → BackedUp
//	    ├──► link/symlink source at target
//	    │        ├──► ok:   remove backup, journal.Commit  BackedUp → Linked
//	    │        └──► fail: rename backup → target        BackedUp → Restored
//	    │                       └──► rename fails         BackedUp → Lost
//	    └──► return state, error
//
// Every filesystem call goes through the FS interface so tests can fail any
// single step and observe the resulting transition.
package replace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ivoronin/rdup/internal/hasher"
	"github.com/ivoronin/rdup/internal/types"
)

// BackupSuffix is appended to a target while it is being replaced.
const BackupSuffix = ".rdup"

// BackupPath returns the backup path used for target.
func BackupPath(target string) string { return target + BackupSuffix }

// FS is the set of filesystem primitives used by the state machine.
type FS interface {
	Lstat(name string) (os.FileInfo, error)
	Rename(oldpath, newpath string) error
	Link(oldname, newname string) error
	Symlink(oldname, newname string) error
	Remove(name string) error
}

// OSFS is the FS backed by package os.
type OSFS struct{}

func (OSFS) Lstat(name string) (os.FileInfo, error) { return os.Lstat(name) }
func (OSFS) Rename(oldpath, newpath string) error   { return os.Rename(oldpath, newpath) }
func (OSFS) Link(oldname, newname string) error     { return os.Link(oldname, newname) }
func (OSFS) Symlink(oldname, newname string) error  { return os.Symlink(oldname, newname) }
func (OSFS) Remove(name string) error               { return os.Remove(name) }

// Recorder persists in-flight replacements so an interrupted run can be
// settled later. Begin is called before the target is moved; Commit once it
// reaches Linked or Restored.
type Recorder interface {
	Begin(source, target string, kind types.LinkKind) error
	Commit(target string) error
}

// Replacer runs the state machine for one target at a time.
type Replacer struct {
	fs       FS
	journal  Recorder
	relative bool
	equal    func(a, b string) (bool, error)
}

// Option configures a Replacer.
type Option func(*Replacer)

// WithFS substitutes the filesystem primitives.
func WithFS(fs FS) Option { return func(r *Replacer) { r.fs = fs } }

// WithJournal records each replacement in j.
func WithJournal(j Recorder) Option { return func(r *Replacer) { r.journal = j } }

// WithRelativeSymlinks makes symlink values relative to the target's directory.
func WithRelativeSymlinks(relative bool) Option { return func(r *Replacer) { r.relative = relative } }

// New creates a Replacer backed by the real filesystem.
func New(opts ...Option) *Replacer {
	r := &Replacer{fs: OSFS{}, equal: hasher.Equal}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// machine carries one target through the states.
type machine struct {
	r         *Replacer
	source    string
	target    string
	backup    string
	kind      types.LinkKind
	state     State
	hasBackup bool
	begun     bool
}

// Replace makes target a link of the given kind to source.
//
// On success the state is Linked. On a link failure the state is Restored
// and the error is a *LinkError. If the restore also fails the state is Lost
// and the error is a *RestoreError. Any other error leaves the target
// untouched in state Original.
func (r *Replacer) Replace(source, target string, kind types.LinkKind) (State, error) {
	m := &machine{
		r:      r,
		source: source,
		target: target,
		backup: BackupPath(target),
		kind:   kind,
		state:  StateOriginal,
	}

	if err := m.precheck(); err != nil {
		return m.state, err
	}
	if err := m.backUp(); err != nil {
		m.commit()
		return m.state, err
	}
	if err := m.link(); err != nil {
		return m.state, m.rollback(err)
	}
	m.finish()
	return m.state, nil
}

func (m *machine) precheck() error {
	found, err := exists(m.r.fs, m.backup)
	if err != nil {
		return fmt.Errorf("check backup %s: %w", m.backup, err)
	}
	if found {
		return fmt.Errorf("%s: %w", m.backup, ErrBackupExists)
	}
	if _, err := m.r.fs.Lstat(m.source); err != nil {
		return fmt.Errorf("source missing before link creation: %w", err)
	}
	if m.r.journal != nil {
		if err := m.r.journal.Begin(m.source, m.target, m.kind); err != nil {
			return fmt.Errorf("journal %s: %w", m.target, err)
		}
		m.begun = true
	}
	return nil
}

// backUp moves the target aside. A target that is already absent needs no
// backup; a rename failure with the target still in place stops here.
func (m *machine) backUp() error {
	err := m.r.fs.Rename(m.target, m.backup)
	if err == nil {
		m.hasBackup = true
		m.state = StateBackedUp
		return nil
	}
	found, statErr := exists(m.r.fs, m.target)
	if statErr == nil && !found {
		return nil
	}
	return fmt.Errorf("back up %s: %w", m.target, err)
}

func (m *machine) link() error {
	if m.kind == types.LinkSoft {
		if err := m.r.fs.Symlink(m.symlinkValue(), m.target); err != nil {
			return &LinkError{Op: "symlink", Source: m.source, Target: m.target, Err: err}
		}
		return nil
	}
	if err := m.r.fs.Link(m.source, m.target); err != nil {
		return &LinkError{Op: "link", Source: m.source, Target: m.target, Err: err}
	}
	return nil
}

func (m *machine) symlinkValue() string {
	if !m.r.relative {
		return m.source
	}
	rel, err := filepath.Rel(filepath.Dir(m.target), m.source)
	if err != nil {
		return m.source
	}
	return rel
}

// rollback puts the backup back after a failed link.
func (m *machine) rollback(linkErr error) error {
	if !m.hasBackup {
		m.commit()
		return linkErr
	}
	if err := m.r.fs.Rename(m.backup, m.target); err != nil {
		m.state = StateLost
		return &RestoreError{Target: m.target, Backup: m.backup, LinkErr: linkErr, Err: err}
	}
	m.state = StateRestored
	m.commit()
	return linkErr
}

// finish drops the backup. A backup that cannot be removed is left behind;
// the target already links to source.
func (m *machine) finish() {
	if m.hasBackup {
		_ = m.r.fs.Remove(m.backup)
	}
	m.state = StateLinked
	m.commit()
}

func (m *machine) commit() {
	if m.begun {
		_ = m.r.journal.Commit(m.target)
	}
}

// Recover settles a target whose replacement from source was interrupted.
//
//	backup only      → rename back                      Restored
//	target only      → already a link of kind           Linked
//	                   otherwise never moved            Original
//	both, same data  → remove backup                    Linked
//	both, different  → leave both, ErrConflict          BackedUp
//	neither          → *RestoreError                    Lost
func (r *Replacer) Recover(source, target string, kind types.LinkKind) (State, error) {
	backup := BackupPath(target)

	hasBackup, err := exists(r.fs, backup)
	if err != nil {
		return StateBackedUp, fmt.Errorf("check backup %s: %w", backup, err)
	}
	hasTarget, err := exists(r.fs, target)
	if err != nil {
		return StateBackedUp, fmt.Errorf("check target %s: %w", target, err)
	}

	switch {
	case hasBackup && !hasTarget:
		if err := r.fs.Rename(backup, target); err != nil {
			return StateLost, &RestoreError{Target: target, Backup: backup, LinkErr: errors.New("interrupted run"), Err: err}
		}
		return StateRestored, nil
	case !hasBackup && hasTarget:
		return r.linkedState(source, target, kind)
	case hasBackup && hasTarget:
		same, err := r.equal(target, backup)
		if err != nil {
			return StateBackedUp, err
		}
		if !same {
			return StateBackedUp, fmt.Errorf("%s: %w", target, ErrConflict)
		}
		if err := r.fs.Remove(backup); err != nil {
			return StateBackedUp, fmt.Errorf("remove backup %s: %w", backup, err)
		}
		return StateLinked, nil
	default:
		return StateLost, &RestoreError{Target: target, Backup: backup, LinkErr: errors.New("interrupted run"), Err: os.ErrNotExist}
	}
}

// linkedState reports whether target already is a link of kind to source.
// A target that is not was never renamed, so it is still the original.
func (r *Replacer) linkedState(source, target string, kind types.LinkKind) (State, error) {
	ti, err := r.fs.Lstat(target)
	if err != nil {
		return StateBackedUp, fmt.Errorf("check target %s: %w", target, err)
	}
	if kind == types.LinkSoft {
		if ti.Mode()&os.ModeSymlink != 0 {
			return StateLinked, nil
		}
		return StateOriginal, nil
	}
	si, err := r.fs.Lstat(source)
	if err == nil && os.SameFile(si, ti) {
		return StateLinked, nil
	}
	return StateOriginal, nil
}
