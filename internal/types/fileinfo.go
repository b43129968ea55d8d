// Package types provides shared types used across the rdup codebase.
package types

import (
	"fmt"
	"time"
)

// Fingerprint is a 64-bit content digest. Equal fingerprints are assumed to
// mean equal content.
type Fingerprint uint64

// String formats the fingerprint as 16 lowercase hex digits.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// FileInfo holds metadata for a discovered regular file.
// Fingerprint is zero until the file has been hashed.
type FileInfo struct {
	Path        string
	Size        int64
	ModTime     time.Time
	Dev         uint64
	Ino         uint64
	Nlink       uint32
	Fingerprint Fingerprint
}

// SameInode reports whether two files are directory entries for the same data.
func (f *FileInfo) SameInode(other *FileInfo) bool {
	return f.Dev == other.Dev && f.Ino == other.Ino
}

// DuplicateGroup holds files sharing one fingerprint in first-seen order.
// Only a group with two or more members is an actual duplicate set.
type DuplicateGroup struct {
	fingerprint Fingerprint
	files       []*FileInfo
}

// NewDuplicateGroup creates a group; files keep the given order.
func NewDuplicateGroup(fp Fingerprint, files ...*FileInfo) DuplicateGroup {
	return DuplicateGroup{fingerprint: fp, files: files}
}

// Append adds a file to the end of the group.
func (g *DuplicateGroup) Append(f *FileInfo) { g.files = append(g.files, f) }

// Fingerprint returns the shared fingerprint.
func (g DuplicateGroup) Fingerprint() Fingerprint { return g.fingerprint }

// Items returns the members in first-seen order.
func (g DuplicateGroup) Items() []*FileInfo { return g.files }

// Len returns the number of members.
func (g DuplicateGroup) Len() int { return len(g.files) }

// Paths returns member paths in first-seen order.
func (g DuplicateGroup) Paths() []string {
	paths := make([]string, len(g.files))
	for i, f := range g.files {
		paths[i] = f.Path
	}
	return paths
}

// Semaphore implements a counting semaphore using a buffered channel.
// It limits concurrent access to a resource by blocking when the limit is reached.
type Semaphore chan struct{}

// NewSemaphore creates a semaphore that allows up to n concurrent acquisitions.
func NewSemaphore(n int) Semaphore { return make(chan struct{}, n) }

// Acquire blocks until a slot is available, then claims it.
func (s Semaphore) Acquire() { s <- struct{}{} }

// Release frees a slot, unblocking one waiting Acquire call.
func (s Semaphore) Release() { <-s }
