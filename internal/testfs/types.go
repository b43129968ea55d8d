// Package testfs builds and inspects file trees for rdup tests.
//
// Two harnesses share one FileTree description:
//   - Integration (default build): volumes are directories under t.TempDir()
//   - E2E (-tags e2e): volumes are tmpfs mounts in a Docker container, each
//     with its own device ID, so hardlinks between them fail with EXDEV
//
// # FileTree
//
//	given := testfs.FileTree{
//	    Volumes: []testfs.Volume{{
//	        MountPoint: "/data",
//	        Files: []testfs.File{
//	            {Path: []string{"x.txt"}, Content: "hello"},
//	            {Path: []string{"y.txt"}, Content: "hello"},
//	            {Path: []string{"z.txt"}, Content: "world"},
//	        },
//	    }},
//	}
//	then := testfs.FileTree{
//	    Volumes: []testfs.Volume{{
//	        MountPoint: "/data",
//	        Files: []testfs.File{
//	            {Path: []string{"x.txt", "y.txt"}}, // same inode
//	            {Path: []string{"z.txt"}},
//	        },
//	    }},
//	}
//
//	h := testfs.New(t, given)
//	h.RunRdup("dedupe", "/data")
//	h.Assert(then)
//
// Parent directories are created as needed. Paths are relative to the
// volume mount point.
//
// # Field Usage
//
//	| Field          | Setup              | Verification                   |
//	|----------------|--------------------|--------------------------------|
//	| Volumes        | Creates mounts     | Scope for assertions           |
//	| File.Path      | Create file/links  | Assert same inode              |
//	| File.Content   | Literal content    | Assert content (if set)        |
//	| File.Chunks    | Generated content  | Ignored                        |
//	| Symlink.Path   | Create symlink     | Assert is symlink              |
//	| Symlink.Target | Symlink target     | Assert symlink target          |
//	| ExitCode       | Ignored            | Assert matches                 |
//
// Verification also fails on any leftover "*.rdup" backup the expected tree
// does not list.
package testfs

import "github.com/dustin/go-humanize"

// BackupSuffix marks replacement backups left on disk.
const BackupSuffix = ".rdup"

// -----------------------------------------------------------------------------
// FileTree Specification Types
// -----------------------------------------------------------------------------

// FileTree describes a filesystem state (used for both setup and verification).
type FileTree struct {
	Volumes []Volume `json:"volumes"`

	// ExitCode expected from rdup (verification only, default 0).
	ExitCode int `json:"-"`
}

// Volume is one filesystem: a directory for integration tests, a tmpfs mount
// with its own device for E2E tests. Nested mount points are allowed.
type Volume struct {
	MountPoint string    `json:"mountPoint"`
	Files      []File    `json:"files,omitempty"`
	Symlinks   []Symlink `json:"symlinks,omitempty"`
}

// File is a regular file, possibly reachable by several hardlinked paths.
//
// Setup writes Content (or Chunks) to Path[0] and hardlinks Path[1:] to it.
// Verification requires every path to exist and share one inode, and
// compares Content when it is set.
type File struct {
	Path    []string `json:"path"`
	Content string   `json:"content,omitempty"`
	Chunks  []Chunk  `json:"chunks,omitempty"`
}

// Chunk is a region of generated content filled with one byte.
type Chunk struct {
	Pattern rune   `json:"pattern"`
	Size    string `json:"size"` // IEC units: "1KiB", "1MiB"
}

// TotalSize returns the size the file will have after setup.
func (f *File) TotalSize() int64 {
	total := int64(len(f.Content))
	for _, c := range f.Chunks {
		size, _ := humanize.ParseBytes(c.Size)
		total += int64(size)
	}
	return total
}

// Symlink is a symbolic link at Path (relative to the volume) holding Target.
type Symlink struct {
	Path   string `json:"path"`
	Target string `json:"target"`
}

// -----------------------------------------------------------------------------
// Execution Result Types
// -----------------------------------------------------------------------------

// RunResult captures the results of a command execution.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// -----------------------------------------------------------------------------
// Reap Types (filesystem state as observed)
// -----------------------------------------------------------------------------

// ReapResult is the observed state of a set of volumes.
type ReapResult struct {
	Volumes []ReapVolume `json:"volumes"`
}

// ReapVolume is the observed state of one volume.
type ReapVolume struct {
	Name     string        `json:"name"`
	Files    []ReapFile    `json:"files,omitempty"`    // Grouped by inode, in walk order
	Symlinks []ReapSymlink `json:"symlinks,omitempty"` // Sorted by path
	Backups  []string      `json:"backups,omitempty"`  // Paths ending in BackupSuffix
}

// ReapFile is one inode with every path that reaches it.
type ReapFile struct {
	Path    []string `json:"path"`
	Inode   uint64   `json:"inode"`
	Nlink   uint64   `json:"nlink"`
	Size    int64    `json:"size"`
	Content string   `json:"content,omitempty"` // Only for small files
}

// ReapSymlink is one observed symlink.
type ReapSymlink struct {
	Path   string `json:"path"`
	Target string `json:"target"`
}
