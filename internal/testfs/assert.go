package testfs

import (
	"strings"
	"testing"
)

// -----------------------------------------------------------------------------
// Assertion Functions - Shared by both harnesses
// -----------------------------------------------------------------------------

// AssertVolume verifies that actual matches expected.
//
// Checks:
//   - Files exist at all specified paths
//   - Files in the same File entry share the same inode (hardlinks)
//   - Files in different File entries have different inodes
//   - Content matches where the expected File sets it
//   - Symlinks point to the expected targets
//   - No backup is left behind unless expected lists it
func AssertVolume(t *testing.T, expected Volume, actual ReapVolume) {
	t.Helper()
	AssertFiles(t, expected.Files, actual.Files)
	AssertSymlinks(t, expected.Symlinks, actual.Symlinks)
	AssertNoStrayBackups(t, expected.Files, actual.Backups)
}

// AssertFiles verifies expected files exist, hardlinks are correct, and
// literal contents match.
func AssertFiles(t *testing.T, expected []File, actual []ReapFile) {
	t.Helper()

	byPath := buildPathIndex(actual)
	entryInodes := verifyFileEntries(t, expected, byPath)
	verifyUniqueInodes(t, expected, entryInodes)
}

// AssertSymlinks verifies expected symlinks exist with correct targets.
func AssertSymlinks(t *testing.T, expected []Symlink, actual []ReapSymlink) {
	t.Helper()

	pathToTarget := make(map[string]string)
	for _, rs := range actual {
		pathToTarget[rs.Path] = rs.Target
	}

	for _, expectedSym := range expected {
		target, ok := pathToTarget[expectedSym.Path]
		if !ok {
			t.Errorf("expected symlink not found: %s", expectedSym.Path)
			continue
		}
		if target != expectedSym.Target {
			t.Errorf("symlink %s: got target %q, want %q",
				expectedSym.Path, target, expectedSym.Target)
		}
	}
}

// AssertNoStrayBackups fails for every backup in actual that no expected
// File names.
func AssertNoStrayBackups(t *testing.T, expected []File, actual []string) {
	t.Helper()

	allowed := make(map[string]bool)
	for _, f := range expected {
		for _, p := range f.Path {
			if strings.HasSuffix(p, BackupSuffix) {
				allowed[p] = true
			}
		}
	}
	for _, b := range actual {
		if !allowed[b] {
			t.Errorf("unexpected backup left behind: %s", b)
		}
	}
}

// -----------------------------------------------------------------------------
// Helper Functions (unexported)
// -----------------------------------------------------------------------------

func buildPathIndex(files []ReapFile) map[string]*ReapFile {
	m := make(map[string]*ReapFile)
	for i := range files {
		for _, p := range files[i].Path {
			m[p] = &files[i]
		}
	}
	return m
}

// verifyFileEntries checks every expected entry and returns the inode found
// for each entry index.
func verifyFileEntries(t *testing.T, expected []File, byPath map[string]*ReapFile) map[int]uint64 {
	t.Helper()
	entryInodes := make(map[int]uint64)

	for i, ef := range expected {
		if len(ef.Path) == 0 {
			continue
		}
		if inode, ok := verifyFileEntry(t, ef, byPath); ok {
			entryInodes[i] = inode
		}
	}
	return entryInodes
}

func verifyFileEntry(t *testing.T, ef File, byPath map[string]*ReapFile) (uint64, bool) {
	t.Helper()

	firstPath := ef.Path[0]
	first, ok := byPath[firstPath]
	if !ok {
		t.Errorf("expected file not found: %s", firstPath)
		return 0, false
	}

	if ef.Content != "" && first.Content != ef.Content {
		t.Errorf("content of %s: got %q, want %q", firstPath, first.Content, ef.Content)
	}

	for _, p := range ef.Path[1:] {
		rf, ok := byPath[p]
		if !ok {
			t.Errorf("expected file not found: %s", p)
			continue
		}
		if rf.Inode != first.Inode {
			t.Errorf("hardlink mismatch: %s (inode %d) != %s (inode %d)",
				firstPath, first.Inode, p, rf.Inode)
		}
	}
	return first.Inode, true
}

func verifyUniqueInodes(t *testing.T, expected []File, entryInodes map[int]uint64) {
	t.Helper()
	for i, ino1 := range entryInodes {
		for j, ino2 := range entryInodes {
			if i < j && ino1 == ino2 {
				t.Errorf("files from different entries share inode %d: %v and %v",
					ino1, expected[i].Path, expected[j].Path)
			}
		}
	}
}
