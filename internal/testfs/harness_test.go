//go:build unix && !e2e

package testfs

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

// =============================================================================
// Sow
// =============================================================================

func TestSowWritesContentAndChunks(t *testing.T) {
	root := t.TempDir()
	spec := FileTree{Volumes: []Volume{{
		MountPoint: "/vol1",
		Files: []File{
			{Path: []string{"literal.txt"}, Content: "hello"},
			{Path: []string{"chunks.bin"}, Chunks: []Chunk{{Pattern: 'A', Size: "3"}, {Pattern: 'B', Size: "2"}}},
			{Path: []string{"mixed.bin"}, Content: "hdr:", Chunks: []Chunk{{Pattern: 'x', Size: "2"}}},
		},
	}}}

	if err := SowFileTree(root, spec); err != nil {
		t.Fatalf("SowFileTree failed: %v", err)
	}

	for name, want := range map[string]string{
		"literal.txt": "hello",
		"chunks.bin":  "AAABB",
		"mixed.bin":   "hdr:xx",
	} {
		got, err := os.ReadFile(filepath.Join(root, "vol1", name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestSowCreatesHardlinks(t *testing.T) {
	root := t.TempDir()
	spec := FileTree{Volumes: []Volume{{
		MountPoint: "/vol1",
		Files: []File{
			{Path: []string{"a.txt", "sub/b.txt", "deep/er/c.txt"}, Content: "same"},
		},
	}}}

	if err := SowFileTree(root, spec); err != nil {
		t.Fatalf("SowFileTree failed: %v", err)
	}

	first := inodeOf(t, filepath.Join(root, "vol1", "a.txt"))
	for _, p := range []string{"sub/b.txt", "deep/er/c.txt"} {
		if got := inodeOf(t, filepath.Join(root, "vol1", p)); got != first {
			t.Errorf("%s inode %d, want %d", p, got, first)
		}
	}
}

func TestSowCreatesSymlinks(t *testing.T) {
	root := t.TempDir()
	spec := FileTree{Volumes: []Volume{{
		MountPoint: "/vol1",
		Files:      []File{{Path: []string{"target.txt"}, Content: "t"}},
		Symlinks:   []Symlink{{Path: "links/link.txt", Target: "../target.txt"}},
	}}}

	if err := SowFileTree(root, spec); err != nil {
		t.Fatalf("SowFileTree failed: %v", err)
	}

	got, err := os.Readlink(filepath.Join(root, "vol1", "links", "link.txt"))
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if got != "../target.txt" {
		t.Errorf("symlink target = %q, want ../target.txt", got)
	}
}

func TestSowFromReader(t *testing.T) {
	root := t.TempDir()
	in := strings.NewReader(`{"volumes":[{"mountPoint":"/v","files":[{"path":["a","b"],"content":"hi"}]}]}`)

	if err := SowFromReader(in, root); err != nil {
		t.Fatalf("SowFromReader failed: %v", err)
	}
	if inodeOf(t, filepath.Join(root, "v", "a")) != inodeOf(t, filepath.Join(root, "v", "b")) {
		t.Error("a and b should be hardlinked")
	}
}

func TestSowFromReaderInvalidJSON(t *testing.T) {
	if err := SowFromReader(strings.NewReader("{"), t.TempDir()); err == nil {
		t.Error("SowFromReader should fail on invalid JSON")
	}
}

func TestFileTotalSize(t *testing.T) {
	f := File{Content: "abc", Chunks: []Chunk{{Pattern: 'x', Size: "1KiB"}, {Pattern: 'y', Size: "10"}}}
	if got := f.TotalSize(); got != 3+1024+10 {
		t.Errorf("TotalSize() = %d, want %d", got, 3+1024+10)
	}
}

// =============================================================================
// Reap
// =============================================================================

func TestReapGroupsByInodeAndFindsBackups(t *testing.T) {
	root := t.TempDir()
	spec := FileTree{Volumes: []Volume{{
		MountPoint: "/data",
		Files: []File{
			{Path: []string{"a.txt", "b.txt"}, Content: "hello"},
			{Path: []string{"c.txt.rdup"}, Content: "old"},
		},
		Symlinks: []Symlink{{Path: "z.lnk", Target: "a.txt"}},
	}}}
	if err := SowFileTree(root, spec); err != nil {
		t.Fatal(err)
	}

	res, err := ReapPaths(root, []string{"/data"})
	if err != nil {
		t.Fatalf("ReapPaths failed: %v", err)
	}
	vol := res.Volumes[0]

	if vol.Name != "/data" {
		t.Errorf("Name = %q, want /data", vol.Name)
	}
	if len(vol.Files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(vol.Files), vol.Files)
	}
	if got := vol.Files[0]; len(got.Path) != 2 || got.Nlink != 2 || got.Content != "hello" {
		t.Errorf("files[0] = %+v, want a.txt+b.txt with content hello", got)
	}
	if len(vol.Backups) != 1 || vol.Backups[0] != "c.txt.rdup" {
		t.Errorf("Backups = %v, want [c.txt.rdup]", vol.Backups)
	}
	if len(vol.Symlinks) != 1 || vol.Symlinks[0].Target != "a.txt" {
		t.Errorf("Symlinks = %+v", vol.Symlinks)
	}
}

func TestReapToWriter(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := ReapToWriter(&buf, []string{dir}); err != nil {
		t.Fatalf("ReapToWriter failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"content": "x"`) {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

// =============================================================================
// Assert
// =============================================================================

func TestAssertPassesOnMatchingTree(t *testing.T) {
	given := FileTree{Volumes: []Volume{{
		MountPoint: "/data",
		Files: []File{
			{Path: []string{"x.txt", "y.txt"}, Content: "hello"},
			{Path: []string{"z.txt"}, Content: "world"},
		},
	}}}

	h := New(t, given)
	h.Assert(given)
}

func TestAssertDetectsMismatches(t *testing.T) {
	given := FileTree{Volumes: []Volume{{
		MountPoint: "/vol1",
		Files: []File{
			{Path: []string{"a.txt"}, Content: "A"},
			{Path: []string{"b.txt"}, Content: "B"},
			{Path: []string{"c.txt.rdup"}, Content: "C"},
		},
	}}}
	h := New(t, given)

	tests := []struct {
		name string
		want []File
	}{
		{"missing hardlink", []File{{Path: []string{"a.txt", "b.txt"}}}},
		{"missing file", []File{{Path: []string{"missing.txt"}}}},
		{"wrong content", []File{{Path: []string{"a.txt"}, Content: "Z"}}},
		{"stray backup", []File{{Path: []string{"a.txt"}}, {Path: []string{"b.txt"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &testing.T{}
			mockH := &Harness{t: mockT, root: h.Root(), given: given}
			mockH.Assert(FileTree{Volumes: []Volume{{MountPoint: "/vol1", Files: tt.want}}})
			if !mockT.Failed() {
				t.Error("Assert should have failed")
			}
		})
	}
}

func TestAssertAllowsListedBackup(t *testing.T) {
	given := FileTree{Volumes: []Volume{{
		MountPoint: "/vol1",
		Files:      []File{{Path: []string{"c.txt.rdup"}, Content: "C"}},
	}}}
	h := New(t, given)
	h.Assert(given)
}

func TestHarnessPath(t *testing.T) {
	h := New(t, FileTree{Volumes: []Volume{{
		MountPoint: "/data",
		Files:      []File{{Path: []string{"sub/a.txt"}, Content: "a"}},
	}}})

	got, err := os.ReadFile(h.Path("/data", "sub", "a.txt"))
	if err != nil || string(got) != "a" {
		t.Errorf("Path() read = %q, %v", got, err)
	}
	if want := filepath.Join(h.Root(), "data"); h.Path("/data") != want {
		t.Errorf("Path(/data) = %q, want %q", h.Path("/data"), want)
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func inodeOf(t *testing.T, path string) uint64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return info.Sys().(*syscall.Stat_t).Ino
}
