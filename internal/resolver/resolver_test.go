//go:build unix

package resolver

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/ivoronin/rdup/internal/replace"
	"github.com/ivoronin/rdup/internal/types"
)

var destructiveHard = types.LinkPolicy{Destructive: true, Kind: types.LinkHard}

// =============================================================================
// Selection
// =============================================================================

func TestFirstSeen(t *testing.T) {
	if got := FirstSeen([]string{"/b", "/a"}); got != 0 {
		t.Errorf("FirstSeen() = %d, want 0", got)
	}
}

func TestPreferSubstring(t *testing.T) {
	paths := []string{"/backup/file.txt", "/archive/file.txt", "/data/archive2/file.txt"}

	tests := []struct {
		subs []string
		want int
	}{
		{[]string{"archive"}, 1},
		{[]string{"backup"}, 0},
		{[]string{"missing"}, 0},
		{[]string{"missing", "data"}, 2},
		{[]string{"", "archive2"}, 2},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := PreferSubstring(tt.subs...)(paths); got != tt.want {
			t.Errorf("PreferSubstring(%q) = %d, want %d", tt.subs, got, tt.want)
		}
	}
}

func TestResolveOutOfRangeSelectorUsesFirst(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, root, "a.txt", "same")
	b := writeFile(t, root, "b.txt", "same")

	r := New(destructiveHard, func([]string) int { return 99 })
	results := r.Resolve(group(t, a, b))

	if len(results) != 1 || results[0].Source != a {
		t.Fatalf("unexpected results %v", results)
	}
	if !sameInode(t, a, b) {
		t.Error("files should be hardlinked")
	}
}

// =============================================================================
// Resolve: no-op cases
// =============================================================================

func TestResolveSingletonIsNoop(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, root, "a.txt", "alone")

	if got := New(destructiveHard, nil).Resolve(group(t, a)); got != nil {
		t.Errorf("Resolve(singleton) = %v, want nil", got)
	}
}

func TestResolveDryRunIsNoop(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, root, "a.txt", "same")
	b := writeFile(t, root, "b.txt", "same")

	policy := destructiveHard
	policy.Destructive = false
	if got := New(policy, nil).Resolve(group(t, a, b)); got != nil {
		t.Errorf("Resolve(dry run) = %v, want nil", got)
	}
	if sameInode(t, a, b) {
		t.Error("dry run should not modify files")
	}
}

// =============================================================================
// Resolve: linking
// =============================================================================

// TestResolveHelloWorld links y.txt to x.txt and leaves z.txt alone.
func TestResolveHelloWorld(t *testing.T) {
	root := t.TempDir()
	x := writeFile(t, root, "x.txt", "hello")
	y := writeFile(t, root, "y.txt", "hello")
	z := writeFile(t, root, "z.txt", "world")

	var notices bytes.Buffer
	r := New(destructiveHard, nil, WithNotices(&notices))
	sum := r.Run([]types.DuplicateGroup{group(t, x, y), group(t, z)})

	if !sameInode(t, x, y) {
		t.Error("y.txt should be hardlinked to x.txt")
	}
	if sameInode(t, x, z) {
		t.Error("z.txt should be untouched")
	}
	if _, err := os.Lstat(y + ".rdup"); !os.IsNotExist(err) {
		t.Error("backup y.txt.rdup should not remain")
	}
	if sum.Sets != 1 || sum.Linked != 1 || sum.SavedBytes != 5 {
		t.Errorf("summary = %+v", sum)
	}
	want := "Linking " + y + " -> " + x + "\n" +
		"Replaced " + y + " with hardlink to " + x + "\n"
	if notices.String() != want {
		t.Errorf("notices = %q, want %q", notices.String(), want)
	}
}

func TestResolveSoftLinks(t *testing.T) {
	root := t.TempDir()
	x := writeFile(t, root, "x.txt", "hello")
	y := writeFile(t, root, "y.txt", "hello")

	policy := types.LinkPolicy{Destructive: true, Kind: types.LinkSoft}
	results := New(policy, nil).Resolve(group(t, x, y))

	if len(results) != 1 || results[0].Action != ActionSymlink {
		t.Fatalf("results = %v", results)
	}
	dest, err := os.Readlink(y)
	if err != nil {
		t.Fatalf("y.txt should be a symlink: %v", err)
	}
	if dest != x {
		t.Errorf("symlink value = %q, want %q", dest, x)
	}
}

func TestResolveRelativeSymlinks(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	x := writeFile(t, root, "x.txt", "hello")
	y := writeFile(t, root, "sub/y.txt", "hello")

	policy := types.LinkPolicy{Destructive: true, Kind: types.LinkSoft, RelativeSymlinks: true}
	New(policy, nil).Resolve(group(t, x, y))

	dest, err := os.Readlink(y)
	if err != nil {
		t.Fatal(err)
	}
	if dest != "../x.txt" {
		t.Errorf("symlink value = %q, want ../x.txt", dest)
	}
}

func TestResolvePreferredSource(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, root, "a.txt", "same")
	keep := writeFile(t, root, "keep.txt", "same")
	c := writeFile(t, root, "c.txt", "same")

	results := New(destructiveHard, PreferSubstring("keep")).Resolve(group(t, a, keep, c))

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, res := range results {
		if res.Source != keep {
			t.Errorf("source = %s, want %s", res.Source, keep)
		}
	}
	if !sameInode(t, keep, a) || !sameInode(t, keep, c) {
		t.Error("all members should link to keep.txt")
	}
}

func TestResolveIdempotent(t *testing.T) {
	root := t.TempDir()
	x := writeFile(t, root, "x.txt", "hello")
	y := writeFile(t, root, "y.txt", "hello")

	New(destructiveHard, nil).Run([]types.DuplicateGroup{group(t, x, y)})
	inode := inodeOf(t, y)

	// Second run over freshly scanned metadata.
	sum := New(destructiveHard, nil).Run([]types.DuplicateGroup{group(t, x, y)})

	if sum.AlreadyLinked != 1 || sum.Linked != 0 {
		t.Errorf("second run summary = %+v", sum)
	}
	if inodeOf(t, y) != inode {
		t.Error("second run must not touch an already linked target")
	}
}

// =============================================================================
// Resolve: safety checks
// =============================================================================

func TestResolveModifiedTargetSkipped(t *testing.T) {
	root := t.TempDir()
	x := writeFile(t, root, "x.txt", "hello")
	y := writeFile(t, root, "y.txt", "hello")
	g := group(t, x, y)

	// Modify target after getting FileInfo (simulates file change during scan)
	setMtime(t, y, time.Now().Add(time.Hour))

	errCh := make(chan error, 10)
	sum := New(destructiveHard, nil, WithErrors(errCh)).Run([]types.DuplicateGroup{g})
	close(errCh)

	if sum.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", sum.Skipped)
	}
	assertReported(t, errCh, ErrModified)
	if sameInode(t, x, y) {
		t.Error("modified file should not be linked")
	}
}

func TestResolveLockedTargetSkipped(t *testing.T) {
	root := t.TempDir()
	x := writeFile(t, root, "x.txt", "hello")
	y := writeFile(t, root, "y.txt", "hello")

	// Lock the target file (simulating another process using it)
	f, err := os.Open(y)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error, 10)
	New(destructiveHard, nil, WithErrors(errCh)).Run([]types.DuplicateGroup{group(t, x, y)})
	close(errCh)

	assertReported(t, errCh, ErrLocked)
	if sameInode(t, x, y) {
		t.Error("locked file should NOT be linked")
	}
}

func TestResolveSourceDeleted(t *testing.T) {
	root := t.TempDir()
	x := writeFile(t, root, "x.txt", "hello")
	y := writeFile(t, root, "y.txt", "hello")
	g := group(t, x, y)

	if err := os.Remove(x); err != nil {
		t.Fatal(err)
	}

	results := New(destructiveHard, nil).Resolve(g)
	if len(results) != 1 || results[0].Action != ActionSkipped {
		t.Fatalf("results = %v", results)
	}
	data, err := os.ReadFile(y)
	if err != nil || string(data) != "hello" {
		t.Errorf("target should be intact, got %q, %v", data, err)
	}
}

func TestResolveBackupExistsSkipped(t *testing.T) {
	root := t.TempDir()
	x := writeFile(t, root, "x.txt", "hello")
	y := writeFile(t, root, "y.txt", "hello")
	writeFile(t, root, "y.txt.rdup", "keep me")

	results := New(destructiveHard, nil).Resolve(group(t, x, y))

	if len(results) != 1 || !errors.Is(results[0].Err, replace.ErrBackupExists) {
		t.Fatalf("results = %v, want ErrBackupExists", results)
	}
}

// =============================================================================
// Resolve: cross-device handling
// =============================================================================

func TestResolveCrossDeviceRestores(t *testing.T) {
	root := t.TempDir()
	x := writeFile(t, root, "x.txt", "hello")
	y := writeFile(t, root, "y.txt", "hello")

	fs := &exdevFS{}
	results := New(destructiveHard, nil, WithReplaceOptions(replace.WithFS(fs))).Resolve(group(t, x, y))

	if len(results) != 1 || results[0].Action != ActionSkipped {
		t.Fatalf("results = %v", results)
	}
	if !errors.Is(results[0].Err, syscall.EXDEV) {
		t.Errorf("error should wrap EXDEV: %v", results[0].Err)
	}
	if !strings.Contains(results[0].Err.Error(), "--link soft") {
		t.Errorf("error should hint at --link soft: %v", results[0].Err)
	}
	if results[0].State != replace.StateRestored {
		t.Errorf("state = %s, want restored", results[0].State)
	}
	data, _ := os.ReadFile(y)
	if string(data) != "hello" {
		t.Error("target should be restored")
	}
}

func TestResolveLostIsCounted(t *testing.T) {
	root := t.TempDir()
	x := writeFile(t, root, "x.txt", "hello")
	y := writeFile(t, root, "y.txt", "hello")

	fs := &exdevFS{failRestore: true}
	sum := New(destructiveHard, nil, WithReplaceOptions(replace.WithFS(fs))).Run([]types.DuplicateGroup{group(t, x, y)})

	if len(sum.Lost) != 1 || sum.Lost[0].Target != y {
		t.Fatalf("Lost = %v, want one result for %s", sum.Lost, y)
	}
	if !replace.IsLost(sum.Lost[0].Err) {
		t.Errorf("Lost[0].Err = %v, want a restore error", sum.Lost[0].Err)
	}
	if _, err := os.Stat(y + ".rdup"); err != nil {
		t.Errorf("backup should hold the original content: %v", err)
	}
}

func TestRunReportsAlreadyLinked(t *testing.T) {
	root := t.TempDir()
	x := writeFile(t, root, "x.txt", "hello")
	y := filepath.Join(root, "y.txt")
	if err := os.Link(x, y); err != nil {
		t.Fatal(err)
	}

	var notices bytes.Buffer
	New(destructiveHard, nil, WithNotices(&notices)).Run([]types.DuplicateGroup{group(t, x, y)})

	if want := y + " already linked to " + x + "\n"; !strings.Contains(notices.String(), want) {
		t.Errorf("notices = %q, want to contain %q", notices.String(), want)
	}
}

func TestRunDoesNotReportSkipsAsNotices(t *testing.T) {
	root := t.TempDir()
	x := writeFile(t, root, "x.txt", "hello")
	y := writeFile(t, root, "y.txt", "hello")
	writeFile(t, root, "y.txt.rdup", "older")

	var notices bytes.Buffer
	errCh := make(chan error, 1)
	New(destructiveHard, nil, WithNotices(&notices), WithErrors(errCh)).Run([]types.DuplicateGroup{group(t, x, y)})

	if strings.Contains(notices.String(), "skipped") {
		t.Errorf("skips belong on the error channel, notices = %q", notices.String())
	}
	if err := <-errCh; !errors.Is(err, replace.ErrBackupExists) {
		t.Errorf("error = %v, want ErrBackupExists", err)
	}
}

// =============================================================================
// Output formatting
// =============================================================================

func TestResultString(t *testing.T) {
	tests := []struct {
		res  Result
		want string
	}{
		{Result{Source: "/a", Target: "/b", Action: ActionHardlink}, "Replaced /b with hardlink to /a"},
		{Result{Source: "/a", Target: "/b", Action: ActionSymlink}, "Replaced /b with symlink to /a"},
		{Result{Source: "/a", Target: "/b", Action: ActionAlreadyLinked}, "/b already linked to /a"},
		{Result{Target: "/b", Action: ActionSkipped, Err: ErrLocked}, "skipped /b: file in use (locked by another process)"},
	}
	for _, tt := range tests {
		if got := tt.res.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// exdevFS fails every hardlink with EXDEV, optionally failing the restore too.
type exdevFS struct {
	replace.OSFS
	failRestore bool
}

func (f *exdevFS) Link(oldname, newname string) error {
	return &os.LinkError{Op: "link", Old: oldname, New: newname, Err: syscall.EXDEV}
}

func (f *exdevFS) Rename(oldpath, newpath string) error {
	if f.failRestore && strings.HasSuffix(oldpath, replace.BackupSuffix) {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EIO}
	}
	return f.OSFS.Rename(oldpath, newpath)
}

// group builds a duplicate group from current file metadata.
func group(t *testing.T, paths ...string) types.DuplicateGroup {
	t.Helper()
	g := types.NewDuplicateGroup(1)
	for _, p := range paths {
		g.Append(getFileInfo(t, p))
	}
	return g
}

func getFileInfo(t *testing.T, path string) *types.FileInfo {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat %s: %v", path, err)
	}
	stat := info.Sys().(*syscall.Stat_t)
	return &types.FileInfo{
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Dev:         uint64(stat.Dev), //nolint:unconvert // platform-dependent type
		Ino:         stat.Ino,
		Nlink:       uint32(stat.Nlink),
		Fingerprint: 1,
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func setMtime(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func inodeOf(t *testing.T, path string) uint64 {
	t.Helper()
	info, err := os.Lstat(path)
	if err != nil {
		t.Fatal(err)
	}
	return info.Sys().(*syscall.Stat_t).Ino
}

func sameInode(t *testing.T, path1, path2 string) bool {
	t.Helper()
	return inodeOf(t, path1) == inodeOf(t, path2)
}

func assertReported(t *testing.T, errCh chan error, target error) {
	t.Helper()
	var found bool
	for err := range errCh {
		if errors.Is(err, target) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %v to be reported", target)
	}
}
