//go:build unix && !e2e

package testfs

import (
	"path/filepath"
	"testing"
)

// -----------------------------------------------------------------------------
// Harness - Integration Test API
// -----------------------------------------------------------------------------

// Harness lays out volumes as directories under t.TempDir().
//
// All volumes share one filesystem, so cross-device behavior (EXDEV) needs
// the E2E harness.
//
//	h := testfs.New(t, given)
//	cfg := ... // dedupe config with h.Path("/data")
//	runPipeline(cfg)
//	h.Assert(then)
type Harness struct {
	t     *testing.T
	root  string
	given FileTree
}

// New sows given under a fresh temporary directory.
func New(t *testing.T, given FileTree) *Harness {
	t.Helper()

	h := &Harness{
		t:     t,
		root:  t.TempDir(),
		given: given,
	}
	if err := SowFileTree(h.root, given); err != nil {
		t.Fatalf("failed to setup files: %v", err)
	}
	return h
}

// Root returns the temporary directory root path.
func (h *Harness) Root() string {
	return h.root
}

// Path returns the real location of rel inside the volume at mountPoint.
func (h *Harness) Path(mountPoint string, rel ...string) string {
	return filepath.Join(append([]string{resolveVolumePath(h.root, mountPoint)}, rel...)...)
}

// Assert verifies every volume of expected against the disk.
// ExitCode is ignored: integration tests check errors directly.
func (h *Harness) Assert(expected FileTree) {
	h.t.Helper()

	for _, vol := range expected.Volumes {
		actual, err := ReapPaths(h.root, []string{vol.MountPoint})
		if err != nil {
			h.t.Fatalf("reap %s: %v", vol.MountPoint, err)
		}
		AssertVolume(h.t, vol, actual.Volumes[0])
	}
}
