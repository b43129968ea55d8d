//go:build e2e

package testfs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/docker/docker/api/types/container"
)

const (
	baseImage = "alpine:3.21"

	binaryName       = "rdup"
	helperBinaryName = "testfs-helper"
	binaryPath       = "/usr/local/bin/" + binaryName
	helperBinaryPath = "/usr/local/bin/" + helperBinaryName

	// binDirEnv names the directory holding prebuilt linux binaries.
	binDirEnv = "RDUP_E2E_BINDIR"
)

// -----------------------------------------------------------------------------
// Harness - E2E Test API
// -----------------------------------------------------------------------------

// Harness runs rdup inside a Docker container where every Volume is its
// own tmpfs mount, so hardlinks across volumes fail with EXDEV.
//
//	h := testfs.New(t, given)
//	h.RunRdup("dedupe", "/vol1", "/vol2")
//	h.Assert(then)
//
// Requires RDUP_E2E_BINDIR (set by 'make test-e2e').
type Harness struct {
	t          *testing.T
	ctx        context.Context
	given      FileTree
	container  *Container
	lastResult *RunResult
}

// New starts a container for given and sows its volumes. The container is
// removed when the test finishes.
func New(t *testing.T, given FileTree) *Harness {
	t.Helper()

	h := &Harness{
		t:     t,
		ctx:   context.Background(),
		given: given,
	}

	cfg, hostCfg, err := h.containerConfig()
	if err != nil {
		t.Fatalf("failed to build container config: %v", err)
	}

	c, err := NewContainer(h.ctx, cfg, hostCfg)
	if err != nil {
		t.Fatalf("failed to create container: %v", err)
	}
	h.container = c
	t.Cleanup(h.Cleanup)

	if err := h.sow(); err != nil {
		t.Fatalf("failed to setup files: %v", err)
	}
	return h
}

// RunRdup runs rdup with args and keeps the result for Assert.
func (h *Harness) RunRdup(args ...string) *RunResult {
	h.t.Helper()

	res, err := h.container.Run(h.ctx, append([]string{binaryPath}, args...), nil)
	if err != nil {
		h.t.Fatalf("failed to run rdup: %v", err)
	}
	h.lastResult = res
	return res
}

// Assert checks the last exit code and every volume of expected.
func (h *Harness) Assert(expected FileTree) {
	h.t.Helper()

	if h.lastResult == nil {
		h.t.Fatal("Assert called before RunRdup")
	}
	if h.lastResult.ExitCode != expected.ExitCode {
		h.t.Errorf("exit code: got %d, want %d\nstdout: %s\nstderr: %s",
			h.lastResult.ExitCode, expected.ExitCode,
			h.lastResult.Stdout, h.lastResult.Stderr)
	}

	for _, vol := range expected.Volumes {
		actual, err := h.reap(vol.MountPoint)
		if err != nil {
			h.t.Fatalf("reap %s: %v", vol.MountPoint, err)
		}
		AssertVolume(h.t, vol, actual.Volumes[0])
	}
}

// Cleanup stops the container.
func (h *Harness) Cleanup() {
	if h.container != nil {
		_ = h.container.Close(h.ctx)
		h.container = nil
	}
}

func (h *Harness) containerConfig() (*container.Config, *container.HostConfig, error) {
	binDir := os.Getenv(binDirEnv)
	if binDir == "" {
		return nil, nil, fmt.Errorf("%s not set, run via 'make test-e2e'", binDirEnv)
	}

	tmpfs := make(map[string]string, len(h.given.Volumes))
	for _, v := range h.given.Volumes {
		tmpfs[v.MountPoint] = "size=100m"
	}

	cfg := &container.Config{
		Image: baseImage,
		Cmd:   []string{"sleep", "infinity"},
	}
	hostCfg := &container.HostConfig{
		Binds: []string{
			fmt.Sprintf("%s:%s:ro", filepath.Join(binDir, binaryName), binaryPath),
			fmt.Sprintf("%s:%s:ro", filepath.Join(binDir, helperBinaryName), helperBinaryPath),
		},
		Tmpfs:      tmpfs,
		AutoRemove: true,
	}
	return cfg, hostCfg, nil
}

// sow creates the given tree inside the container through testfs-helper.
func (h *Harness) sow() error {
	spec, err := json.Marshal(h.given)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}

	res, err := h.container.Run(h.ctx, []string{helperBinaryPath, "sow"}, spec)
	if err != nil {
		return fmt.Errorf("run sow: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("sow failed (exit %d): %s%s", res.ExitCode, res.Stdout, res.Stderr)
	}
	return nil
}

func (h *Harness) reap(paths ...string) (*ReapResult, error) {
	res, err := h.container.Run(h.ctx, append([]string{helperBinaryPath, "reap"}, paths...), nil)
	if err != nil {
		return nil, fmt.Errorf("run reap: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("reap failed (exit %d): %s%s", res.ExitCode, res.Stdout, res.Stderr)
	}

	var result ReapResult
	if err := json.Unmarshal([]byte(res.Stdout), &result); err != nil {
		return nil, fmt.Errorf("parse reap output: %w", err)
	}
	return &result, nil
}
