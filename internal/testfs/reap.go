//go:build unix

package testfs

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
)

// maxReapContent bounds how much of a file is captured as Content.
const maxReapContent = 4096

// -----------------------------------------------------------------------------
// Reap Operations - Capture filesystem state
// -----------------------------------------------------------------------------

// ReapPaths captures the state of each path as a ReapVolume.
//
// root is stripped from reported paths: "" or "/" for E2E tests,
// t.TempDir() for integration tests.
func ReapPaths(root string, paths []string) (*ReapResult, error) {
	result := &ReapResult{}

	for _, path := range paths {
		vol, err := reapPath(resolveVolumePath(root, path), path)
		if err != nil {
			return nil, fmt.Errorf("reap %s: %w", path, err)
		}
		result.Volumes = append(result.Volumes, vol)
	}

	return result, nil
}

// ReapToWriter captures the state of paths and writes it to w as JSON.
func ReapToWriter(w io.Writer, paths []string) error {
	result, err := ReapPaths("", paths)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// reapPath walks rootPath and reports it under logicalPath.
func reapPath(rootPath, logicalPath string) (ReapVolume, error) {
	vol := ReapVolume{Name: logicalPath}

	byInode := make(map[uint64]*ReapFile)
	var order []uint64

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == rootPath || d.IsDir() {
			return nil
		}

		relPath, _ := filepath.Rel(rootPath, path)

		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
			vol.Symlinks = append(vol.Symlinks, ReapSymlink{Path: relPath, Target: target})
			return nil
		}

		if strings.HasSuffix(relPath, BackupSuffix) {
			vol.Backups = append(vol.Backups, relPath)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		stat, ok := info.Sys().(*syscall.Stat_t)
		if !ok {
			return fmt.Errorf("cannot get stat for %s", path)
		}

		if existing, ok := byInode[stat.Ino]; ok {
			existing.Path = append(existing.Path, relPath)
			return nil
		}

		rf := &ReapFile{
			Path:  []string{relPath},
			Inode: stat.Ino,
			Nlink: uint64(stat.Nlink), //nolint:unconvert // platform-dependent type
			Size:  info.Size(),
		}
		if info.Size() <= maxReapContent {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			rf.Content = string(data)
		}
		byInode[stat.Ino] = rf
		order = append(order, stat.Ino)
		return nil
	})
	if err != nil {
		return vol, err
	}

	// Files keep walk order by first path.
	for _, ino := range order {
		vol.Files = append(vol.Files, *byInode[ino])
	}
	slices.SortFunc(vol.Symlinks, func(a, b ReapSymlink) int { return strings.Compare(a.Path, b.Path) })

	return vol, nil
}
