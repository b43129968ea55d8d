package scanner

import (
	"os"
	"syscall"

	"github.com/ivoronin/rdup/internal/types"
)

// BackupExt is the extension of backups created during replacement.
// Files carrying it are never offered as duplicate candidates.
const BackupExt = ".rdup"

// newFileInfo creates FileInfo from os.FileInfo and path.
func newFileInfo(path string, info os.FileInfo) *types.FileInfo {
	stat := info.Sys().(*syscall.Stat_t)
	return &types.FileInfo{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Dev:     uint64(stat.Dev), //nolint:unconvert // platform-dependent type
		Ino:     stat.Ino,
		Nlink:   uint32(stat.Nlink),
	}
}
