// Package screener drops files that cannot have a duplicate before any
// content is read.
//
// # Processing Pipeline
//
//	Input: []*types.FileInfo (scanned files, discovery order)
//	    │
//	    ├──► Group by file size
//	    │
//	    ├──► Within each size, count distinct dev+ino
//	    │
//	    ├──► Keep sizes with 2+ distinct inodes
//	    │
//	    └──► Output: surviving files, discovery order preserved
//
// A file with a unique size cannot share content with anything, and a size
// class whose members are all one inode is already fully linked. Neither
// needs hashing. No I/O is performed; metadata comes from the scanner.
package screener

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ivoronin/rdup/internal/progress"
	"github.com/ivoronin/rdup/internal/types"
)

// Screener filters scanned files down to hashing candidates.
//
// The screener is designed for single-use: create with New(), call Run() once.
type Screener struct {
	files        []*types.FileInfo
	showProgress bool
}

// New creates a Screener over files in discovery order.
func New(files []*types.FileInfo, showProgress bool) *Screener {
	return &Screener{files: files, showProgress: showProgress}
}

// stats tracks screening results.
type stats struct {
	candidateFiles int
	candidateBytes int64
	droppedFiles   int
	startTime      time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Selected %d candidates (%s), dropped %d in %.1fs",
		s.candidateFiles, humanize.IBytes(uint64(s.candidateBytes)),
		s.droppedFiles,
		time.Since(s.startTime).Seconds())
}

// devIno identifies a file's data independently of its path.
type devIno struct {
	dev, ino uint64
}

// Run returns the files worth hashing, in their original order.
func (s *Screener) Run() []*types.FileInfo {
	bar := progress.New(s.showProgress)
	st := &stats{startTime: time.Now()}

	inodes := make(map[int64]map[devIno]struct{})
	for _, f := range s.files {
		set, ok := inodes[f.Size]
		if !ok {
			set = make(map[devIno]struct{})
			inodes[f.Size] = set
		}
		set[devIno{f.Dev, f.Ino}] = struct{}{}
	}

	result := make([]*types.FileInfo, 0, len(s.files))
	for _, f := range s.files {
		if len(inodes[f.Size]) < 2 {
			st.droppedFiles++
			continue
		}
		result = append(result, f)
		st.candidateFiles++
		st.candidateBytes += f.Size
	}

	bar.Finish(st)
	return result
}
