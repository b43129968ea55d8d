// Package scanner discovers regular files under one or more roots.
//
// # Architecture Overview
//
// The scanner is the traversal collaborator of the pipeline: it only
// enumerates candidate files, it never reads file content. Directory trees
// are walked with a concurrent fan-out/fan-in, and the result is put back
// into a stable discovery order before it is returned.
//
// # Concurrency Model
//
// The scanner employs three concurrent components:
//
//  1. WALKER GOROUTINES (fan-out)
//     - One goroutine spawned per directory discovered
//     - Concurrency limited by semaphore (walkerSem)
//     - Each walker: acquires semaphore → lists directory → releases semaphore → spawns child walkers
//     - Every match is tagged with the index of the root it was found under
//
//  2. COLLECTOR GOROUTINE (fan-in)
//     - Single goroutine that drains resultCh into a slice
//     - Runs until resultCh is closed
//
//  3. MAIN GOROUTINE (orchestrator)
//     - Spawns root walkers, waits for walkers, closes resultCh, waits for
//     the collector, then orders the results
//
// # Synchronization Primitives
//
//	┌─────────────────┬─────────────────────────────────────────────────┐
//	│ Primitive       │ Purpose                                         │
//	├─────────────────┼─────────────────────────────────────────────────┤
//	│ walkerSem       │ Limits concurrent directory reads (backpressure)│
//	│ walkerWg        │ Tracks active walker goroutines                 │
//	│ collectorWg     │ Signals collector goroutine completion          │
//	│ resultCh        │ Buffered channel of root-tagged matches (fan-in)│
//	│ atomic counters │ Lock-free stats updates from any goroutine      │
//	└─────────────────┴─────────────────────────────────────────────────┘
//
// # Discovery Order
//
// Walkers finish in arbitrary order, so Run sorts the collected files by
// (root argument index, path). The first root given on the command line is
// therefore "seen first", and two runs over the same tree agree on which
// member of a duplicate group is canonical. A file reachable from several
// roots (nested or repeated roots) is reported once, under the earliest root.
//
// Files named *.rdup are never reported: they are backups left by an
// interrupted replacement and belong to the recover command.
//
// # Data Flow
//
//	Run() starts
//	    │
//	    ├──► spawn collector goroutine (reads resultCh)
//	    │
//	    ├──► for each root path:
//	    │        └──► walkDirectory(path, rootIdx)
//	    │                 │
//	    │                 ├──► acquire semaphore (blocks if at limit)
//	    │                 ├──► listDirectory() → files, subdirs
//	    │                 ├──► release semaphore
//	    │                 ├──► filter files → send matches to resultCh
//	    │                 └──► for each subdir: walkDirectory(subdir, rootIdx)  [recursive fan-out]
//	    │
//	    ├──► walkerWg.Wait() [all directories processed]
//	    ├──► close(resultCh) [signal collector to finish]
//	    ├──► collectorWg.Wait() [collector drained channel]
//	    │
//	    └──► sort by (rootIdx, path), drop repeated paths, return
//
// # Why This Design?
//
//   - Semaphore bounds open directory handles regardless of tree shape
//   - Atomic counters keep stats updates off the walkers' critical path
//   - Buffered channel (1000) smooths producer/consumer rate differences
//   - Single collector avoids slice synchronization
//   - Sorting once at the end keeps the walk parallel and the output deterministic
package scanner

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ivoronin/rdup/internal/progress"
	"github.com/ivoronin/rdup/internal/types"
)

// Scanner discovers files matching filter criteria using parallel directory traversal.
//
// The scanner is designed for single-use: create with New(), call Run() once.
type Scanner struct {
	// Config (immutable, set by New)
	paths        []string   // Root paths to scan
	minSize      int64      // Minimum file size filter (bytes)
	excludes     []string   // Glob patterns for filename exclusion
	workers      int        // Max concurrent directory reads
	showProgress bool       // Whether to display progress bar
	errCh        chan error // Non-fatal errors (permission denied, etc.)

	// Runtime (initialized in Run)
	walkerWg  sync.WaitGroup   // Tracks in-flight walker goroutines
	walkerSem types.Semaphore  // Limits concurrent directory reads
	resultCh  chan discovered  // Fan-in channel: walkers → collector
	stats     *stats           // Atomic counters for progress tracking
	bar       *progress.Bar    // Progress display (thread-safe)
}

// discovered tags a file with the index of the root it was found under.
type discovered struct {
	root int
	file *types.FileInfo
}

// New creates a Scanner for discovering files.
func New(paths []string, minSize int64, excludes []string, workers int, showProgress bool, errCh chan error) *Scanner {
	return &Scanner{
		paths:        paths,
		minSize:      minSize,
		excludes:     excludes,
		workers:      max(workers, 1),
		showProgress: showProgress,
		errCh:        errCh,
	}
}

// stats tracks scanning progress using atomic counters for lock-free updates.
//
// A snapshot taken by String may mix counters from slightly different
// moments. That is fine for a progress display.
type stats struct {
	scannedFiles atomic.Int64 // Regular files seen (all walkers)
	matchedFiles atomic.Int64 // Files passing size/exclude filters
	scannedBytes atomic.Int64 // Bytes across all scanned files
	matchedBytes atomic.Int64 // Bytes of matched files only
	startTime    time.Time    // For elapsed time calculation
}

func (s *stats) String() string {
	return fmt.Sprintf("Scanned %d (%s), matched %d files (%s) in %.1fs",
		s.scannedFiles.Load(), humanize.IBytes(uint64(s.scannedBytes.Load())),
		s.matchedFiles.Load(), humanize.IBytes(uint64(s.matchedBytes.Load())),
		time.Since(s.startTime).Seconds())
}

// Run executes the scan and returns matching files in discovery order.
//
// Coordination sequence:
//  1. Start collector goroutine (drains resultCh → results slice)
//  2. Spawn walker for each root path, tagged with its index (fan-out begins)
//  3. Wait for all walkers to complete (walkerWg.Wait)
//  4. Close resultCh to signal collector to finish
//  5. Wait for collector to drain remaining items (collectorWg.Wait)
//  6. Sort by (root index, path) and drop paths seen under an earlier root
//
// The WaitGroup ensures resultCh is never closed while a walker may still send.
func (s *Scanner) Run() []*types.FileInfo {
	s.walkerSem = types.NewSemaphore(s.workers)
	s.bar = progress.New(s.showProgress)
	s.stats = &stats{startTime: time.Now()}
	s.bar.Describe(s.stats)
	s.resultCh = make(chan discovered, 1000)

	var results []discovered
	collectorWg := sync.WaitGroup{}

	collectorWg.Add(1)
	go func() {
		for r := range s.resultCh {
			results = append(results, r)
		}
		collectorWg.Done()
	}()

	for i, p := range s.paths {
		absPath, err := filepath.Abs(p)
		if err != nil {
			s.sendError(err)
			continue
		}
		s.walkDirectory(absPath, i)
	}

	// Shutdown: wait for producers, then signal consumer, then wait for consumer
	s.walkerWg.Wait()
	close(s.resultCh)
	collectorWg.Wait()

	s.bar.Finish(s.stats)
	return order(results)
}

// order sorts results into discovery order and drops paths already seen
// under an earlier root.
func order(results []discovered) []*types.FileInfo {
	slices.SortFunc(results, func(a, b discovered) int {
		if c := cmp.Compare(a.root, b.root); c != 0 {
			return c
		}
		return cmp.Compare(a.file.Path, b.file.Path)
	})

	seen := make(map[string]struct{}, len(results))
	files := make([]*types.FileInfo, 0, len(results))
	for _, r := range results {
		if _, dup := seen[r.file.Path]; dup {
			continue
		}
		seen[r.file.Path] = struct{}{}
		files = append(files, r.file)
	}
	return files
}

// walkDirectory spawns a goroutine to process one directory and recursively spawn children.
//
// walkerWg.Add(1) happens BEFORE the goroutine is spawned so Wait cannot
// observe a zero counter while children are still being scheduled. The
// semaphore is released before children are spawned.
func (s *Scanner) walkDirectory(dir string, root int) {
	s.walkerWg.Add(1)
	go func() {
		defer s.walkerWg.Done()

		s.walkerSem.Acquire()
		files, subdirs, err := s.listDirectory(dir)
		s.walkerSem.Release()
		if err != nil {
			s.sendError(err)
			return
		}

		for _, f := range files {
			s.stats.scannedFiles.Add(1)
			s.stats.scannedBytes.Add(f.Size)
			if f.Size >= s.minSize && !s.shouldExclude(f.Path) {
				s.resultCh <- discovered{root: root, file: f}
				s.stats.matchedFiles.Add(1)
				s.stats.matchedBytes.Add(f.Size)
			}
		}
		s.bar.Describe(s.stats)

		for _, sub := range subdirs {
			s.walkDirectory(sub, root)
		}
	}()
}

// listDirectory reads a single directory, returning files and subdirectories.
//
// Uses batched ReadDir (1000 entries per batch) to bound memory on huge
// directories. This is the ONLY place where directory I/O occurs.
func (s *Scanner) listDirectory(dirPath string) (files []*types.FileInfo, subdirs []string, err error) {
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = dir.Close() }()

	const batchSize = 1000
	for {
		entries, err := dir.ReadDir(batchSize)
		if len(entries) == 0 {
			if err != nil && err != io.EOF {
				return files, subdirs, err
			}
			break
		}

		for _, entry := range entries {
			f, sub := s.processEntry(dirPath, entry)
			if f != nil {
				files = append(files, f)
			}
			if sub != "" {
				subdirs = append(subdirs, sub)
			}
		}
	}

	return files, subdirs, nil
}

// processEntry processes a single directory entry, returning a file or subdirectory path.
// Returns (nil, "") for entries that should be skipped (symlinks, devices,
// excluded items, leftover backups).
func (s *Scanner) processEntry(dirPath string, entry os.DirEntry) (file *types.FileInfo, subdir string) {
	fullPath := filepath.Join(dirPath, entry.Name())

	if entry.IsDir() {
		if s.shouldExclude(fullPath) {
			return nil, ""
		}
		return nil, fullPath
	}

	// Symlinks, devices, sockets, etc. are never candidates
	if !entry.Type().IsRegular() {
		return nil, ""
	}

	// Backups left by an interrupted run belong to the recover command
	if filepath.Ext(entry.Name()) == BackupExt {
		return nil, ""
	}

	info, err := entry.Info()
	if err != nil {
		return nil, "" // vanished or unreadable between ReadDir and stat
	}

	return newFileInfo(fullPath, info), ""
}

// sendError sends an error to the errors channel if it's not nil.
func (s *Scanner) sendError(err error) {
	if s.errCh != nil {
		s.errCh <- err
	}
}

// shouldExclude checks if a path matches any glob exclude pattern.
func (s *Scanner) shouldExclude(path string) bool {
	if len(s.excludes) == 0 {
		return false
	}
	base := filepath.Base(path)
	for _, pattern := range s.excludes {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
