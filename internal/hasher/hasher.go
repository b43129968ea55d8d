// Package hasher fingerprints file content with a fast non-cryptographic hash.
//
// # Overview
//
// Every candidate file is read once, sequentially from the first byte to the
// last, through a 64-bit hash accumulator seeded with a constant. The seed
// never changes, so unchanged content yields the same fingerprint in every
// process.
//
// # Concurrency Model
//
// Files are hashed by a bounded set of goroutines (conc iter.Mapper). The
// mapper returns results in input order, so the single consumer that builds
// the duplicate index sees files in discovery order regardless of which
// worker finished first.
//
//	Run() starts
//	    │
//	    ├──► iter.Mapper{MaxGoroutines: workers}.Map(files, hashOne)
//	    │        └──► HashFile(path) per file (bounded concurrency)
//	    │
//	    └──► walk results in input order
//	             ├──► ok: set Fingerprint, keep
//	             ├──► error + SkipAndReport: send to errCh, drop
//	             └──► error + Abort: return first error
package hasher

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ivoronin/rdup/internal/progress"
	"github.com/ivoronin/rdup/internal/types"
	"github.com/sourcegraph/conc/iter"
)

// blockSize is the read buffer size (64KB)
const blockSize = 64 * 1024

// ErrorPolicy decides what a read failure does to the run.
type ErrorPolicy int

const (
	SkipAndReport ErrorPolicy = iota // Report the file on errCh and leave it out
	Abort                            // Stop the run with the first failure
)

// errAborted marks files that were not hashed because an earlier one failed.
var errAborted = errors.New("hashing aborted")

// ReadError reports a file that could not be opened or read to the end.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string { return fmt.Sprintf("hash %s: %v", e.Path, e.Err) }

func (e *ReadError) Unwrap() error { return e.Err }

// HashFile streams the whole file through the algorithm's accumulator.
func HashFile(path string, alg Algorithm) (types.Fingerprint, error) {
	fp, _, err := hashFile(path, alg)
	return fp, err
}

func hashFile(path string, alg Algorithm) (types.Fingerprint, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, &ReadError{Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	acc := alg.new()
	buf := make([]byte, blockSize)
	n, err := io.CopyBuffer(acc, onlyReader{f}, buf)
	if err != nil {
		return 0, n, &ReadError{Path: path, Err: err}
	}
	return types.Fingerprint(acc.Sum64()), n, nil
}

// onlyReader hides WriterTo so io.CopyBuffer uses the given buffer.
type onlyReader struct{ r io.Reader }

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }

// Hasher fingerprints a list of discovered files.
//
// The hasher is designed for single-use: create with New(), call Run() once.
type Hasher struct {
	// Config (immutable, set by New)
	files        []*types.FileInfo
	alg          Algorithm
	workers      int
	onError      ErrorPolicy
	showProgress bool
	errCh        chan error

	// Runtime (initialized in Run)
	aborted atomic.Bool
	bar     *progress.Bar
	stats   *stats
}

// New creates a Hasher.
func New(files []*types.FileInfo, alg Algorithm, workers int, onError ErrorPolicy, showProgress bool, errCh chan error) *Hasher {
	return &Hasher{
		files:        files,
		alg:          alg,
		workers:      max(workers, 1),
		onError:      onError,
		showProgress: showProgress,
		errCh:        errCh,
	}
}

// stats tracks hashing progress.
type stats struct {
	hashedFiles atomic.Int64
	hashedBytes atomic.Int64
	failedFiles atomic.Int64
	totalFiles  int
	startTime   time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Hashed %d/%d files (%s), %d failed in %.1fs",
		s.hashedFiles.Load(), s.totalFiles,
		humanize.IBytes(uint64(s.hashedBytes.Load())),
		s.failedFiles.Load(),
		time.Since(s.startTime).Seconds())
}

// outcome is the per-file result of one worker.
type outcome struct {
	fp  types.Fingerprint
	err error
}

// Run hashes all files and returns those that were hashed, in input order,
// with Fingerprint set. Under the Abort policy the first failure (in input
// order) is returned and no files are.
func (h *Hasher) Run() ([]*types.FileInfo, error) {
	h.bar = progress.New(h.showProgress)
	h.stats = &stats{totalFiles: len(h.files), startTime: time.Now()}
	h.bar.Describe(h.stats)

	mapper := iter.Mapper[*types.FileInfo, outcome]{MaxGoroutines: h.workers}
	outcomes := mapper.Map(h.files, func(f **types.FileInfo) outcome {
		return h.hashOne(*f)
	})

	hashed := make([]*types.FileInfo, 0, len(h.files))
	for i, o := range outcomes {
		if o.err == nil {
			h.files[i].Fingerprint = o.fp
			hashed = append(hashed, h.files[i])
			continue
		}
		if h.onError == Abort {
			if errors.Is(o.err, errAborted) {
				continue
			}
			h.bar.Finish(h.stats)
			return nil, o.err
		}
		h.sendError(o.err)
	}

	h.bar.Finish(h.stats)
	return hashed, nil
}

func (h *Hasher) hashOne(f *types.FileInfo) outcome {
	if h.aborted.Load() {
		return outcome{err: errAborted}
	}

	fp, n, err := hashFile(f.Path, h.alg)
	if err != nil {
		h.stats.failedFiles.Add(1)
		if h.onError == Abort {
			h.aborted.Store(true)
		}
		return outcome{err: err}
	}

	h.stats.hashedFiles.Add(1)
	h.stats.hashedBytes.Add(n)
	h.bar.Describe(h.stats)
	return outcome{fp: fp}
}

// sendError sends an error to the errors channel if it's not nil.
func (h *Hasher) sendError(err error) {
	if h.errCh != nil {
		h.errCh <- err
	}
}
