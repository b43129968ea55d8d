//go:build unix

// Package resolver turns duplicate groups into links to one canonical file.
//
// # Processing Pipeline
//
//	Input: []types.DuplicateGroup (fingerprint groups, first-seen order)
//	    │
//	    ├──► For each group with two or more members:
//	    │        │
//	    │        ├──► Select canonical source (Selector, default first seen)
//	    │        │
//	    │        └──► For every other member (targets):
//	    │                 │
//	    │                 ├──► Skip if it already shares the source inode
//	    │                 │
//	    │                 ├──► Lock target, verify mtime unchanged
//	    │                 │
//	    │                 └──► replace.Replace (backup, link, restore)
//	    │
//	    └──► Output: Summary (linked, skipped, lost, bytes saved)
//
// Resolution is sequential and runs on the caller's goroutine.
// A failure on one target never stops the group or the run.
package resolver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ivoronin/rdup/internal/progress"
	"github.com/ivoronin/rdup/internal/replace"
	"github.com/ivoronin/rdup/internal/types"
)

// Resolver links redundant copies to a canonical file.
//
// The resolver is designed for single-use: create with New(), call Run() once.
type Resolver struct {
	// Config (immutable, set by New)
	policy       types.LinkPolicy
	selector     Selector
	replacer     *replace.Replacer
	notices      io.Writer  // "Linking" lines, nil = silent
	showProgress bool       // Whether to display progress bar
	errCh        chan error // Non-fatal errors (locked, modified, link failures)

	bar *progress.Bar
}

// Option configures a Resolver.
type Option func(*resolverConfig)

type resolverConfig struct {
	notices      io.Writer
	showProgress bool
	errCh        chan error
	replaceOpts  []replace.Option
}

// WithNotices writes a line for every link attempt and every linked or
// already-linked result to w.
func WithNotices(w io.Writer) Option { return func(c *resolverConfig) { c.notices = w } }

// WithProgress enables the stderr spinner during Run.
func WithProgress(enabled bool) Option { return func(c *resolverConfig) { c.showProgress = enabled } }

// WithErrors sends non-fatal per-target errors to errCh.
func WithErrors(errCh chan error) Option { return func(c *resolverConfig) { c.errCh = errCh } }

// WithReplaceOptions passes options to the underlying replace.Replacer.
func WithReplaceOptions(opts ...replace.Option) Option {
	return func(c *resolverConfig) { c.replaceOpts = append(c.replaceOpts, opts...) }
}

// New creates a Resolver. A nil selector means FirstSeen.
func New(policy types.LinkPolicy, selector Selector, opts ...Option) *Resolver {
	cfg := &resolverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if selector == nil {
		selector = FirstSeen
	}
	replaceOpts := append([]replace.Option{replace.WithRelativeSymlinks(policy.RelativeSymlinks)}, cfg.replaceOpts...)
	return &Resolver{
		policy:       policy,
		selector:     selector,
		replacer:     replace.New(replaceOpts...),
		notices:      cfg.notices,
		showProgress: cfg.showProgress,
		errCh:        cfg.errCh,
		bar:          progress.New(false),
	}
}

// Run resolves every group and returns the tally.
func (r *Resolver) Run(groups []types.DuplicateGroup) *Summary {
	r.bar = progress.New(r.showProgress)
	sum := &Summary{startTime: time.Now()}
	r.bar.Describe(sum) // Render progress bar immediately

	for _, group := range groups {
		results := r.Resolve(group)
		if results == nil {
			continue
		}
		sum.Sets++
		for _, res := range results {
			sum.add(res)
			switch res.Action {
			case ActionSkipped:
				r.sendError(fmt.Errorf("%s: %w", res.Target, res.Err))
			case ActionLost:
				// Reported by the caller from Summary.Lost
			default:
				r.report(res)
			}
			r.bar.Describe(sum)
		}
	}

	r.bar.Finish(sum)
	return sum
}

// Resolve links every non-canonical member of group to the canonical one.
// Returns nil without touching the filesystem for groups with fewer than two
// members or when the policy is not destructive.
func (r *Resolver) Resolve(group types.DuplicateGroup) []*Result {
	if group.Len() < 2 || !r.policy.Destructive {
		return nil
	}

	files := group.Items()
	idx := r.selector(group.Paths())
	if idx < 0 || idx >= len(files) {
		idx = 0
	}
	source := files[idx]

	results := make([]*Result, 0, len(files)-1)
	for i, target := range files {
		if i == idx {
			continue
		}
		r.notice(source, target)
		results = append(results, r.resolveFile(source, target))
	}
	return results
}

// resolveFile replaces target with a link to source.
//
// Safety checks:
//   - Targets already sharing the source inode are left alone
//   - Acquires exclusive advisory lock on target (skips if file in use)
//   - Verifies target mtime unchanged since scan
//
// A hardlink across devices fails with EXDEV; the target is restored and
// reported as skipped.
func (r *Resolver) resolveFile(source, target *types.FileInfo) *Result {
	res := &Result{Source: source.Path, Target: target.Path, State: replace.StateOriginal}

	if target.SameInode(source) {
		res.Action = ActionAlreadyLinked
		return res
	}

	// Open target file to acquire advisory lock.
	// This prevents race conditions with other processes modifying the file.
	f, err := os.Open(target.Path)
	if err != nil {
		return skip(res, err)
	}
	defer func() { _ = f.Close() }()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return skip(res, ErrLocked)
	}
	// Lock released automatically when file is closed (deferred above)

	info, err := f.Stat()
	if err != nil {
		return skip(res, err)
	}
	if !info.ModTime().Equal(target.ModTime) {
		return skip(res, ErrModified)
	}

	state, err := r.replacer.Replace(source.Path, target.Path, r.policy.Kind)
	if errors.Is(err, unix.EXDEV) && state == replace.StateRestored {
		err = fmt.Errorf("%w (hardlinks cannot cross devices, use --link soft)", err)
	}

	res.State = state
	switch {
	case err == nil:
		res.Action = actionFor(r.policy.Kind)
		res.BytesSaved = target.Size
	case state == replace.StateLost:
		res.Action = ActionLost
		res.Err = err
	default:
		res.Action = ActionSkipped
		res.Err = err
	}
	return res
}

func actionFor(kind types.LinkKind) ActionType {
	if kind == types.LinkSoft {
		return ActionSymlink
	}
	return ActionHardlink
}

func skip(res *Result, err error) *Result {
	res.Action = ActionSkipped
	res.Err = err
	return res
}

func (r *Resolver) notice(source, target *types.FileInfo) {
	if r.notices == nil {
		return
	}
	r.bar.Clear()
	_, _ = fmt.Fprintf(r.notices, "Linking %s -> %s\n", types.EscapePath(target.Path), types.EscapePath(source.Path))
}

// report writes a done result to the notice writer.
func (r *Resolver) report(res *Result) {
	if r.notices == nil {
		return
	}
	r.bar.Clear()
	_, _ = fmt.Fprintln(r.notices, res)
}

// sendError sends an error to the errors channel if it's not nil.
func (r *Resolver) sendError(err error) {
	if r.errCh != nil {
		r.errCh <- err
	}
}
