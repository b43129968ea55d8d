// Package index groups fingerprinted files into duplicate groups.
//
// The index belongs to exactly one run and is mutated only by the goroutine
// that owns it; it carries no locks.
package index

import (
	"cmp"
	"slices"

	"github.com/ivoronin/rdup/internal/types"
)

// Index maps fingerprints to the files carrying them, in first-seen order.
type Index struct {
	groups map[types.Fingerprint]*entry
	paths  map[string]struct{}
	seq    int
}

// entry remembers when its fingerprint was first inserted so Drain can
// return groups in a stable order.
type entry struct {
	first int
	group types.DuplicateGroup
}

// New creates an empty index.
func New() *Index {
	return &Index{
		groups: make(map[types.Fingerprint]*entry),
		paths:  make(map[string]struct{}),
	}
}

// Insert appends f to the group for fp, creating the group if absent.
// A path already in the index is ignored.
func (ix *Index) Insert(fp types.Fingerprint, f *types.FileInfo) {
	if _, seen := ix.paths[f.Path]; seen {
		return
	}
	ix.paths[f.Path] = struct{}{}

	e, ok := ix.groups[fp]
	if !ok {
		e = &entry{first: ix.seq, group: types.NewDuplicateGroup(fp)}
		ix.groups[fp] = e
	}
	e.group.Append(f)
	ix.seq++
}

// InsertAll inserts hashed files using their Fingerprint field.
func (ix *Index) InsertAll(files []*types.FileInfo) {
	for _, f := range files {
		ix.Insert(f.Fingerprint, f)
	}
}

// Len returns the number of distinct fingerprints.
func (ix *Index) Len() int { return len(ix.groups) }

// Drain returns every group, singletons included, and empties the index.
// Groups are ordered by when their first member was inserted.
func (ix *Index) Drain() []types.DuplicateGroup {
	entries := make([]*entry, 0, len(ix.groups))
	for _, e := range ix.groups {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *entry) int { return cmp.Compare(a.first, b.first) })

	groups := make([]types.DuplicateGroup, len(entries))
	for i, e := range entries {
		groups[i] = e.group
	}

	ix.groups = make(map[types.Fingerprint]*entry)
	ix.paths = make(map[string]struct{})
	ix.seq = 0
	return groups
}

// Duplicates keeps only groups with two or more members.
func Duplicates(groups []types.DuplicateGroup) []types.DuplicateGroup {
	return slices.DeleteFunc(slices.Clone(groups), func(g types.DuplicateGroup) bool {
		return g.Len() < 2
	})
}
