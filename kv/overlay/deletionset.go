// Copyright 2026 The overlaydb Authors
// This file is part of overlaydb.
//
// overlaydb is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// overlaydb is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.

package overlay

import (
	"bytes"

	"github.com/google/btree"

	"github.com/rkvl/overlaydb/kv"
)

// prefixItem is a byte-slice element ordered lexicographically, satisfying
// btree.Item.
type prefixItem []byte

func (a prefixItem) Less(than btree.Item) bool {
	return bytes.Compare(a, than.(prefixItem)) < 0
}

// DeletionSet holds the pending full-view-clear flag together with a
// domination-free set of staged deleted prefixes: for all p != q in the
// set, p is not a prefix of q. InsertPrefix is the only mutator that adds
// to the set, and it maintains that invariant by pruning.
type DeletionSet struct {
	clearAll bool
	prefixes *btree.BTree
}

// NewDeletionSet returns an empty DeletionSet.
func NewDeletionSet() *DeletionSet {
	return &DeletionSet{prefixes: btree.New(32)}
}

// InsertPrefix stages prefix p for deletion, pruning any existing entries
// it dominates and being a no-op if an existing entry already dominates
// it. p is copied.
func (d *DeletionSet) InsertPrefix(p []byte) {
	own := append([]byte(nil), p...)

	var dominator prefixItem
	found := false
	d.prefixes.DescendLessOrEqual(prefixItem(own), func(item btree.Item) bool {
		dominator = item.(prefixItem)
		found = true
		return false
	})
	if found && bytes.HasPrefix(own, dominator) {
		// An existing prefix already dominates p: no-op.
		return
	}

	// Remove every existing entry that p itself dominates (entries that
	// have p as a prefix live in the lexicographic range [p, upperBound(p))).
	var dominated []prefixItem
	upper, hasUpper := kv.UpperBound(own)
	walk := func(item btree.Item) bool {
		cand := item.(prefixItem)
		if hasUpper && bytes.Compare(cand, upper) >= 0 {
			return false
		}
		if bytes.HasPrefix(cand, own) {
			dominated = append(dominated, cand)
		}
		return true
	}
	d.prefixes.AscendGreaterOrEqual(prefixItem(own), walk)
	for _, item := range dominated {
		d.prefixes.Delete(item)
	}

	d.prefixes.ReplaceOrInsert(prefixItem(own))
}

// ContainsPrefixOf reports whether k is covered: either the whole view has
// been staged for clearing, or some staged deleted prefix is a prefix of
// k. The domination-free representation makes this a single lookup: the
// greatest staged prefix <= k is a prefix of k iff any staged prefix is.
func (d *DeletionSet) ContainsPrefixOf(k []byte) bool {
	if d.clearAll {
		return true
	}
	var candidate prefixItem
	found := false
	d.prefixes.DescendLessOrEqual(prefixItem(k), func(item btree.Item) bool {
		candidate = item.(prefixItem)
		found = true
		return false
	})
	return found && bytes.HasPrefix(k, candidate)
}

// Clear marks the whole backing image for removal on the next flush and
// empties the staged prefix set (it is subsumed by the full clear).
func (d *DeletionSet) Clear() {
	d.clearAll = true
	d.prefixes = btree.New(32)
}

// Rollback discards all staged deletions, including a pending clear.
func (d *DeletionSet) Rollback() {
	d.clearAll = false
	d.prefixes = btree.New(32)
}

// HasPendingChanges reports whether a clear or any prefix deletion is
// staged.
func (d *DeletionSet) HasPendingChanges() bool {
	return d.clearAll || d.prefixes.Len() > 0
}

// ClearAll reports whether the whole backing image is staged for removal.
func (d *DeletionSet) ClearAll() bool { return d.clearAll }

// SetClearAll is used by flush to reset the flag once the clear has been
// materialized into a physical batch.
func (d *DeletionSet) SetClearAll(v bool) { d.clearAll = v }

// TakePrefixes drains and returns the staged deleted prefixes in ascending
// order, emptying the set (clearAll is left untouched).
func (d *DeletionSet) TakePrefixes() [][]byte {
	out := make([][]byte, 0, d.prefixes.Len())
	d.prefixes.Ascend(func(item btree.Item) bool {
		out = append(out, []byte(item.(prefixItem)))
		return true
	})
	d.prefixes = btree.New(32)
	return out
}

// SortedPrefixes returns a snapshot of the staged deleted prefixes in
// ascending order, without draining the set.
func (d *DeletionSet) SortedPrefixes() [][]byte {
	out := make([][]byte, 0, d.prefixes.Len())
	d.prefixes.Ascend(func(item btree.Item) bool {
		out = append(out, []byte(item.(prefixItem)))
		return true
	})
	return out
}

// Clone returns a deep, independent copy of d.
func (d *DeletionSet) Clone() *DeletionSet {
	clone := NewDeletionSet()
	clone.clearAll = d.clearAll
	for _, p := range d.SortedPrefixes() {
		clone.prefixes.ReplaceOrInsert(prefixItem(append([]byte(nil), p...)))
	}
	return clone
}

