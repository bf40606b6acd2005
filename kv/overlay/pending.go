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

// update is a staged per-key intention: either Set(value) or Removed.
type update struct {
	removed bool
	value   []byte
}

func setUpdate(value []byte) update  { return update{value: value} }
func removedUpdate() update          { return update{removed: true} }
func (u update) isSet() bool         { return !u.removed }

type pendingItem struct {
	key []byte
	upd update
}

func (a pendingItem) Less(than btree.Item) bool {
	return bytes.Compare(a.key, than.(pendingItem).key) < 0
}

// pendingUpdates is the ordered mapping from logical key to staged
// Set/Removed intention described in spec §3. Ordering is lexicographic
// and is required for the three-way range merges in merge.go.
type pendingUpdates struct {
	tree *btree.BTree
}

func newPendingUpdates() *pendingUpdates {
	return &pendingUpdates{tree: btree.New(32)}
}

func (p *pendingUpdates) get(key []byte) (update, bool) {
	item := p.tree.Get(pendingItem{key: key})
	if item == nil {
		return update{}, false
	}
	return item.(pendingItem).upd, true
}

func (p *pendingUpdates) set(key []byte, value []byte) {
	p.tree.ReplaceOrInsert(pendingItem{key: append([]byte(nil), key...), upd: setUpdate(value)})
}

func (p *pendingUpdates) markRemoved(key []byte) {
	p.tree.ReplaceOrInsert(pendingItem{key: append([]byte(nil), key...), upd: removedUpdate()})
}

func (p *pendingUpdates) delete(key []byte) {
	p.tree.Delete(pendingItem{key: key})
}

func (p *pendingUpdates) len() int { return p.tree.Len() }

func (p *pendingUpdates) clear() { p.tree = btree.New(32) }

// deleteRange removes every staged key in the half-open range
// [prefix, upperBound(prefix)), returning the removed keys in ascending
// order.
func (p *pendingUpdates) deleteRange(prefix []byte) [][]byte {
	upper, hasUpper := kv.UpperBound(prefix)
	var doomed [][]byte
	p.tree.AscendGreaterOrEqual(pendingItem{key: prefix}, func(item btree.Item) bool {
		key := item.(pendingItem).key
		if hasUpper && bytes.Compare(key, upper) >= 0 {
			return false
		}
		doomed = append(doomed, key)
		return true
	})
	for _, key := range doomed {
		p.tree.Delete(pendingItem{key: key})
	}
	return doomed
}

// ascendRange calls fn for every staged entry in [lo, hi) in ascending
// order; hi == nil means unbounded above. Stops early if fn returns false.
func (p *pendingUpdates) ascendRange(lo, hi []byte, fn func(key []byte, upd update) bool) {
	p.tree.AscendGreaterOrEqual(pendingItem{key: lo}, func(item btree.Item) bool {
		entry := item.(pendingItem)
		if hi != nil && bytes.Compare(entry.key, hi) >= 0 {
			return false
		}
		return fn(entry.key, entry.upd)
	})
}

// ascendAll calls fn for every staged entry in ascending key order.
func (p *pendingUpdates) ascendAll(fn func(key []byte, upd update) bool) {
	p.tree.Ascend(func(item btree.Item) bool {
		entry := item.(pendingItem)
		return fn(entry.key, entry.upd)
	})
}

func (p *pendingUpdates) clone() *pendingUpdates {
	clone := newPendingUpdates()
	p.tree.Ascend(func(item btree.Item) bool {
		entry := item.(pendingItem)
		v := append([]byte(nil), entry.upd.value...)
		clone.tree.ReplaceOrInsert(pendingItem{key: append([]byte(nil), entry.key...), upd: update{removed: entry.upd.removed, value: v}})
		return true
	})
	return clone
}
