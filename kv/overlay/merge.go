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

	"github.com/rkvl/overlaydb/kv"
)

// mergeEmit receives one surviving (key, value) pair in ascending key
// order. Returning false stops the merge early.
type mergeEmit func(key, value []byte) bool

// mergeRange is the three-source merge at the heart of every range
// operation (FindKeysByPrefix, FindKeyValuesByPrefix, ForEachIndexWhile,
// and the Sizes sub-map's own KeyValuesByPrefix). It reconciles, over the
// half-open key range [lo, hi) (hi == nil means unbounded above):
//
//   - backing: entries already persisted in the backing store, sorted
//     ascending, restricted to the range;
//   - pending: staged per-key Set/Removed intentions, restricted to the
//     same range;
//   - delSet: staged prefix deletions (ignored entirely when clearAll is
//     set, since the whole backing image is being dropped).
//
// Per iteration step the cursor holding the smallest key is consumed;
// on equal keys the pending entry wins (it shadows the backing value);
// backing keys covered by delSet are dropped silently.
func mergeRange(backing []kv.KeyValue, pending *pendingUpdates, lo, hi []byte, delSet *DeletionSet, clearAll bool, emit mergeEmit) {
	if clearAll {
		pending.ascendRange(lo, hi, func(key []byte, upd update) bool {
			if !upd.isSet() {
				return true
			}
			return emit(key, upd.value)
		})
		return
	}

	type pendEntry struct {
		key []byte
		upd update
	}
	var pend []pendEntry
	pending.ascendRange(lo, hi, func(key []byte, upd update) bool {
		pend = append(pend, pendEntry{key, upd})
		return true
	})

	probe := NewSuffixClosedSetIterator(delSet.SortedPrefixes())
	pi := 0
	for _, b := range backing {
		consumedBacking := false
		for pi < len(pend) && bytes.Compare(pend[pi].key, b.Key) <= 0 {
			p := pend[pi]
			consumed := bytes.Equal(p.key, b.Key)
			if p.upd.isSet() {
				if !emit(p.key, p.upd.value) {
					return
				}
			}
			pi++
			if consumed {
				consumedBacking = true
				break
			}
		}
		if consumedBacking {
			continue
		}
		if !probe.FindKey(b.Key) {
			if !emit(b.Key, b.Value) {
				return
			}
		}
	}
	for ; pi < len(pend); pi++ {
		p := pend[pi]
		if p.upd.isSet() {
			if !emit(p.key, p.upd.value) {
				return
			}
		}
	}
}
