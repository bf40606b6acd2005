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

import "bytes"

// SuffixClosedSetIterator is a streaming membership probe over a sorted
// sequence of deleted prefixes. It is built for callers that visit
// candidate keys in ascending order: across a full scan of n candidates
// against m prefixes, total work is O(n+m) instead of O(n*m), because the
// cursor into prefixes only ever moves forward.
type SuffixClosedSetIterator struct {
	prefixes [][]byte
	pos      int
}

// NewSuffixClosedSetIterator builds a probe over prefixes, which must
// already be sorted ascending (as produced by DeletionSet.SortedPrefixes
// or TakePrefixes).
func NewSuffixClosedSetIterator(prefixes [][]byte) *SuffixClosedSetIterator {
	return &SuffixClosedSetIterator{prefixes: prefixes}
}

// FindKey advances the cursor past every prefix strictly less than k that
// is not itself a prefix of k, then reports whether the prefix now under
// the cursor is a prefix of k. Successive calls must supply k in
// non-decreasing lexicographic order.
func (s *SuffixClosedSetIterator) FindKey(k []byte) bool {
	for s.pos < len(s.prefixes) {
		p := s.prefixes[s.pos]
		if bytes.Compare(p, k) > 0 {
			return false
		}
		if bytes.HasPrefix(k, p) {
			return true
		}
		s.pos++
	}
	return false
}
