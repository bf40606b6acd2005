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
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	"github.com/rkvl/overlaydb/kv"
)

// computeHash feeds the canonical hash input described in spec §6 into a
// SHA3-256 hasher: for every (key, value) pair in the logical image, in
// ascending key order, the key bytes then the value bytes, followed by the
// 4-byte big-endian entry count. backing must already be restricted to
// the whole index namespace (no prefix) and sorted ascending.
func computeHash(backing []kv.KeyValue, pending *pendingUpdates, delSet *DeletionSet) [32]byte {
	h := sha3.New256()
	var count uint32
	mergeRange(backing, pending, nil, nil, delSet, delSet.ClearAll(), func(key, value []byte) bool {
		h.Write(key)
		h.Write(value)
		count++
		return true
	})
	var countBytes [4]byte
	binary.BigEndian.PutUint32(countBytes[:], count)
	h.Write(countBytes[:])

	var out [32]byte
	h.Sum(out[:0])
	return out
}
