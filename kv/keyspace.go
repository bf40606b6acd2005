// Copyright 2024 The Erigon Authors
// (style and structure)
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

package kv

// Tag bytes partition an overlay engine's namespace within a Store. Every
// tag lives in the reserved low-value range below MinViewTag's peers so
// sibling views sharing the same base prefix never collide.
const (
	// MinViewTag is the lowest tag value reserved for this view family.
	// Peer views (queue/log/register/collection) reserve tags above the
	// last tag used here.
	MinViewTag byte = 1

	// TagIndex prefixes user keys: base ‖ TagIndex ‖ user_key -> user value.
	TagIndex = MinViewTag
	// TagTotalSize prefixes the singleton total-size scalar.
	TagTotalSize = MinViewTag + 1
	// TagSizes prefixes the nested sizes sub-map.
	TagSizes = MinViewTag + 2
	// TagHash prefixes the singleton content-hash scalar.
	TagHash = MinViewTag + 3

	// NextFreeTag is the first tag value not used by this view, handed to
	// any peer view nested under the same base prefix.
	NextFreeTag = MinViewTag + 4
)

// KeySpace maps an overlay engine's logical sections onto physical keys
// under a single base prefix.
type KeySpace struct {
	Base []byte
}

// NewKeySpace returns a KeySpace rooted at base. The base slice is copied.
func NewKeySpace(base []byte) KeySpace {
	return KeySpace{Base: append([]byte(nil), base...)}
}

func (k KeySpace) tagged(tag byte, suffix []byte) []byte {
	out := make([]byte, 0, len(k.Base)+1+len(suffix))
	out = append(out, k.Base...)
	out = append(out, tag)
	out = append(out, suffix...)
	return out
}

// IndexPrefix returns the physical prefix under which all user keys live.
func (k KeySpace) IndexPrefix() []byte { return k.tagged(TagIndex, nil) }

// IndexKey returns the physical key for logical user key.
func (k KeySpace) IndexKey(userKey []byte) []byte { return k.tagged(TagIndex, userKey) }

// TotalSizeKey returns the physical key of the total-size singleton.
func (k KeySpace) TotalSizeKey() []byte { return k.tagged(TagTotalSize, nil) }

// HashKey returns the physical key of the content-hash singleton.
func (k KeySpace) HashKey() []byte { return k.tagged(TagHash, nil) }

// SizesBase returns the base prefix under which the nested sizes sub-map
// is keyed (it stores its entries directly under this base, with no
// further tag).
func (k KeySpace) SizesBase() []byte { return k.tagged(TagSizes, nil) }

// MaxKeySize returns the largest logical user-key length this KeySpace can
// accept, given the backing store's own MaxKeySize. One byte is reserved
// for the tag, and len(Base) bytes for the base prefix.
func (k KeySpace) MaxKeySize(storeMaxKeySize int) int {
	return storeMaxKeySize - 1 - len(k.Base)
}

// UpperBound returns the lexicographically smallest byte string strictly
// greater than every string having prefix as a prefix, i.e. the exclusive
// upper bound of the half-open range [prefix, UpperBound(prefix)). It
// returns (nil, false) when prefix consists entirely of 0xff bytes (or is
// empty), meaning the range has no finite upper bound and extends to the
// end of the key space.
func UpperBound(prefix []byte) ([]byte, bool) {
	up := append([]byte(nil), prefix...)
	for i := len(up) - 1; i >= 0; i-- {
		if up[i] != 0xff {
			up[i]++
			return up[:i+1], true
		}
	}
	return nil, false
}
