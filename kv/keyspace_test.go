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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeySpaceTagging(t *testing.T) {
	ks := NewKeySpace([]byte{0xAA, 0xBB})

	require.Equal(t, []byte{0xAA, 0xBB, TagIndex}, ks.IndexPrefix())
	require.Equal(t, []byte{0xAA, 0xBB, TagIndex, 1, 2}, ks.IndexKey([]byte{1, 2}))
	require.Equal(t, []byte{0xAA, 0xBB, TagTotalSize}, ks.TotalSizeKey())
	require.Equal(t, []byte{0xAA, 0xBB, TagHash}, ks.HashKey())
	require.Equal(t, []byte{0xAA, 0xBB, TagSizes}, ks.SizesBase())
}

func TestKeySpaceTagsDoNotCollide(t *testing.T) {
	seen := map[byte]bool{}
	for _, tag := range []byte{TagIndex, TagTotalSize, TagSizes, TagHash} {
		assert.False(t, seen[tag], "tag %d used twice", tag)
		seen[tag] = true
	}
	assert.Equal(t, NextFreeTag, TagHash+1)
}

func TestKeySpaceMaxKeySize(t *testing.T) {
	ks := NewKeySpace([]byte{1, 2, 3})
	assert.Equal(t, MaxKeySize-1-3, ks.MaxKeySize(MaxKeySize))
}

func TestUpperBound(t *testing.T) {
	cases := []struct {
		name   string
		prefix []byte
		wantUp []byte
		wantOK bool
	}{
		{"simple", []byte{0, 1}, []byte{0, 2}, true},
		{"trailing 0xff rolls over", []byte{1, 0xff}, []byte{2}, true},
		{"all 0xff has no upper bound", []byte{0xff, 0xff}, nil, false},
		{"empty prefix has no upper bound", nil, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			up, ok := UpperBound(tc.prefix)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantUp, up)
			}
		})
	}
}
