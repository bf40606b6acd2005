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
	rmath "github.com/rkvl/overlaydb/common/math"
)

// SizeData is the aggregate byte-size of a logical image, tracked
// separately for keys and values.
type SizeData struct {
	KeyBytes   uint32
	ValueBytes uint32
}

// add returns s plus (keyBytes, valueBytes), reporting ErrArithmeticOverflow
// if either field would exceed its 32-bit range. s is left unmodified on
// overflow so callers can validate before mutating any other state.
func (s SizeData) add(keyBytes, valueBytes uint32) (SizeData, error) {
	k, overflow := rmath.SafeAdd32(s.KeyBytes, keyBytes)
	if overflow {
		return s, ErrArithmeticOverflow
	}
	v, overflow := rmath.SafeAdd32(s.ValueBytes, valueBytes)
	if overflow {
		return s, ErrArithmeticOverflow
	}
	return SizeData{KeyBytes: k, ValueBytes: v}, nil
}

// sub subtracts (keyBytes, valueBytes) from s. The sizes sub-map is the
// only source of these deductions, and it only ever reports byte counts
// for keys it actually holds, so a count here exceeding s indicates the
// sizes sub-map has drifted out of sync with total_size — an invariant
// violation, not a recoverable condition, hence the panic rather than a
// returned error.
func (s SizeData) sub(keyBytes, valueBytes uint32) SizeData {
	if keyBytes > s.KeyBytes || valueBytes > s.ValueBytes {
		panic("overlay: total size underflow, sizes sub-map out of sync")
	}
	return SizeData{KeyBytes: s.KeyBytes - keyBytes, ValueBytes: s.ValueBytes - valueBytes}
}

func (s SizeData) isZero() bool { return s.KeyBytes == 0 && s.ValueBytes == 0 }
