// Copyright 2017 The go-ethereum Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
// Copyright 2026 The overlaydb Authors
// (further modifications)
// This file is part of overlaydb, derived from Erigon's common/math package.
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

// Package math holds small overflow-checked arithmetic helpers shared by
// the overlay staging engine's size accounting.
package math

// SafeAdd32 returns x+y and reports whether the addition overflowed a
// uint32. Used to keep the staging engine's total-size counters from
// silently wrapping.
func SafeAdd32(x, y uint32) (uint32, bool) {
	sum := x + y
	return sum, sum < x
}
