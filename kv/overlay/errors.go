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

import "errors"

// Sentinel error kinds surfaced to callers. The engine recovers nothing
// locally: every failure is propagated upward, and a caller that wants the
// staging state restored must call Engine.Rollback.
var (
	// ErrKeyTooLong is returned when a key exceeds the budget computed by
	// the engine's KeySpace. The engine's state is left unchanged.
	ErrKeyTooLong = errors.New("overlay: key too long")

	// ErrArithmeticOverflow is returned when a total-size counter would
	// exceed its 32-bit range. It is checked before the overflowing op
	// mutates anything; ops applied earlier in the same batch stay staged.
	ErrArithmeticOverflow = errors.New("overlay: arithmetic overflow")

	// ErrPostLoadValues is returned when the backing store's MultiGet
	// hands back a different number of results than the keys requested.
	ErrPostLoadValues = errors.New("overlay: post-load values error")
)
