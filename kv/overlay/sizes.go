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
	"context"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/rkvl/overlaydb/kv"
)

// sizes is the nested key -> value-length sub-map described in spec
// component 4.D. Logically it is staged the same way the outer engine is
// (a pending Set/Removed map plus a domination-free deleted-prefix set),
// just for a fixed uint32 value type, so it is built directly on top of
// pendingUpdates and DeletionSet rather than duplicating their logic.
type sizes struct {
	store kv.Store
	base  []byte

	pending *pendingUpdates
	delSet  *DeletionSet
}

func newSizes(store kv.Store, base []byte) *sizes {
	return &sizes{
		store:   store,
		base:    append([]byte(nil), base...),
		pending: newPendingUpdates(),
		delSet:  NewDeletionSet(),
	}
}

func encodeSize(n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}

func decodeSize(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, errors.Errorf("overlay: corrupt sizes entry (%d bytes)", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

func (s *sizes) physicalKey(key []byte) []byte {
	out := make([]byte, 0, len(s.base)+len(key))
	out = append(out, s.base...)
	out = append(out, key...)
	return out
}

// Get returns the staged or persisted length of key.
func (s *sizes) Get(ctx context.Context, key []byte) (uint32, bool, error) {
	if upd, ok := s.pending.get(key); ok {
		if !upd.isSet() {
			return 0, false, nil
		}
		n, err := decodeSize(upd.value)
		return n, err == nil, err
	}
	if s.delSet.ContainsPrefixOf(key) {
		return 0, false, nil
	}
	raw, found, err := s.store.Get(ctx, s.physicalKey(key))
	if err != nil || !found {
		return 0, false, err
	}
	n, err := decodeSize(raw)
	return n, err == nil, err
}

// Insert stages key's length as n.
func (s *sizes) Insert(key []byte, n uint32) {
	s.pending.set(key, encodeSize(n))
}

// Remove stages key's removal.
func (s *sizes) Remove(key []byte) {
	s.pending.markRemoved(key)
}

// RemoveByPrefix stages every key under prefix for removal: it drops
// matching pending entries and stages the prefix itself for deletion so
// the removal also reaches anything already persisted.
func (s *sizes) RemoveByPrefix(prefix []byte) {
	s.pending.deleteRange(prefix)
	s.delSet.InsertPrefix(prefix)
}

// sizeEntry is one surviving (key, length) pair. Unlike the outer engine's
// FindKeyValuesByPrefix, key is the full logical key, not prefix-stripped:
// callers of this internal helper (the engine's WriteBatch, when applying
// a DeletePrefix) need the actual keys to fold into total-size bookkeeping.
type sizeEntry struct {
	Key  []byte
	Size uint32
}

// KeyValuesByPrefix returns every surviving (key, length) pair under
// prefix, in ascending key order.
func (s *sizes) KeyValuesByPrefix(ctx context.Context, prefix []byte) ([]sizeEntry, error) {
	physicalPrefix := s.physicalKey(prefix)
	raw, err := s.store.FindKeyValuesByPrefix(ctx, physicalPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "sizes: find key values by prefix")
	}
	backing := make([]kv.KeyValue, len(raw))
	for i, kvp := range raw {
		backing[i] = kv.KeyValue{Key: kvp.Key[len(s.base):], Value: kvp.Value}
	}

	hi, hasHi := kv.UpperBound(prefix)
	if !hasHi {
		hi = nil
	}

	var out []sizeEntry
	var mergeErr error
	mergeRange(backing, s.pending, prefix, hi, s.delSet, s.delSet.ClearAll(), func(key, value []byte) bool {
		n, err := decodeSize(value)
		if err != nil {
			mergeErr = err
			return false
		}
		out = append(out, sizeEntry{Key: append([]byte(nil), key...), Size: n})
		return true
	})
	if mergeErr != nil {
		return nil, mergeErr
	}
	return out, nil
}

// HasPendingChanges reports whether any staged Set/Removed entry or
// deleted prefix is outstanding.
func (s *sizes) HasPendingChanges() bool {
	return s.pending.len() > 0 || s.delSet.HasPendingChanges()
}

// Clear stages the removal of every persisted entry.
func (s *sizes) Clear() {
	s.pending.clear()
	s.delSet.Clear()
}

// Rollback discards every staged change.
func (s *sizes) Rollback() {
	s.pending.clear()
	s.delSet.Rollback()
}

// Flush appends the physical operations that materialize all staged
// changes into batch, in deletion-then-write order, and resets staging
// state as if the flush had already happened.
func (s *sizes) Flush(batch *kv.Batch) {
	if s.delSet.ClearAll() {
		batch.DeletePrefix(s.base)
	} else {
		for _, p := range s.delSet.TakePrefixes() {
			batch.DeletePrefix(s.physicalKey(p))
		}
	}
	s.delSet.SetClearAll(false)

	s.pending.ascendAll(func(key []byte, upd update) bool {
		if upd.isSet() {
			batch.Put(s.physicalKey(key), append([]byte(nil), upd.value...))
		} else {
			batch.Delete(s.physicalKey(key))
		}
		return true
	})
	s.pending.clear()
}

// Clone returns a deep, independent copy of s sharing the same backing
// store and base.
func (s *sizes) Clone() *sizes {
	return &sizes{
		store:   s.store,
		base:    append([]byte(nil), s.base...),
		pending: s.pending.clone(),
		delSet:  s.delSet.Clone(),
	}
}
