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

// Package overlay implements the staging and merge engine of an overlaid
// key-value view: a transactional, in-memory layer that buffers mutations
// over a persistent kv.Store and exposes the full read/write surface of
// one while they remain unflushed.
package overlay

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"github.com/rkvl/overlaydb/kv"
)

// Engine is the staging and merge engine described in spec component 4.E.
// It is not safe for concurrent use; callers must serialize top-level
// operations against a single instance (see memstore for a locked
// façade).
type Engine struct {
	store kv.Store
	ks    kv.KeySpace

	maxKeySize int

	pending *pendingUpdates
	delSet  *DeletionSet
	sizes   *sizes

	totalSize       SizeData
	storedTotalSize SizeData

	hashMu     sync.Mutex
	hash       *[32]byte
	storedHash *[32]byte
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithMaxKeySize overrides the backing store's advertised MaxKeySize, for
// stores with a tighter limit than kv.MaxKeySize.
func WithMaxKeySize(storeMaxKeySize int) Option {
	return func(e *Engine) {
		e.maxKeySize = e.ks.MaxKeySize(storeMaxKeySize)
	}
}

// NewEngine constructs an unloaded Engine rooted at base within store. Call
// Load before using it.
func NewEngine(store kv.Store, base []byte, opts ...Option) *Engine {
	ks := kv.NewKeySpace(base)
	e := &Engine{
		store:      store,
		ks:         ks,
		maxKeySize: ks.MaxKeySize(kv.MaxKeySize),
		pending:    newPendingUpdates(),
		delSet:     NewDeletionSet(),
	}
	e.sizes = newSizes(store, ks.SizesBase())
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load reads the stored hash and total-size singletons (either may be
// absent) and initializes pending state to empty. It must be called
// before any other Engine method.
func (e *Engine) Load(ctx context.Context) error {
	raw, found, err := e.store.Get(ctx, e.ks.TotalSizeKey())
	if err != nil {
		return errors.Wrap(err, "overlay: load total size")
	}
	if found {
		sd, err := decodeSizeData(raw)
		if err != nil {
			return errors.Wrap(err, "overlay: decode total size")
		}
		e.totalSize = sd
		e.storedTotalSize = sd
	} else {
		e.totalSize = SizeData{}
		e.storedTotalSize = SizeData{}
	}

	raw, found, err = e.store.Get(ctx, e.ks.HashKey())
	if err != nil {
		return errors.Wrap(err, "overlay: load hash")
	}
	if found {
		h, err := decodeHash(raw)
		if err != nil {
			return errors.Wrap(err, "overlay: decode hash")
		}
		e.hash = &h
		e.storedHash = &h
	} else {
		e.hash = nil
		e.storedHash = nil
	}

	e.pending = newPendingUpdates()
	e.delSet = NewDeletionSet()
	return nil
}

func decodeSizeData(b []byte) (SizeData, error) {
	if len(b) != 8 {
		return SizeData{}, errors.Errorf("overlay: corrupt total-size entry (%d bytes)", len(b))
	}
	return SizeData{
		KeyBytes:   binary.BigEndian.Uint32(b[0:4]),
		ValueBytes: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

func encodeSizeData(sd SizeData) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], sd.KeyBytes)
	binary.BigEndian.PutUint32(b[4:8], sd.ValueBytes)
	return b
}

func decodeHash(b []byte) ([32]byte, error) {
	var h [32]byte
	if len(b) != 32 {
		return h, errors.Errorf("overlay: corrupt hash entry (%d bytes)", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// TotalSize returns the current aggregate byte size of the logical image
// (as if all pending work were committed).
func (e *Engine) TotalSize() SizeData { return e.totalSize }

func (e *Engine) checkKeyLen(k []byte) error {
	if len(k) > e.maxKeySize {
		return ErrKeyTooLong
	}
	return nil
}

// Get returns the value for k, or (nil, false) if k is absent from the
// logical image.
func (e *Engine) Get(ctx context.Context, k []byte) ([]byte, bool, error) {
	if err := e.checkKeyLen(k); err != nil {
		return nil, false, err
	}
	if upd, ok := e.pending.get(k); ok {
		if !upd.isSet() {
			return nil, false, nil
		}
		return upd.value, true, nil
	}
	if e.delSet.ContainsPrefixOf(k) {
		return nil, false, nil
	}
	v, found, err := e.store.Get(ctx, e.ks.IndexKey(k))
	if err != nil {
		return nil, false, errors.Wrap(err, "overlay: get")
	}
	return v, found, nil
}

// ContainsKey reports whether k is present in the logical image.
func (e *Engine) ContainsKey(ctx context.Context, k []byte) (bool, error) {
	_, found, err := e.Get(ctx, k)
	return found, err
}

// MultiGet returns one result per input key, preserving order. Keys that
// are neither staged nor prefix-covered are bundled into a single backing
// store MultiGet call.
func (e *Engine) MultiGet(ctx context.Context, keys [][]byte) ([][]byte, []bool, error) {
	values := make([][]byte, len(keys))
	found := make([]bool, len(keys))

	var missIdx []int
	var missKeys [][]byte
	for i, k := range keys {
		if err := e.checkKeyLen(k); err != nil {
			return nil, nil, err
		}
		if upd, ok := e.pending.get(k); ok {
			if upd.isSet() {
				values[i] = upd.value
				found[i] = true
			}
			continue
		}
		if e.delSet.ContainsPrefixOf(k) {
			continue
		}
		missIdx = append(missIdx, i)
		missKeys = append(missKeys, e.ks.IndexKey(k))
	}

	if len(missKeys) == 0 {
		return values, found, nil
	}

	storeValues, storeFound, err := e.store.MultiGet(ctx, missKeys)
	if err != nil {
		return nil, nil, errors.Wrap(err, "overlay: multi get")
	}
	if len(storeValues) != len(missKeys) || len(storeFound) != len(missKeys) {
		return nil, nil, ErrPostLoadValues
	}
	for j, i := range missIdx {
		values[i] = storeValues[j]
		found[i] = storeFound[j]
	}
	return values, found, nil
}

// ContainsKeys reports, per input key and preserving order, whether it is
// present in the logical image.
func (e *Engine) ContainsKeys(ctx context.Context, keys [][]byte) ([]bool, error) {
	_, found, err := e.MultiGet(ctx, keys)
	return found, err
}

// backingIndexRange fetches, from the backing store, every (key, value)
// pair physically stored under the Index tag in [prefix, upper(prefix)),
// returned with the Index tag stripped (full logical key retained).
func (e *Engine) backingIndexRange(ctx context.Context, prefix []byte) ([]kv.KeyValue, error) {
	physicalPrefix := e.ks.IndexKey(prefix)
	raw, err := e.store.FindKeyValuesByPrefix(ctx, physicalPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "overlay: find key values by prefix")
	}
	strip := len(e.ks.IndexPrefix())
	out := make([]kv.KeyValue, len(raw))
	for i, kvp := range raw {
		out[i] = kv.KeyValue{Key: kvp.Key[strip:], Value: kvp.Value}
	}
	return out, nil
}

func prefixRangeBounds(prefix []byte) (lo, hi []byte) {
	hi, hasHi := kv.UpperBound(prefix)
	if !hasHi {
		hi = nil
	}
	return prefix, hi
}

// FindKeysByPrefix returns, in ascending lexicographic order, every key
// suffix (prefix stripped) in the logical image starting with prefix.
func (e *Engine) FindKeysByPrefix(ctx context.Context, prefix []byte) ([][]byte, error) {
	var backing []kv.KeyValue
	var err error
	if !e.delSet.ClearAll() {
		backing, err = e.backingIndexRange(ctx, prefix)
		if err != nil {
			return nil, err
		}
	}
	lo, hi := prefixRangeBounds(prefix)

	var out [][]byte
	mergeRange(backing, e.pending, lo, hi, e.delSet, e.delSet.ClearAll(), func(key, value []byte) bool {
		out = append(out, append([]byte(nil), key[len(prefix):]...))
		return true
	})
	return out, nil
}

// KeyValue is one surviving logical (key-suffix, value) pair from a range
// query, prefix already stripped.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// FindKeyValuesByPrefix is FindKeysByPrefix but also returns values.
func (e *Engine) FindKeyValuesByPrefix(ctx context.Context, prefix []byte) ([]KeyValue, error) {
	var backing []kv.KeyValue
	var err error
	if !e.delSet.ClearAll() {
		backing, err = e.backingIndexRange(ctx, prefix)
		if err != nil {
			return nil, err
		}
	}
	lo, hi := prefixRangeBounds(prefix)

	var out []KeyValue
	mergeRange(backing, e.pending, lo, hi, e.delSet, e.delSet.ClearAll(), func(key, value []byte) bool {
		out = append(out, KeyValue{
			Key:   append([]byte(nil), key[len(prefix):]...),
			Value: append([]byte(nil), value...),
		})
		return true
	})
	return out, nil
}

// ForEachIndexWhile walks the whole logical image in ascending key order,
// calling fn(key, value) for each entry until fn returns false or the
// image is exhausted. It shares the same three-way merge used by the
// prefix-scan methods, with an empty prefix (the whole index namespace).
func (e *Engine) ForEachIndexWhile(ctx context.Context, fn func(key, value []byte) bool) error {
	var backing []kv.KeyValue
	var err error
	if !e.delSet.ClearAll() {
		backing, err = e.backingIndexRange(ctx, nil)
		if err != nil {
			return err
		}
	}
	mergeRange(backing, e.pending, nil, nil, e.delSet, e.delSet.ClearAll(), fn)
	return nil
}

// Put stages k -> v. A thin wrapper around WriteBatch for a single op.
func (e *Engine) Put(ctx context.Context, k, v []byte) error {
	b := &kv.Batch{}
	b.Put(k, v)
	return e.WriteBatch(ctx, b)
}

// Remove stages the removal of k.
func (e *Engine) Remove(ctx context.Context, k []byte) error {
	b := &kv.Batch{}
	b.Delete(k)
	return e.WriteBatch(ctx, b)
}

// RemoveByPrefix stages the removal of every key starting with prefix.
func (e *Engine) RemoveByPrefix(ctx context.Context, prefix []byte) error {
	b := &kv.Batch{}
	b.DeletePrefix(prefix)
	return e.WriteBatch(ctx, b)
}

// WriteBatch applies a sequence of logical Put/Delete/DeletePrefix
// operations to the staging state, maintaining every invariant in spec
// §3. The key length of every op is checked before any op is applied, so
// ErrKeyTooLong leaves the engine unchanged. Each op then does its
// arithmetic check and backing-store reads before any of its own
// mutations, so the op that fails changes nothing; ops earlier in the
// batch stay applied (Rollback discards them). Reading the sizes
// sub-map's prior lengths is itself a backing-store boundary, hence the
// context.
func (e *Engine) WriteBatch(ctx context.Context, batch *kv.Batch) error {
	for _, op := range batch.Ops {
		if err := e.checkKeyLen(op.Key); err != nil {
			return err
		}
	}
	for _, op := range batch.Ops {
		switch op.Kind {
		case kv.OpPut:
			if err := e.applyPut(ctx, op.Key, op.Value); err != nil {
				return err
			}
		case kv.OpDelete:
			if err := e.applyDelete(ctx, op.Key); err != nil {
				return err
			}
		case kv.OpDeletePrefix:
			if err := e.applyDeletePrefix(ctx, op.Key); err != nil {
				return err
			}
		}
		e.hash = nil
	}
	return nil
}

func (e *Engine) applyPut(ctx context.Context, k, v []byte) error {
	var priorLen uint32
	var hadPrior bool
	if n, ok, err := e.sizes.Get(ctx, k); err != nil {
		return errors.Wrap(err, "overlay: read prior size")
	} else if ok {
		priorLen, hadPrior = n, true
	}

	next := e.totalSize
	var err error
	next, err = next.add(uint32(len(k)), uint32(len(v)))
	if err != nil {
		return err
	}
	if hadPrior {
		next = next.sub(uint32(len(k)), priorLen)
	}

	e.totalSize = next
	e.sizes.Insert(k, uint32(len(v)))
	e.pending.set(k, v)
	return nil
}

func (e *Engine) applyDelete(ctx context.Context, k []byte) error {
	n, ok, err := e.sizes.Get(ctx, k)
	if err != nil {
		return errors.Wrap(err, "overlay: read prior size")
	}
	if ok {
		e.totalSize = e.totalSize.sub(uint32(len(k)), n)
		e.sizes.Remove(k)
	}
	if e.delSet.ContainsPrefixOf(k) {
		e.pending.delete(k)
		return nil
	}
	e.pending.markRemoved(k)
	return nil
}

func (e *Engine) applyDeletePrefix(ctx context.Context, p []byte) error {
	entries, err := e.sizes.KeyValuesByPrefix(ctx, p)
	if err != nil {
		return errors.Wrap(err, "overlay: read prior sizes by prefix")
	}

	e.pending.deleteRange(p)
	for _, ent := range entries {
		e.totalSize = e.totalSize.sub(uint32(len(ent.Key)), ent.Size)
	}
	e.sizes.RemoveByPrefix(p)
	e.delSet.InsertPrefix(p)
	return nil
}

// HasPendingChanges reports whether any staged work is outstanding:
// pending updates, a staged prefix deletion or clear, a size aggregate
// that differs from the last committed value, the sizes sub-map, or an
// invalidated hash cache.
func (e *Engine) HasPendingChanges() bool {
	if e.pending.len() > 0 || e.delSet.HasPendingChanges() {
		return true
	}
	if e.totalSize != e.storedTotalSize {
		return true
	}
	if e.sizes.HasPendingChanges() {
		return true
	}
	if e.hash == nil && e.storedHash != nil {
		return true
	}
	if e.hash != nil && (e.storedHash == nil || *e.hash != *e.storedHash) {
		return true
	}
	return false
}

// Rollback restores the last committed snapshot: pending updates and the
// deletion set are discarded, total_size is restored from the stored
// value, the sizes sub-map is rolled back, and the cached hash is reset
// to the stored value.
func (e *Engine) Rollback() {
	e.pending.clear()
	e.delSet.Rollback()
	e.sizes.Rollback()
	e.totalSize = e.storedTotalSize
	e.hashMu.Lock()
	if e.storedHash != nil {
		h := *e.storedHash
		e.hash = &h
	} else {
		e.hash = nil
	}
	e.hashMu.Unlock()
}

// Clear stages the removal of the entire logical image: pending updates
// are emptied, the sizes sub-map is cleared, total_size resets to zero,
// and the cached hash is invalidated. Writes staged after Clear are
// retained and will be written on top of the wiped backing image at the
// next flush.
func (e *Engine) Clear() {
	e.pending.clear()
	e.delSet.Clear()
	e.sizes.Clear()
	e.totalSize = SizeData{}
	e.hash = nil
}

// Flush appends the physical operations that materialize all staged
// changes into batch and advances the stored-snapshot markers (total
// size, hash, clear_all). When the flush materializes a Clear, it reports
// whether no user entries were written on top of the wiped image; for any
// other flush it reports false, whatever the resulting image holds.
//
// The content hash is computed before pending/delSet are drained below:
// it must see the same (pending, delSet, clearAll) that describe the new
// logical image, not the emptied staging state that batch construction
// leaves behind. Computing it after draining would hash the old committed
// backing image plus nothing staged, which is the pre-flush image.
func (e *Engine) Flush(ctx context.Context, batch *kv.Batch) (willBeEmpty bool, err error) {
	clearAll := e.delSet.ClearAll()

	h, herr := e.Hash(ctx)
	if herr != nil {
		return false, herr
	}

	if clearAll {
		batch.DeletePrefix(e.ks.Base)
		e.storedTotalSize = SizeData{}
		e.storedHash = nil

		emittedAny := false
		e.pending.ascendAll(func(key []byte, upd update) bool {
			if upd.isSet() {
				batch.Put(e.ks.IndexKey(key), upd.value)
				emittedAny = true
			}
			return true
		})
		willBeEmpty = !emittedAny
	} else {
		for _, p := range e.delSet.TakePrefixes() {
			batch.DeletePrefix(e.ks.IndexKey(p))
		}
		e.pending.ascendAll(func(key []byte, upd update) bool {
			if upd.isSet() {
				batch.Put(e.ks.IndexKey(key), upd.value)
			} else {
				batch.Delete(e.ks.IndexKey(key))
			}
			return true
		})
	}
	e.delSet.SetClearAll(false)
	e.pending.clear()

	e.sizes.Flush(batch)

	if e.storedHash == nil || h != *e.storedHash {
		batch.Put(e.ks.HashKey(), append([]byte(nil), h[:]...))
		stored := h
		e.storedHash = &stored
	}

	if e.totalSize != e.storedTotalSize {
		if e.totalSize.isZero() {
			// Load treats an absent total-size key the same as a zero one;
			// don't persist a literal zero entry when the whole image has
			// drained back to empty.
			batch.Delete(e.ks.TotalSizeKey())
		} else {
			batch.Put(e.ks.TotalSizeKey(), encodeSizeData(e.totalSize))
		}
		e.storedTotalSize = e.totalSize
	}

	return willBeEmpty, nil
}

// Clone returns a deep, independent copy of e: pending updates, the
// deletion set, and the sizes sub-map are all copied (per spec §9, "clones
// are deep, including sub-map state"), as are the total-size and hash
// scalars. The backing store and key space are shared capability handles,
// not cloned, since the clone is not a new ownership root over them.
func (e *Engine) Clone() *Engine {
	clone := &Engine{
		store:           e.store,
		ks:              e.ks,
		maxKeySize:      e.maxKeySize,
		pending:         e.pending.clone(),
		delSet:          e.delSet.Clone(),
		sizes:           e.sizes.Clone(),
		totalSize:       e.totalSize,
		storedTotalSize: e.storedTotalSize,
	}
	e.hashMu.Lock()
	if e.hash != nil {
		h := *e.hash
		clone.hash = &h
	}
	if e.storedHash != nil {
		h := *e.storedHash
		clone.storedHash = &h
	}
	e.hashMu.Unlock()
	return clone
}

// Hash returns the cached content hash of the logical image, recomputing
// it if the cache is empty. The cache is guarded by its own mutex
// independent of the engine's mutation discipline (see spec §9): after
// recomputing without holding the lock, the method re-checks the cell
// before storing, so a concurrent recompute never clobbers a fresher
// value.
func (e *Engine) Hash(ctx context.Context) ([32]byte, error) {
	e.hashMu.Lock()
	if e.hash != nil {
		h := *e.hash
		e.hashMu.Unlock()
		return h, nil
	}
	e.hashMu.Unlock()

	var backing []kv.KeyValue
	var err error
	if !e.delSet.ClearAll() {
		backing, err = e.backingIndexRange(ctx, nil)
		if err != nil {
			return [32]byte{}, err
		}
	}
	h := computeHash(backing, e.pending, e.delSet)

	e.hashMu.Lock()
	defer e.hashMu.Unlock()
	if e.hash == nil {
		e.hash = &h
	}
	return *e.hash, nil
}
