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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkvl/overlaydb/kv"
)

var testBase = []byte{0x01}

func newLoadedEngine(t *testing.T, store kv.Store) *Engine {
	t.Helper()
	e := NewEngine(store, testBase)
	require.NoError(t, e.Load(context.Background()))
	return e
}

func commit(t *testing.T, ctx context.Context, store kv.Store, e *Engine) {
	t.Helper()
	batch := &kv.Batch{}
	_, err := e.Flush(ctx, batch)
	require.NoError(t, err)
	require.NoError(t, store.WriteBatch(ctx, *batch))
}

// Scenario 1 of spec §8.
func TestEngineInsertFlushCommitLoad(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e := newLoadedEngine(t, store)

	require.NoError(t, e.Put(ctx, []byte{0, 1}, []byte{42}))
	require.NoError(t, e.Put(ctx, []byte{0, 2}, []byte{7}))
	commit(t, ctx, store, e)

	e2 := newLoadedEngine(t, store)
	v, ok, err := e2.Get(ctx, []byte{0, 1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{42}, v)

	kvs, err := e2.FindKeyValuesByPrefix(ctx, []byte{0})
	require.NoError(t, err)
	require.Equal(t, []KeyValue{
		{Key: []byte{1}, Value: []byte{42}},
		{Key: []byte{2}, Value: []byte{7}},
	}, kvs)

	assert.Equal(t, SizeData{KeyBytes: 4, ValueBytes: 2}, e2.TotalSize())
}

// Scenario 2 of spec §8.
func TestEngineRemoveByPrefixThenFlushYieldsEmptyImage(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e := newLoadedEngine(t, store)
	require.NoError(t, e.Put(ctx, []byte{0, 1}, []byte{42}))
	require.NoError(t, e.Put(ctx, []byte{0, 2}, []byte{7}))
	commit(t, ctx, store, e)

	require.NoError(t, e.RemoveByPrefix(ctx, []byte{0}))
	commit(t, ctx, store, e)

	e2 := newLoadedEngine(t, store)
	kvs, err := e2.FindKeyValuesByPrefix(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, kvs)
	assert.Equal(t, SizeData{}, e2.TotalSize())

	emptyEngine := NewEngine(newFakeStore(), testBase)
	require.NoError(t, emptyEngine.Load(ctx))
	wantHash, err := emptyEngine.Hash(ctx)
	require.NoError(t, err)
	gotHash, err := e2.Hash(ctx)
	require.NoError(t, err)
	assert.Equal(t, wantHash, gotHash)

	// The hash committed by the flush itself (not just after a fresh
	// Load) must already reflect the post-flush empty image, since Flush
	// persists whatever Hash returns at the time it runs.
	committedHash, found, err := store.Get(ctx, kv.NewKeySpace(testBase).HashKey())
	require.NoError(t, err)
	require.True(t, found)
	var committed [32]byte
	copy(committed[:], committedHash)
	assert.Equal(t, wantHash, committed)
}

// Scenario 3 of spec §8.
func TestEngineUnflushedRemoveByPrefixShadowsPendingInserts(t *testing.T) {
	ctx := context.Background()
	e := newLoadedEngine(t, newFakeStore())

	require.NoError(t, e.Put(ctx, []byte{0, 1}, []byte{34}))
	require.NoError(t, e.Put(ctx, []byte{3, 4}, []byte{42}))
	require.NoError(t, e.RemoveByPrefix(ctx, []byte{0}))

	_, ok, err := e.Get(ctx, []byte{0, 1})
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := e.Get(ctx, []byte{3, 4})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{42}, v)

	kvs, err := e.FindKeyValuesByPrefix(ctx, []byte{0})
	require.NoError(t, err)
	assert.Empty(t, kvs)

	assert.Equal(t, SizeData{KeyBytes: 2, ValueBytes: 1}, e.TotalSize())
}

// Scenario 4 of spec §8.
func TestEngineClearThenInsertFlushesDeletePrefixFirst(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e := newLoadedEngine(t, store)
	require.NoError(t, e.Put(ctx, []byte{5}, []byte{5}))
	commit(t, ctx, store, e)

	e.Clear()
	require.NoError(t, e.Put(ctx, []byte{9}, []byte{9}))

	batch := &kv.Batch{}
	_, err := e.Flush(ctx, batch)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(batch.Ops), 2)
	assert.Equal(t, kv.OpDeletePrefix, batch.Ops[0].Kind)
	assert.Equal(t, testBase, batch.Ops[0].Key)

	var sawPut9 bool
	for _, op := range batch.Ops[1:] {
		if op.Kind == kv.OpPut {
			ks := kv.NewKeySpace(testBase)
			if string(op.Key) == string(ks.IndexKey([]byte{9})) {
				sawPut9 = true
				assert.Equal(t, []byte{9}, op.Value)
			}
		}
	}
	assert.True(t, sawPut9, "expected Put(Index || [9], [9]) after the DeletePrefix")
}

// Scenario 5 of spec §8.
func TestEngineRollbackDiscardsStagedWork(t *testing.T) {
	ctx := context.Background()
	e := newLoadedEngine(t, newFakeStore())

	require.NoError(t, e.Put(ctx, []byte{1}, []byte{1}))
	e.Rollback()

	_, ok, err := e.Get(ctx, []byte{1})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, e.HasPendingChanges())
}

// Scenario 6 of spec §8 (ForEachIndexWhile, the supplemental feature
// carried forward from original_source's for_each_index_while).
func TestEngineForEachIndexWhileShortCircuits(t *testing.T) {
	ctx := context.Background()
	e := newLoadedEngine(t, newFakeStore())
	require.NoError(t, e.Put(ctx, []byte{0, 1}, []byte("x")))
	require.NoError(t, e.Put(ctx, []byte{0, 2}, []byte("y")))

	var seen [][]byte
	err := e.ForEachIndexWhile(ctx, func(key, value []byte) bool {
		seen = append(seen, append([]byte(nil), key...))
		return false
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, []byte{0, 1}, seen[0])
}

func TestEngineKeyTooLongLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	e := newLoadedEngine(t, newFakeStore())
	max := e.maxKeySize

	longKey := make([]byte, max+1)
	err := e.Put(ctx, longKey, []byte{1})
	assert.ErrorIs(t, err, ErrKeyTooLong)
	assert.False(t, e.HasPendingChanges())

	okKey := make([]byte, max)
	require.NoError(t, e.Put(ctx, okKey, []byte{1}))
}

func TestEngineRoundTripLoadApplyFlushCommitLoad(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e := newLoadedEngine(t, store)
	require.NoError(t, e.Put(ctx, []byte{1}, []byte{1}))
	require.NoError(t, e.Remove(ctx, []byte{2})) // no-op remove of an absent key
	commit(t, ctx, store, e)

	replay := newLoadedEngine(t, store)
	v, ok, err := replay.Get(ctx, []byte{1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{1}, v)
	assert.Equal(t, e.TotalSize(), replay.TotalSize())
}

func TestEngineHashStableAcrossEquivalentSequences(t *testing.T) {
	ctx := context.Background()
	e1 := newLoadedEngine(t, newFakeStore())
	require.NoError(t, e1.Put(ctx, []byte{1}, []byte{1}))
	require.NoError(t, e1.Put(ctx, []byte{2}, []byte{2}))
	h1, err := e1.Hash(ctx)
	require.NoError(t, err)

	e2 := newLoadedEngine(t, newFakeStore())
	require.NoError(t, e2.Put(ctx, []byte{2}, []byte{2}))
	require.NoError(t, e2.Put(ctx, []byte{1}, []byte{1}))
	h2, err := e2.Hash(ctx)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)

	require.NoError(t, e2.Put(ctx, []byte{3}, []byte{3}))
	h3, err := e2.Hash(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestEngineMultiGetMatchesGet(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e := newLoadedEngine(t, store)
	require.NoError(t, e.Put(ctx, []byte{1}, []byte{1}))
	commit(t, ctx, store, e)
	require.NoError(t, e.Remove(ctx, []byte{3})) // staged Removed, never persisted

	keys := [][]byte{{1}, {2}, {3}}
	values, found, err := e.MultiGet(ctx, keys)
	require.NoError(t, err)
	for i, k := range keys {
		v, ok, err := e.Get(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, ok, found[i])
		assert.Equal(t, v, values[i])
	}
}

func TestEngineCloneIsIndependent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e := newLoadedEngine(t, store)
	require.NoError(t, e.Put(ctx, []byte{1}, []byte{1}))
	commit(t, ctx, store, e)
	require.NoError(t, e.Put(ctx, []byte{2}, []byte{2}))

	clone := e.Clone()

	require.NoError(t, clone.Put(ctx, []byte{3}, []byte{3}))
	require.NoError(t, clone.Remove(ctx, []byte{1}))

	_, ok, err := e.Get(ctx, []byte{3})
	require.NoError(t, err)
	assert.False(t, ok, "writes on the clone must not leak back into e")

	v, ok, err := e.Get(ctx, []byte{1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{1}, v)

	v, ok, err = clone.Get(ctx, []byte{2})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{2}, v, "the clone must still see state staged on e before cloning")

	_, ok, err = clone.Get(ctx, []byte{1})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, SizeData{KeyBytes: 2, ValueBytes: 2}, e.TotalSize())
	assert.Equal(t, SizeData{KeyBytes: 2, ValueBytes: 2}, clone.TotalSize())
}
