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

package memstore

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/pkg/errors"

	"github.com/rkvl/overlaydb/kv"
	"github.com/rkvl/overlaydb/kv/overlay"
)

// maxStreamQueries bounds the number of prefix-scan calls the façade lets
// run concurrently against the backing store: no parallel fan-out.
const maxStreamQueries = 1

// OverlayStore wraps an overlay.Engine behind the same capability surface
// as a real kv.Store, per spec component 4.F. It serializes access with a
// reader/writer lock (many readers, one writer, no upgrade, no
// recursion) and auto-flushes the engine's staged work into the backing
// store on every write.
type OverlayStore struct {
	mu      sync.RWMutex
	engine  *overlay.Engine
	backing kv.Store
	stream  *semaphore.Weighted
	log     *zap.Logger
}

// Option configures an OverlayStore at construction time.
type Option func(*OverlayStore)

// WithLogger attaches a structured logger to the façade.
func WithLogger(log *zap.Logger) Option {
	return func(o *OverlayStore) { o.log = log }
}

// NewOverlayStore constructs an OverlayStore rooted at base within
// backing, loading the engine's committed state.
func NewOverlayStore(ctx context.Context, backing kv.Store, base []byte, opts ...Option) (*OverlayStore, error) {
	engine := overlay.NewEngine(backing, base)
	if err := engine.Load(ctx); err != nil {
		return nil, errors.Wrap(err, "memstore: load overlay engine")
	}
	o := &OverlayStore{
		engine:  engine,
		backing: backing,
		stream:  semaphore.NewWeighted(maxStreamQueries),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Get returns the value for key, or (nil, false) if absent from the
// logical image.
func (o *OverlayStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.engine.Get(ctx, key)
}

// MultiGet returns one result per input key, preserving order.
func (o *OverlayStore) MultiGet(ctx context.Context, keys [][]byte) ([][]byte, []bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.engine.MultiGet(ctx, keys)
}

// ContainsKey reports whether key is present in the logical image.
func (o *OverlayStore) ContainsKey(ctx context.Context, key []byte) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.engine.ContainsKey(ctx, key)
}

// ContainsKeys reports, per input key and preserving order, whether it is
// present.
func (o *OverlayStore) ContainsKeys(ctx context.Context, keys [][]byte) ([]bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.engine.ContainsKeys(ctx, keys)
}

// FindKeysByPrefix returns, in ascending order, every key suffix in the
// logical image starting with prefix. Bounded to maxStreamQueries
// concurrent backing-store scans.
func (o *OverlayStore) FindKeysByPrefix(ctx context.Context, prefix []byte) ([][]byte, error) {
	if err := o.stream.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "memstore: acquire stream slot")
	}
	defer o.stream.Release(1)

	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.engine.FindKeysByPrefix(ctx, prefix)
}

// FindKeyValuesByPrefix is FindKeysByPrefix but also returns values.
func (o *OverlayStore) FindKeyValuesByPrefix(ctx context.Context, prefix []byte) ([]kv.KeyValue, error) {
	if err := o.stream.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "memstore: acquire stream slot")
	}
	defer o.stream.Release(1)

	o.mu.RLock()
	defer o.mu.RUnlock()
	pairs, err := o.engine.FindKeyValuesByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]kv.KeyValue, len(pairs))
	for i, p := range pairs {
		out[i] = kv.KeyValue{Key: p.Key, Value: p.Value}
	}
	return out, nil
}

// WriteBatch stages batch against the engine, flushes the resulting
// staged state into a fresh physical batch, and commits that batch to
// the backing store, all under the write lock. On any failure the
// engine's staging state may be partially mutated (per spec §7, callers
// that want atomicity must call Rollback); the backing store itself is
// untouched until the final WriteBatch call succeeds.
func (o *OverlayStore) WriteBatch(ctx context.Context, batch kv.Batch) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.engine.WriteBatch(ctx, &batch); err != nil {
		return err
	}

	physical := &kv.Batch{}
	willBeEmpty, err := o.engine.Flush(ctx, physical)
	if err != nil {
		return err
	}
	if err := o.backing.WriteBatch(ctx, *physical); err != nil {
		return errors.Wrap(err, "memstore: commit physical batch")
	}
	o.log.Debug("overlay flush committed",
		zap.Int("logical_ops", batch.Len()),
		zap.Int("physical_ops", physical.Len()),
		zap.Bool("image_empty", willBeEmpty),
	)
	return nil
}

// Insert is a convenience wrapper staging and immediately flushing a
// single Put.
func (o *OverlayStore) Insert(ctx context.Context, key, value []byte) error {
	b := &kv.Batch{}
	b.Put(key, value)
	return o.WriteBatch(ctx, *b)
}

// Remove is a convenience wrapper staging and immediately flushing a
// single Delete.
func (o *OverlayStore) Remove(ctx context.Context, key []byte) error {
	b := &kv.Batch{}
	b.Delete(key)
	return o.WriteBatch(ctx, *b)
}

// RemoveByPrefix is a convenience wrapper staging and immediately
// flushing a single DeletePrefix.
func (o *OverlayStore) RemoveByPrefix(ctx context.Context, prefix []byte) error {
	b := &kv.Batch{}
	b.DeletePrefix(prefix)
	return o.WriteBatch(ctx, *b)
}

// Clear stages removal of the whole logical image and flushes
// immediately.
func (o *OverlayStore) Clear(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.engine.Clear()
	physical := &kv.Batch{}
	if _, err := o.engine.Flush(ctx, physical); err != nil {
		return err
	}
	return o.backing.WriteBatch(ctx, *physical)
}

// Rollback discards any staging state left over from a failed
// WriteBatch call (the façade otherwise always flushes immediately, so
// this is only needed after an error return).
func (o *OverlayStore) Rollback() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.engine.Rollback()
}

// HasPendingChanges reports whether the underlying engine has staged
// work that has not yet been flushed.
func (o *OverlayStore) HasPendingChanges() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.engine.HasPendingChanges()
}

// Hash returns the content hash of the current logical image.
func (o *OverlayStore) Hash(ctx context.Context) ([32]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.engine.Hash(ctx)
}

// TotalSize returns the current aggregate byte size of the logical
// image.
func (o *OverlayStore) TotalSize() overlay.SizeData {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.engine.TotalSize()
}

var _ kv.Store = (*OverlayStore)(nil)
