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

// Package memstore provides an in-memory kv.Store reference
// implementation and the locked OverlayStore façade that exercises the
// overlay staging engine against it, for use by tests and by callers with
// no persistence requirement.
package memstore

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/rkvl/overlaydb/kv"
)

type entryItem struct {
	key   []byte
	value []byte
}

func (a entryItem) Less(than btree.Item) bool {
	return bytes.Compare(a.key, than.(entryItem).key) < 0
}

// Store is a sorted, in-memory kv.Store backed by a btree.BTree. It is
// safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	tree *btree.BTree
	log  *zap.Logger
}

// StoreOption configures a Store at construction time.
type StoreOption func(*Store)

// WithStoreLogger attaches a structured logger to the store.
func WithStoreLogger(log *zap.Logger) StoreOption {
	return func(s *Store) { s.log = log }
}

// NewStore returns an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{tree: btree.New(32), log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Get returns the value for key, or (nil, false) if absent.
func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item := s.tree.Get(entryItem{key: key})
	if item == nil {
		return nil, false, nil
	}
	return copyBytes(item.(entryItem).value), true, nil
}

// MultiGet returns one result per input key, preserving order.
func (s *Store) MultiGet(_ context.Context, keys [][]byte) ([][]byte, []bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make([][]byte, len(keys))
	found := make([]bool, len(keys))
	for i, k := range keys {
		if item := s.tree.Get(entryItem{key: k}); item != nil {
			values[i] = copyBytes(item.(entryItem).value)
			found[i] = true
		}
	}
	return values, found, nil
}

// ContainsKey reports whether key is present.
func (s *Store) ContainsKey(_ context.Context, key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Get(entryItem{key: key}) != nil, nil
}

// ContainsKeys reports, per input key and preserving order, whether it is
// present.
func (s *Store) ContainsKeys(_ context.Context, keys [][]byte) ([]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make([]bool, len(keys))
	for i, k := range keys {
		found[i] = s.tree.Get(entryItem{key: k}) != nil
	}
	return found, nil
}

// FindKeysByPrefix returns, in ascending lexicographic order, every stored
// key starting with prefix.
func (s *Store) FindKeysByPrefix(_ context.Context, prefix []byte) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	upper, hasUpper := kv.UpperBound(prefix)
	var out [][]byte
	s.tree.AscendGreaterOrEqual(entryItem{key: prefix}, func(item btree.Item) bool {
		e := item.(entryItem)
		if hasUpper && bytes.Compare(e.key, upper) >= 0 {
			return false
		}
		out = append(out, copyBytes(e.key))
		return true
	})
	return out, nil
}

// FindKeyValuesByPrefix is FindKeysByPrefix but also returns values.
func (s *Store) FindKeyValuesByPrefix(_ context.Context, prefix []byte) ([]kv.KeyValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	upper, hasUpper := kv.UpperBound(prefix)
	var out []kv.KeyValue
	s.tree.AscendGreaterOrEqual(entryItem{key: prefix}, func(item btree.Item) bool {
		e := item.(entryItem)
		if hasUpper && bytes.Compare(e.key, upper) >= 0 {
			return false
		}
		out = append(out, kv.KeyValue{Key: copyBytes(e.key), Value: copyBytes(e.value)})
		return true
	})
	return out, nil
}

// WriteBatch applies every operation in batch, in order.
func (s *Store) WriteBatch(_ context.Context, batch kv.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range batch.Ops {
		switch op.Kind {
		case kv.OpPut:
			s.tree.ReplaceOrInsert(entryItem{key: copyBytes(op.Key), value: copyBytes(op.Value)})
		case kv.OpDelete:
			s.tree.Delete(entryItem{key: op.Key})
		case kv.OpDeletePrefix:
			s.deletePrefixLocked(op.Key)
		}
	}
	s.log.Debug("write batch applied", zap.Int("ops", batch.Len()))
	return nil
}

func (s *Store) deletePrefixLocked(prefix []byte) {
	upper, hasUpper := kv.UpperBound(prefix)
	var doomed []entryItem
	s.tree.AscendGreaterOrEqual(entryItem{key: prefix}, func(item btree.Item) bool {
		e := item.(entryItem)
		if hasUpper && bytes.Compare(e.key, upper) >= 0 {
			return false
		}
		doomed = append(doomed, e)
		return true
	})
	for _, e := range doomed {
		s.tree.Delete(e)
	}
}

var _ kv.Store = (*Store)(nil)
