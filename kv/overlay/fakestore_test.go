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
	"bytes"
	"context"
	"sort"

	"github.com/rkvl/overlaydb/kv"
)

// fakeStore is a minimal, unsorted-map-backed kv.Store used only by this
// package's own tests, kept deliberately simpler than memstore.Store
// (which cannot be imported here: memstore imports overlay).
type fakeStore struct {
	entries map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string][]byte)}
}

func (f *fakeStore) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	v, ok := f.entries[string(key)]
	return v, ok, nil
}

func (f *fakeStore) MultiGet(_ context.Context, keys [][]byte) ([][]byte, []bool, error) {
	values := make([][]byte, len(keys))
	found := make([]bool, len(keys))
	for i, k := range keys {
		v, ok := f.entries[string(k)]
		values[i], found[i] = v, ok
	}
	return values, found, nil
}

func (f *fakeStore) ContainsKey(_ context.Context, key []byte) (bool, error) {
	_, ok := f.entries[string(key)]
	return ok, nil
}

func (f *fakeStore) ContainsKeys(_ context.Context, keys [][]byte) ([]bool, error) {
	found := make([]bool, len(keys))
	for i, k := range keys {
		_, found[i] = f.entries[string(k)]
	}
	return found, nil
}

func (f *fakeStore) sortedKeysWithPrefix(prefix []byte) []string {
	var keys []string
	for k := range f.entries {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeStore) FindKeysByPrefix(_ context.Context, prefix []byte) ([][]byte, error) {
	var out [][]byte
	for _, k := range f.sortedKeysWithPrefix(prefix) {
		out = append(out, []byte(k))
	}
	return out, nil
}

func (f *fakeStore) FindKeyValuesByPrefix(_ context.Context, prefix []byte) ([]kv.KeyValue, error) {
	var out []kv.KeyValue
	for _, k := range f.sortedKeysWithPrefix(prefix) {
		out = append(out, kv.KeyValue{Key: []byte(k), Value: f.entries[k]})
	}
	return out, nil
}

func (f *fakeStore) WriteBatch(_ context.Context, batch kv.Batch) error {
	for _, op := range batch.Ops {
		switch op.Kind {
		case kv.OpPut:
			f.entries[string(op.Key)] = append([]byte(nil), op.Value...)
		case kv.OpDelete:
			delete(f.entries, string(op.Key))
		case kv.OpDeletePrefix:
			for _, k := range f.sortedKeysWithPrefix(op.Key) {
				delete(f.entries, k)
			}
		}
	}
	return nil
}

var _ kv.Store = (*fakeStore)(nil)
