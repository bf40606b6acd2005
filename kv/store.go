// Copyright 2024 The Erigon Authors
// (style and structure)
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

// Package kv defines the capability surface overlaydb consumes from a
// persistent byte-level key-value store, and the physical key-space layout
// the overlay staging engine writes into that store.
package kv

import "context"

// MaxKeySize and MaxValueSize are the limits a backing Store guarantees it
// can hold. The overlay engine enforces MaxKeySize minus its own tag
// overhead on every key it accepts.
const (
	MaxKeySize   = 1 << 14
	MaxValueSize = 1 << 24
)

// Store is the external, persistent key-value capability the overlay
// staging engine is built on top of. Implementations must return sorted
// output from the two prefix-scan methods and must not retain slices
// passed into WriteBatch beyond the call.
type Store interface {
	// Get returns the value for key, or (nil, false) if absent.
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	// MultiGet returns one result per input key, preserving order.
	MultiGet(ctx context.Context, keys [][]byte) ([][]byte, []bool, error)
	// ContainsKey reports whether key is present.
	ContainsKey(ctx context.Context, key []byte) (bool, error)
	// ContainsKeys reports, per input key and preserving order, whether it
	// is present.
	ContainsKeys(ctx context.Context, keys [][]byte) ([]bool, error)
	// FindKeysByPrefix returns, in ascending lexicographic order, every
	// stored key starting with prefix (including the prefix itself).
	FindKeysByPrefix(ctx context.Context, prefix []byte) ([][]byte, error)
	// FindKeyValuesByPrefix is FindKeysByPrefix but also returns values.
	FindKeyValuesByPrefix(ctx context.Context, prefix []byte) ([]KeyValue, error)
	// WriteBatch applies every operation in batch atomically.
	WriteBatch(ctx context.Context, batch Batch) error
}

// KeyValue is a single stored entry, as returned by FindKeyValuesByPrefix.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// OpKind distinguishes the three physical write-batch operations a Store
// must support.
type OpKind int

const (
	OpPut OpKind = iota
	OpDelete
	OpDeletePrefix
)

// Op is a single physical write-batch entry.
type Op struct {
	Kind  OpKind
	Key   []byte
	Value []byte // only meaningful for OpPut
}

// Batch is an ordered sequence of physical write operations, applied in
// order by Store.WriteBatch.
type Batch struct {
	Ops []Op
}

// Put appends a Put operation.
func (b *Batch) Put(key, value []byte) {
	b.Ops = append(b.Ops, Op{Kind: OpPut, Key: key, Value: value})
}

// Delete appends a Delete operation.
func (b *Batch) Delete(key []byte) {
	b.Ops = append(b.Ops, Op{Kind: OpDelete, Key: key})
}

// DeletePrefix appends a DeletePrefix operation.
func (b *Batch) DeletePrefix(prefix []byte) {
	b.Ops = append(b.Ops, Op{Kind: OpDeletePrefix, Key: prefix})
}

// Len reports the number of operations staged in the batch.
func (b *Batch) Len() int { return len(b.Ops) }
