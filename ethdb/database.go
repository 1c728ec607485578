// Copyright 2023 The subnetd Authors
// This file is part of the subnetd library.
//
// The subnetd library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The subnetd library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the subnetd library. If not, see <http://www.gnu.org/licenses/>.

// Package ethdb defines the minimal key-value store contract this repo
// needs at its boundary with persistent storage (out of scope per §1):
// the checkpoint store (§4.F) and the snapshot manager's manifest index
// (§4.I) both just need Get/Put/Delete/Has over raw bytes.
package ethdb

import "io"

// KeyValueReader wraps the Has and Get methods of a backing store.
type KeyValueReader interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
}

// KeyValueWriter wraps the Put and Delete methods of a backing store.
type KeyValueWriter interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Iterator iterates over a KeyValueStore's key-value pairs in key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
}

// KeyValueStore contains all the methods required to allow handling
// different key-value data stores backing the node's non-VM state
// (checkpoint records, snapshot manifests).
type KeyValueStore interface {
	KeyValueReader
	KeyValueWriter
	io.Closer

	NewIterator(prefix []byte) Iterator
}
