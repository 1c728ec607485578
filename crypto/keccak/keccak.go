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

// Package keccak wraps the legacy Keccak-256 hash (not NIST SHA3-256) used
// by the Ethereum-delegated signing path (§4.G) to derive addresses and
// transaction hashes.
package keccak

import "golang.org/x/crypto/sha3"

// Sum256 returns the Keccak-256 digest of data.
func Sum256(data ...[]byte) [32]byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	var out [32]byte
	d.Sum(out[:0])
	return out
}

// New returns a resettable Keccak-256 hasher for streaming callers. Its Sum
// returns the digest as a [32]byte, so *Hasher does not implement hash.Hash.
func New() *Hasher { return &Hasher{d: sha3.NewLegacyKeccak256()} }

type Hasher struct{ d interface {
	Write(p []byte) (int, error)
	Sum(b []byte) []byte
	Reset()
} }

func (h *Hasher) Write(p []byte) (int, error) { return h.d.Write(p) }
func (h *Hasher) Reset()                      { h.d.Reset() }
func (h *Hasher) Sum() [32]byte {
	var out [32]byte
	h.d.Sum(out[:0])
	return out
}
