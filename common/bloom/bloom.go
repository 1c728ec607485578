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

// Package bloom implements the 2048-bit, 3-hash Ethereum log bloom filter,
// used by the eth_getLogs filter system (§4.J) to cheaply skip blocks that
// cannot contain a match before scanning their logs.
package bloom

import "github.com/consensus-shipyard/fendermint-sub000/crypto/keccak"

const BloomByteLength = 256

type Bloom [BloomByteLength]byte

func (b *Bloom) Add(data []byte) {
	h := keccak.Sum256(data)
	for i := 0; i < 3; i++ {
		bitIdx := (uint(h[2*i+1]) + uint(h[2*i])<<8) & 2047
		b[BloomByteLength-1-bitIdx/8] |= 1 << (bitIdx % 8)
	}
}

func (b Bloom) Test(data []byte) bool {
	var probe Bloom
	probe.Add(data)
	for i := range b {
		if probe[i]&b[i] != probe[i] {
			return false
		}
	}
	return true
}

func (b *Bloom) OrInto(other Bloom) {
	for i := range b {
		b[i] |= other[i]
	}
}

func BytesToBloom(b []byte) Bloom {
	var r Bloom
	if len(b) > BloomByteLength {
		b = b[len(b)-BloomByteLength:]
	}
	copy(r[BloomByteLength-len(b):], b)
	return r
}
