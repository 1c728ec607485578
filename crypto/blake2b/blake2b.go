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

// Package blake2b wraps BLAKE2b-256, the hash used for the native-address
// signing pre-image (§4.G) and for the chain ID derivation (§6 genesis).
package blake2b

import "golang.org/x/crypto/blake2b"

// Sum256 returns the BLAKE2b-256 digest of the concatenation of data.
func Sum256(data ...[]byte) [32]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only fails for an invalid key length, which New256(nil) never hits.
		panic(err)
	}
	for _, b := range data {
		h.Write(b)
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}
