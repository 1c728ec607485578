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

// Package common holds small value types shared across every layer of the
// node: block heights, hashes, and the two address families (native actor
// addresses and Ethereum-delegated addresses) that a cross-message or a
// signed message may carry.
package common

import (
	"encoding/hex"
	"fmt"
)

const (
	HashLength    = 32
	AddressLength = 20
)

// Height is a monotonically increasing block index within a single chain.
// Parent and child chains each have their own, unrelated Height sequence.
type Height = uint64

// Hash is a 32-byte content digest: a block hash, a CID-style payload
// reference, or a cross-message hash.
type Hash [HashLength]byte

func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

func (h Hash) IsZero() bool { return h == Hash{} }

func HashFromHex(s string) (Hash, error) {
	b, err := decodeHexPrefixed(s)
	if err != nil {
		return Hash{}, err
	}
	if len(b) != HashLength {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashLength, len(b))
	}
	return BytesToHash(b), nil
}

// Address is an Ethereum-shaped 20-byte address. Native (Filecoin-style)
// actor addresses are held as their own variable-length encoding — see
// NativeAddress below — and are only ever converted to this 20-byte form
// for the Ethereum-delegated namespace (§4.G).
type Address [AddressLength]byte

func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

func (a Address) Bytes() []byte { return a[:] }

func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }

func (a Address) IsZero() bool { return a == Address{} }

func decodeHexPrefixed(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}

// AddressScheme distinguishes which pre-image binding (§4.G) a sender
// address uses.
type AddressScheme uint8

const (
	SchemeNative AddressScheme = iota
	SchemeEthereum
)

// NativeAddress is a Filecoin-style actor address: a one-byte protocol tag
// followed by a variable-length payload. Protocol 4 ("delegated") addresses
// whose namespace is the Ethereum Address Manager actor ID carry a 20-byte
// Ethereum address as their payload; AddressScheme reports SchemeEthereum
// for those and SchemeNative for everything else (§4.G).
type NativeAddress struct {
	Protocol byte
	Payload  []byte
}

// EthNamespace is the reserved actor ID namespace for delegated Ethereum
// addresses, per the FVM address manager convention.
const EthNamespace uint64 = 10

func (a NativeAddress) Scheme(namespace uint64) AddressScheme {
	if a.Protocol == 4 && namespace == EthNamespace {
		return SchemeEthereum
	}
	return SchemeNative
}

func (a NativeAddress) EthAddress() (Address, bool) {
	if a.Protocol != 4 || len(a.Payload) < AddressLength {
		return Address{}, false
	}
	return BytesToAddress(a.Payload[len(a.Payload)-AddressLength:]), true
}
