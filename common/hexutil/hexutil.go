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

// Package hexutil implements the "0x"-prefixed hex encoding the Ethereum
// JSON-RPC facade (§6) uses for quantities and byte strings.
package hexutil

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
)

var ErrMissingPrefix = fmt.Errorf("hex string without 0x prefix")

// Bytes marshals/unmarshals as a "0x"-prefixed hex string.
type Bytes []byte

func (b Bytes) MarshalText() ([]byte, error) {
	result := make([]byte, len(b)*2+2)
	copy(result, `0x`)
	hex.Encode(result[2:], b)
	return result, nil
}

func (b Bytes) String() string { return Encode(b) }

func (b *Bytes) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return err
	}
	raw, err := Decode(s)
	if err != nil {
		return err
	}
	*b = raw
	return nil
}

func Decode(s string) ([]byte, error) {
	if len(s) < 2 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return nil, ErrMissingPrefix
	}
	s = s[2:]
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

func Encode(b []byte) string { return "0x" + hex.EncodeToString(b) }

// Uint64 marshals/unmarshals as a "0x"-prefixed hex quantity.
type Uint64 uint64

func (u Uint64) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("0x%x", uint64(u))), nil
}

func (u *Uint64) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return err
	}
	if len(s) < 2 || s[0:2] != "0x" {
		return ErrMissingPrefix
	}
	v, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return err
	}
	*u = Uint64(v)
	return nil
}

// Big marshals/unmarshals as a "0x"-prefixed hex big integer.
type Big big.Int

func (b *Big) MarshalText() ([]byte, error) {
	return []byte("0x" + (*big.Int)(b).Text(16)), nil
}

func (b *Big) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return err
	}
	raw, err := Decode2(s)
	if err != nil {
		return err
	}
	(*big.Int)(b).SetBytes(raw)
	return nil
}

func Decode2(s string) ([]byte, error) {
	if len(s) < 2 || s[0:2] != "0x" {
		return nil, ErrMissingPrefix
	}
	s = s[2:]
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

func (b *Big) ToInt() *big.Int { return (*big.Int)(b) }

func EncodeBig(i *big.Int) string {
	if i == nil {
		return "0x0"
	}
	return "0x" + i.Text(16)
}

func EncodeUint64(i uint64) string { return fmt.Sprintf("0x%x", i) }

// UnmarshalFixedText decodes a "0x"-prefixed hex string of exactly
// len(out)*2 hex digits into out, for fixed-size types (hashes,
// addresses) that implement encoding.TextUnmarshaler by delegating here.
func UnmarshalFixedText(typname string, input, out []byte) error {
	if len(input) < 2 || input[0] != '0' || (input[1] != 'x' && input[1] != 'X') {
		return ErrMissingPrefix
	}
	digits := input[2:]
	if len(digits) != len(out)*2 {
		return fmt.Errorf("hex string has length %d, want %d for %s", len(digits), len(out)*2, typname)
	}
	raw, err := hex.DecodeString(string(digits))
	if err != nil {
		return err
	}
	copy(out, raw)
	return nil
}
