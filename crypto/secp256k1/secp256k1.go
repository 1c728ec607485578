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

// Package secp256k1 wraps btcec's secp256k1 implementation into the
// 65-byte recoverable-signature shape (§4.G) shared by both signing
// schemes: 64 bytes of R||S followed by one recovery byte in {0,1,2,3}.
package secp256k1

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

const (
	SignatureLength = 65
	PubkeyLength    = 33 // compressed
)

var (
	ErrInvalidSignatureLen = errors.New("secp256k1: invalid signature length")
	ErrInvalidRecoveryID   = errors.New("secp256k1: invalid recovery id")
)

// PrivateKey is a secp256k1 scalar.
type PrivateKey struct{ key *btcec.PrivateKey }

func GenerateKey() (*PrivateKey, error) {
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: k}, nil
}

func PrivateKeyFromBytes(b []byte) *PrivateKey {
	k, _ := btcec.PrivKeyFromBytes(b)
	return &PrivateKey{key: k}
}

func (p *PrivateKey) Bytes() []byte { return p.key.Serialize() }

func (p *PrivateKey) PublicKey() []byte { return p.key.PubKey().SerializeCompressed() }

// Sign produces a 65-byte [R || S || V] recoverable signature over a
// pre-hashed 32-byte digest. V is the recovery id in {0,1,2,3}; the two
// signing schemes in §4.G both use 27/28-unbiased recovery ids 0/1 in the
// common case, but higher ids from btcec's compact form are preserved as-is
// so Recover can invert them exactly.
func Sign(digest []byte, priv *PrivateKey) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("secp256k1: digest must be 32 bytes, got %d", len(digest))
	}
	sig := btcecdsa.SignCompact(priv.key, digest, false)
	// btcec compact form is [recoveryByte || R || S] with recoveryByte
	// offset by 27 (+4 if compressed). Re-pack into [R || S || V].
	recoveryByte := sig[0]
	v := (recoveryByte - 27) & 0x3
	out := make([]byte, SignatureLength)
	copy(out[0:64], sig[1:65])
	out[64] = v
	return out, nil
}

// Recover recovers the compressed public key from a signature and digest.
func Recover(digest, sig []byte) ([]byte, error) {
	if len(sig) != SignatureLength {
		return nil, ErrInvalidSignatureLen
	}
	if sig[64] > 3 {
		return nil, ErrInvalidRecoveryID
	}
	compact := make([]byte, 65)
	compact[0] = 27 + sig[64]
	copy(compact[1:], sig[:64])
	pub, _, err := btcecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return nil, fmt.Errorf("secp256k1: recover: %w", err)
	}
	return pub.SerializeCompressed(), nil
}

// DecompressPubkey expands a 33-byte compressed public key into its
// 65-byte uncompressed form (0x04 || X || Y), needed by the
// Ethereum-delegated address derivation (Keccak-256 of X||Y).
func DecompressPubkey(compressed []byte) ([]byte, error) {
	pub, err := btcec.ParsePubKey(compressed)
	if err != nil {
		return nil, fmt.Errorf("secp256k1: decompress: %w", err)
	}
	out := make([]byte, 65)
	out[0] = 0x04
	xb := pub.X().Bytes()
	yb := pub.Y().Bytes()
	copy(out[1+32-len(xb):33], xb)
	copy(out[33+32-len(yb):65], yb)
	return out, nil
}

// VerifySignature reports whether sig is a valid signature of digest by the
// holder of pubkey (compressed or uncompressed form), without recovery.
func VerifySignature(pubkey, digest, sig []byte) bool {
	if len(sig) < 64 {
		return false
	}
	pub, err := btcec.ParsePubKey(pubkey)
	if err != nil {
		return false
	}
	r := new(big.Int).SetBytes(sig[0:32])
	s := new(big.Int).SetBytes(sig[32:64])
	ecdsaPub := &ecdsa.PublicKey{Curve: btcec.S256(), X: pub.X(), Y: pub.Y()}
	return ecdsa.Verify(ecdsaPub, digest, r, s)
}
