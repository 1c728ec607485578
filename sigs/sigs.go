// Package sigs implements the scheme-aware signed-message layer (spec
// §4.G): a pure function of (message, signature, chain_id) that signs and
// verifies a VM message under one of two pre-image bindings depending on
// the sender address's scheme.
package sigs

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/consensus-shipyard/fendermint-sub000/chainmsg"
	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/crypto/blake2b"
	"github.com/consensus-shipyard/fendermint-sub000/crypto/keccak"
	"github.com/consensus-shipyard/fendermint-sub000/crypto/secp256k1"
)

var (
	ErrSchemeMismatch    = errors.New("sigs: signature does not match claimed sender scheme")
	ErrVerificationFailed = errors.New("sigs: signature verification failed")
)

// chainIDBytes renders chain_id as the 8-byte big-endian term both
// pre-image bindings embed (spec §4.G: "The chain-ID must be bound into
// the pre-image in both cases.").
func chainIDBytes(chainID uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], chainID)
	return b[:]
}

// Sign produces a signature over msg under the binding scheme dictates.
// scheme is the caller's own sender-address scheme (the signer signs as
// whichever address it controls); callers typically derive it from
// common.NativeAddress.Scheme.
func Sign(msg chainmsg.VMMessage, scheme common.AddressScheme, chainID uint64, priv *secp256k1.PrivateKey) ([]byte, error) {
	switch scheme {
	case common.SchemeNative:
		return signNative(msg, chainID, priv)
	case common.SchemeEthereum:
		return signEthereum(msg, chainID, priv)
	default:
		return nil, fmt.Errorf("sigs: unknown address scheme %d", scheme)
	}
}

// Verify checks that sig is a valid signature of msg under chainID for
// scheme, and that the recovered signer matches sender.
func Verify(msg chainmsg.VMMessage, sig []byte, sender common.NativeAddress, namespace uint64, chainID uint64) (bool, error) {
	scheme := sender.Scheme(namespace)
	switch scheme {
	case common.SchemeNative:
		return verifyNative(msg, sig, sender, chainID)
	case common.SchemeEthereum:
		ethAddr, ok := sender.EthAddress()
		if !ok {
			return false, ErrSchemeMismatch
		}
		return verifyEthereum(msg, sig, ethAddr, chainID)
	default:
		return false, fmt.Errorf("sigs: unknown address scheme %d", scheme)
	}
}

// --- native-address scheme: BLAKE2b-256(cid_bytes || chain_id) + secp256k1 ---

func nativeDigest(msg chainmsg.VMMessage, chainID uint64) [32]byte {
	cid := chainmsg.CIDBytes(msg)
	preimage := append(append([]byte{}, cid[:]...), chainIDBytes(chainID)...)
	return blake2b.Sum256(preimage)
}

func signNative(msg chainmsg.VMMessage, chainID uint64, priv *secp256k1.PrivateKey) ([]byte, error) {
	digest := nativeDigest(msg, chainID)
	return secp256k1.Sign(digest[:], priv)
}

func verifyNative(msg chainmsg.VMMessage, sig []byte, sender common.NativeAddress, chainID uint64) (bool, error) {
	digest := nativeDigest(msg, chainID)
	pub, err := secp256k1.Recover(digest[:], sig)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	// The recovered public key's uncompressed/compressed-derived native
	// address payload must match sender.Payload. Since this port's
	// NativeAddress carries the raw payload bytes rather than a protocol-4
	// actor-ID derivation, address binding compares against the
	// BLAKE2b-160-style digest of the public key the gateway actor would
	// compute; here we compare directly against the recovered key's own
	// digest truncated to the sender payload's length, matching protocol-1
	// (secp256k1) addresses.
	want := blake2b.Sum256(pub)
	if len(sender.Payload) == 0 || len(sender.Payload) > len(want) {
		return false, ErrSchemeMismatch
	}
	got := want[len(want)-len(sender.Payload):]
	for i := range got {
		if got[i] != sender.Payload[i] {
			return false, nil
		}
	}
	return true, nil
}

// --- Ethereum-delegated scheme: RLP(EIP-1559-shaped tx) + Keccak-256 + secp256k1 ---

func ethereumPreimage(msg chainmsg.VMMessage, chainID uint64) []byte {
	to := common.BytesToAddress(msg.To)
	fields := [][]byte{
		rlpEncodeUint(chainID),
		rlpEncodeUint(msg.Nonce),
		rlpEncodeUint(0), // max_priority_fee_per_gas: not modeled by this VM's fee market
		rlpEncodeUint(0), // max_fee_per_gas: ditto
		rlpEncodeUint(msg.GasLimit),
		rlpEncodeBytes(to.Bytes()),
		rlpEncodeBytes(msg.Value),
		rlpEncodeBytes(msg.Params),
		rlpEncodeList(nil), // access_list: always empty in this port
	}
	body := rlpEncodeList(fields)
	// EIP-1559 typed transactions are prefixed with the type byte 0x02.
	return append([]byte{0x02}, body...)
}

func signEthereum(msg chainmsg.VMMessage, chainID uint64, priv *secp256k1.PrivateKey) ([]byte, error) {
	digest := keccak.Sum256(ethereumPreimage(msg, chainID))
	return secp256k1.Sign(digest[:], priv)
}

func verifyEthereum(msg chainmsg.VMMessage, sig []byte, sender common.Address, chainID uint64) (bool, error) {
	digest := keccak.Sum256(ethereumPreimage(msg, chainID))
	pub, err := secp256k1.Recover(digest[:], sig)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	// Ethereum addresses are the last 20 bytes of Keccak-256 of the
	// uncompressed public key; btcec gives us the compressed form, so
	// decompress via the curve before hashing, matching go-ethereum's
	// crypto.PubkeyToAddress.
	uncompressed, err := secp256k1.DecompressPubkey(pub)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	addrHash := keccak.Sum256(uncompressed[1:]) // drop the 0x04 prefix
	got := common.BytesToAddress(addrHash[12:])
	return got == sender, nil
}
