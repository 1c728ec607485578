// Package convert implements the two unit-conversion concerns the
// Ethereum-compatible facade needs but the core node never does (spec
// §4.J): Filecoin-style actor-address protocols (f0/f1/f2/f4) converted
// to and from the 20-byte Ethereum address the JSON-RPC wire format
// requires, and validator power scaled by the genesis power_scale.
package convert

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/genesis"
)

// IDResolver looks up the actor ID a non-delegated native address (f1
// secp256k1 or f2 actor-hash) has been assigned on-chain. Only the VM
// assigns actor IDs (§1), so this is an interface boundary, not a stored
// table this package owns.
type IDResolver interface {
	ActorID(addr common.NativeAddress) (uint64, bool)
}

// ethMaskedIDPrefix is the reserved high byte FVM's "masked ID" Ethereum
// address convention uses for protocol-0 (ID) addresses: the low 8 bytes
// carry the actor ID, and the remaining 11 bytes are zero.
const ethMaskedIDPrefix = 0xff

// NativeToEth converts a native actor address to its canonical Ethereum
// 0x20-byte form. Protocol 4 (delegated) addresses in the Ethereum
// namespace carry their Ethereum address directly as payload (§4.G,
// common.NativeAddress.EthAddress). Protocol 0 (ID) addresses use FVM's
// masked-ID convention (0xff followed by the big-endian actor ID).
// Protocols 1/2 (secp256k1/actor-hash) have no address bytes an Ethereum
// client can compute without first resolving the assigned actor ID, so
// those go through resolver.
func NativeToEth(addr common.NativeAddress, resolver IDResolver) (common.Address, error) {
	if eth, ok := addr.EthAddress(); ok {
		return eth, nil
	}
	if addr.Protocol == 0 {
		id, err := idFromPayload(addr.Payload)
		if err != nil {
			return common.Address{}, fmt.Errorf("convert: f0 address: %w", err)
		}
		return maskedIDAddress(id), nil
	}

	id, ok := resolver.ActorID(addr)
	if !ok {
		return common.Address{}, fmt.Errorf("convert: no actor id assigned yet for protocol-%d address", addr.Protocol)
	}
	return maskedIDAddress(id), nil
}

func maskedIDAddress(id uint64) common.Address {
	var a common.Address
	a[0] = ethMaskedIDPrefix
	binary.BigEndian.PutUint64(a[common.AddressLength-8:], id)
	return a
}

// EthToNative reverses a masked-ID Ethereum address back to the f0
// address it stands for, or converts a plain (non-masked) address into
// the f4-delegated native form the Ethereum Address Manager actor uses.
func EthToNative(addr common.Address) common.NativeAddress {
	if addr[0] == ethMaskedIDPrefix && isZero(addr[1:common.AddressLength-8]) {
		id := binary.BigEndian.Uint64(addr[common.AddressLength-8:])
		return common.NativeAddress{Protocol: 0, Payload: idPayload(id)}
	}
	return common.NativeAddress{Protocol: 4, Payload: addr.Bytes()}
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// idFromPayload decodes an f0 address's unsigned-varint actor ID payload.
func idFromPayload(payload []byte) (uint64, error) {
	id, n := binary.Uvarint(payload)
	if n <= 0 {
		return 0, fmt.Errorf("malformed varint actor id")
	}
	return id, nil
}

func idPayload(id uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, id)
	return buf[:n]
}

// powerScaleDivisor maps genesis.PowerScale to the divisor balances must
// be scaled down by to get validator voting power (spec §6:
// "power_scale ∈ {0, 3}"; 3 means "power == balance / 10^3").
func powerScaleDivisor(scale genesis.PowerScale) *big.Int {
	if scale == genesis.PowerScaleMilliFIL {
		return big.NewInt(1000)
	}
	return big.NewInt(1)
}

// BalanceToPower scales a balance down to validator power per the
// genesis power_scale. Token balances themselves (atto-FIL) are already
// the same base unit eth_getBalance reports as wei — Filecoin and
// Ethereum both use 18-decimal base units — so no separate atto-FIL/wei
// conversion exists; this is purely the power-scale reduction used to
// derive voting weight from a validator's staked balance.
func BalanceToPower(balance *big.Int, scale genesis.PowerScale) *big.Int {
	if balance == nil {
		return big.NewInt(0)
	}
	divisor := powerScaleDivisor(scale)
	power := new(big.Int).Div(balance, divisor)
	return power
}
