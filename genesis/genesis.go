// Package genesis implements genesis decoding (spec §6): the parser
// accepts either JSON or a deterministic binary encoding, trying JSON
// first, and derives the chain ID from the chain name.
//
// Grounded on go-ethereum's core/genesis.go JSON-tag-struct decode idiom
// (struct with `json:"..."` tags, custom UnmarshalJSON left to the
// standard library's default struct decode, explicit validation after
// decode) — reconstructed here since the pack only retrieved that
// package's tests, not `core/genesis.go` itself.
package genesis

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/crypto/blake2b"
)

// PowerScale enumerates the two power-scale bases the spec allows
// (spec §6: "power_scale ∈ {0, 3}").
type PowerScale uint8

const (
	PowerScaleUnit     PowerScale = 0 // power == token balance, unscaled
	PowerScaleMilliFIL PowerScale = 3 // power == balance / 10^3
)

func (p PowerScale) valid() bool { return p == PowerScaleUnit || p == PowerScaleMilliFIL }

// Validator is one genesis validator entry.
type Validator struct {
	PublicKey []byte `json:"public_key"`
	Power     uint64 `json:"power"`
}

// Account is a plain, single-owner genesis account allocation.
type Account struct {
	Owner   common.NativeAddress `json:"owner"`
	Balance []byte               `json:"balance"` // big-endian token amount
}

// Multisig is a multi-signature genesis account allocation with an
// optional linear vesting schedule.
type Multisig struct {
	Signers         []common.NativeAddress `json:"signers"`
	Threshold       uint64                 `json:"threshold"`
	Balance         []byte                 `json:"balance"`
	VestingStart    uint64                 `json:"vesting_start"`
	VestingDuration uint64                 `json:"vesting_duration"`
}

// AccountAllocation is the genesis accounts[] union: exactly one of
// Account or Multisig is set.
type AccountAllocation struct {
	Account  *Account  `json:"account,omitempty"`
	Multisig *Multisig `json:"multisig,omitempty"`
}

// Gateway holds the optional ipc.gateway genesis block (spec §6).
type Gateway struct {
	SubnetID              []byte `json:"subnet_id"`
	BottomUpCheckPeriod   uint64 `json:"bottom_up_check_period"`
	MsgFee                []byte `json:"msg_fee"`
	MajorityPercentage    uint8  `json:"majority_percentage"`
	MinCollateral         []byte `json:"min_collateral"`
	ActiveValidatorsLimit uint16 `json:"active_validators_limit"`
}

// IPC is the optional top-level ipc{} genesis block.
type IPC struct {
	Gateway *Gateway `json:"gateway,omitempty"`
}

// Genesis is the full decoded genesis document (spec §6).
type Genesis struct {
	ChainName      string              `json:"chain_name"`
	Timestamp      int64               `json:"timestamp"`
	NetworkVersion uint64              `json:"network_version"`
	BaseFee        []byte              `json:"base_fee"`
	PowerScale     PowerScale          `json:"power_scale"`
	Validators     []Validator         `json:"validators"`
	Accounts       []AccountAllocation `json:"accounts"`
	IPC            *IPC                `json:"ipc,omitempty"`
}

var (
	ErrMissingChainName  = errors.New("genesis: chain_name is required")
	ErrInvalidPowerScale = errors.New("genesis: power_scale must be 0 or 3")
	ErrEmptyValidators   = errors.New("genesis: at least one validator is required")
	ErrAmbiguousAccount  = errors.New("genesis: an accounts[] entry must set exactly one of account or multisig")
)

func (g *Genesis) validate() error {
	if g.ChainName == "" {
		return ErrMissingChainName
	}
	if !g.PowerScale.valid() {
		return ErrInvalidPowerScale
	}
	if len(g.Validators) == 0 {
		return ErrEmptyValidators
	}
	for i, a := range g.Accounts {
		if (a.Account == nil) == (a.Multisig == nil) {
			return fmt.Errorf("%w: entry %d", ErrAmbiguousAccount, i)
		}
	}
	return nil
}

// ChainID derives the 8-byte chain identifier from the chain name (spec
// §6: "ChainID = BLAKE2b-256(chain_name) truncated"), truncated to the
// low 8 bytes to fit the uint64 chain-ID term the signed-message layer
// binds into its pre-images (§4.G).
func ChainID(chainName string) uint64 {
	digest := blake2b.Sum256([]byte(chainName))
	return binary.BigEndian.Uint64(digest[24:32])
}

// Decode parses raw genesis bytes, trying JSON first and falling back to
// the deterministic binary encoding (spec §6: "parser tries JSON first").
func Decode(raw []byte) (*Genesis, error) {
	var g Genesis
	if err := json.Unmarshal(raw, &g); err == nil {
		if verr := g.validate(); verr != nil {
			return nil, verr
		}
		return &g, nil
	}
	bg, err := decodeBinary(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis: neither JSON nor binary decode succeeded: %w", err)
	}
	if verr := bg.validate(); verr != nil {
		return nil, verr
	}
	return bg, nil
}
