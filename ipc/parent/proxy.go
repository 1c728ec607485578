// Package parent implements the read-only proxy over the parent chain
// (spec §4.B). It normalizes the parent's null-round error convention into
// a typed result so that every other component (the syncer, the finality
// provider) never parses an upstream error string.
//
// Grounded on the teacher corpus's execution-layer client split: a thin
// RPC-backed implementation for production (paolofacchinetti-erigon's
// execution_client_rpc.go) and an in-process implementation for tests
// (execution_client_direct.go), both satisfying one interface so callers
// are backend-agnostic.
package parent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/consensus-shipyard/fendermint-sub000/common"
)

// NullRoundToken is the substring the parent's RPC uses to report a slot
// with no block (§4.B). Real deployments read this from the parent RPC's
// error message; it is a constant here because the wire client itself is
// out of scope (§1).
const NullRoundToken = "requested epoch was a null round"

// BlockHashes is the parent block's own hash together with its parent's
// hash, as returned by block_hash(h).
type BlockHashes struct {
	ParentHash common.Hash
	BlockHash  common.Hash
	NullRound  bool
}

// ValidatorChange is one entry of a validator-set transition observed on
// the parent chain, ordered by ConfigurationNumber (§3).
type ValidatorChange struct {
	ConfigurationNumber uint64
	PublicKey           []byte
	Power               uint64 // 0 encodes removal
}

// CrossMessage is a top-down cross-chain message observed on the parent
// chain, ordered by Nonce (§3).
type CrossMessage struct {
	Nonce     uint64
	From      common.NativeAddress
	To        common.NativeAddress
	Method    uint64
	Value     []byte // big-endian token amount
	Params    []byte
}

// Error wraps a non-null-round proxy failure with the height it occurred
// at, per spec §4.B: "Every other error surfaces with (reason, height)."
type Error struct {
	Reason string
	Height common.Height
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("parent proxy: %s at height %d: %v", e.Reason, e.Height, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Proxy is the read-only interface over the parent chain (spec §4.B).
type Proxy interface {
	ChainHeadHeight(ctx context.Context) (common.Height, error)
	GenesisEpoch(ctx context.Context) (common.Height, error)
	BlockHash(ctx context.Context, h common.Height) (BlockHashes, error)
	TopDownMsgs(ctx context.Context, h common.Height, blockHash common.Hash) ([]CrossMessage, error)
	ValidatorChanges(ctx context.Context, h common.Height) ([]ValidatorChange, error)
}

// RPCTransport is the minimal shape this package needs from an RPC client:
// one JSON-RPC style call per method, taking positional params and
// unmarshaling the result into result. Concrete transports (HTTP, unix
// socket) implement this; the parent RPC wire client itself is out of
// scope (§1) and only its consumption interface lives here.
type RPCTransport interface {
	Call(ctx context.Context, result interface{}, method string, params ...interface{}) error
}

// RPCProxy is the production Proxy, translating the parent RPC's
// null-round error convention at the boundary (§4.B).
type RPCProxy struct {
	transport RPCTransport
}

func NewRPCProxy(transport RPCTransport) *RPCProxy {
	return &RPCProxy{transport: transport}
}

func (p *RPCProxy) ChainHeadHeight(ctx context.Context) (common.Height, error) {
	var h common.Height
	if err := p.transport.Call(ctx, &h, "Filecoin.ChainHead"); err != nil {
		return 0, &Error{Reason: "chain_head_height", Err: err}
	}
	return h, nil
}

func (p *RPCProxy) GenesisEpoch(ctx context.Context) (common.Height, error) {
	var h common.Height
	if err := p.transport.Call(ctx, &h, "Filecoin.ChainGetGenesis"); err != nil {
		return 0, &Error{Reason: "genesis_epoch", Err: err}
	}
	return h, nil
}

// BlockHash implements the §4.B edge case: "except block_hash(1), which
// returns empty hashes" (the parent's genesis-adjacent height has no
// well-defined parent hash).
func (p *RPCProxy) BlockHash(ctx context.Context, h common.Height) (BlockHashes, error) {
	if h == 1 {
		return BlockHashes{}, nil
	}
	var raw struct {
		ParentHash common.Hash
		BlockHash  common.Hash
	}
	err := p.transport.Call(ctx, &raw, "Filecoin.ChainGetBlockHash", h)
	if isNullRound(err) {
		return BlockHashes{NullRound: true}, nil
	}
	if err != nil {
		return BlockHashes{}, &Error{Reason: "block_hash", Height: h, Err: err}
	}
	return BlockHashes{ParentHash: raw.ParentHash, BlockHash: raw.BlockHash}, nil
}

// TopDownMsgs implements the §4.B edge case: on a null round, returns an
// empty vector rather than an error.
func (p *RPCProxy) TopDownMsgs(ctx context.Context, h common.Height, blockHash common.Hash) ([]CrossMessage, error) {
	var msgs []CrossMessage
	err := p.transport.Call(ctx, &msgs, "Filecoin.IPCTopDownMsgs", h, blockHash)
	if isNullRound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Reason: "top_down_msgs", Height: h, Err: err}
	}
	return msgs, nil
}

func (p *RPCProxy) ValidatorChanges(ctx context.Context, h common.Height) ([]ValidatorChange, error) {
	var changes []ValidatorChange
	err := p.transport.Call(ctx, &changes, "Filecoin.IPCValidatorChanges", h)
	if isNullRound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Reason: "validator_changes", Height: h, Err: err}
	}
	return changes, nil
}

func isNullRound(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), NullRoundToken)
}

// ErrHeightNotFound is returned by StaticProxy when asked about a height
// it was never seeded with — used only in tests, where the production
// RPCProxy would instead see a genuine upstream error.
var ErrHeightNotFound = errors.New("parent proxy: height not found")

var (
	_ Proxy = (*RPCProxy)(nil)
	_ Proxy = (*StaticProxy)(nil)
)
