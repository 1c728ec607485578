package interpreter

import (
	"context"

	"github.com/consensus-shipyard/fendermint-sub000/chainmsg"
	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/finality"
)

// VM is the deterministic execution engine's interface boundary (spec
// §4.H: "the VM layer ... this spec constrains only the interface").
// The engine itself is an external collaborator, out of scope (§1).
type VM interface {
	// Execute applies a verified VM message and returns its result.
	Execute(ctx context.Context, msg chainmsg.VMMessage, sender common.NativeAddress) (Result, error)
	// Query answers a read-only query at an optional height (0 = latest).
	Query(ctx context.Context, path string, data []byte, height common.Height) (QueryResult, error)
	// StateRoot returns the current committed state root.
	StateRoot(ctx context.Context) (common.Hash, error)
	// ApplyCheckpointCommit commits a validated bottom-up checkpoint.
	ApplyCheckpointCommit(ctx context.Context, ck chainmsg.Checkpoint) error
	// ApplyTopDown applies a validated top-down finality proposal's
	// cross-messages and validator-power changes.
	ApplyTopDown(ctx context.Context, payload *finality.Payload) error
}

// QueryResult is the outcome of a VM query (spec §6: "query(path, data,
// height) → {code, value, key}").
type QueryResult struct {
	Code  Code
	Value []byte
	Key   []byte
}
