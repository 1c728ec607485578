package interpreter

import (
	"context"
	"fmt"

	"github.com/consensus-shipyard/fendermint-sub000/chainmsg"
	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/finality"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/resolve"
	"github.com/consensus-shipyard/fendermint-sub000/log"
)

// ChainLayer multiplexes by ChainMessage variant (spec §4.H "Chain
// layer"): it is the layer that knows how to build a proposal, validate
// one, deliver a committed message, and mempool-check an inbound one.
type ChainLayer struct {
	signed   *SignedLayer
	vm       VM
	finality *finality.Provider
	pool     *resolve.Pool
	log      log.Logger
}

func NewChainLayer(signed *SignedLayer, vm VM, fin *finality.Provider, pool *resolve.Pool) *ChainLayer {
	return &ChainLayer{signed: signed, vm: vm, finality: fin, pool: pool, log: log.New("layer", "chain")}
}

// PrepareProposal implements spec §4.H's prepare-proposal: drain resolved
// items from the resolve pool as BottomUpExec transactions, then append a
// TopDownProposal if the finality provider has one ready.
func (c *ChainLayer) PrepareProposal(ctx context.Context, raw [][]byte) ([][]byte, error) {
	proposal := make([][]byte, 0, len(raw)+2)

	for _, b := range raw {
		msg, err := DecodeChainMessage(b)
		if err != nil {
			c.log.Debug("dropping malformed proposal entry", "err", err)
			continue
		}
		if msg.Ipc != nil && (msg.Ipc.BottomUpExec != nil || msg.Ipc.TopDownProposal != nil) {
			// Only the chain layer itself originates these variants;
			// anything carrying them from an external proposer input is
			// dropped here rather than re-proposed verbatim.
			continue
		}
		proposal = append(proposal, b)
	}

	for _, item := range c.pool.CollectResolved() {
		proposal = append(proposal, encodeBottomUpExecPlaceholder(item))
	}

	if prop, ok := c.finality.NextProposal(); ok {
		proposal = append(proposal, encodeTopDownProposal(prop))
	}

	return proposal, nil
}

// ProcessProposal implements spec §4.H's process-proposal: every
// BottomUpExec referenced must already be resolved locally, and every
// TopDownProposal must pass finality_provider.check_proposal.
func (c *ChainLayer) ProcessProposal(ctx context.Context, raw [][]byte) (bool, error) {
	for _, b := range raw {
		msg, err := DecodeChainMessage(b)
		if err != nil {
			return false, nil
		}
		if msg.Ipc == nil {
			continue
		}
		switch {
		case msg.Ipc.TopDownProposal != nil:
			if !c.finality.CheckProposal(*msg.Ipc.TopDownProposal) {
				return false, nil
			}
		case msg.Ipc.BottomUpExec != nil:
			item := resolveItemFromCheckpoint(msg.Ipc.BottomUpExec.Value)
			status, tracked := c.pool.GetStatus(item)
			if !tracked || status != resolve.Resolved {
				return false, nil
			}
		}
	}
	return true, nil
}

// Deliver implements spec §4.H's deliver multiplexing.
func (c *ChainLayer) Deliver(ctx context.Context, msg chainmsg.ChainMessage) (Result, error) {
	switch {
	case msg.Signed != nil:
		return c.signed.Deliver(ctx, *msg.Signed)

	case msg.Ipc != nil && msg.Ipc.BottomUpResolve != nil:
		// Synthesizing the gateway invocation that validates the quorum
		// certificate is part of the VM (§1); this repo's in-scope part
		// is registering the referenced item in the pool on success.
		item := resolveItemFromCheckpoint(msg.Ipc.BottomUpResolve.Value.Value)
		c.pool.Add(item)
		c.pool.MarkResolved(item)
		return Result{Code: CodeOK}, nil

	case msg.Ipc != nil && msg.Ipc.BottomUpExec != nil:
		ck := msg.Ipc.BottomUpExec.Value
		if err := c.vm.ApplyCheckpointCommit(ctx, ck); err != nil {
			werr := fmt.Errorf("deliver bottom-up exec: %w", err)
			return errResult(werr, 0), werr
		}
		return Result{Code: CodeOK}, nil

	case msg.Ipc != nil && msg.Ipc.TopDownProposal != nil:
		prop := *msg.Ipc.TopDownProposal
		// PayloadAt must be read before SetNewFinality: committing prunes
		// the cache at and below the newly committed height (§4.C), so the
		// payload being committed would otherwise already be gone by the
		// time we looked for it.
		payload, _ := c.finality.PayloadAt(prop.Height)
		prev := c.finality.LastCommitted()
		if err := c.finality.SetNewFinality(prop, prev); err != nil {
			werr := fmt.Errorf("deliver top-down proposal: %w", err)
			return errResult(werr, 0), werr
		}
		if payload != nil {
			if err := c.vm.ApplyTopDown(ctx, payload); err != nil {
				werr := fmt.Errorf("apply top-down payload: %w", err)
				return errResult(werr, 0), werr
			}
		}
		return Result{Code: CodeOK}, nil

	default:
		werr := fmt.Errorf("%w: empty chain message", ErrDecode)
		return errResult(werr, 0), werr
	}
}

// Check implements spec §4.H's check: Signed and BottomUpResolve pass to
// the inner checker; BottomUpExec and TopDownProposal from user mempool
// are rejected as illegal (scenario S6).
func (c *ChainLayer) Check(ctx context.Context, msg chainmsg.ChainMessage) (Result, error) {
	switch {
	case msg.Signed != nil:
		return c.signed.Check(ctx, *msg.Signed)
	case msg.Ipc != nil && msg.Ipc.BottomUpResolve != nil:
		return Result{Code: CodeOK}, nil
	case msg.Ipc != nil && (msg.Ipc.BottomUpExec != nil || msg.Ipc.TopDownProposal != nil):
		werr := fmt.Errorf("%w: %s may only be validator-proposed", ErrIllegalMessage, msg.Ipc.Kind())
		return errResult(werr, 0), werr
	default:
		werr := fmt.Errorf("%w: empty chain message", ErrDecode)
		return errResult(werr, 0), werr
	}
}

func encodeTopDownProposal(p finality.ParentFinality) []byte {
	out := []byte{variantIpc, ipcVariantTopDownProposal}
	heightBuf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		heightBuf[7-i] = byte(p.Height >> (8 * i))
	}
	out = append(out, heightBuf...)
	out = appendLenPrefixed(out, p.BlockHash[:])
	return out
}

// encodeBottomUpExecPlaceholder builds the wire bytes for a resolved pool
// item being proposed as a BottomUpExec (spec §4.H prepare-proposal). The
// pool only tracks a (subnet, payload CID) pair; this repo carries that
// pair in a Checkpoint's SubnetID/BlockHash fields rather than the full
// checkpoint the real gateway would reference, since the resolve pool's
// item identity (§4.E) is this repo's only in-scope view of "what was
// resolved".
func encodeBottomUpExecPlaceholder(item resolve.Item) []byte {
	ck := chainmsg.Checkpoint{SubnetID: item.SubnetID.Bytes(), BlockHash: item.PayloadCID}
	return encodeCertifiedCheckpoint(ipcVariantBottomUpExec, chainmsg.Certified[chainmsg.Checkpoint]{Value: ck})
}

// resolveItemFromCheckpoint reverses encodeBottomUpExecPlaceholder's
// embedding of a resolve.Item into a Checkpoint's SubnetID/BlockHash.
func resolveItemFromCheckpoint(ck chainmsg.Checkpoint) resolve.Item {
	return resolve.Item{SubnetID: common.BytesToHash(ck.SubnetID), PayloadCID: ck.BlockHash}
}

func appendLenPrefixed(out, field []byte) []byte {
	n := len(field)
	out = append(out, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	return append(out, field...)
}
