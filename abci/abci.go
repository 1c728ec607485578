// Package abci binds the interpreter stack (§4.H) to CometBFT's ABCI++
// application interface. The pack's go.mod names the predecessor
// tendermint/tendermint; this repo upgrades to github.com/cometbft/cometbft,
// the maintained fork, per DESIGN.md's dependency-substitution note — ABCI
// itself was never retrieved as an implementation in the pack, only
// consumed by name in spec.md §6, so the binding here is authored fresh
// against the CometBFT v0.37 Application interface.
package abci

import (
	"context"
	"encoding/hex"
	"sync"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtcrypto "github.com/cometbft/cometbft/crypto"
	cryptoencoding "github.com/cometbft/cometbft/crypto/encoding"
	"github.com/cometbft/cometbft/crypto/secp256k1"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/consensus-shipyard/fendermint-sub000/checkpoint"
	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/genesis"
	"github.com/consensus-shipyard/fendermint-sub000/interpreter"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/finality"
	"github.com/consensus-shipyard/fendermint-sub000/log"
	"github.com/consensus-shipyard/fendermint-sub000/metrics"
)

var (
	checkpointsCreated = metrics.NewCounter("abci", "checkpoints_created_total", "bottom-up checkpoints created at end-block")

	txCountersMu sync.Mutex
	txCounters   = map[string]prometheus.Counter{}
)

// txCounter lazily registers a per-kind delivered-tx counter (§4.H
// ambient metrics requirement), since the set of kinds is small and fixed
// but not known until the first delivery of each.
func txCounter(kind string) prometheus.Counter {
	txCountersMu.Lock()
	defer txCountersMu.Unlock()
	c, ok := txCounters[kind]
	if !ok {
		c = metrics.NewCounter("abci", "tx_"+kind+"_total", "delivered transactions of kind "+kind)
		txCounters[kind] = c
	}
	return c
}

// CheckpointHooks is the subset of the checkpoint engine the application
// drives at end-block (§4.F).
type CheckpointHooks interface {
	MaybeCreateCheckpoint(ctx context.Context, h common.Height, blockHash [32]byte) (*checkpoint.Result, error)
}

// Application implements abcitypes.Application by delegating to the
// interpreter stack (§4.H). It holds exactly the mutable state the ABCI
// lifecycle requires: the current height/header, and references to the
// layers and collaborators that do the actual work.
type Application struct {
	log   log.Logger
	chain *interpreter.ChainLayer
	vm    interpreter.VM
	fin   *finality.Provider
	ckpt  CheckpointHooks

	mu          sync.Mutex
	height      common.Height
	blockHash   [32]byte
	genesisInfo *genesis.Genesis
}

func NewApplication(chain *interpreter.ChainLayer, vm interpreter.VM, fin *finality.Provider, ckpt CheckpointHooks) *Application {
	return &Application{
		log:   log.New("component", "abci"),
		chain: chain,
		vm:    vm,
		fin:   fin,
		ckpt:  ckpt,
	}
}

var _ abcitypes.Application = (*Application)(nil)

// Info implements spec §6's info() → {app_hash, height}.
func (a *Application) Info(req abcitypes.RequestInfo) abcitypes.ResponseInfo {
	a.mu.Lock()
	h := a.height
	a.mu.Unlock()

	root, err := a.vm.StateRoot(context.Background())
	if err != nil {
		a.log.Warn("info: state root unavailable", "err", err)
		return abcitypes.ResponseInfo{LastBlockHeight: int64(h)}
	}
	return abcitypes.ResponseInfo{LastBlockHeight: int64(h), LastBlockAppHash: root.Bytes()}
}

// InitChain implements spec §6's init_chain(genesis_bytes).
func (a *Application) InitChain(req abcitypes.RequestInitChain) abcitypes.ResponseInitChain {
	g, err := genesis.Decode(req.AppStateBytes)
	if err != nil {
		interpreter.Raise("genesis decode", err)
	}
	a.mu.Lock()
	a.genesisInfo = g
	a.mu.Unlock()

	validators := make([]abcitypes.ValidatorUpdate, 0, len(g.Validators))
	for _, v := range g.Validators {
		vu, err := validatorUpdate(v.PublicKey, v.Power)
		if err != nil {
			a.log.Warn("init_chain: skipping validator with undecodable public key", "err", err)
			continue
		}
		validators = append(validators, vu)
	}
	return abcitypes.ResponseInitChain{Validators: validators}
}

// BeginBlock implements spec §4.H's begin hook: a pure pass-through.
func (a *Application) BeginBlock(req abcitypes.RequestBeginBlock) abcitypes.ResponseBeginBlock {
	a.mu.Lock()
	a.height = common.Height(req.Header.Height)
	copy(a.blockHash[:], req.Hash)
	a.mu.Unlock()
	return abcitypes.ResponseBeginBlock{}
}

// PrepareProposal implements spec §6's prepare_proposal(height, txs) → txs.
func (a *Application) PrepareProposal(req abcitypes.RequestPrepareProposal) abcitypes.ResponsePrepareProposal {
	txs, err := a.chain.PrepareProposal(context.Background(), req.Txs)
	if err != nil {
		a.log.Warn("prepare_proposal failed, returning input unchanged", "err", err)
		return abcitypes.ResponsePrepareProposal{Txs: req.Txs}
	}
	return abcitypes.ResponsePrepareProposal{Txs: txs}
}

// ProcessProposal implements spec §6's process_proposal(height, txs) →
// accept|reject.
func (a *Application) ProcessProposal(req abcitypes.RequestProcessProposal) abcitypes.ResponseProcessProposal {
	ok, err := a.chain.ProcessProposal(context.Background(), req.Txs)
	if err != nil || !ok {
		return abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_REJECT}
	}
	return abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_ACCEPT}
}

// DeliverTx implements spec §6's deliver_tx(tx) → result.
func (a *Application) DeliverTx(req abcitypes.RequestDeliverTx) abcitypes.ResponseDeliverTx {
	msg, err := interpreter.DecodeChainMessage(req.Tx)
	if err != nil {
		return abcitypes.ResponseDeliverTx{Code: uint32(interpreter.CodeDecodeError), Log: err.Error()}
	}
	res, err := a.chain.Deliver(context.Background(), msg)
	txCounter(msg.Kind()).Inc()
	if err != nil {
		return abcitypes.ResponseDeliverTx{Code: uint32(res.Code), Log: err.Error(), GasUsed: int64(res.GasUsed), GasWanted: int64(res.GasWanted)}
	}

	events := make([]abcitypes.Event, 0, len(res.Events))
	for _, e := range res.Events {
		attrs := make([]abcitypes.EventAttribute, 0, len(e.Attributes))
		for k, v := range e.Attributes {
			attrs = append(attrs, abcitypes.EventAttribute{Key: k, Value: v})
		}
		events = append(events, abcitypes.Event{Type: e.Type, Attributes: attrs})
	}
	return abcitypes.ResponseDeliverTx{
		Code:      uint32(res.Code),
		Data:      res.Data,
		Events:    events,
		GasUsed:   int64(res.GasUsed),
		GasWanted: int64(res.GasWanted),
	}
}

// CheckTx implements spec §6's check_tx(tx, recheck) → result, rejecting
// illegal messages (scenario S6).
func (a *Application) CheckTx(req abcitypes.RequestCheckTx) abcitypes.ResponseCheckTx {
	msg, err := interpreter.DecodeChainMessage(req.Tx)
	if err != nil {
		return abcitypes.ResponseCheckTx{Code: uint32(interpreter.CodeDecodeError), Log: err.Error()}
	}
	res, err := a.chain.Check(context.Background(), msg)
	if err != nil {
		return abcitypes.ResponseCheckTx{Code: uint32(res.Code), Log: err.Error()}
	}
	return abcitypes.ResponseCheckTx{Code: uint32(res.Code), GasWanted: int64(res.GasWanted)}
}

// EndBlock implements spec §6's end_block(height) → {validator_updates[]}
// and spec §4.H's end hook: the checkpoint engine runs here, and its
// power-updates bubble back to the consensus engine.
func (a *Application) EndBlock(req abcitypes.RequestEndBlock) abcitypes.ResponseEndBlock {
	a.mu.Lock()
	h, blockHash := a.height, a.blockHash
	a.mu.Unlock()

	result, err := a.ckpt.MaybeCreateCheckpoint(context.Background(), h, blockHash)
	if err != nil {
		a.log.Error("checkpoint creation failed at end-block", "height", h, "err", err)
		return abcitypes.ResponseEndBlock{}
	}
	if result == nil {
		return abcitypes.ResponseEndBlock{}
	}
	checkpointsCreated.Inc()

	updates := make([]abcitypes.ValidatorUpdate, 0, len(result.PowerUpdates))
	for _, u := range result.PowerUpdates {
		pub, err := hex.DecodeString(u.PublicKey)
		if err != nil {
			a.log.Warn("end_block: skipping power update with undecodable key", "err", err)
			continue
		}
		vu, err := validatorUpdate(pub, u.Power)
		if err != nil {
			a.log.Warn("end_block: skipping power update", "err", err)
			continue
		}
		updates = append(updates, vu)
	}
	return abcitypes.ResponseEndBlock{ValidatorUpdates: updates}
}

// Commit implements spec §6's commit() → app_hash.
func (a *Application) Commit() abcitypes.ResponseCommit {
	root, err := a.vm.StateRoot(context.Background())
	if err != nil {
		interpreter.Raise("commit: state root unavailable", err)
	}
	return abcitypes.ResponseCommit{Data: root.Bytes()}
}

// Query implements spec §6's query(path, data, height) → {code, value, key}.
func (a *Application) Query(req abcitypes.RequestQuery) abcitypes.ResponseQuery {
	qr, err := a.vm.Query(context.Background(), req.Path, req.Data, common.Height(req.Height))
	if err != nil {
		return abcitypes.ResponseQuery{Code: uint32(interpreter.CodeVmExecutionFailure), Log: err.Error()}
	}
	return abcitypes.ResponseQuery{Code: uint32(qr.Code), Value: qr.Value, Key: qr.Key, Height: req.Height}
}

func (a *Application) ListSnapshots(abcitypes.RequestListSnapshots) abcitypes.ResponseListSnapshots {
	return abcitypes.ResponseListSnapshots{}
}

func (a *Application) OfferSnapshot(abcitypes.RequestOfferSnapshot) abcitypes.ResponseOfferSnapshot {
	return abcitypes.ResponseOfferSnapshot{Result: abcitypes.ResponseOfferSnapshot_ABORT}
}

func (a *Application) LoadSnapshotChunk(abcitypes.RequestLoadSnapshotChunk) abcitypes.ResponseLoadSnapshotChunk {
	return abcitypes.ResponseLoadSnapshotChunk{}
}

func (a *Application) ApplySnapshotChunk(abcitypes.RequestApplySnapshotChunk) abcitypes.ResponseApplySnapshotChunk {
	return abcitypes.ResponseApplySnapshotChunk{Result: abcitypes.ResponseApplySnapshotChunk_ABORT}
}

// validatorUpdate converts a raw secp256k1 public key and power into the
// ABCI validator-update shape via CometBFT's proto pubkey encoding.
func validatorUpdate(pubKey []byte, power uint64) (abcitypes.ValidatorUpdate, error) {
	var pk cmtcrypto.PubKey = secp256k1.PubKey(pubKey)
	proto, err := cryptoencoding.PubKeyToProto(pk)
	if err != nil {
		return abcitypes.ValidatorUpdate{}, err
	}
	return abcitypes.ValidatorUpdate{PubKey: proto, Power: int64(power)}, nil
}
