// Package ethapi implements the read-only Ethereum-compatible view
// adapters the JSON-RPC facade registers (spec §6's method list, §4.J):
// eth_getBalance, eth_getTransactionCount, eth_call, eth_estimateGas, and
// the block/receipt/code/storage accessors. Every method operates over a
// Backend's read-only view of VM state at a resolved height; the VM and
// the persistent block store are both external collaborators (§1), so
// Backend is an interface boundary only.
//
// The pack's one surviving implementation-adjacent file for this package
// is internal/ethapi/api_test.go — the real api.go was not retrieved —
// so the method surface here is authored fresh against that test's
// expectations (API.Call, API.EstimateGas taking rpc.BlockNumberOrHash,
// and so on), adapted from EVM call/state semantics to this repo's
// VM-as-external-collaborator shape.
package ethapi

import (
	"context"
	"math/big"

	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/common/hexutil"
	"github.com/consensus-shipyard/fendermint-sub000/ethrpc"
)

// Block is the minimal read view eth_getBlockBy{Hash,Number} exposes.
// Block production/storage is an external collaborator (§1); Backend
// supplies this shape from whatever store it is wired to.
type Block struct {
	Height       common.Height
	Hash         common.Hash
	ParentHash   common.Hash
	Timestamp    int64
	Transactions []common.Hash
}

// Receipt is the minimal read view eth_getBlockReceipts/eth_getLogs need.
type Receipt struct {
	TransactionHash common.Hash
	BlockHash       common.Hash
	BlockHeight     common.Height
	Status          uint64
	GasUsed         uint64
	Logs            []Log
}

// Log is one event emitted during delivery (interpreter.Result.Events,
// §4.H), reshaped for the Ethereum view.
type Log struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockHeight common.Height
	BlockHash   common.Hash
	TxHash      common.Hash
}

// CallArgs mirrors the eth_call/eth_estimateGas transaction-like object.
type CallArgs struct {
	From     *common.Address
	To       *common.Address
	Gas      *uint64
	GasPrice *big.Int
	Value    *big.Int
	Data     []byte
}

// Backend is the read-only view this package's API needs: a resolved VM
// state view by height/hash, chain identity, and a block/receipt reader.
// It composes the out-of-scope VM and block store (§1) behind one
// interface so API itself stays a thin, untestable-against-nothing
// adapter layer.
type Backend interface {
	ChainID() uint64

	CurrentHeight(ctx context.Context) (common.Height, error)
	ResolveHeight(ctx context.Context, sel ethrpc.BlockNumberOrHash) (common.Height, error)

	BlockByNumber(ctx context.Context, number ethrpc.BlockNumber) (*Block, error)
	BlockByHash(ctx context.Context, hash common.Hash) (*Block, error)
	BlockReceipts(ctx context.Context, hash common.Hash) ([]Receipt, error)

	Balance(ctx context.Context, addr common.Address, height common.Height) (*big.Int, error)
	TransactionCount(ctx context.Context, addr common.Address, height common.Height) (uint64, error)
	StorageAt(ctx context.Context, addr common.Address, slot common.Hash, height common.Height) (common.Hash, error)
	Code(ctx context.Context, addr common.Address, height common.Height) ([]byte, error)

	Call(ctx context.Context, args CallArgs, height common.Height) ([]byte, error)
	EstimateGas(ctx context.Context, args CallArgs, height common.Height) (uint64, error)
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)

	GasPrice(ctx context.Context) (*big.Int, error)
	FeeHistory(ctx context.Context, blockCount int, lastBlock ethrpc.BlockNumber, rewardPercentiles []float64) (oldestBlock common.Height, baseFees []*big.Int, rewards [][]*big.Int, err error)
	MaxPriorityFeePerGas(ctx context.Context) (*big.Int, error)

	Logs(ctx context.Context, from, to common.Height, addresses []common.Address, topics [][]common.Hash) ([]Log, error)

	IsCatchingUp(ctx context.Context) (bool, error)
}

// API implements the non-filter, non-subscription eth_* methods (spec
// §6). Filter/subscription methods live in ethrpc/filters and ethrpc/ws,
// since they need long-lived state the read-only Backend view does not.
type API struct {
	backend Backend
}

func NewAPI(backend Backend) *API {
	return &API{backend: backend}
}

func (a *API) ChainId() (hexutil.Uint64, error) {
	return hexutil.Uint64(a.backend.ChainID()), nil
}

func (a *API) BlockNumber(ctx context.Context) (hexutil.Uint64, error) {
	h, err := a.backend.CurrentHeight(ctx)
	if err != nil {
		return 0, err
	}
	return hexutil.Uint64(h), nil
}

func (a *API) GetBlockByNumber(ctx context.Context, number ethrpc.BlockNumber, fullTx bool) (*Block, error) {
	return a.backend.BlockByNumber(ctx, number)
}

func (a *API) GetBlockByHash(ctx context.Context, hash common.Hash, fullTx bool) (*Block, error) {
	return a.backend.BlockByHash(ctx, hash)
}

func (a *API) GetBlockReceipts(ctx context.Context, blockHash common.Hash) ([]Receipt, error) {
	return a.backend.BlockReceipts(ctx, blockHash)
}

func (a *API) GetBalance(ctx context.Context, addr common.Address, sel ethrpc.BlockNumberOrHash) (*big.Int, error) {
	height, err := a.backend.ResolveHeight(ctx, sel)
	if err != nil {
		return nil, err
	}
	return a.backend.Balance(ctx, addr, height)
}

func (a *API) GetTransactionCount(ctx context.Context, addr common.Address, sel ethrpc.BlockNumberOrHash) (hexutil.Uint64, error) {
	height, err := a.backend.ResolveHeight(ctx, sel)
	if err != nil {
		return 0, err
	}
	n, err := a.backend.TransactionCount(ctx, addr, height)
	return hexutil.Uint64(n), err
}

func (a *API) GetStorageAt(ctx context.Context, addr common.Address, slot common.Hash, sel ethrpc.BlockNumberOrHash) (common.Hash, error) {
	height, err := a.backend.ResolveHeight(ctx, sel)
	if err != nil {
		return common.Hash{}, err
	}
	return a.backend.StorageAt(ctx, addr, slot, height)
}

func (a *API) GetCode(ctx context.Context, addr common.Address, sel ethrpc.BlockNumberOrHash) ([]byte, error) {
	height, err := a.backend.ResolveHeight(ctx, sel)
	if err != nil {
		return nil, err
	}
	return a.backend.Code(ctx, addr, height)
}

func (a *API) Call(ctx context.Context, args CallArgs, sel ethrpc.BlockNumberOrHash, overrides *map[common.Address]any) ([]byte, error) {
	height, err := a.backend.ResolveHeight(ctx, sel)
	if err != nil {
		return nil, err
	}
	return a.backend.Call(ctx, args, height)
}

func (a *API) EstimateGas(ctx context.Context, args CallArgs, sel *ethrpc.BlockNumberOrHash) (hexutil.Uint64, error) {
	var height common.Height
	var err error
	if sel != nil {
		height, err = a.backend.ResolveHeight(ctx, *sel)
		if err != nil {
			return 0, err
		}
	} else {
		height, err = a.backend.CurrentHeight(ctx)
		if err != nil {
			return 0, err
		}
	}
	gas, err := a.backend.EstimateGas(ctx, args, height)
	return hexutil.Uint64(gas), err
}

func (a *API) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	return a.backend.SendRawTransaction(ctx, raw)
}

func (a *API) GasPrice(ctx context.Context) (*big.Int, error) {
	return a.backend.GasPrice(ctx)
}

func (a *API) FeeHistory(ctx context.Context, blockCount int, lastBlock ethrpc.BlockNumber, rewardPercentiles []float64) (*FeeHistoryResult, error) {
	oldest, baseFees, rewards, err := a.backend.FeeHistory(ctx, blockCount, lastBlock, rewardPercentiles)
	if err != nil {
		return nil, err
	}
	return &FeeHistoryResult{OldestBlock: oldest, BaseFeePerGas: baseFees, Reward: rewards}, nil
}

type FeeHistoryResult struct {
	OldestBlock   common.Height `json:"oldestBlock"`
	BaseFeePerGas []*big.Int    `json:"baseFeePerGas"`
	Reward        [][]*big.Int  `json:"reward,omitempty"`
}

func (a *API) MaxPriorityFeePerGas(ctx context.Context) (*big.Int, error) {
	return a.backend.MaxPriorityFeePerGas(ctx)
}

// Accounts always returns an empty list (spec §6: "eth_accounts returns
// []"): key custody is an external collaborator (§1), this node holds no
// unlocked accounts of its own.
func (a *API) Accounts() []common.Address {
	return []common.Address{}
}

// Syncing reports false once caught up and true while still catching up.
// It returns a plain bool; the sync-progress object that Ethereum nodes
// return while syncing is not produced.
func (a *API) Syncing(ctx context.Context) (bool, error) {
	catching, err := a.backend.IsCatchingUp(ctx)
	if err != nil {
		return false, err
	}
	return catching, nil
}

// GetUncleCountByBlockNumber always returns 0 (spec §6: "eth_getUncle*
// returns null/0") — this chain has no uncle blocks.
func (a *API) GetUncleCountByBlockNumber(ctx context.Context, number ethrpc.BlockNumber) hexutil.Uint64 {
	return 0
}

// GetUncleByBlockNumberAndIndex always returns nil (spec §6).
func (a *API) GetUncleByBlockNumberAndIndex(ctx context.Context, number ethrpc.BlockNumber, index hexutil.Uint64) (*Block, error) {
	return nil, nil
}

func (a *API) GetLogs(ctx context.Context, crit FilterCriteria) ([]Log, error) {
	from, err := a.resolveLogsHeight(ctx, crit.FromBlock)
	if err != nil {
		return nil, err
	}
	to, err := a.resolveLogsHeight(ctx, crit.ToBlock)
	if err != nil {
		return nil, err
	}
	return a.backend.Logs(ctx, from, to, crit.Addresses, crit.Topics)
}

func (a *API) resolveLogsHeight(ctx context.Context, bn *ethrpc.BlockNumber) (common.Height, error) {
	if bn == nil {
		return a.backend.CurrentHeight(ctx)
	}
	if h, ok := bn.Height(); ok {
		return h, nil
	}
	return a.backend.CurrentHeight(ctx)
}

// FilterCriteria mirrors the eth_getLogs/eth_newFilter parameter object.
type FilterCriteria struct {
	FromBlock *ethrpc.BlockNumber `json:"fromBlock"`
	ToBlock   *ethrpc.BlockNumber `json:"toBlock"`
	Addresses []common.Address    `json:"address"`
	Topics    [][]common.Hash     `json:"topics"`
}
