// Package memvm is a minimal, deterministic, in-memory stand-in for the
// VM the interpreter stack is built against (interpreter.VM), the gateway
// actor the checkpoint engine reads (checkpoint.Gateway), and the block
// store the Ethereum-compatible read views need (internal/ethapi.Backend,
// ethrpc/filters.Backend). The real execution engine and gateway actor are
// external collaborators, out of scope for this repo; cmd/subnetd wires
// this package in as the default so the node can actually run end to end
// without one.
//
// Grounded on interpreter/interpreter_test.go's fakeVM, generalized from a
// single-field test double into something that tracks enough state
// (balances, nonces, code, blocks, receipts, a power table) to answer
// every read the ABCI application and the JSON-RPC facade need.
package memvm

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/consensus-shipyard/fendermint-sub000/chainmsg"
	"github.com/consensus-shipyard/fendermint-sub000/checkpoint"
	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/common/lru"
	"github.com/consensus-shipyard/fendermint-sub000/crypto/blake2b"
	"github.com/consensus-shipyard/fendermint-sub000/ethrpc"
	"github.com/consensus-shipyard/fendermint-sub000/ethrpc/filters"
	"github.com/consensus-shipyard/fendermint-sub000/event"
	"github.com/consensus-shipyard/fendermint-sub000/genesis"
	"github.com/consensus-shipyard/fendermint-sub000/interpreter"
	"github.com/consensus-shipyard/fendermint-sub000/internal/ethapi"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/finality"
)

// blockCacheSize bounds the height-indexed block cache; older blocks are
// evicted least-recently-used rather than retained forever, since the
// real block store (out of scope, §1) is what holds the durable history.
const blockCacheSize = 4096

// GatewayConfig mirrors the genesis ipc.gateway block this stand-in reads
// its checkpoint parameters from (spec §6).
type GatewayConfig struct {
	SubnetID            []byte
	Period              uint64
	MajorityPercentage  uint8
	IsRoot              bool
}

// VM is the in-memory execution engine stand-in.
type VM struct {
	mu sync.Mutex

	height common.Height
	root   common.Hash

	balances map[string]*big.Int
	nonces   map[string]uint64
	code     map[string][]byte

	power        checkpoint.PowerTable
	pendingPower checkpoint.PowerTable
	configNumber uint64

	gw GatewayConfig

	blocks   *lru.LRU[common.Height, *ethapi.Block]
	byHash   map[common.Hash]common.Height
	receipts map[common.Hash][]ethapi.Receipt

	heads   event.FeedOf[filters.Head]
	pending event.FeedOf[common.Hash]
	logFeed event.FeedOf[[]ethapi.Log]

	chainID uint64
}

func New(chainID uint64, gw GatewayConfig, accounts []genesis.AccountAllocation) *VM {
	vm := &VM{
		balances: make(map[string]*big.Int),
		nonces:   make(map[string]uint64),
		code:     make(map[string][]byte),
		power:    make(checkpoint.PowerTable),
		blocks:   lru.NewLRU[common.Height, *ethapi.Block](blockCacheSize),
		byHash:   make(map[common.Hash]common.Height),
		receipts: make(map[common.Hash][]ethapi.Receipt),
		gw:       gw,
		chainID:  chainID,
	}
	for _, a := range accounts {
		if a.Account == nil {
			continue
		}
		bal := new(big.Int).SetBytes(a.Account.Balance)
		vm.balances[addrKey(a.Account.Owner)] = bal
	}
	return vm
}

func addrKey(a common.NativeAddress) string {
	return fmt.Sprintf("%d:%s", a.Protocol, hex.EncodeToString(a.Payload))
}

// ActorID implements ethrpc/convert.IDResolver: every address resolves to
// 1000 plus the first two bytes of the BLAKE2b-256 digest of its payload,
// so the same address always gets the same ID and the lookup never fails.
func (vm *VM) ActorID(addr common.NativeAddress) (uint64, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	digest := blake2b.Sum256(addr.Payload)
	id := uint64(digest[0])<<8 | uint64(digest[1])
	return 1000 + id, true
}

// ResolveSender implements interpreter.SenderResolver: the `from` bytes
// are the wire encoding of a NativeAddress (protocol byte || payload).
func (vm *VM) ResolveSender(ctx context.Context, from []byte) (common.NativeAddress, error) {
	if len(from) == 0 {
		return common.NativeAddress{}, fmt.Errorf("memvm: empty sender")
	}
	return common.NativeAddress{Protocol: from[0], Payload: from[1:]}, nil
}

// Execute implements interpreter.VM: it debits from, credits to, bumps
// from's nonce, and advances the state root. It records no receipt or log.
func (vm *VM) Execute(ctx context.Context, msg chainmsg.VMMessage, sender common.NativeAddress) (interpreter.Result, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	key := addrKey(sender)
	if vm.nonces[key] != msg.Nonce {
		return interpreter.Result{Code: interpreter.CodeIllegalMessage, GasWanted: msg.GasLimit}, fmt.Errorf("memvm: nonce mismatch: have %d, want %d", msg.Nonce, vm.nonces[key])
	}

	value := new(big.Int).SetBytes(msg.Value)
	bal := vm.balances[key]
	if bal == nil {
		bal = new(big.Int)
	}
	if bal.Cmp(value) < 0 {
		return interpreter.Result{Code: interpreter.CodeVmExecutionFailure, GasWanted: msg.GasLimit}, fmt.Errorf("memvm: insufficient balance")
	}

	vm.nonces[key]++
	bal.Sub(bal, value)
	vm.balances[key] = bal

	toKey := addrKey(common.NativeAddress{Protocol: msg.To[0], Payload: msg.To[1:]})
	toBal := vm.balances[toKey]
	if toBal == nil {
		toBal = new(big.Int)
	}
	toBal.Add(toBal, value)
	vm.balances[toKey] = toBal

	vm.advanceRoot()
	return interpreter.Result{Code: interpreter.CodeOK, GasUsed: 21000, GasWanted: msg.GasLimit}, nil
}

// Query implements interpreter.VM's read path: the only path this
// stand-in supports is "balance", mirroring the narrow read the spec's
// query() operation needs for local introspection.
func (vm *VM) Query(ctx context.Context, path string, data []byte, height common.Height) (interpreter.QueryResult, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if path != "balance" {
		return interpreter.QueryResult{Code: interpreter.CodeIllegalMessage}, nil
	}
	bal := vm.balances[string(data)]
	if bal == nil {
		bal = new(big.Int)
	}
	return interpreter.QueryResult{Code: interpreter.CodeOK, Value: bal.Bytes()}, nil
}

func (vm *VM) StateRoot(ctx context.Context) (common.Hash, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.root, nil
}

// advanceRoot recomputes the state root as the BLAKE2b digest over every
// account's key/balance, sorted for determinism. Must be called with
// vm.mu held.
func (vm *VM) advanceRoot() {
	keys := make([]string, 0, len(vm.balances))
	for k := range vm.balances {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf []byte
	for _, k := range keys {
		buf = append(buf, []byte(k)...)
		buf = append(buf, vm.balances[k].Bytes()...)
	}
	vm.root = common.Hash(blake2b.Sum256(buf))
}

// ApplyCheckpointCommit implements interpreter.VM: a no-op acknowledgment,
// since this stand-in keeps no separate checkpoint-indexed state.
func (vm *VM) ApplyCheckpointCommit(ctx context.Context, ck chainmsg.Checkpoint) error {
	return nil
}

// ApplyTopDown implements interpreter.VM: apply each validator-power
// change to the power table and each cross-message as a balance credit
// (spec §4.B: top-down cross-messages carry a value transfer).
func (vm *VM) ApplyTopDown(ctx context.Context, payload *finality.Payload) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if payload == nil {
		return nil
	}
	for _, c := range payload.ValidatorChanges {
		pk := hex.EncodeToString(c.PublicKey)
		if c.Power == 0 {
			delete(vm.power, pk)
			continue
		}
		vm.power[pk] = c.Power
	}
	for _, m := range payload.CrossMessages {
		key := addrKey(m.To)
		bal := vm.balances[key]
		if bal == nil {
			bal = new(big.Int)
		}
		bal.Add(bal, new(big.Int).SetBytes(m.Value))
		vm.balances[key] = bal
	}
	vm.advanceRoot()
	return nil
}

// CommitBlock records the committed block's header and a synthetic
// "new heads" event, driven by cmd/subnetd after every ABCI Commit. The
// real block store is out of scope (§1); this is the minimal bookkeeping
// the RPC read views and push subscriptions need.
func (vm *VM) CommitBlock(height common.Height, hash, parentHash common.Hash, timestamp int64) {
	vm.mu.Lock()
	b := &ethapi.Block{Height: height, Hash: hash, ParentHash: parentHash, Timestamp: timestamp}
	vm.blocks.Add(height, b)
	vm.byHash[hash] = height
	vm.height = height
	vm.mu.Unlock()

	vm.heads.Send(filters.Head{Height: height, Hash: hash})
}

// --- checkpoint.Gateway ---

func (vm *VM) CheckpointingEnabled(ctx context.Context, h common.Height) (bool, error) {
	return vm.gw.Period > 0, nil
}

func (vm *VM) IsRootSubnet(ctx context.Context) bool { return vm.gw.IsRoot }

func (vm *VM) Period(ctx context.Context) uint64 { return vm.gw.Period }

func (vm *VM) CurrentPowerTable(ctx context.Context, h common.Height) (checkpoint.PowerTable, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	out := make(checkpoint.PowerTable, len(vm.power))
	for k, v := range vm.power {
		out[k] = v
	}
	return out, nil
}

func (vm *VM) ApplyPendingMembership(ctx context.Context, h common.Height) (uint64, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.pendingPower == nil {
		return 0, nil
	}
	vm.power = vm.pendingPower
	vm.pendingPower = nil
	vm.configNumber++
	return vm.configNumber, nil
}

func (vm *VM) NextMembership(ctx context.Context, configurationNumber uint64, powerScale uint64) (checkpoint.Membership, error) {
	power, err := vm.CurrentPowerTable(ctx, 0)
	if err != nil {
		return checkpoint.Membership{}, err
	}
	return checkpoint.Membership{ConfigurationNumber: configurationNumber, PowerTable: power}, nil
}

func (vm *VM) CrossMessagesHash(ctx context.Context, h common.Height) ([32]byte, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return blake2b.Sum256([]byte(fmt.Sprintf("xmsg-%d", h))), nil
}

// --- snapshot.StateReader ---

// Walk streams every account as a (key, balance-bytes) pair in
// lexicographic key order, giving the snapshot manager a deterministic
// traversal without needing to know this stand-in's internal layout.
func (vm *VM) Walk(ctx context.Context, root common.Hash, emit func(key, value []byte) error) error {
	vm.mu.Lock()
	keys := make([]string, 0, len(vm.balances))
	for k := range vm.balances {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	balances := make(map[string]*big.Int, len(vm.balances))
	for k, v := range vm.balances {
		balances[k] = v
	}
	vm.mu.Unlock()

	for _, k := range keys {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := emit([]byte(k), balances[k].Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// StateParams returns the gateway configuration this stand-in's state was
// built under, so a restored snapshot can be checked against it.
func (vm *VM) StateParams(ctx context.Context) ([]byte, error) {
	return []byte(fmt.Sprintf("chain_id=%d;subnet_id=%s;period=%d", vm.chainID, hex.EncodeToString(vm.gw.SubnetID), vm.gw.Period)), nil
}

// --- ipc/sync.StatusSource ---

func (vm *VM) IsCatchingUp(ctx context.Context) (bool, error) { return false, nil }

// --- internal/ethapi.Backend ---

func (vm *VM) ChainID() uint64 { return vm.chainID }

func (vm *VM) CurrentHeight(ctx context.Context) (common.Height, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.height, nil
}

func (vm *VM) ResolveHeight(ctx context.Context, sel ethrpc.BlockNumberOrHash) (common.Height, error) {
	if h, ok := sel.Height(); ok {
		return h, nil
	}
	return vm.CurrentHeight(ctx)
}

func (vm *VM) BlockByNumber(ctx context.Context, number ethrpc.BlockNumber) (*ethapi.Block, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	n := number.Int64()
	h := vm.height
	if n >= 0 {
		h = common.Height(n)
	}
	b, ok := vm.blocks.Get(h)
	if !ok {
		return nil, nil
	}
	return b, nil
}

func (vm *VM) BlockByHash(ctx context.Context, hash common.Hash) (*ethapi.Block, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	h, ok := vm.byHash[hash]
	if !ok {
		return nil, nil
	}
	b, _ := vm.blocks.Get(h)
	return b, nil
}

func (vm *VM) BlockReceipts(ctx context.Context, hash common.Hash) ([]ethapi.Receipt, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.receipts[hash], nil
}

func (vm *VM) Balance(ctx context.Context, addr common.Address, height common.Height) (*big.Int, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	key := addrKey(common.NativeAddress{Protocol: 4, Payload: addr.Bytes()})
	bal := vm.balances[key]
	if bal == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(bal), nil
}

func (vm *VM) TransactionCount(ctx context.Context, addr common.Address, height common.Height) (uint64, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	key := addrKey(common.NativeAddress{Protocol: 4, Payload: addr.Bytes()})
	return vm.nonces[key], nil
}

func (vm *VM) StorageAt(ctx context.Context, addr common.Address, slot common.Hash, height common.Height) (common.Hash, error) {
	return common.Hash{}, nil
}

func (vm *VM) Code(ctx context.Context, addr common.Address, height common.Height) ([]byte, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.code[addr.Hex()], nil
}

func (vm *VM) Call(ctx context.Context, args ethapi.CallArgs, height common.Height) ([]byte, error) {
	return nil, nil
}

func (vm *VM) EstimateGas(ctx context.Context, args ethapi.CallArgs, height common.Height) (uint64, error) {
	return 21000, nil
}

func (vm *VM) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	h := common.Hash(blake2b.Sum256(raw))
	vm.pending.Send(h)
	return h, nil
}

func (vm *VM) GasPrice(ctx context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (vm *VM) FeeHistory(ctx context.Context, blockCount int, lastBlock ethrpc.BlockNumber, rewardPercentiles []float64) (common.Height, []*big.Int, [][]*big.Int, error) {
	cur, _ := vm.CurrentHeight(ctx)
	return cur, []*big.Int{big.NewInt(1)}, nil, nil
}

func (vm *VM) MaxPriorityFeePerGas(ctx context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (vm *VM) Logs(ctx context.Context, from, to common.Height, addresses []common.Address, topics [][]common.Hash) ([]ethapi.Log, error) {
	return nil, nil
}

// --- ethrpc/filters.Backend ---

func (vm *VM) SubscribeNewHeads(ch chan filters.Head) event.Subscription { return vm.heads.Subscribe(ch) }

func (vm *VM) SubscribePendingTx(ch chan common.Hash) event.Subscription {
	return vm.pending.Subscribe(ch)
}

func (vm *VM) SubscribeLogs(ch chan []ethapi.Log) event.Subscription { return vm.logFeed.Subscribe(ch) }
