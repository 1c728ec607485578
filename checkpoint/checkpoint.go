// Package checkpoint implements the bottom-up checkpoint engine (spec
// §4.F): at period boundaries it builds a BottomUpCheckpoint, computes the
// validator power-table diff, and serializes this node's signature
// broadcasts behind a per-account nonce — grounded on the teacher corpus's
// per-account nonce tracking idiom (go-ethereum's TxPool), generalized
// from "one pending transaction per account" to "one pending signature
// broadcast per validator".
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/consensus-shipyard/fendermint-sub000/chainmsg"
	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/ethdb"
	"github.com/consensus-shipyard/fendermint-sub000/log"
)

// PowerEntry is one (public_key, power) pair in a PowerTable (spec §3).
type PowerEntry struct {
	PublicKey string // hex-encoded, used as the map/sort key
	Power     uint64
}

// PowerTable maps each hex-encoded public key to its power (spec §3); keys
// are unique, and iteration order is not defined.
type PowerTable map[string]uint64

// Diff computes next − current per spec §4.F's diff algorithm: validators
// only in cur appear with power 0 (removal); validators in next whose
// power differs from cur appear with the new power; unchanged entries are
// omitted.
func Diff(cur, next PowerTable) []PowerEntry {
	var out []PowerEntry
	for pk, curPower := range cur {
		nextPower, ok := next[pk]
		if !ok {
			out = append(out, PowerEntry{PublicKey: pk, Power: 0})
			continue
		}
		if nextPower != curPower {
			out = append(out, PowerEntry{PublicKey: pk, Power: nextPower})
		}
	}
	for pk, nextPower := range next {
		if _, ok := cur[pk]; !ok {
			out = append(out, PowerEntry{PublicKey: pk, Power: nextPower})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicKey < out[j].PublicKey })
	return out
}

// Gateway is the subset of the gateway actor's interface the checkpoint
// engine needs (spec §4.F steps 1, 4, 5, 6). The gateway actor itself is
// part of the VM (§1, out of scope); only this read/apply contract is in
// scope here.
type Gateway interface {
	CheckpointingEnabled(ctx context.Context, h common.Height) (bool, error)
	IsRootSubnet(ctx context.Context) bool
	Period(ctx context.Context) uint64
	CurrentPowerTable(ctx context.Context, h common.Height) (PowerTable, error)
	ApplyPendingMembership(ctx context.Context, h common.Height) (configurationNumber uint64, err error)
	NextMembership(ctx context.Context, configurationNumber uint64, powerScale uint64) (Membership, error)
	CrossMessagesHash(ctx context.Context, h common.Height) ([32]byte, error)
}

// Membership is the power table NextMembership resolves at a given
// configuration number, carrying that number along so the engine can
// check it against the one it asked for (spec §4.F step 5).
type Membership struct {
	ConfigurationNumber uint64
	PowerTable          PowerTable
}

// ErrNotABoundary names the "nothing to do" outcome: the height is not on a
// checkpoint period boundary, or checkpointing is disabled, or this subnet
// is the root. MaybeCreateCheckpoint does not return it; it reports those
// cases as a nil Result with a nil error.
var ErrNotABoundary = fmt.Errorf("checkpoint: not a checkpoint boundary")

// Result is the outcome of a successful checkpoint creation (spec §4.F
// step 8).
type Result struct {
	Checkpoint   chainmsg.Checkpoint
	PowerTable   PowerTable
	PowerUpdates []PowerEntry
}

// Store persists checkpoints and their signatory power tables (spec
// §4.F step 7). The real persistent KV store is out of scope (§1); this
// repo's Store is backed by ethdb.KeyValueStore, with ethdb/memorydb as
// the in-repo implementation.
type Store struct {
	db ethdb.KeyValueStore
}

func NewStore(db ethdb.KeyValueStore) *Store { return &Store{db: db} }

func checkpointKey(h common.Height) []byte {
	return []byte(fmt.Sprintf("checkpoint/%020d", h))
}

func (s *Store) Put(h common.Height, encoded []byte) error {
	return s.db.Put(checkpointKey(h), encoded)
}

func (s *Store) Get(h common.Height) ([]byte, error) {
	return s.db.Get(checkpointKey(h))
}

func (s *Store) Has(h common.Height) (bool, error) {
	return s.db.Has(checkpointKey(h))
}

// Engine runs the checkpoint algorithm at end-block (spec §4.F).
type Engine struct {
	gateway    Gateway
	store      *Store
	subnetID   []byte
	powerScale uint64
	log        log.Logger
}

func NewEngine(gateway Gateway, store *Store, subnetID []byte, powerScale uint64) *Engine {
	return &Engine{gateway: gateway, store: store, subnetID: subnetID, powerScale: powerScale, log: log.New("component", "checkpoint")}
}

// MaybeCreateCheckpoint implements spec §4.F's maybe_create_checkpoint.
func (e *Engine) MaybeCreateCheckpoint(ctx context.Context, h common.Height, blockHash [32]byte) (*Result, error) {
	enabled, err := e.gateway.CheckpointingEnabled(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: checkpointing_enabled: %w", err)
	}
	if !enabled || e.gateway.IsRootSubnet(ctx) {
		return nil, nil
	}
	period := e.gateway.Period(ctx)
	if period == 0 || h%period != 0 {
		return nil, nil
	}

	powerCur, err := e.gateway.CurrentPowerTable(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: current_power_table: %w", err)
	}

	n, err := e.gateway.ApplyPendingMembership(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: apply_pending_membership: %w", err)
	}

	var updates []PowerEntry
	if n != 0 {
		membership, err := e.gateway.NextMembership(ctx, n, e.powerScale)
		if err != nil {
			return nil, fmt.Errorf("checkpoint: next_membership: %w", err)
		}
		if membership.ConfigurationNumber != n {
			return nil, fmt.Errorf("checkpoint: next_membership: configuration number %d, want %d", membership.ConfigurationNumber, n)
		}
		updates = Diff(powerCur, membership.PowerTable)
	}

	xmsgHash, err := e.gateway.CrossMessagesHash(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: cross_messages_hash: %w", err)
	}

	ck := chainmsg.Checkpoint{
		SubnetID:                e.subnetID,
		BlockHeight:             h,
		BlockHash:               blockHash,
		NextConfigurationNumber: n,
		CrossMessagesHash:       xmsgHash,
	}

	if e.store != nil {
		encoded, err := json.Marshal(struct {
			Checkpoint  chainmsg.Checkpoint
			Signatories PowerTable
		}{ck, powerCur})
		if err != nil {
			return nil, fmt.Errorf("checkpoint: encode: %w", err)
		}
		if err := e.store.Put(h, encoded); err != nil {
			return nil, fmt.Errorf("checkpoint: persist: %w", err)
		}
	}

	e.log.Info("created checkpoint", "height", h, "next_configuration_number", n, "power_updates", len(updates))
	return &Result{Checkpoint: ck, PowerTable: powerCur, PowerUpdates: updates}, nil
}

// Signer signs a checkpoint signing payload on this validator's behalf.
// The actual signature scheme is the same secp256k1 the message layer
// uses (§4.G); checkpoint signatures are over the checkpoint's canonical
// bytes, not over a VMMessage, so this is a narrower interface than sigs.
type Signer interface {
	Sign(payload []byte) (sig []byte, err error)
	PublicKeyHex() string
}

// Broadcaster submits a signed "add signature" transaction for a stored
// checkpoint. The transport is out of scope (§1); this interface is the
// in-scope boundary.
type Broadcaster interface {
	BroadcastAddSignature(ctx context.Context, nonce uint64, h common.Height, sig []byte) error
}

// SerialBroadcaster serializes this node's checkpoint-signature broadcasts
// behind a per-account nonce (spec §4.F: "Signatures are submitted
// serially ... because the broadcaster maintains a per-account nonce."),
// matching the teacher corpus's single-writer nonce-counter idiom.
type SerialBroadcaster struct {
	mu    sync.Mutex
	nonce uint64
	tx    Broadcaster
	log   log.Logger
}

func NewSerialBroadcaster(tx Broadcaster, startNonce uint64) *SerialBroadcaster {
	return &SerialBroadcaster{tx: tx, nonce: startNonce, log: log.New("component", "checkpoint-broadcast")}
}

// BroadcastIncompleteSignatures implements spec §4.F's
// broadcast_incomplete_signatures: for each pending checkpoint this
// validator is a signatory of, sign and broadcast serially.
func (b *SerialBroadcaster) BroadcastIncompleteSignatures(ctx context.Context, signer Signer, pending []PendingCheckpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range pending {
		if _, isSignatory := p.Signatories[signer.PublicKeyHex()]; !isSignatory {
			continue
		}
		sig, err := signer.Sign(p.Payload)
		if err != nil {
			return fmt.Errorf("checkpoint: sign height %d: %w", p.Height, err)
		}
		if err := b.tx.BroadcastAddSignature(ctx, b.nonce, p.Height, sig); err != nil {
			return fmt.Errorf("checkpoint: broadcast height %d at nonce %d: %w", p.Height, b.nonce, err)
		}
		b.log.Info("broadcast checkpoint signature", "height", p.Height, "nonce", b.nonce)
		b.nonce++
	}
	return nil
}

func (b *SerialBroadcaster) Nonce() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonce
}

// PendingCheckpoint is a stored checkpoint awaiting this validator's
// signature, with the signing payload already derived and the signatory
// set it was created under.
type PendingCheckpoint struct {
	Height      common.Height
	Payload     []byte
	Signatories PowerTable
}
