package checkpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/ethdb/memorydb"
)

// TestCheckpointPowerDiff is scenario S5 of the spec.
func TestCheckpointPowerDiff(t *testing.T) {
	cur := PowerTable{"A": 10, "B": 10, "C": 10}
	next := PowerTable{"A": 10, "B": 5, "D": 7}

	got := Diff(cur, next)
	want := map[string]uint64{"B": 5, "C": 0, "D": 7}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for _, e := range got {
		w, ok := want[e.PublicKey]
		if !ok || w != e.Power {
			t.Fatalf("unexpected entry %+v, want map %v", e, want)
		}
	}
}

type fakeGateway struct {
	enabled    bool
	root       bool
	period     uint64
	powerCur   PowerTable
	configNum  uint64
	powerNext  PowerTable
	xmsgHash   [32]byte
}

func (g *fakeGateway) CheckpointingEnabled(ctx context.Context, h common.Height) (bool, error) {
	return g.enabled, nil
}
func (g *fakeGateway) IsRootSubnet(ctx context.Context) bool { return g.root }
func (g *fakeGateway) Period(ctx context.Context) uint64     { return g.period }
func (g *fakeGateway) CurrentPowerTable(ctx context.Context, h common.Height) (PowerTable, error) {
	return g.powerCur, nil
}
func (g *fakeGateway) ApplyPendingMembership(ctx context.Context, h common.Height) (uint64, error) {
	return g.configNum, nil
}
func (g *fakeGateway) NextMembership(ctx context.Context, n uint64, scale uint64) (Membership, error) {
	return Membership{ConfigurationNumber: n, PowerTable: g.powerNext}, nil
}
func (g *fakeGateway) CrossMessagesHash(ctx context.Context, h common.Height) ([32]byte, error) {
	return g.xmsgHash, nil
}

func TestMaybeCreateCheckpointSkipsOffBoundary(t *testing.T) {
	gw := &fakeGateway{enabled: true, period: 10, powerCur: PowerTable{"A": 1}}
	e := NewEngine(gw, nil, []byte("subnet"), 1)
	res, err := e.MaybeCreateCheckpoint(context.Background(), 15, [32]byte{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Fatal("expected nil result off the checkpoint boundary")
	}
}

func TestMaybeCreateCheckpointSkipsWhenDisabledOrRoot(t *testing.T) {
	gw := &fakeGateway{enabled: false, period: 10}
	e := NewEngine(gw, nil, []byte("subnet"), 1)
	if res, err := e.MaybeCreateCheckpoint(context.Background(), 10, [32]byte{}); err != nil || res != nil {
		t.Fatalf("expected nil, nil when disabled, got %v, %v", res, err)
	}

	gw2 := &fakeGateway{enabled: true, root: true, period: 10}
	e2 := NewEngine(gw2, nil, []byte("subnet"), 1)
	if res, err := e2.MaybeCreateCheckpoint(context.Background(), 10, [32]byte{}); err != nil || res != nil {
		t.Fatalf("expected nil, nil for root subnet, got %v, %v", res, err)
	}
}

func TestMaybeCreateCheckpointComputesUpdatesAndPersists(t *testing.T) {
	gw := &fakeGateway{
		enabled:   true,
		period:    10,
		powerCur:  PowerTable{"A": 10, "B": 10},
		configNum: 3,
		powerNext: PowerTable{"A": 10, "B": 5, "C": 1},
	}
	store := NewStore(memorydb.New())
	e := NewEngine(gw, store, []byte("subnet"), 1)

	res, err := e.MaybeCreateCheckpoint(context.Background(), 20, [32]byte{9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil {
		t.Fatal("expected a checkpoint result")
	}
	if res.Checkpoint.NextConfigurationNumber != 3 {
		t.Fatalf("next_configuration_number = %d, want 3", res.Checkpoint.NextConfigurationNumber)
	}
	if len(res.PowerUpdates) != 2 {
		t.Fatalf("power updates = %v, want 2 entries", res.PowerUpdates)
	}
	has, err := store.Has(20)
	if err != nil || !has {
		t.Fatalf("expected checkpoint persisted at height 20: has=%v err=%v", has, err)
	}
}

type fakeBroadcaster struct {
	calls []uint64
	err   error
}

func (b *fakeBroadcaster) BroadcastAddSignature(ctx context.Context, nonce uint64, h common.Height, sig []byte) error {
	if b.err != nil {
		return b.err
	}
	b.calls = append(b.calls, nonce)
	return nil
}

type fakeSigner struct{ pubHex string }

func (s fakeSigner) Sign(payload []byte) ([]byte, error) { return []byte("sig"), nil }
func (s fakeSigner) PublicKeyHex() string                { return s.pubHex }

func TestSerialBroadcasterAssignsMonotonicNonces(t *testing.T) {
	bc := &fakeBroadcaster{}
	b := NewSerialBroadcaster(bc, 5)
	signer := fakeSigner{pubHex: "validator-a"}
	pending := []PendingCheckpoint{
		{Height: 10, Payload: []byte("p10"), Signatories: PowerTable{"validator-a": 1}},
		{Height: 20, Payload: []byte("p20"), Signatories: PowerTable{"validator-a": 1}},
		{Height: 30, Payload: []byte("p30"), Signatories: PowerTable{"validator-b": 1}}, // not a signatory, skipped
	}
	if err := b.BroadcastIncompleteSignatures(context.Background(), signer, pending); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bc.calls) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(bc.calls))
	}
	if bc.calls[0] != 5 || bc.calls[1] != 6 {
		t.Fatalf("expected nonces [5 6], got %v", bc.calls)
	}
	if b.Nonce() != 7 {
		t.Fatalf("final nonce = %d, want 7", b.Nonce())
	}
}

func TestSerialBroadcasterStopsOnError(t *testing.T) {
	bc := &fakeBroadcaster{err: errors.New("transport down")}
	b := NewSerialBroadcaster(bc, 0)
	signer := fakeSigner{pubHex: "validator-a"}
	pending := []PendingCheckpoint{{Height: 1, Payload: nil, Signatories: PowerTable{"validator-a": 1}}}
	if err := b.BroadcastIncompleteSignatures(context.Background(), signer, pending); err == nil {
		t.Fatal("expected broadcast error to propagate")
	}
	if b.Nonce() != 0 {
		t.Fatalf("nonce should not advance on failure, got %d", b.Nonce())
	}
}
