package sync

import (
	"context"
	"testing"
	"time"

	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/finality"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/parent"
)

type alwaysSynced struct{}

func (alwaysSynced) IsCatchingUp(ctx context.Context) (bool, error) { return false, nil }

type staticLastCommitted struct{ fin *finality.Provider }

func (s staticLastCommitted) LastCommitted() finality.ParentFinality { return s.fin.LastCommitted() }

func hashOf(i byte) common.Hash {
	var h common.Hash
	for j := range h {
		h[j] = i
	}
	return h
}

func newHarness(t *testing.T, genesis common.Height) (*Syncer, *parent.StaticProxy, *finality.Provider) {
	t.Helper()
	proxy := parent.NewStaticProxy(genesis)
	fin := finality.New(finality.Config{ChainHeadDelay: 0, MinProposalInterval: 0}, finality.ParentFinality{Height: genesis, BlockHash: hashOf(byte(genesis))})
	cfg := Config{ChainHeadDelay: 2, BackoffBase: time.Millisecond, BackoffMax: time.Second, RetryLimit: 3}
	syncer := New(proxy, fin, alwaysSynced{}, staticLastCommitted{fin}, cfg)
	return syncer, proxy, fin
}

// TestSyncerConfirmsPayloadsInOrder drives the three-pointer state machine
// through several non-null blocks and checks the finality cache fills in
// strictly increasing, contiguous order.
func TestSyncerConfirmsPayloadsInOrder(t *testing.T) {
	syncer, proxy, fin := newHarness(t, 100)
	ctx := context.Background()

	for h := common.Height(101); h <= 106; h++ {
		proxy.SeedBlock(h, hashOf(byte(h-1)), hashOf(byte(h)), nil, nil)
	}
	proxy.SetHead(108)

	for i := 0; i < 6; i++ {
		if err := syncer.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	lo, ok := fin.CacheLower()
	if !ok {
		t.Fatal("expected cache to have entries")
	}
	if lo != 101 {
		t.Fatalf("cache lower = %d, want 101", lo)
	}
	if syncer.Tail() < 101 {
		t.Fatalf("tail = %d, want progress past 101", syncer.Tail())
	}
}

// TestSyncerHandlesNullRounds checks that a null round advances head
// without confirming anything and without breaking contiguity once a
// later block confirms the prior non-null height.
func TestSyncerHandlesNullRounds(t *testing.T) {
	syncer, proxy, fin := newHarness(t, 100)
	ctx := context.Background()

	proxy.SeedBlock(101, hashOf(100), hashOf(101), nil, nil)
	proxy.SeedNullRound(102)
	proxy.SeedBlock(103, hashOf(101), hashOf(103), nil, nil)
	proxy.SeedBlock(104, hashOf(103), hashOf(104), nil, nil)
	proxy.SetHead(106)

	// Tick once per height: 101 (stage), 102 (null, advance only), 103
	// (confirms 101), 104 (confirms 103, pushing the null at 102).
	for i := 0; i < 4; i++ {
		if err := syncer.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	if v, ok := fin.PayloadAt(102); !ok || v != nil {
		t.Fatalf("expected explicit null at 102, got %v, %v", v, ok)
	}
	if v, ok := fin.PayloadAt(101); !ok || v == nil {
		t.Fatal("expected a confirmed payload at 101")
	}
	if v, ok := fin.PayloadAt(103); !ok || v == nil {
		t.Fatal("expected a confirmed payload at 103")
	}
}

// TestSyncerReorgResetsFinality checks that a parent-hash mismatch (spec
// scenario S3's trigger) invokes Reset on the finality provider.
func TestSyncerReorgResetsFinality(t *testing.T) {
	syncer, proxy, fin := newHarness(t, 100)
	ctx := context.Background()

	proxy.SeedBlock(101, hashOf(100), hashOf(101), nil, nil)
	proxy.SeedBlock(102, hashOf(101), hashOf(102), nil, nil)
	proxy.SetHead(104)

	if err := syncer.Tick(ctx); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if err := syncer.Tick(ctx); err != nil {
		t.Fatalf("tick 2: %v", err)
	}

	// Now the parent reports a different hash at 102: a reorg.
	proxy.SeedBlock(102, hashOf(99), hashOf(255), nil, nil)
	proxy.SetHead(106)
	proxy.SeedBlock(103, hashOf(255), hashOf(103), nil, nil)

	if err := syncer.Tick(ctx); err != nil {
		t.Fatalf("tick 3: %v", err)
	}

	if _, ok := fin.CacheUpper(); ok {
		t.Fatal("expected finality cache to be reset after reorg")
	}
}
