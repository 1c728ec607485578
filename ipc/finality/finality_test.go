package finality

import (
	"testing"

	"github.com/consensus-shipyard/fendermint-sub000/common"
)

func hashOf(i byte) common.Hash {
	var h common.Hash
	for j := range h {
		h[j] = i
	}
	return h
}

func seedRange(t *testing.T, p *Provider, lo, hi common.Height, null map[common.Height]bool) {
	t.Helper()
	for h := lo; h <= hi; h++ {
		if null[h] {
			if err := p.NewParentView(h, nil); err != nil {
				t.Fatalf("seed null round %d: %v", h, err)
			}
			continue
		}
		if err := p.NewParentView(h, &Payload{BlockHash: hashOf(byte(h))}); err != nil {
			t.Fatalf("seed %d: %v", h, err)
		}
	}
}

// TestBasicFinalityProposal is scenario S1 of the spec.
func TestBasicFinalityProposal(t *testing.T) {
	cfg := Config{ChainHeadDelay: 2, MinProposalInterval: 10}
	p := New(cfg, ParentFinality{Height: 100, BlockHash: common.Hash{}})
	seedRange(t, p, 100, 115, nil)

	got, ok := p.NextProposal()
	if !ok {
		t.Fatal("expected a proposal")
	}
	want := ParentFinality{Height: 110, BlockHash: hashOf(110)}
	if !got.Equal(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

// TestNullRoundSkipping is scenario S2 of the spec.
func TestNullRoundSkipping(t *testing.T) {
	cfg := Config{ChainHeadDelay: 2, MinProposalInterval: 10}
	p := New(cfg, ParentFinality{Height: 100, BlockHash: common.Hash{}})
	null := map[common.Height]bool{103: true, 107: true, 110: true}
	seedRange(t, p, 100, 120, null)

	got, ok := p.NextProposal()
	if !ok {
		t.Fatal("expected a proposal")
	}
	want := ParentFinality{Height: 111, BlockHash: hashOf(111)}
	if !got.Equal(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

// TestReorgInvalidatesCache is scenario S3 of the spec: after a reorg is
// detected the syncer resets the provider, and no proposal is possible
// until the cache refills.
func TestReorgInvalidatesCache(t *testing.T) {
	cfg := Config{ChainHeadDelay: 2, MinProposalInterval: 10}
	p := New(cfg, ParentFinality{Height: 100, BlockHash: common.Hash{}})
	seedRange(t, p, 100, 115, nil)

	if _, ok := p.NextProposal(); !ok {
		t.Fatal("sanity: expected a proposal before reset")
	}

	last := p.LastCommitted()
	p.Reset(last)

	if _, ok := p.NextProposal(); ok {
		t.Fatal("expected no proposal immediately after reset")
	}
	if upper, ok := p.CacheUpper(); ok {
		t.Fatalf("expected empty cache after reset, got upper=%d", upper)
	}

	// Cache refills from the post-reorg height and proposals resume.
	if err := p.NewParentView(106, &Payload{BlockHash: hashOf(106)}); err != nil {
		t.Fatalf("refill: %v", err)
	}
	if _, ok := p.NextProposal(); ok {
		t.Fatal("still below min_proposal_interval past last_committed, expected no proposal")
	}
}

func TestCheckProposalAgreesWithNextProposal(t *testing.T) {
	cfg := Config{ChainHeadDelay: 2, MinProposalInterval: 10}
	p := New(cfg, ParentFinality{Height: 100})
	seedRange(t, p, 100, 115, nil)

	prop, ok := p.NextProposal()
	if !ok {
		t.Fatal("expected a proposal")
	}
	if !p.CheckProposal(prop) {
		t.Fatal("a validator's own proposal must validate")
	}
	bad := prop
	bad.BlockHash = hashOf(255)
	if p.CheckProposal(bad) {
		t.Fatal("mismatched hash must not validate")
	}
}

func TestSetNewFinalityRejectsStalePrev(t *testing.T) {
	cfg := Config{ChainHeadDelay: 2, MinProposalInterval: 10}
	p := New(cfg, ParentFinality{Height: 100})
	seedRange(t, p, 100, 115, nil)

	prop, _ := p.NextProposal()
	stale := ParentFinality{Height: 99, BlockHash: hashOf(99)}
	if err := p.SetNewFinality(prop, stale); err == nil {
		t.Fatal("expected stale prev to be rejected")
	}

	genesis := ParentFinality{Height: 100}
	if err := p.SetNewFinality(prop, genesis); err != nil {
		t.Fatalf("commit with correct prev should succeed: %v", err)
	}
	if lo, _ := p.CacheLower(); lo != prop.Height+1 {
		t.Fatalf("cache lower = %d, want %d", lo, prop.Height+1)
	}
}

func TestSubscribeReceivesCommits(t *testing.T) {
	cfg := Config{ChainHeadDelay: 2, MinProposalInterval: 10}
	p := New(cfg, ParentFinality{Height: 100})
	seedRange(t, p, 100, 115, nil)

	ch := make(chan ParentFinality, 1)
	sub := p.Subscribe(ch)
	defer sub.Unsubscribe()

	prop, _ := p.NextProposal()
	if err := p.SetNewFinality(prop, ParentFinality{Height: 100}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	select {
	case got := <-ch:
		if !got.Equal(prop) {
			t.Fatalf("got %+v, want %+v", got, prop)
		}
	default:
		t.Fatal("expected a commit notification")
	}
}
