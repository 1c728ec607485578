// Package finality implements the parent view cache and finality provider
// (spec §4.C): the component that holds prefetched parent-chain payloads
// and answers "what should we propose next" / "is this proposal valid"
// without ever touching the network.
//
// Single-writer discipline (§9, §5): the parent syncer (ipc/sync) is the
// only writer of NewParentView; the block-commit path is the only caller
// of SetNewFinality/Reset. Readers (proposal preparation, proposal
// validation) take the RWMutex for a read only, so concurrent reads never
// block each other; a writer waits for in-flight reads to finish.
package finality

import (
	"errors"
	"fmt"
	"sync"

	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/event"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/parent"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/rangecache"
	"github.com/consensus-shipyard/fendermint-sub000/log"
)

// ParentFinality is the claim that the parent chain finalized BlockHash at
// Height (spec §3).
type ParentFinality struct {
	Height    common.Height
	BlockHash common.Hash
}

func (f ParentFinality) Equal(o ParentFinality) bool {
	return f.Height == o.Height && f.BlockHash == o.BlockHash
}

// ValidatorChange and CrossMessage are re-exported from the parent proxy's
// vocabulary so consumers of this package don't also need to import it.
type ValidatorChange = parent.ValidatorChange
type CrossMessage = parent.CrossMessage

// Payload is one parent height's worth of observed data (spec §3). A nil
// *Payload stored in the cache denotes a null round.
type Payload struct {
	BlockHash        common.Hash
	ValidatorChanges []ValidatorChange
	CrossMessages    []CrossMessage
}

// ErrNonSequential is returned by NewParentView when the payload's
// validator-change or cross-message ordering invariant is violated
// (spec §4.C).
var ErrNonSequential = errors.New("finality: validator changes or cross messages not sequentially ordered")

// Config holds the finality provider's tunables (spec §4.C).
type Config struct {
	ChainHeadDelay      uint64
	MaxProposalRange    uint64
	MinProposalInterval uint64
	// TipBuffer additionally shields the chain tip beyond ChainHeadDelay,
	// matching the "- tip_buffer" term in next_proposal's upper bound
	// (spec §4.C). Zero is a valid, and the common, configuration.
	TipBuffer uint64
}

// Provider is the parent view cache + finality provider (spec §4.C).
type Provider struct {
	mu            sync.RWMutex
	cache         *rangecache.Cache[*Payload]
	lastCommitted ParentFinality
	hasCommitted  bool
	cfg           Config

	committed event.FeedOf[ParentFinality]
	log       log.Logger
}

func New(cfg Config, genesis ParentFinality) *Provider {
	return &Provider{
		cache:         rangecache.New[*Payload](),
		lastCommitted: genesis,
		hasCommitted:  true,
		cfg:           cfg,
		log:           log.New("component", "finality"),
	}
}

// Subscribe returns a channel-backed subscription to every successful
// SetNewFinality/Reset, for the interpreter's end-block hook and metrics.
func (p *Provider) Subscribe(ch chan ParentFinality) event.Subscription {
	return p.committed.Subscribe(ch)
}

// NewParentView appends the observed payload (or nil for a null round) at
// height h (spec §4.C). It panics via rangecache.Append's NonSequentialError
// if h does not extend the cache by exactly one — that is a syncer bug,
// not a recoverable condition (see ipc/rangecache doc comment).
func (p *Provider) NewParentView(h common.Height, payload *Payload) error {
	if payload != nil {
		if !sequentialByConfigNumber(payload.ValidatorChanges) || !sequentialByNonce(payload.CrossMessages) {
			return fmt.Errorf("%w: height %d", ErrNonSequential, h)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Append(h, payload)
	return nil
}

func sequentialByConfigNumber(changes []ValidatorChange) bool {
	for i := 1; i < len(changes); i++ {
		if changes[i].ConfigurationNumber <= changes[i-1].ConfigurationNumber {
			return false
		}
	}
	return true
}

func sequentialByNonce(msgs []CrossMessage) bool {
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Nonce <= msgs[i-1].Nonce {
			return false
		}
	}
	return true
}

// NextProposal returns the smallest non-null height eligible to propose
// (spec §4.C). Determinism: this is a pure function of (cache,
// lastCommitted, cfg), so all validators with identical caches return the
// identical result — property 4/7 in spec §8.
func (p *Provider) NextProposal() (ParentFinality, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	upper, ok := p.cache.Upper()
	if !ok {
		return ParentFinality{}, false
	}
	ceiling := upper
	if ceiling < p.cfg.ChainHeadDelay+p.cfg.TipBuffer {
		return ParentFinality{}, false
	}
	ceiling -= p.cfg.ChainHeadDelay + p.cfg.TipBuffer

	floor := p.lastCommitted.Height + p.cfg.MinProposalInterval
	if p.cfg.MaxProposalRange > 0 && ceiling > floor+p.cfg.MaxProposalRange {
		ceiling = floor + p.cfg.MaxProposalRange
	}

	for h := floor; h <= ceiling; h++ {
		payload, ok := p.cache.Get(h)
		if !ok || payload == nil {
			continue // absent from cache, or an explicit null round
		}
		return ParentFinality{Height: h, BlockHash: payload.BlockHash}, true
	}
	return ParentFinality{}, false
}

// CheckProposal validates a proposed finality against local state
// (spec §4.C). On a missing or null-round height it returns false, never
// an error — these are soft failures per §7.
func (p *Provider) CheckProposal(prop ParentFinality) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if prop.Height <= p.lastCommitted.Height {
		return false
	}
	upper, ok := p.cache.Upper()
	if !ok || prop.Height > upper {
		return false
	}
	payload, ok := p.cache.Get(prop.Height)
	if !ok || payload == nil {
		return false
	}
	return payload.BlockHash == prop.BlockHash
}

// SetNewFinality commits prop, requiring prev to match the currently
// committed finality exactly (spec §4.C) — this is the CAS-style guard
// that keeps concurrent commit attempts from silently clobbering each
// other if ever called from more than one place.
func (p *Provider) SetNewFinality(prop, prev ParentFinality) error {
	p.mu.Lock()
	if p.hasCommitted && !p.lastCommitted.Equal(prev) {
		p.mu.Unlock()
		return fmt.Errorf("finality: stale prev: have %+v, want %+v", prev, p.lastCommitted)
	}
	if prop.Height <= p.lastCommitted.Height {
		p.mu.Unlock()
		return fmt.Errorf("finality: non-monotonic commit: %d <= %d", prop.Height, p.lastCommitted.Height)
	}
	p.lastCommitted = prop
	p.hasCommitted = true
	p.cache.RemoveBelow(prop.Height + 1)
	p.mu.Unlock()

	p.log.Info("committed new parent finality", "height", prop.Height, "hash", prop.BlockHash.Hex())
	p.committed.Send(prop)
	return nil
}

// Reset discards the entire cache and sets lastCommitted, invoked
// exclusively on a detected reorg (spec §4.C/§4.D).
func (p *Provider) Reset(prop ParentFinality) {
	p.mu.Lock()
	p.cache.Reset()
	p.lastCommitted = prop
	p.hasCommitted = true
	p.mu.Unlock()

	p.log.Warn("parent finality cache reset (reorg)", "height", prop.Height, "hash", prop.BlockHash.Hex())
	p.committed.Send(prop)
}

func (p *Provider) LastCommitted() ParentFinality {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastCommitted
}

func (p *Provider) CacheUpper() (common.Height, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cache.Upper()
}

func (p *Provider) CacheLower() (common.Height, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cache.Lower()
}

// PayloadAt returns the payload cached at h, for the interpreter's deliver
// path when executing a TopDownProposal (§4.H).
func (p *Provider) PayloadAt(h common.Height) (*Payload, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cache.Get(h)
}
