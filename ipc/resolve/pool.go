// Package resolve implements the cross-message resolve pool (spec §4.E):
// the set of content-addressed payloads referenced by BottomUpResolve
// messages, each tracked through a monotonic Pending → Resolved lifecycle
// until the proposal path is allowed to include it.
//
// Grounded on the teacher corpus's in-memory registry idiom (go-ethereum's
// txpool pending/queued maps) generalized to this pool's simpler two-state
// lifecycle, with Prometheus gauges in the same style as the rest of this
// port's operational surface.
package resolve

import (
	"sync"

	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/event"
	"github.com/consensus-shipyard/fendermint-sub000/metrics"
)

// Status is a resolve-pool item's lifecycle state. It only ever moves
// Pending → Resolved (spec §4.E invariant); there is no reverse transition.
type Status uint8

const (
	Pending Status = iota
	Resolved
)

func (s Status) String() string {
	if s == Resolved {
		return "resolved"
	}
	return "pending"
}

// Item is a content-addressed reference to a payload this node's gateway
// must fetch before the payload can be included in a proposal (spec §3).
type Item struct {
	SubnetID   common.Hash // keyed loosely here; the real SubnetID type lives in the genesis/config layer
	PayloadCID common.Hash
}

var (
	gaugePending  = metrics.NewGauge("resolve", "pending_items", "cross-message resolve pool items awaiting resolution")
	gaugeResolved = metrics.NewGauge("resolve", "resolved_items", "cross-message resolve pool items resolved but not yet collected")
)

// Pool is the resolve pool (spec §4.E).
type Pool struct {
	mu    sync.Mutex
	items map[Item]Status

	resolved event.FeedOf[Item]
}

func New() *Pool {
	return &Pool{items: make(map[Item]Status)}
}

// Add registers item as Pending if it is not already tracked. Re-adding an
// already-Resolved item is a no-op: status never regresses (spec §4.E).
func (p *Pool) Add(item Item) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[item]; ok {
		return
	}
	p.items[item] = Pending
	gaugePending.Inc()
}

// GetStatus reports item's status, if tracked.
func (p *Pool) GetStatus(item Item) (Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.items[item]
	return s, ok
}

// MarkResolved transitions item to Resolved. Idempotent: marking an
// already-resolved or untracked item is a no-op (spec §4.E: "mark_resolved
// is idempotent; status never regresses").
func (p *Pool) MarkResolved(item Item) {
	p.mu.Lock()
	cur, ok := p.items[item]
	if !ok || cur == Resolved {
		p.mu.Unlock()
		return
	}
	p.items[item] = Resolved
	gaugePending.Dec()
	gaugeResolved.Inc()
	p.mu.Unlock()

	p.resolved.Send(item)
}

// CollectResolved drains every currently-Resolved item, removing it from
// the pool and returning it — used by the proposal path, which may only
// include resolved items (spec §4.E).
func (p *Pool) CollectResolved() []Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Item
	for item, status := range p.items {
		if status == Resolved {
			out = append(out, item)
			delete(p.items, item)
		}
	}
	if len(out) > 0 {
		gaugeResolved.Sub(float64(len(out)))
	}
	return out
}

// Subscribe notifies ch each time an item transitions to Resolved.
func (p *Pool) Subscribe(ch chan Item) event.Subscription {
	return p.resolved.Subscribe(ch)
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}
