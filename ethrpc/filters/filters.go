// Package filters implements the polling filter system and push
// subscriptions spec §6's `eth_new{Filter,BlockFilter,
// PendingTransactionFilter}` / `eth_get{FilterChanges,FilterLogs}` /
// `eth_uninstallFilter` / `eth_subscribe` methods need, plus the bounded
// FilterRecords accumulator and GC loop spec §3/§5 describe.
//
// Ported near-verbatim in shape from eth/filters/filter_system_test.go and
// eth/filters/test_backend.go — the one real (non-test) file the pack
// carries for this package — generalized from go-ethereum's block/log/tx
// event types to this repo's own (common.Hash-keyed block, ethapi.Log,
// chain-message hash) shapes.
//
// Resolves the open question in spec.md §9 (does a "new blocks" filter key
// its accumulator on tx.hash or block.hash?) in favor of block.hash: see
// DESIGN.md Open Questions.
package filters

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/common/bloom"
	"github.com/consensus-shipyard/fendermint-sub000/common/mclock"
	"github.com/consensus-shipyard/fendermint-sub000/event"
	"github.com/consensus-shipyard/fendermint-sub000/internal/ethapi"
	"github.com/consensus-shipyard/fendermint-sub000/log"
)

// Head is the minimal new-block event a FilterSystem subscribes to.
type Head struct {
	Height common.Height
	Hash   common.Hash
}

// Backend is the live-event feed this package needs — the committed-block
// stream, the pending-tx stream, and the per-block log stream — kept
// separate from internal/ethapi.Backend since that one is a point-in-time
// read view, not a subscription source.
type Backend interface {
	SubscribeNewHeads(ch chan Head) event.Subscription
	SubscribePendingTx(ch chan common.Hash) event.Subscription
	SubscribeLogs(ch chan []ethapi.Log) event.Subscription
	CurrentHeight(ctx context.Context) (common.Height, error)
}

// Type distinguishes a filter's event kind (spec §3 FilterRecords: one of
// NewBlocks, PendingTxs, Logs).
type Type int

const (
	BlocksFilter Type = iota
	PendingTransactionsFilter
	LogsFilter
)

// Config configures the GC loop.
type Config struct {
	Timeout time.Duration // a filter whose last-poll age exceeds this is collected
	Clock   mclock.Clock  // defaults to mclock.System{}; tests inject mclock.Simulated
}

const defaultTimeout = 5 * time.Minute

type filter struct {
	typ      Type
	criteria ethapi.FilterCriteria

	mu       sync.Mutex
	hashes   []common.Hash // NewBlocks (keyed on block.hash) / PendingTxs accumulator
	logs     []ethapi.Log  // Logs accumulator
	lastPoll mclock.AbsTime

	unsub func()
}

// FilterSystem is the polling filter registry (spec §3/§5: "bounded
// accumulator between polls with a last-poll timestamp; a filter whose
// last-poll age exceeds a timeout is garbage-collected").
type FilterSystem struct {
	backend Backend
	timeout time.Duration
	clock   mclock.Clock
	log     log.Logger

	mu      sync.Mutex
	filters map[string]*filter

	stop chan struct{}
}

func NewFilterSystem(backend Backend, cfg Config) *FilterSystem {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = mclock.System{}
	}
	fs := &FilterSystem{
		backend: backend,
		timeout: timeout,
		clock:   clock,
		log:     log.New("component", "filters"),
		filters: make(map[string]*filter),
		stop:    make(chan struct{}),
	}
	go fs.gcLoop()
	return fs
}

func (fs *FilterSystem) Close() { close(fs.stop) }

func (fs *FilterSystem) gcLoop() {
	ticker := time.NewTicker(fs.timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-fs.stop:
			return
		case <-ticker.C:
			fs.collect()
		}
	}
}

func (fs *FilterSystem) collect() {
	cutoff := fs.clock.Now().Add(-fs.timeout)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for id, f := range fs.filters {
		f.mu.Lock()
		stale := f.lastPoll < cutoff
		f.mu.Unlock()
		if stale {
			f.unsub()
			delete(fs.filters, id)
			fs.log.Debug("garbage-collected stale filter", "id", id)
		}
	}
}

func newFilterID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("filters: generate id: %w", err)
	}
	return "0x" + hex.EncodeToString(b[:]), nil
}

func (fs *FilterSystem) register(f *filter) (string, error) {
	id, err := newFilterID()
	if err != nil {
		return "", err
	}
	f.lastPoll = fs.clock.Now()
	fs.mu.Lock()
	fs.filters[id] = f
	fs.mu.Unlock()
	return id, nil
}

// NewBlockFilter installs a filter that accumulates new block hashes
// (spec §3 FilterRecords.NewBlocks).
func (fs *FilterSystem) NewBlockFilter() (string, error) {
	ch := make(chan Head, 256)
	sub := fs.backend.SubscribeNewHeads(ch)
	f := &filter{typ: BlocksFilter, unsub: sub.Unsubscribe}

	go func() {
		for {
			select {
			case h := <-ch:
				f.mu.Lock()
				f.hashes = append(f.hashes, h.Hash)
				f.mu.Unlock()
			case <-sub.Err():
				return
			}
		}
	}()

	return fs.register(f)
}

// NewPendingTransactionFilter installs a filter that accumulates pending
// transaction hashes (spec §3 FilterRecords.PendingTxs).
func (fs *FilterSystem) NewPendingTransactionFilter() (string, error) {
	ch := make(chan common.Hash, 256)
	sub := fs.backend.SubscribePendingTx(ch)
	f := &filter{typ: PendingTransactionsFilter, unsub: sub.Unsubscribe}

	go func() {
		for {
			select {
			case h := <-ch:
				f.mu.Lock()
				f.hashes = append(f.hashes, h)
				f.mu.Unlock()
			case <-sub.Err():
				return
			}
		}
	}()

	return fs.register(f)
}

// NewFilter installs a log filter matching criteria (spec §3
// FilterRecords.Logs).
func (fs *FilterSystem) NewFilter(criteria ethapi.FilterCriteria) (string, error) {
	ch := make(chan []ethapi.Log, 256)
	sub := fs.backend.SubscribeLogs(ch)
	f := &filter{typ: LogsFilter, criteria: criteria, unsub: sub.Unsubscribe}

	go func() {
		for {
			select {
			case logs := <-ch:
				if !bloomMayMatch(logs, criteria) {
					continue
				}
				matched := matchLogs(logs, criteria)
				if len(matched) == 0 {
					continue
				}
				f.mu.Lock()
				f.logs = append(f.logs, matched...)
				f.mu.Unlock()
			case <-sub.Err():
				return
			}
		}
	}()

	return fs.register(f)
}

// bloomMayMatch cheaply rules out a batch of logs before matchLogs scans
// them entry by entry: it ORs every log's address and topics into one
// bloom, then tests the filter criteria against it. A negative test means
// no log in the batch can satisfy criteria; a positive test is only a
// maybe (bloom false positives), so matchLogs still does the exact check.
func bloomMayMatch(logs []ethapi.Log, crit ethapi.FilterCriteria) bool {
	if len(crit.Addresses) == 0 && len(crit.Topics) == 0 {
		return true
	}
	var batch bloom.Bloom
	for _, lg := range logs {
		batch.Add(lg.Address[:])
		for _, t := range lg.Topics {
			batch.Add(t[:])
		}
	}

	if len(crit.Addresses) > 0 {
		matched := false
		for _, a := range crit.Addresses {
			if batch.Test(a[:]) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, alternatives := range crit.Topics {
		if len(alternatives) == 0 {
			continue
		}
		matched := false
		for _, alt := range alternatives {
			if batch.Test(alt[:]) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func matchLogs(logs []ethapi.Log, crit ethapi.FilterCriteria) []ethapi.Log {
	if len(crit.Addresses) == 0 && len(crit.Topics) == 0 {
		return logs
	}
	var out []ethapi.Log
	for _, lg := range logs {
		if len(crit.Addresses) > 0 && !addressMatches(lg.Address, crit.Addresses) {
			continue
		}
		if len(crit.Topics) > 0 && !topicsMatch(lg.Topics, crit.Topics) {
			continue
		}
		out = append(out, lg)
	}
	return out
}

func addressMatches(addr common.Address, set []common.Address) bool {
	for _, a := range set {
		if a == addr {
			return true
		}
	}
	return false
}

func topicsMatch(logTopics []common.Hash, want [][]common.Hash) bool {
	if len(want) > len(logTopics) {
		return false
	}
	for i, alternatives := range want {
		if len(alternatives) == 0 {
			continue
		}
		found := false
		for _, alt := range alternatives {
			if alt == logTopics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// errUnknownFilter is returned by GetFilterChanges/GetFilterLogs/
// UninstallFilter for an id this FilterSystem never registered or has
// already collected.
type errUnknownFilter string

func (e errUnknownFilter) Error() string { return "filters: unknown filter " + string(e) }

// GetFilterChanges drains and returns whatever has accumulated since the
// last poll (spec §3: "bounded accumulator between polls").
func (fs *FilterSystem) GetFilterChanges(id string) (any, error) {
	fs.mu.Lock()
	f, ok := fs.filters[id]
	fs.mu.Unlock()
	if !ok {
		return nil, errUnknownFilter(id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPoll = fs.clock.Now()

	switch f.typ {
	case BlocksFilter, PendingTransactionsFilter:
		hashes := f.hashes
		f.hashes = nil
		return hashes, nil
	case LogsFilter:
		logs := f.logs
		f.logs = nil
		return logs, nil
	default:
		return nil, fmt.Errorf("filters: unknown filter type %d", f.typ)
	}
}

// GetFilterLogs returns a log filter's full accumulated set without
// draining it (spec §6 eth_getFilterLogs semantics).
func (fs *FilterSystem) GetFilterLogs(id string) ([]ethapi.Log, error) {
	fs.mu.Lock()
	f, ok := fs.filters[id]
	fs.mu.Unlock()
	if !ok {
		return nil, errUnknownFilter(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPoll = fs.clock.Now()
	if f.typ != LogsFilter {
		return nil, fmt.Errorf("filters: %s is not a log filter", id)
	}
	out := make([]ethapi.Log, len(f.logs))
	copy(out, f.logs)
	return out, nil
}

// UninstallFilter removes a filter immediately (spec §6
// eth_uninstallFilter).
func (fs *FilterSystem) UninstallFilter(id string) bool {
	fs.mu.Lock()
	f, ok := fs.filters[id]
	if ok {
		delete(fs.filters, id)
	}
	fs.mu.Unlock()
	if ok {
		f.unsub()
	}
	return ok
}
