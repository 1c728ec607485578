package filters

import (
	"context"

	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/internal/ethapi"
)

// PushSubscription is a live eth_subscribe feed (spec §6: subscription
// notifications use the eth_subscribe method name with a {subscription,
// result} payload). Unlike the polling Filter types above, a push
// subscription has no accumulator or GC timeout — it lives exactly as
// long as its WebSocket connection does, and is torn down by calling
// Unsubscribe when the connection closes.
type PushSubscription struct {
	ID       string
	Kind     Type
	Criteria ethapi.FilterCriteria
	C        chan any

	unsubscribe func()
}

func (s *PushSubscription) Unsubscribe() { s.unsubscribe() }

// SubscribeNewHeads opens a push subscription over new block heads.
func (fs *FilterSystem) SubscribeNewHeads(ctx context.Context) (*PushSubscription, error) {
	id, err := newFilterID()
	if err != nil {
		return nil, err
	}
	raw := make(chan Head, 256)
	sub := fs.backend.SubscribeNewHeads(raw)
	out := make(chan any, 256)
	go func() {
		for {
			select {
			case h := <-raw:
				out <- h
			case <-sub.Err():
				close(out)
				return
			}
		}
	}()
	return &PushSubscription{ID: id, Kind: BlocksFilter, C: out, unsubscribe: sub.Unsubscribe}, nil
}

// SubscribeLogs opens a push subscription over logs matching criteria.
func (fs *FilterSystem) SubscribeLogs(ctx context.Context, criteria ethapi.FilterCriteria) (*PushSubscription, error) {
	id, err := newFilterID()
	if err != nil {
		return nil, err
	}
	raw := make(chan []ethapi.Log, 256)
	sub := fs.backend.SubscribeLogs(raw)
	out := make(chan any, 256)
	go func() {
		for {
			select {
			case logs := <-raw:
				for _, lg := range matchLogs(logs, criteria) {
					out <- lg
				}
			case <-sub.Err():
				close(out)
				return
			}
		}
	}()
	return &PushSubscription{ID: id, Kind: LogsFilter, Criteria: criteria, C: out, unsubscribe: sub.Unsubscribe}, nil
}

// SubscribePendingTransactions opens a push subscription over pending
// transaction hashes.
func (fs *FilterSystem) SubscribePendingTransactions(ctx context.Context) (*PushSubscription, error) {
	id, err := newFilterID()
	if err != nil {
		return nil, err
	}
	raw := make(chan common.Hash, 256)
	sub := fs.backend.SubscribePendingTx(raw)
	out := make(chan any, 256)
	go func() {
		for {
			select {
			case h := <-raw:
				out <- h
			case <-sub.Err():
				close(out)
				return
			}
		}
	}()
	return &PushSubscription{ID: id, Kind: PendingTransactionsFilter, C: out, unsubscribe: sub.Unsubscribe}, nil
}
