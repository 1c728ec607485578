// Package sync implements the parent syncer (spec §4.D): the long-running
// task that advances a three-pointer state machine against the parent
// chain and feeds confirmed payloads into the finality provider (§4.C).
//
// Grounded on the teacher corpus's polling-loop idiom (go-ethereum's
// downloader/fetcher tick-and-backoff pattern, generalized here to the
// tail/to_confirm/head pointer scheme spec.md §4.D specifies) and on
// common/backoff for the exponential retry schedule.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/common/backoff"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/finality"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/parent"
	"github.com/consensus-shipyard/fendermint-sub000/log"
)

// StatusSource reports whether the local consensus engine is still
// catching up, per §4.D step 1. The consensus engine itself is out of
// scope (§1); only this narrow read is needed here.
type StatusSource interface {
	IsCatchingUp(ctx context.Context) (bool, error)
}

// LastCommittedSource answers query_last_committed() for the reorg path
// (§4.D). In production this is the finality provider's own
// LastCommitted; it is a separate interface so tests can inject a
// different view (e.g. "what the chain state actually persisted").
type LastCommittedSource interface {
	LastCommitted() finality.ParentFinality
}

// Config holds the syncer's tunables (spec §4.D).
type Config struct {
	ChainHeadDelay uint64
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	RetryLimit     int
}

// Syncer drives the tail/to_confirm/head state machine (spec §4.D).
type Syncer struct {
	proxy     parent.Proxy
	finality  *finality.Provider
	status    StatusSource
	lastCmt   LastCommittedSource
	cfg       Config
	retry     *backoff.Exponential
	log       log.Logger

	tail              common.Height
	head              common.Height
	toConfirm         *common.Height
	lastNonNullHeight common.Height
	lastNonNullHash   common.Hash
	hasNonNull        bool
}

func New(proxy parent.Proxy, fin *finality.Provider, status StatusSource, lastCmt LastCommittedSource, cfg Config) *Syncer {
	s := &Syncer{
		proxy:    proxy,
		finality: fin,
		status:   status,
		lastCmt:  lastCmt,
		cfg:      cfg,
		retry:    backoff.NewExponential(cfg.BackoffBase, cfg.BackoffMax, cfg.RetryLimit),
		log:      log.New("component", "sync"),
	}
	s.initFromLastCommitted()
	return s
}

func (s *Syncer) initFromLastCommitted() {
	lc := s.lastCmt.LastCommitted()
	s.tail = lc.Height
	s.head = lc.Height
	s.toConfirm = nil
	s.lastNonNullHeight = lc.Height
	s.lastNonNullHash = lc.BlockHash
	s.hasNonNull = true
}

// ErrBackoffExhausted is returned by Tick when the retry budget for the
// current run of transient failures has been used up; the caller should
// log it and continue on the next tick, never treat it as fatal (§4.D:
// "persistent failure logs and continues on the next tick, never panics").
var ErrBackoffExhausted = errors.New("sync: backoff exhausted, will retry on next tick")

// Tick performs one iteration of the sync loop (spec §4.D). It never
// panics: transient RPC errors are translated into ErrBackoffExhausted or
// silently retried on the next call, per spec.
func (s *Syncer) Tick(ctx context.Context) error {
	catchingUp, err := s.status.IsCatchingUp(ctx)
	if err != nil {
		return s.transient(err)
	}
	if catchingUp {
		return nil
	}

	head, err := s.proxy.ChainHeadHeight(ctx)
	if err != nil {
		return s.transient(err)
	}
	s.retry.Reset()

	if head < s.cfg.ChainHeadDelay {
		return nil
	}
	f := head - s.cfg.ChainHeadDelay
	if f < s.head {
		// Parent chain head regressed since the last tick: reorg.
		return s.reorg(ctx)
	}
	if f == s.head {
		return nil
	}

	s.head++
	bh, err := s.proxy.BlockHash(ctx, s.head)
	if err != nil {
		s.head--
		return s.transient(err)
	}
	s.retry.Reset()

	if bh.NullRound {
		s.log.Debug("null round", "height", s.head)
		return nil
	}

	if s.hasNonNull && !bh.ParentHash.IsZero() && bh.ParentHash != s.lastNonNullHash {
		s.log.Warn("parent hash mismatch, reorg detected", "height", s.head, "want", s.lastNonNullHash.Hex(), "got", bh.ParentHash.Hex())
		return s.reorg(ctx)
	}

	// hash_at_h for the height staged in to_confirm is whatever
	// lastNonNullHash held before this tick's block replaces it — it was
	// recorded exactly when to_confirm was last set (spec §4.D step 3).
	if s.toConfirm != nil {
		confirmedHeight := *s.toConfirm
		confirmedHash := s.lastNonNullHash
		if err := s.confirm(ctx, confirmedHeight, confirmedHash); err != nil {
			s.head--
			return s.transient(err)
		}
		s.tail = confirmedHeight
	}

	s.lastNonNullHeight = s.head
	s.lastNonNullHash = bh.BlockHash
	s.hasNonNull = true

	h := s.head
	s.toConfirm = &h
	return nil
}

// confirm fetches the payload for the newly-confirmed height and pushes it
// (and explicit nulls for every height strictly between tail and it) to
// the finality provider's cache (§4.D step 3).
func (s *Syncer) confirm(ctx context.Context, confirmedHeight common.Height, confirmedHash common.Hash) error {
	changes, err := s.proxy.ValidatorChanges(ctx, confirmedHeight)
	if err != nil {
		return err
	}
	msgs, err := s.proxy.TopDownMsgs(ctx, confirmedHeight, confirmedHash)
	if err != nil {
		return err
	}

	for h := s.tail + 1; h < confirmedHeight; h++ {
		if err := s.finality.NewParentView(h, nil); err != nil {
			return fmt.Errorf("sync: push null round %d: %w", h, err)
		}
	}
	payload := &finality.Payload{BlockHash: confirmedHash, ValidatorChanges: changes, CrossMessages: msgs}
	if err := s.finality.NewParentView(confirmedHeight, payload); err != nil {
		return fmt.Errorf("sync: push confirmed payload at %d: %w", confirmedHeight, err)
	}
	return nil
}

// reorg resets the finality provider to the last committed finality and
// reinitializes the syncer's pointers from it (§4.D reorg path).
func (s *Syncer) reorg(ctx context.Context) error {
	lc := s.lastCmt.LastCommitted()
	s.finality.Reset(lc)
	s.initFromLastCommitted()
	s.log.Warn("syncer reinitialized after reorg", "height", lc.Height)
	return nil
}

// transient records a backoff step for a non-fatal RPC failure. It never
// returns a fatal error — only ErrBackoffExhausted, which the caller
// should log and move on from (§4.D: "never panics").
func (s *Syncer) transient(err error) error {
	delay, exhausted := s.retry.Next()
	if exhausted {
		s.log.Error("parent sync backoff exhausted", "err", err)
		return fmt.Errorf("%w: %v", ErrBackoffExhausted, err)
	}
	s.log.Warn("parent sync transient failure, backing off", "delay", delay, "err", err)
	return nil
}

func (s *Syncer) Tail() common.Height           { return s.tail }
func (s *Syncer) Head() common.Height           { return s.head }
func (s *Syncer) ToConfirm() (common.Height, bool) {
	if s.toConfirm == nil {
		return 0, false
	}
	return *s.toConfirm, true
}
