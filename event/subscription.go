// Copyright 2016 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package event deals with subscriptions to real-time events. It is used
// throughout subnetd's parent-finality and checkpoint subsystems (§5) to let
// consumers (the interpreter's end-block hook, metrics, RPC subscriptions)
// observe state changes without polling.
package event

import (
	"errors"
	"sync"
)

// Subscription represents a stream of events. The carrier of the events is
// typically a channel, but isn't part of the interface.
type Subscription interface {
	Err() <-chan error // returns the error channel
	Unsubscribe()       // cancels sending of events, closing the event channel
}

// NewSubscription runs a producer function as a subscription in a new
// goroutine. The channel given to the producer is closed when Unsubscribe
// is called. If fn returns an error, it is sent on the subscription's error
// channel.
func NewSubscription(producer func(<-chan struct{}) error) Subscription {
	s := &funcSub{unsub: make(chan struct{}), err: make(chan error, 1)}
	go func() {
		defer close(s.err)
		err := producer(s.unsub)
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.unsubscribed {
			if err != nil {
				s.err <- err
			}
			s.unsubscribed = true
		}
	}()
	return s
}

type funcSub struct {
	unsub        chan struct{}
	err          chan error
	mu           sync.Mutex
	unsubscribed bool
}

func (s *funcSub) Unsubscribe() {
	s.mu.Lock()
	if s.unsubscribed {
		s.mu.Unlock()
		return
	}
	s.unsubscribed = true
	close(s.unsub)
	s.mu.Unlock()
	<-s.err
}

func (s *funcSub) Err() <-chan error { return s.err }

// Resubscribe calls fn repeatedly to keep a subscription established. When
// the subscription is established, Resubscribe waits for it to fail and
// calls fn again. There is no delay between calls: when fn returns an
// error it is called again at once, and backoffMax is not used.
func Resubscribe(backoffMax int, fn func(ctx chan struct{}) (Subscription, error)) Subscription {
	s := &resubscribeSub{
		waitTime: backoffMax,
		fn:       fn,
		unsub:    make(chan struct{}),
		err:      make(chan error),
	}
	go s.loop()
	return s
}

type resubscribeSub struct {
	fn       func(chan struct{}) (Subscription, error)
	waitTime int
	mu       sync.Mutex
	unsub    chan struct{}
	unsubOnce sync.Once
	err      chan error
}

func (s *resubscribeSub) Unsubscribe() {
	s.unsubOnce.Do(func() { close(s.unsub) })
	<-s.err
}

func (s *resubscribeSub) Err() <-chan error { return s.err }

func (s *resubscribeSub) loop() {
	defer close(s.err)
	var done bool
	for !done {
		sub, err := s.fn(s.unsub)
		if err != nil {
			select {
			case <-s.unsub:
				done = true
			default:
			}
			continue
		}
		done = s.waitForError(sub)
		sub.Unsubscribe()
	}
}

func (s *resubscribeSub) waitForError(sub Subscription) bool {
	defer sub.Unsubscribe()
	select {
	case <-s.unsub:
		return true
	case <-sub.Err():
		return false
	}
}

// SubscriptionScope provides a facility to unsubscribe multiple
// subscriptions at once. For code that handle more than one subscription, a
// scope can be used to conveniently unsubscribe all of them with a single
// call. The zero value is ready to use.
type SubscriptionScope struct {
	mu     sync.Mutex
	subs   map[*scopeSub]struct{}
	closed bool
}

type scopeSub struct {
	sc *SubscriptionScope
	s  Subscription
}

// Track starts tracking a subscription. If the scope is closed, Track
// returns nil. The returned subscription is a wrapper, unsubscribing
// through the wrapper removes it from the scope.
func (sc *SubscriptionScope) Track(s Subscription) Subscription {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return nil
	}
	if sc.subs == nil {
		sc.subs = make(map[*scopeSub]struct{})
	}
	ss := &scopeSub{sc, s}
	sc.subs[ss] = struct{}{}
	return ss
}

func (ss *scopeSub) Unsubscribe() {
	ss.s.Unsubscribe()
	ss.sc.mu.Lock()
	defer ss.sc.mu.Unlock()
	delete(ss.sc.subs, ss)
}

func (ss *scopeSub) Err() <-chan error { return ss.s.Err() }

// Close calls Unsubscribe on all tracked subscriptions and prevents further
// tracking. It is safe to call Close more than once.
func (sc *SubscriptionScope) Close() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return
	}
	sc.closed = true
	for s := range sc.subs {
		s.s.Unsubscribe()
	}
	sc.subs = nil
}

// Count returns the number of tracked subscriptions. It is meant to be used
// for diagnostics.
func (sc *SubscriptionScope) Count() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.subs)
}

var errAlreadyClosed = errors.New("event: subscription scope closed")

// JoinSubscriptions joins multiple subscriptions to be able to track them
// as one. It treats Unsubscribe and error management as follows:
//   - a single Unsubscribe method tears down all given subscriptions in order,
//   - the first error from any of the subscriptions is forwarded to the
//     joined error channel, and
//   - if all subscriptions unsubscribe cleanly, the joined error channel is
//     also closed cleanly.
func JoinSubscriptions(subs ...Subscription) Subscription {
	return NewSubscription(func(unsubbed <-chan struct{}) error {
		s := &joinSub{subs: subs}
		defer s.unsubscribeAll()

		errc := make(chan error, len(subs))
		for _, sub := range subs {
			sub := sub
			go func() {
				select {
				case err, ok := <-sub.Err():
					if ok {
						errc <- err
					} else {
						errc <- nil
					}
				case <-unsubbed:
				}
			}()
		}
		remaining := len(subs)
		for remaining > 0 {
			select {
			case err := <-errc:
				remaining--
				if err != nil {
					return err
				}
			case <-unsubbed:
				return nil
			}
		}
		return nil
	})
}

type joinSub struct {
	subs []Subscription
	once sync.Once
}

func (s *joinSub) unsubscribeAll() {
	s.once.Do(func() {
		for _, sub := range s.subs {
			sub.Unsubscribe()
		}
	})
}
