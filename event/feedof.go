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

package event

import (
	"reflect"
	"sync"
)

// FeedOf is a generic type-safe wrapper around Feed, avoiding the
// interface{} Send/Subscribe surface when the event type is known at
// compile time (checkpoint-committed events, finality-committed events).
type FeedOf[T any] struct {
	once      sync.Once
	sendLock  chan struct{}
	removeSub chan chan T
	sendCases caseListOf[T]

	mu    sync.Mutex
	inbox caseListOf[T]
}

type feedOfSub[T any] struct {
	channel  chan T
	feed     *FeedOf[T]
	errc     chan error
	unsubOne sync.Once
}

type caseListOf[T any] []chanCase[T]

type chanCase[T any] struct {
	ch   chan T
	val  T
	send bool
}

func (f *FeedOf[T]) init() {
	f.sendLock = make(chan struct{}, 1)
	f.sendLock <- struct{}{}
	f.removeSub = make(chan chan T)
}

// Subscribe adds a channel to the feed.
func (f *FeedOf[T]) Subscribe(channel chan T) Subscription {
	f.once.Do(f.init)
	sub := &feedOfSub[T]{feed: f, channel: channel, errc: make(chan error, 1)}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = append(f.inbox, chanCase[T]{ch: channel})
	return sub
}

func (sub *feedOfSub[T]) Unsubscribe() {
	sub.unsubOne.Do(func() {
		sub.feed.remove(sub)
		close(sub.errc)
	})
}
func (sub *feedOfSub[T]) Err() <-chan error { return sub.errc }

func (f *FeedOf[T]) remove(sub *feedOfSub[T]) {
	f.mu.Lock()
	idx := -1
	for i, c := range f.inbox {
		if c.ch == sub.channel {
			idx = i
			break
		}
	}
	if idx != -1 {
		f.inbox = append(f.inbox[:idx], f.inbox[idx+1:]...)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	select {
	case f.removeSub <- sub.channel:
	case <-f.sendLock:
		for i, c := range f.sendCases {
			if c.ch == sub.channel {
				f.sendCases = append(f.sendCases[:i], f.sendCases[i+1:]...)
				break
			}
		}
		f.sendLock <- struct{}{}
	}
}

// Send delivers to all subscribed channels.
func (f *FeedOf[T]) Send(value T) (nsent int) {
	f.once.Do(f.init)
	<-f.sendLock

	f.mu.Lock()
	f.sendCases = append(f.sendCases, f.inbox...)
	f.inbox = nil
	f.mu.Unlock()

	for i := range f.sendCases {
		f.sendCases[i].val = value
		f.sendCases[i].send = true
	}

	pending := append(caseListOf[T]{}, f.sendCases...)
	for len(pending) > 0 {
		progressed := false
		remaining := pending[:0]
		for _, c := range pending {
			select {
			case c.ch <- c.val:
				nsent++
				progressed = true
			default:
				remaining = append(remaining, c)
			}
		}
		pending = remaining
		if !progressed && len(pending) > 0 {
			// Block until any remaining case can send (or a subscriber is
			// removed) so slow subscribers still receive the value.
			cases := make([]reflect.SelectCase, 0, len(pending)+1)
			for _, c := range pending {
				cases = append(cases, reflect.SelectCase{Dir: reflect.SelectSend, Chan: reflect.ValueOf(c.ch), Send: reflect.ValueOf(c.val)})
			}
			removeCh := reflect.ValueOf(f.removeSub)
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: removeCh})
			chosen, recv, _ := reflect.Select(cases)
			if chosen == len(cases)-1 {
				removed := recv.Interface().(chan T)
				next := pending[:0]
				for _, c := range pending {
					if c.ch != removed {
						next = append(next, c)
					}
				}
				pending = next
				for i, c := range f.sendCases {
					if c.ch == removed {
						f.sendCases = append(f.sendCases[:i], f.sendCases[i+1:]...)
						break
					}
				}
			} else {
				nsent++
				pending = append(pending[:chosen], pending[chosen+1:]...)
			}
		}
	}
	f.sendLock <- struct{}{}
	return nsent
}
