// Copyright 2023 The subnetd Authors
// This file is part of the subnetd library.
//
// The subnetd library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The subnetd library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the subnetd library. If not, see <http://www.gnu.org/licenses/>.

// Package mclock is a wrapper for a monotonic machine clock, so that
// filter-expiry timing (§5) can be deterministically simulated in tests
// instead of depending on the wall clock.
package mclock

import "time"

// AbsTime represents absolute monotonic time.
type AbsTime time.Duration

// Add returns t + d.
func (t AbsTime) Add(d time.Duration) AbsTime { return t + AbsTime(d) }

// Sub returns t - t2.
func (t AbsTime) Sub(t2 AbsTime) time.Duration { return time.Duration(t - t2) }

// Clock abstracts over the system clock so tests can simulate its passage.
type Clock interface {
	Now() AbsTime
	Sleep(time.Duration)
	NewTimer(time.Duration) ChanTimer
	After(time.Duration) <-chan AbsTime
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer represents a cancellable event returned by AfterFunc.
type Timer interface {
	// Stop cancels the timer. It returns false if the timer already fired
	// or was already stopped.
	Stop() bool
}

// ChanTimer is a cancellable, resettable timer returned by NewTimer.
type ChanTimer interface {
	Timer

	// C returns the channel that receives a value when the timer fires.
	C() <-chan AbsTime
	// Reset reschedules the timer to fire after d.
	Reset(d time.Duration)
}

// System implements Clock using the actual operating-system clock.
type System struct{}

var start = time.Now()

func (System) Now() AbsTime { return AbsTime(time.Since(start)) }

func (System) Sleep(d time.Duration) { time.Sleep(d) }

func (System) NewTimer(d time.Duration) ChanTimer {
	ch := make(chan AbsTime, 1)
	t := time.AfterFunc(d, func() {
		select {
		case ch <- System{}.Now():
		default:
		}
	})
	return &systemTimer{t, ch}
}

func (System) After(d time.Duration) <-chan AbsTime {
	ch := make(chan AbsTime, 1)
	time.AfterFunc(d, func() { ch <- System{}.Now() })
	return ch
}

func (System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type systemTimer struct {
	*time.Timer
	c chan AbsTime
}

func (st *systemTimer) C() <-chan AbsTime { return st.c }

func (st *systemTimer) Reset(d time.Duration) { st.Timer.Reset(d) }
