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

package mclock

import "time"

// Alarm sends a notification on its channel no later than a scheduled
// deadline. Calling Schedule again reuses the pending timer instead of
// stacking a second one.
type Alarm struct {
	c        chan struct{}
	clock    Clock
	timer    Timer
	deadline AbsTime
}

// NewAlarm creates an alarm driven by clock.
func NewAlarm(clock Clock) *Alarm {
	if clock == nil {
		panic("mclock.NewAlarm: nil clock")
	}
	return &Alarm{c: make(chan struct{}, 1), clock: clock}
}

// C returns the channel on which the alarm delivers its notification.
func (a *Alarm) C() <-chan struct{} { return a.c }

// Stop disables a pending alarm and drains any notification already sent.
func (a *Alarm) Stop() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.deadline = 0
	select {
	case <-a.c:
	default:
	}
}

// Schedule arranges for the alarm to fire no later than the given absolute
// time. If a pending timer already fires at or before the new deadline it
// is kept (the alarm then fires at that earlier time); otherwise the
// previous timer is cancelled and a new one is set. A deadline in the past
// fires on the clock's next timer run.
func (a *Alarm) Schedule(deadline AbsTime) {
	now := a.clock.Now()
	if a.timer != nil {
		if a.deadline > now && a.deadline <= deadline {
			a.deadline = deadline
			return
		}
		a.timer.Stop()
	}
	d := time.Duration(0)
	if deadline > now {
		d = deadline.Sub(now)
	}
	a.deadline = deadline
	a.timer = a.clock.AfterFunc(d, a.send)
}

func (a *Alarm) send() {
	select {
	case a.c <- struct{}{}:
	default:
	}
}
