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

// Package backoff implements the exponential retry schedule used by the
// parent syncer (§4.D) on transient RPC failure.
package backoff

import "time"

// Exponential computes retry delays doubling from Base up to Max, and
// reports when the configured retry limit is exhausted.
type Exponential struct {
	Base  time.Duration
	Max   time.Duration
	Limit int

	attempt int
}

func NewExponential(base, max time.Duration, limit int) *Exponential {
	return &Exponential{Base: base, Max: max, Limit: limit}
}

// Reset clears the attempt counter, called after any successful call.
func (e *Exponential) Reset() { e.attempt = 0 }

// Next returns the delay before the next retry and whether the retry
// budget is exhausted. Callers must stop retrying once exhausted is true.
func (e *Exponential) Next() (delay time.Duration, exhausted bool) {
	if e.Limit > 0 && e.attempt >= e.Limit {
		return 0, true
	}
	d := e.Base << uint(e.attempt)
	if d <= 0 || d > e.Max {
		d = e.Max
	}
	e.attempt++
	return d, false
}

func (e *Exponential) Attempt() int { return e.attempt }
