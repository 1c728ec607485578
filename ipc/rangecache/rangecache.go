// Package rangecache implements a contiguous, integer-indexed cache with
// gap-tolerant lookup and pruning (spec §4.A). It is the foundation for
// every height-indexed view in the node: the parent view cache (§4.C)
// stores one Option[ParentViewPayload] per parent height in exactly this
// structure.
//
// A Cache never has holes in its key range: a missing value at a
// height inside [lower, upper] is represented by an explicit zero value
// (e.g. a nil *V), never by the key being absent from the map. Only
// contiguous append is allowed; a caller that tries to append out of
// sequence has a programming error, and that must surface as a panic, not
// a silently-ignored write — treating a skipped height as "pruned" would
// let a validator propose against a range no other validator agrees on.
package rangecache

import "fmt"

// NonSequentialError reports an out-of-order append, a programmer error by
// spec (§4.A): "Failure mode: non-sequential append is a programmer error
// and must surface as an abortive fault, never silently accepted."
type NonSequentialError struct {
	Upper    uint64
	Got      uint64
	HasUpper bool
}

func (e NonSequentialError) Error() string {
	if !e.HasUpper {
		return fmt.Sprintf("rangecache: non-sequential append: key %d on empty cache", e.Got)
	}
	return fmt.Sprintf("rangecache: non-sequential append: key %d, want %d", e.Got, e.Upper+1)
}

// Cache maps a contiguous range of uint64 keys to values of type V.
type Cache[V any] struct {
	lower    uint64
	upper    uint64
	hasUpper bool
	values   map[uint64]V
}

func New[V any]() *Cache[V] {
	return &Cache[V]{values: make(map[uint64]V)}
}

// Append adds a value at k. k must equal Upper()+1, or the cache must be
// empty. Any other k panics with a NonSequentialError: this is the
// "abortive fault" the spec requires, not a recoverable error, because the
// only caller of Append (the parent syncer, or the initial seed at
// startup) has already decided what height comes next — disagreement
// means a bug, not bad input.
func (c *Cache[V]) Append(k uint64, v V) {
	if c.hasUpper {
		if k != c.upper+1 {
			panic(NonSequentialError{Upper: c.upper, Got: k, HasUpper: true})
		}
		c.upper = k
	} else {
		c.lower = k
		c.upper = k
		c.hasUpper = true
	}
	c.values[k] = v
}

// Get returns the value at k, if k is within [Lower(), Upper()].
func (c *Cache[V]) Get(k uint64) (V, bool) {
	if !c.hasUpper || k < c.lower || k > c.upper {
		var zero V
		return zero, false
	}
	v, ok := c.values[k]
	return v, ok
}

// ValuesIn returns the values for keys in [lo, hi], in key order, skipping
// keys outside of [Lower(), Upper()]. O(hi-lo) per spec §4.A.
func (c *Cache[V]) ValuesIn(lo, hi uint64) []V {
	if !c.hasUpper {
		return nil
	}
	if lo < c.lower {
		lo = c.lower
	}
	if hi > c.upper {
		hi = c.upper
	}
	if lo > hi {
		return nil
	}
	out := make([]V, 0, hi-lo+1)
	for k := lo; k <= hi; k++ {
		if v, ok := c.values[k]; ok {
			out = append(out, v)
		}
	}
	return out
}

// RemoveBelow drops all entries with key < k.
func (c *Cache[V]) RemoveBelow(k uint64) {
	if !c.hasUpper {
		return
	}
	if k <= c.lower {
		return
	}
	if k > c.upper {
		k = c.upper + 1
	}
	for i := c.lower; i < k; i++ {
		delete(c.values, i)
	}
	c.lower = k
	if c.lower > c.upper {
		// The whole cache has been pruned away; go back to "empty".
		c.hasUpper = false
		c.lower, c.upper = 0, 0
	}
}

// Reset discards every entry, returning the cache to its empty state.
func (c *Cache[V]) Reset() {
	c.values = make(map[uint64]V)
	c.hasUpper = false
	c.lower, c.upper = 0, 0
}

func (c *Cache[V]) Lower() (uint64, bool) { return c.lower, c.hasUpper }
func (c *Cache[V]) Upper() (uint64, bool) { return c.upper, c.hasUpper }
func (c *Cache[V]) IsEmpty() bool         { return !c.hasUpper }
func (c *Cache[V]) Len() int              { return len(c.values) }
