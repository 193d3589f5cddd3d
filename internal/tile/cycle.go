package tile

// UnknownIndex is returned by Cycle.Index for values that are not in the cycle.
const UnknownIndex = -1

// Cycle is a fixed, ordered set of values with a predicate that removes values from
// rotation. It holds no position: the current index is always recomputed from the
// value the caller mirrors, so it stays correct after external changes.
type Cycle[V comparable] struct {
	values []V
	skip   func(V) bool
}

// NewCycle returns a cycle over values. A nil skip keeps every value in rotation.
func NewCycle[V comparable](values []V, skip func(V) bool) *Cycle[V] {
	cp := make([]V, len(values))
	copy(cp, values)
	return &Cycle[V]{values: cp, skip: skip}
}

// Values returns a copy of the values in cycle order.
func (c *Cycle[V]) Values() []V {
	cp := make([]V, len(c.values))
	copy(cp, c.values)
	return cp
}

// Index returns the position of v, or UnknownIndex.
func (c *Cycle[V]) Index(v V) int {
	for i, candidate := range c.values {
		if candidate == v {
			return i
		}
	}
	return UnknownIndex
}

// Resolve maps v onto the cycle. A value outside the cycle resolves to the first value.
// An empty cycle returns v and UnknownIndex.
func (c *Cycle[V]) Resolve(v V) (V, int) {
	if len(c.values) == 0 {
		return v, UnknownIndex
	}
	i := c.Index(v)
	if i == UnknownIndex {
		return c.values[0], 0
	}
	return v, i
}

// Next returns the value after current, wrapping around and passing over skipped
// values. An unknown current starts the search at the first value. If one full
// revolution finds nothing eligible, current is returned unchanged.
func (c *Cycle[V]) Next(current V) V {
	n := len(c.values)
	i := c.Index(current)
	for step := 0; step < n; step++ {
		i = (i + 1) % n
		candidate := c.values[i]
		if c.skip == nil || !c.skip(candidate) {
			return candidate
		}
	}
	return current
}
