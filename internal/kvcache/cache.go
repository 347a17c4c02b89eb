package kvcache

import "fmt"

// DefaultStep is the preallocation block size for the single-step append
// path. Growing by whole blocks amortizes allocation during generation.
const DefaultStep = 256

// Cache is a bounded, wraparound-capable key/value cache for one attention
// layer. It holds two growable buffers (keys and values), a physical write
// cursor idx, and a monotonically increasing offset counting every position
// ever appended. Once offset exceeds capacity the buffers are circular and
// idx denotes the next slot to overwrite.
//
// Invariants: 0 <= idx <= capacity and offset >= idx.
type Cache struct {
	keys     *Tensor
	values   *Tensor
	capacity int
	step     int
	idx      int
	offset   int
}

// New creates a cache that retains at most capacity positions.
func New(capacity int) *Cache {
	return NewWithStep(capacity, DefaultStep)
}

// NewWithStep creates a cache with an explicit preallocation block size.
func NewWithStep(capacity, step int) *Cache {
	if capacity < 1 {
		panic(fmt.Sprintf("kvcache: capacity must be positive, got %d", capacity))
	}
	if step < 1 {
		step = DefaultStep
	}
	return &Cache{capacity: capacity, step: step}
}

// Offset returns the total number of positions ever appended.
func (c *Cache) Offset() int { return c.offset }

// Len returns the number of valid cached positions, min(offset, capacity).
func (c *Cache) Len() int {
	if c.offset < c.capacity {
		return c.offset
	}
	return c.capacity
}

// Capacity returns the maximum number of retained positions.
func (c *Cache) Capacity() int { return c.capacity }

// Reset discards all cached state, returning the cache to its initial state.
func (c *Cache) Reset() {
	c.keys = nil
	c.values = nil
	c.idx = 0
	c.offset = 0
}

// AppendBulk appends a multi-position update (prefill, encoder batch mode)
// and returns the full attention context in chronological order. Any wrapped
// contents are re-linearized first; if the combined length exceeds capacity
// the oldest positions are trimmed from the front. The result is a pure
// sliding window over the most recent capacity positions.
func (c *Cache) AppendBulk(keys, values *Tensor) (*Tensor, *Tensor, error) {
	if err := sameShape(keys, values); err != nil {
		return nil, nil, fmt.Errorf("bulk append: %w", err)
	}
	if keys.Positions() != values.Positions() {
		return nil, nil, fmt.Errorf("bulk append: key/value position mismatch: %d vs %d",
			keys.Positions(), values.Positions())
	}

	n := keys.Positions()
	if c.keys == nil {
		c.keys = keys.Clone()
		c.values = values.Clone()
	} else {
		c.keys = concatPositions(c.temporalOrder(c.keys), keys)
		c.values = concatPositions(c.temporalOrder(c.values), values)
	}
	if excess := c.keys.Positions() - c.capacity; excess > 0 {
		c.keys = c.keys.SlicePositions(excess, c.keys.Positions())
		c.values = c.values.SlicePositions(excess, c.values.Positions())
	}
	c.offset += n
	c.idx = c.keys.Positions()
	return c.Fetch()
}

// AppendStep appends exactly one position and returns the attention context
// in chronological order. Buffers grow in step-sized blocks until capacity is
// reached, after which writes wrap circularly. Updates wider than one
// position are rejected; callers with multi-position updates must use
// AppendBulk.
func (c *Cache) AppendStep(keys, values *Tensor) (*Tensor, *Tensor, error) {
	if err := sameShape(keys, values); err != nil {
		return nil, nil, fmt.Errorf("step append: %w", err)
	}
	if keys.Positions() != 1 || values.Positions() != 1 {
		return nil, nil, fmt.Errorf("step append: expected exactly 1 position, got %d keys / %d values",
			keys.Positions(), values.Positions())
	}

	prev := c.offset
	if c.keys == nil || (prev >= c.keys.Positions() && c.keys.Positions() < c.capacity) {
		grow := c.step
		if rem := c.capacity - prev; rem < grow {
			grow = rem
		}
		blockK := NewTensor(keys.Heads(), grow, keys.Dim())
		blockV := NewTensor(values.Heads(), grow, values.Dim())
		if c.keys == nil {
			c.keys = blockK
			c.values = blockV
		} else {
			c.keys = concatPositions(c.keys, blockK)
			c.values = concatPositions(c.values, blockV)
		}
		c.idx = prev
	}

	if c.idx == c.capacity {
		c.idx = 0
	}

	c.keys.copyInto(c.idx, keys)
	c.values.copyInto(c.idx, values)
	c.offset++
	c.idx++

	return c.Fetch()
}

// Fetch returns copies of the valid cached keys and values, exactly
// min(offset, capacity) positions in true chronological order. After a wrap
// the segment ahead of the cursor is chronologically earliest and is moved
// to the front.
func (c *Cache) Fetch() (*Tensor, *Tensor, error) {
	if c.keys == nil {
		return nil, nil, fmt.Errorf("fetch: cache is empty")
	}
	return c.temporalOrder(c.keys), c.temporalOrder(c.values), nil
}

// temporalOrder re-linearizes a possibly wrapped buffer, returning only the
// valid positions in chronological order.
func (c *Cache) temporalOrder(t *Tensor) *Tensor {
	switch {
	case c.idx == t.Positions():
		return t.Clone()
	case c.idx < c.offset:
		// Wrapped: the tail starting at idx is oldest.
		return concatPositions(
			t.SlicePositions(c.idx, t.Positions()),
			t.SlicePositions(0, c.idx),
		)
	default:
		// Growth phase: positions beyond idx are preallocated zeros.
		return t.SlicePositions(0, c.idx)
	}
}
