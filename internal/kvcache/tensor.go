package kvcache

import "fmt"

// Tensor is a dense [heads, positions, dim] float32 array backing cached
// attention keys or values. Storage is position-major so that slicing and
// concatenating along the time axis are contiguous copies.
type Tensor struct {
	heads     int
	dim       int
	positions int
	data      []float32
}

// NewTensor allocates a zero-filled tensor with the given shape.
func NewTensor(heads, positions, dim int) *Tensor {
	return &Tensor{
		heads:     heads,
		dim:       dim,
		positions: positions,
		data:      make([]float32, heads*positions*dim),
	}
}

// Heads returns the number of attention heads.
func (t *Tensor) Heads() int { return t.heads }

// Dim returns the per-head feature dimension.
func (t *Tensor) Dim() int { return t.dim }

// Positions returns the number of time positions currently stored.
func (t *Tensor) Positions() int { return t.positions }

// At returns the element at (head, pos, i).
func (t *Tensor) At(head, pos, i int) float32 {
	return t.data[(pos*t.heads+head)*t.dim+i]
}

// Set writes the element at (head, pos, i).
func (t *Tensor) Set(head, pos, i int, v float32) {
	t.data[(pos*t.heads+head)*t.dim+i] = v
}

// Row returns the backing slice for one time position (all heads, all dims).
// The slice aliases the tensor's storage.
func (t *Tensor) Row(pos int) []float32 {
	w := t.heads * t.dim
	return t.data[pos*w : (pos+1)*w]
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{heads: t.heads, dim: t.dim, positions: t.positions}
	out.data = make([]float32, len(t.data))
	copy(out.data, t.data)
	return out
}

// SlicePositions returns a copy of positions [from, to).
func (t *Tensor) SlicePositions(from, to int) *Tensor {
	out := NewTensor(t.heads, to-from, t.dim)
	w := t.heads * t.dim
	copy(out.data, t.data[from*w:to*w])
	return out
}

// concatPositions concatenates tensors along the time axis. All inputs must
// share head count and dimension.
func concatPositions(parts ...*Tensor) *Tensor {
	total := 0
	for _, p := range parts {
		total += p.positions
	}
	out := NewTensor(parts[0].heads, total, parts[0].dim)
	off := 0
	for _, p := range parts {
		copy(out.data[off:], p.data)
		off += len(p.data)
	}
	return out
}

// copyInto writes src's positions into dst starting at position dstPos.
func (t *Tensor) copyInto(dstPos int, src *Tensor) {
	w := t.heads * t.dim
	copy(t.data[dstPos*w:], src.data)
}

// sameShape reports whether two tensors agree on heads and dim.
func sameShape(a, b *Tensor) error {
	if a.heads != b.heads || a.dim != b.dim {
		return fmt.Errorf("tensor shape mismatch: [%d heads, %d dim] vs [%d heads, %d dim]",
			a.heads, a.dim, b.heads, b.dim)
	}
	return nil
}
