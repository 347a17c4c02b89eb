package encoder

import (
	"fmt"
	"math"
)

// CausalConv is a 1-D convolution that is zero-left-padded by kernel-stride
// positions so output at time t depends only on inputs at times <= t.
// Weights are laid out [out][kernel][in].
type CausalConv struct {
	Kernel int
	Stride int
	InDim  int
	OutDim int
	Weight [][][]float32
	Bias   []float32
}

// NewCausalConv allocates a zero-weight causal convolution.
func NewCausalConv(inDim, outDim, kernel, stride int) *CausalConv {
	w := make([][][]float32, outDim)
	for o := range w {
		w[o] = make([][]float32, kernel)
		for k := range w[o] {
			w[o][k] = make([]float32, inDim)
		}
	}
	return &CausalConv{
		Kernel: kernel,
		Stride: stride,
		InDim:  inDim,
		OutDim: outDim,
		Weight: w,
		Bias:   make([]float32, outDim),
	}
}

// PadTotal is the causal left padding: kernel minus stride.
func (c *CausalConv) PadTotal() int { return c.Kernel - c.Stride }

// Forward convolves x (already padded by the caller) without adding padding.
// x is [T][InDim]; the output is [(T-Kernel)/Stride + 1][OutDim], or nil if
// fewer than Kernel frames are available.
func (c *CausalConv) Forward(x [][]float32) ([][]float32, error) {
	if len(x) > 0 && len(x[0]) != c.InDim {
		return nil, fmt.Errorf("conv input dim %d, expected %d", len(x[0]), c.InDim)
	}
	if len(x) < c.Kernel {
		return nil, nil
	}
	nOut := (len(x)-c.Kernel)/c.Stride + 1
	out := make([][]float32, nOut)
	for j := 0; j < nOut; j++ {
		start := j * c.Stride
		row := make([]float32, c.OutDim)
		for o := 0; o < c.OutDim; o++ {
			sum := c.Bias[o]
			for k := 0; k < c.Kernel; k++ {
				in := x[start+k]
				wk := c.Weight[o][k]
				for i := 0; i < c.InDim; i++ {
					sum += wk[i] * in[i]
				}
			}
			row[o] = sum
		}
		out[j] = row
	}
	return out, nil
}

// gelu applies the exact Gaussian error linear unit in place, row by row.
func gelu(x [][]float32) [][]float32 {
	for _, row := range x {
		for i, v := range row {
			row[i] = float32(0.5 * float64(v) * (1.0 + math.Erf(float64(v)/math.Sqrt2)))
		}
	}
	return x
}

// convStage carries the streaming input state for one causal convolution: a
// pending buffer holding the frames not yet fully consumed by strided
// windows. On the very first chunk the buffer is seeded with the causal zero
// padding instead of retained history.
type convStage struct {
	conv    *CausalConv
	pending [][]float32
	started bool
}

func newConvStage(conv *CausalConv) *convStage {
	return &convStage{conv: conv}
}

// feed appends new frames and returns every output whose window is complete,
// retaining the unconsumed input frames for the next chunk. Greedy emission
// makes the chunked output stream identical to a whole-utterance pass for
// any chunk boundaries.
func (s *convStage) feed(frames [][]float32) ([][]float32, error) {
	if !s.started {
		s.started = true
		pad := s.conv.PadTotal()
		s.pending = make([][]float32, pad, pad+len(frames))
		for i := 0; i < pad; i++ {
			s.pending[i] = make([]float32, s.conv.InDim)
		}
	}
	s.pending = append(s.pending, frames...)

	out, err := s.conv.Forward(s.pending)
	if err != nil {
		return nil, err
	}
	consumed := len(out) * s.conv.Stride
	if consumed > 0 {
		s.pending = append([][]float32(nil), s.pending[consumed:]...)
	}
	return out, nil
}

// reset drops all carried input state.
func (s *convStage) reset() {
	s.pending = nil
	s.started = false
}
