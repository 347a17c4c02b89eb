package encoder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cgint/voxmlx/internal/kvcache"
)

// identityTransformer passes frames through untouched. Conv-stage and
// downsample equivalence is independent of the attention stack.
type identityTransformer struct{}

func (identityTransformer) NumLayers() int { return 1 }

func (identityTransformer) Forward(frames [][]float32, _ []*kvcache.Cache) ([][]float32, error) {
	return frames, nil
}

// sumAdapter projects a flattened group to [sum, weighted-sum].
type sumAdapter struct{}

func (sumAdapter) Project(flat []float32) ([]float32, error) {
	var a, b float32
	for i, v := range flat {
		a += v
		b += v * float32(i+1)
	}
	return []float32{a, b}, nil
}

func testConv(inDim, outDim, kernel, stride, salt int) *CausalConv {
	c := NewCausalConv(inDim, outDim, kernel, stride)
	n := 0
	for o := range c.Weight {
		for k := range c.Weight[o] {
			for i := range c.Weight[o][k] {
				c.Weight[o][k][i] = float32(math.Sin(float64(n+1) * 0.391 * float64(salt)))
				n++
			}
		}
	}
	for o := range c.Bias {
		c.Bias[o] = float32(math.Cos(float64(o+1) * 0.173 * float64(salt)))
	}
	return c
}

func rampFrames(n, dim, salt int) [][]float32 {
	out := make([][]float32, n)
	for t := range out {
		row := make([]float32, dim)
		for i := range row {
			row[i] = float32(math.Sin(float64(t*dim+i+1) * 0.217 * float64(salt)))
		}
		out[t] = row
	}
	return out
}

func testEncoder(t *testing.T) *Encoder {
	t.Helper()
	enc, err := New(
		testConv(3, 4, 3, 1, 1),
		testConv(4, 4, 3, 2, 2),
		identityTransformer{},
		sumAdapter{},
		4,
		Config{CacheCapacity: 64},
	)
	require.NoError(t, err)
	return enc
}

func TestCausalConvShapes(t *testing.T) {
	tests := []struct {
		name    string
		stride  int
		frames  int
		wantOut int
	}{
		{name: "stride 1 exact kernel", stride: 1, frames: 3, wantOut: 1},
		{name: "stride 1 longer", stride: 1, frames: 7, wantOut: 5},
		{name: "stride 2", stride: 2, frames: 7, wantOut: 3},
		{name: "too short", stride: 1, frames: 2, wantOut: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConv(2, 3, 3, tt.stride, 1)
			out, err := c.Forward(rampFrames(tt.frames, 2, 1))
			require.NoError(t, err)
			assert.Len(t, out, tt.wantOut)
			for _, row := range out {
				assert.Len(t, row, 3)
			}
		})
	}
}

func TestCausalConvDimMismatch(t *testing.T) {
	c := testConv(2, 3, 3, 1, 1)
	_, err := c.Forward(rampFrames(4, 5, 1))
	assert.Error(t, err)
}

func TestCausalConvCausality(t *testing.T) {
	// Changing a future input must not alter earlier outputs.
	c := testConv(2, 2, 3, 1, 3)
	base := rampFrames(8, 2, 2)

	padded := func(x [][]float32) [][]float32 {
		return append([][]float32{make([]float32, 2), make([]float32, 2)}, x...)
	}

	ref, err := c.Forward(padded(base))
	require.NoError(t, err)

	mutated := rampFrames(8, 2, 2)
	mutated[7][0] = 99
	got, err := c.Forward(padded(mutated))
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		assert.Equal(t, ref[i], got[i], "output %d depends on a future input", i)
	}
}

func TestConvStageMatchesBatch(t *testing.T) {
	for _, stride := range []int{1, 2} {
		conv := testConv(3, 3, 3, stride, 4)
		frames := rampFrames(40, 3, 5)

		batch, err := conv.Forward(leftPadZero(frames, conv.PadTotal(), conv.InDim))
		require.NoError(t, err)

		for _, chunk := range []int{1, 2, 3, 7, 40} {
			stage := newConvStage(conv)
			var got [][]float32
			for off := 0; off < len(frames); off += chunk {
				end := off + chunk
				if end > len(frames) {
					end = len(frames)
				}
				out, err := stage.feed(frames[off:end])
				require.NoError(t, err)
				got = append(got, out...)
			}
			require.Len(t, got, len(batch), "stride %d chunk %d", stride, chunk)
			for i := range batch {
				assert.Equal(t, batch[i], got[i], "stride %d chunk %d output %d", stride, chunk, i)
			}
		}
	}
}

func TestEncodeStepMatchesBatch(t *testing.T) {
	enc := testEncoder(t)

	// 8 mel frames collapse to one embedding through stride 2 and a
	// downsample group of 4.
	frames := rampFrames(5*8, 3, 6)

	batch, err := enc.Encode(frames)
	require.NoError(t, err)
	require.Len(t, batch, 5)

	for _, chunk := range []int{8, 16, 3, 1} {
		st := enc.NewState()
		var got [][]float32
		for off := 0; off < len(frames); off += chunk {
			end := off + chunk
			if end > len(frames) {
				end = len(frames)
			}
			embeds, err := enc.EncodeStep(frames[off:end], st)
			require.NoError(t, err)
			got = append(got, embeds...)
		}

		require.Len(t, got, len(batch), "chunk %d", chunk)
		for i := range batch {
			for j := range batch[i] {
				assert.InDelta(t, batch[i][j], got[i][j], 1e-5, "chunk %d embed %d dim %d", chunk, i, j)
			}
		}
	}
}

func TestEncodeStepArbitrarySplits(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		enc := testEncoder(t)
		tokens := rapid.IntRange(1, 6).Draw(rt, "tokens")
		frames := rampFrames(tokens*8, 3, 7)

		batch, err := enc.Encode(frames)
		if err != nil {
			rt.Fatalf("batch encode: %v", err)
		}

		st := enc.NewState()
		var got [][]float32
		off := 0
		for off < len(frames) {
			n := rapid.IntRange(1, len(frames)-off).Draw(rt, "chunk")
			embeds, err := enc.EncodeStep(frames[off:off+n], st)
			if err != nil {
				rt.Fatalf("step encode: %v", err)
			}
			got = append(got, embeds...)
			off += n
		}

		if len(got) != len(batch) {
			rt.Fatalf("embeds %d, want %d", len(got), len(batch))
		}
		for i := range batch {
			for j := range batch[i] {
				if diff := math.Abs(float64(batch[i][j] - got[i][j])); diff > 1e-5 {
					rt.Fatalf("embed %d dim %d diverges by %g", i, j, diff)
				}
			}
		}
	})
}

func TestEncodeStepRemainderHeld(t *testing.T) {
	enc := testEncoder(t)
	st := enc.NewState()

	// 6 mel frames produce 3 post-conv frames, one short of a group.
	embeds, err := enc.EncodeStep(rampFrames(6, 3, 8), st)
	require.NoError(t, err)
	assert.Empty(t, embeds)

	// Two more complete the group.
	embeds, err = enc.EncodeStep(rampFrames(2, 3, 8), st)
	require.NoError(t, err)
	assert.Len(t, embeds, 1)
}

func TestStateReset(t *testing.T) {
	enc := testEncoder(t)
	frames := rampFrames(16, 3, 9)

	st := enc.NewState()
	first, err := enc.EncodeStep(frames, st)
	require.NoError(t, err)

	st.Reset()
	second, err := enc.EncodeStep(frames, st)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i], second[i])
	}
}

func TestEncodeOddLeadingFrameDropped(t *testing.T) {
	enc := testEncoder(t)

	even, err := enc.Encode(rampFrames(16, 3, 10))
	require.NoError(t, err)

	padded := append([][]float32{make([]float32, 3)}, rampFrames(16, 3, 10)...)
	odd, err := enc.Encode(padded)
	require.NoError(t, err)

	assert.Equal(t, even, odd)
}

func TestNewRejectsBadDownsample(t *testing.T) {
	_, err := New(testConv(3, 4, 3, 1, 1), testConv(4, 4, 3, 2, 2),
		identityTransformer{}, sumAdapter{}, 0, Config{})
	assert.Error(t, err)
}
