package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/cgint/voxmlx/internal/audio"
	"github.com/cgint/voxmlx/internal/encoder"
	"github.com/cgint/voxmlx/internal/kvcache"
)

// FakeConfig sizes the fake backend. Zero values select small defaults
// suitable for tests.
type FakeConfig struct {
	EncoderDim int // convolution output width (default 8)
	Dim        int // language-model embedding width (default 16)
	Vocab      int // vocabulary size (default 64)
	Layers     int // decoder/encoder layer count (default 2)

	// EOSAfter, when positive, makes the decoder produce the EOS token once
	// that many single-step positions have been decoded since the last
	// prefill. At zero the decoder never produces EOS, so end-of-sequence
	// handling is exactly scheduled rather than weight-dependent.
	EOSAfter int
}

// Fake is a deterministic, small-dimension Model implementation. It drives
// the real causal encoder, cache, and decode machinery with closed-form
// pseudo-weights so pipeline behavior (chunking equivalence, cache
// rotation, EOS handling) is fully exercised without a compute backend.
type Fake struct {
	cfg   FakeConfig
	enc   *encoder.Encoder
	steps int
}

// NewFake builds a fake backend.
func NewFake(cfg FakeConfig) (*Fake, error) {
	if cfg.EncoderDim == 0 {
		cfg.EncoderDim = 8
	}
	if cfg.Dim == 0 {
		cfg.Dim = 16
	}
	if cfg.Vocab == 0 {
		cfg.Vocab = 64
	}
	if cfg.Layers == 0 {
		cfg.Layers = 2
	}

	f := &Fake{cfg: cfg}

	conv1 := encoder.NewCausalConv(audio.NMels, cfg.EncoderDim, 3, 1)
	fillConvWeights(conv1, 1)
	conv2 := encoder.NewCausalConv(cfg.EncoderDim, cfg.EncoderDim, 3, 2)
	fillConvWeights(conv2, 2)

	enc, err := encoder.New(conv1, conv2,
		&mixTransformer{layers: cfg.Layers},
		&fakeAdapter{inDim: cfg.EncoderDim * audio.Downsample, outDim: cfg.Dim},
		audio.Downsample, encoder.Config{})
	if err != nil {
		return nil, fmt.Errorf("building fake encoder: %w", err)
	}
	f.enc = enc
	return f, nil
}

func (f *Fake) Encode(mel [][]float32) ([][]float32, error) {
	return f.enc.Encode(mel)
}

func (f *Fake) EncodeStep(mel [][]float32, st *encoder.State) ([][]float32, error) {
	return f.enc.EncodeStep(mel, st)
}

func (f *Fake) NewEncoderState() *encoder.State {
	return f.enc.NewState()
}

// Decode mixes embeddings through the cached causal layers and projects to
// vocabulary logits. A causal multi-position call counts as a prefill and
// resets the EOS step counter.
func (f *Fake) Decode(embeds [][]float32, tCond []float32, causal bool, caches []*kvcache.Cache) ([][]float32, error) {
	if len(embeds) == 0 {
		return nil, fmt.Errorf("decode: empty embedding batch")
	}
	if causal && len(embeds) > 1 {
		f.steps = 0
	}

	x := make([][]float32, len(embeds))
	for i, e := range embeds {
		row := make([]float32, len(e))
		for j := range e {
			row[j] = e[j]
			if tCond != nil && j < len(tCond) {
				row[j] += 0.01 * tCond[j]
			}
		}
		x[i] = row
	}

	for layer := 0; layer < f.cfg.Layers; layer++ {
		var c *kvcache.Cache
		if caches != nil {
			c = caches[layer]
		}
		var err error
		x, err = mixLayer(x, c)
		if err != nil {
			return nil, fmt.Errorf("decode layer %d: %w", layer, err)
		}
	}

	if len(embeds) == 1 && !causal {
		f.steps++
	}

	atEOS := f.cfg.EOSAfter > 0 && f.steps >= f.cfg.EOSAfter
	logits := make([][]float32, len(x))
	for t, row := range x {
		l := make([]float32, f.cfg.Vocab)
		for v := 0; v < f.cfg.Vocab; v++ {
			sum := float32(0)
			for i, xv := range row {
				sum += xv * pseudo(v*f.cfg.Dim+i, 7)
			}
			l[v] = sum
		}
		if atEOS {
			l[fakeEOSID] = 1e6
		} else {
			l[fakeEOSID] = -1e6
		}
		logits[t] = l
	}
	return logits, nil
}

func (f *Fake) Embed(tokenID int) []float32 {
	v := make([]float32, f.cfg.Dim)
	for i := range v {
		v[i] = 0.1 * pseudo(tokenID*31+i, 3)
	}
	return v
}

// TimeEmbedding is the standard sinusoidal embedding over delay steps.
func (f *Fake) TimeEmbedding(delaySteps float64) []float32 {
	half := f.cfg.Dim / 2
	out := make([]float32, f.cfg.Dim)
	for i := 0; i < half; i++ {
		freq := math.Exp(-math.Log(10000.0) * float64(i) / float64(half))
		out[i] = float32(math.Cos(delaySteps * freq))
		out[half+i] = float32(math.Sin(delaySteps * freq))
	}
	return out
}

func (f *Fake) NumLayers() int { return f.cfg.Layers }
func (f *Fake) Dim() int       { return f.cfg.Dim }

func (f *Fake) ReleaseScratch() {}

// mixTransformer is the fake encoder attention stack: each layer adds a
// decay-weighted sum over the causal context held in its cache.
type mixTransformer struct {
	layers int
}

func (m *mixTransformer) NumLayers() int { return m.layers }

func (m *mixTransformer) Forward(frames [][]float32, caches []*kvcache.Cache) ([][]float32, error) {
	x := frames
	for i := 0; i < m.layers; i++ {
		var c *kvcache.Cache
		if caches != nil {
			c = caches[i]
		}
		var err error
		x, err = mixLayer(x, c)
		if err != nil {
			return nil, fmt.Errorf("encoder layer %d: %w", i, err)
		}
	}
	return x, nil
}

// mixLayer appends the new positions to the cache (single-step or bulk path
// chosen by width) and mixes each position with the decayed sum of its
// causal context. With a nil cache the context is the batch itself under a
// causal mask. Both paths are numerically identical while nothing has been
// evicted.
func mixLayer(frames [][]float32, c *kvcache.Cache) ([][]float32, error) {
	if len(frames) == 0 {
		return frames, nil
	}
	dim := len(frames[0])

	var history [][]float32
	if c != nil {
		k := kvcache.NewTensor(1, len(frames), dim)
		for p, row := range frames {
			copy(k.Row(p), row)
		}
		var (
			ctx *kvcache.Tensor
			err error
		)
		if len(frames) == 1 {
			ctx, _, err = c.AppendStep(k, k)
		} else {
			ctx, _, err = c.AppendBulk(k, k)
		}
		if err != nil {
			return nil, err
		}
		history = make([][]float32, ctx.Positions())
		for p := range history {
			history[p] = ctx.Row(p)
		}
	} else {
		history = frames
	}

	out := make([][]float32, len(frames))
	base := len(history) - len(frames)
	for i := range frames {
		row := make([]float32, dim)
		end := base + i
		w := float32(1.0)
		for j := end; j >= 0 && w > 1e-4; j-- {
			for k := 0; k < dim; k++ {
				row[k] += w * history[j][k]
			}
			w *= 0.5
		}
		for k := 0; k < dim; k++ {
			row[k] = 0.5*frames[i][k] + 0.25*row[k]
		}
		out[i] = row
	}
	return out, nil
}

// fakeAdapter projects a flattened downsample group with fixed
// pseudo-weights.
type fakeAdapter struct {
	inDim  int
	outDim int
}

func (a *fakeAdapter) Project(flat []float32) ([]float32, error) {
	if len(flat) != a.inDim {
		return nil, fmt.Errorf("adapter input width %d, expected %d", len(flat), a.inDim)
	}
	out := make([]float32, a.outDim)
	for j := range out {
		sum := float32(0)
		for i, v := range flat {
			sum += v * pseudo(j*a.inDim+i, 5)
		}
		out[j] = 0.1 * sum
	}
	return out, nil
}

func fillConvWeights(c *encoder.CausalConv, salt int) {
	for o := range c.Weight {
		for k := range c.Weight[o] {
			for i := range c.Weight[o][k] {
				c.Weight[o][k][i] = 0.05 * pseudo(((o*c.Kernel+k)*c.InDim+i), salt)
			}
		}
		c.Bias[o] = 0.01 * pseudo(o, salt+11)
	}
}

// pseudo is a cheap deterministic value in [-1, 1].
func pseudo(n, salt int) float32 {
	return float32(math.Sin(float64(n+1) * 0.7132 * float64(salt)))
}

// Fake tokenizer ids.
const (
	fakeBOSID = 1
	fakeEOSID = 2
	fakePadID = 3
)

// FakeTokenizer renders token ids as stable placeholder words and exposes
// the fixed special ids.
type FakeTokenizer struct{}

func (FakeTokenizer) Decode(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		switch id {
		case fakeBOSID, fakeEOSID, fakePadID:
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "w%d", id)
	}
	return b.String()
}

func (FakeTokenizer) EOSID() int { return fakeEOSID }
func (FakeTokenizer) BOSID() int { return fakeBOSID }
func (FakeTokenizer) PadID() int { return fakePadID }
