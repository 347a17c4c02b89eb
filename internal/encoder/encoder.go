package encoder

import (
	"fmt"

	"github.com/cgint/voxmlx/internal/kvcache"
)

// EncoderCacheCapacity is the per-layer attention cache capacity for the
// incremental path. It is set far above any realistic utterance length so
// encoder history is effectively never evicted.
const EncoderCacheCapacity = 100000

// Transformer is the encoder's attention stack, supplied by the model layer.
// In batch mode caches is nil and the implementation masks causally over the
// full input; in incremental mode caches holds one kvcache.Cache per layer
// carrying all prior encoder context.
type Transformer interface {
	Forward(frames [][]float32, caches []*kvcache.Cache) ([][]float32, error)
	NumLayers() int
}

// Adapter projects one flattened group of Downsample encoded frames to a
// single language-model-dimension embedding.
type Adapter interface {
	Project(flat []float32) ([]float32, error)
}

// Encoder combines the causal convolution stages, the transformer
// capability, and the downsample/adapter step.
type Encoder struct {
	Conv1      *CausalConv
	Conv2      *CausalConv
	Transform  Transformer
	Adapt      Adapter
	Downsample int

	cacheCapacity int
}

// Config carries the optional encoder knobs.
type Config struct {
	// CacheCapacity overrides the per-layer incremental attention cache
	// capacity. Zero means EncoderCacheCapacity.
	CacheCapacity int
}

// New creates an encoder around the given convolution weights and
// capabilities.
func New(conv1, conv2 *CausalConv, transform Transformer, adapt Adapter, downsample int, cfg Config) (*Encoder, error) {
	if downsample < 1 {
		return nil, fmt.Errorf("downsample factor must be positive, got %d", downsample)
	}
	cap := cfg.CacheCapacity
	if cap <= 0 {
		cap = EncoderCacheCapacity
	}
	return &Encoder{
		Conv1:         conv1,
		Conv2:         conv2,
		Transform:     transform,
		Adapt:         adapt,
		Downsample:    downsample,
		cacheCapacity: cap,
	}, nil
}

// State is the carried incremental encoding state for one utterance:
// convolution input tails, the per-layer attention caches, and the partial
// downsample group awaiting completion.
type State struct {
	stage1    *convStage
	stage2    *convStage
	caches    []*kvcache.Cache
	remainder [][]float32
}

// NewState creates fresh incremental state for a new utterance.
func (e *Encoder) NewState() *State {
	return &State{
		stage1: newConvStage(e.Conv1),
		stage2: newConvStage(e.Conv2),
	}
}

// Reset returns the state to its initial condition so the same utterance
// session can start over after an end-of-sequence.
func (s *State) Reset() {
	s.stage1.reset()
	s.stage2.reset()
	s.caches = nil
	s.remainder = nil
}

// Encode processes a whole utterance's mel frames in one call with no cache
// and causal masking over the full length. A leading frame is dropped if the
// frame count is odd, and leading frames below a full downsample group are
// trimmed, matching the incremental path's alignment.
func (e *Encoder) Encode(mel [][]float32) ([][]float32, error) {
	if len(mel)%2 != 0 && len(mel) > 0 {
		mel = mel[1:]
	}

	x, err := e.forwardConvBatch(mel)
	if err != nil {
		return nil, err
	}
	x, err = e.Transform.Forward(x, nil)
	if err != nil {
		return nil, fmt.Errorf("encoder transformer: %w", err)
	}

	if rem := len(x) % e.Downsample; rem != 0 {
		x = x[rem:]
	}
	return e.adaptGroups(x)
}

// EncodeStep processes only new mel frames, carrying convolution tails, the
// attention caches, and the downsample remainder in st. It returns nil when
// the new frames do not yet complete a downsample group.
func (e *Encoder) EncodeStep(mel [][]float32, st *State) ([][]float32, error) {
	x, err := st.stage1.feed(mel)
	if err != nil {
		return nil, fmt.Errorf("conv1 step: %w", err)
	}
	x = gelu(x)

	x, err = st.stage2.feed(x)
	if err != nil {
		return nil, fmt.Errorf("conv2 step: %w", err)
	}
	x = gelu(x)

	if len(x) == 0 {
		return nil, nil
	}

	if st.caches == nil {
		st.caches = make([]*kvcache.Cache, e.Transform.NumLayers())
		for i := range st.caches {
			st.caches[i] = kvcache.New(e.cacheCapacity)
		}
	}
	x, err = e.Transform.Forward(x, st.caches)
	if err != nil {
		return nil, fmt.Errorf("encoder transformer step: %w", err)
	}

	combined := make([][]float32, 0, len(st.remainder)+len(x))
	combined = append(combined, st.remainder...)
	x = append(combined, x...)
	nComplete := (len(x) / e.Downsample) * e.Downsample
	if nComplete == 0 {
		st.remainder = x
		return nil, nil
	}
	st.remainder = append([][]float32(nil), x[nComplete:]...)

	return e.adaptGroups(x[:nComplete])
}

// forwardConvBatch runs both convolution stages over the full input with
// explicit causal left padding.
func (e *Encoder) forwardConvBatch(mel [][]float32) ([][]float32, error) {
	x, err := e.Conv1.Forward(leftPadZero(mel, e.Conv1.PadTotal(), e.Conv1.InDim))
	if err != nil {
		return nil, fmt.Errorf("conv1: %w", err)
	}
	x = gelu(x)

	x, err = e.Conv2.Forward(leftPadZero(x, e.Conv2.PadTotal(), e.Conv2.InDim))
	if err != nil {
		return nil, fmt.Errorf("conv2: %w", err)
	}
	return gelu(x), nil
}

// adaptGroups flattens complete groups of Downsample frames and projects
// each through the adapter.
func (e *Encoder) adaptGroups(frames [][]float32) ([][]float32, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	dim := len(frames[0])
	nGroups := len(frames) / e.Downsample
	out := make([][]float32, nGroups)
	for g := 0; g < nGroups; g++ {
		flat := make([]float32, 0, e.Downsample*dim)
		for _, row := range frames[g*e.Downsample : (g+1)*e.Downsample] {
			flat = append(flat, row...)
		}
		emb, err := e.Adapt.Project(flat)
		if err != nil {
			return nil, fmt.Errorf("adapter group %d: %w", g, err)
		}
		out[g] = emb
	}
	return out, nil
}

func leftPadZero(x [][]float32, pad, dim int) [][]float32 {
	if pad == 0 {
		return x
	}
	out := make([][]float32, 0, pad+len(x))
	for i := 0; i < pad; i++ {
		out = append(out, make([]float32, dim))
	}
	return append(out, x...)
}
