package worker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/cgint/voxmlx/internal/decode"
	"github.com/cgint/voxmlx/internal/model"
)

// Transcriber turns an audio snapshot into text. Implementations must be
// safe for concurrent use; the worker calls it from multiple pollers.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

// Synthesizer renders text into mono float32 samples at its output rate.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string, speed float64) ([]float32, error)
	SampleRate() int
}

// ModelTranscriber runs whole-utterance generation over a shared model.
// The model holds scratch buffers and caches that tolerate one caller at a
// time, so every call is serialized behind one mutex.
type ModelTranscriber struct {
	mu   sync.Mutex
	mdl  model.Model
	tok  model.Tokenizer
	opts decode.Options
}

// NewModelTranscriber wraps mdl and tok for session transcription.
func NewModelTranscriber(mdl model.Model, tok model.Tokenizer, opts decode.Options) *ModelTranscriber {
	return &ModelTranscriber{mdl: mdl, tok: tok, opts: opts}
}

// Transcribe decodes the full snapshot and returns the rendered text.
func (t *ModelTranscriber) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ids, err := decode.Generate(t.mdl, t.tok, samples, t.opts)
	if err != nil {
		return "", fmt.Errorf("generating transcript: %w", err)
	}
	return t.tok.Decode(ids), nil
}

// ToneSynthesizer renders text as a deterministic tone sequence, one short
// pitched segment per rune. It stands in for a neural vocoder while keeping
// the chunking, pacing, and speed semantics of the real output path.
type ToneSynthesizer struct {
	rate int
}

// NewToneSynthesizer creates a synthesizer emitting at the given rate.
func NewToneSynthesizer(sampleRate int) *ToneSynthesizer {
	return &ToneSynthesizer{rate: sampleRate}
}

// SampleRate reports the output rate in Hz.
func (s *ToneSynthesizer) SampleRate() int { return s.rate }

// Synthesize maps each rune to an 80ms tone whose pitch follows the rune
// value, scaled by speed. Whitespace renders as silence.
func (s *ToneSynthesizer) Synthesize(ctx context.Context, text, voice string, speed float64) ([]float32, error) {
	if speed <= 0 {
		return nil, fmt.Errorf("speed must be positive, got %f", speed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Voice selects a base pitch register.
	base := 220.0
	for _, r := range voice {
		base += float64(r%16) * 5
	}

	segment := int(float64(s.rate) * 0.08 / speed)
	if segment < 1 {
		segment = 1
	}

	out := make([]float32, 0, segment*len(text))
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' {
			out = append(out, make([]float32, segment)...)
			continue
		}
		freq := base + float64(r%24)*12
		step := 2 * math.Pi * freq / float64(s.rate)
		for i := 0; i < segment; i++ {
			// Short fade at both edges avoids clicks between segments.
			env := envelope(i, segment)
			out = append(out, float32(0.2*env*math.Sin(step*float64(i))))
		}
	}
	return out, nil
}

func envelope(i, n int) float64 {
	ramp := n / 8
	if ramp < 1 {
		return 1
	}
	switch {
	case i < ramp:
		return float64(i) / float64(ramp)
	case i >= n-ramp:
		return float64(n-i) / float64(ramp)
	default:
		return 1
	}
}
