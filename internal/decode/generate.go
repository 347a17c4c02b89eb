package decode

import (
	"fmt"

	"github.com/cgint/voxmlx/internal/audio"
	"github.com/cgint/voxmlx/internal/model"
)

// Options parameterizes whole-utterance generation.
type Options struct {
	Temperature    float64
	LeftPadTokens  int
	RightPadTokens int
	DelayTokens    int
	Window         int
	Seed           int64
}

// Generate transcribes a complete utterance: the audio is padded for
// streaming alignment, converted to mel frames in one shot, encoded in
// batch mode, primed, and then decoded position by position until the
// embedding queue or the end-of-sequence token runs out. The returned token
// ids never include the end marker.
func Generate(mdl model.Model, tok model.Tokenizer, samples []float32, opts Options) ([]int, error) {
	cfg := Config{
		Temperature:   opts.Temperature,
		LeftPadTokens: opts.LeftPadTokens,
		DelayTokens:   opts.DelayTokens,
		Window:        opts.Window,
		Seed:          opts.Seed,
	}
	cfg.fill()
	rightPad := opts.RightPadTokens
	if rightPad == 0 {
		rightPad = DefaultRightPadTokens
	}

	padded := audio.PadForBatch(samples, cfg.LeftPadTokens, rightPad)
	mel := audio.NewFrontend().Compute(padded)

	embeds, err := mdl.Encode(mel)
	if err != nil {
		return nil, fmt.Errorf("batch encode: %w", err)
	}

	gen := NewGenerator(mdl, tok, cfg)
	if len(embeds) < gen.PrefixLen() {
		return nil, fmt.Errorf("utterance too short: %d positions, prefix needs %d",
			len(embeds), gen.PrefixLen())
	}

	if err := gen.Prime(embeds[:gen.PrefixLen()]); err != nil {
		return nil, err
	}

	var out []int
	_, _, err = gen.DecodeSteps(embeds[gen.PrefixLen():], func(id int) error {
		out = append(out, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if n := len(out); n > 0 && out[n-1] == tok.EOSID() {
		out = out[:n-1]
	}
	return out, nil
}
