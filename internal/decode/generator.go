package decode

import (
	"fmt"

	"github.com/cgint/voxmlx/internal/kvcache"
	"github.com/cgint/voxmlx/internal/model"
)

// Phase is the per-utterance decode state.
type Phase int

const (
	// PhasePriming: waiting for enough positions to run the batched prefix
	// call.
	PhasePriming Phase = iota
	// PhaseGenerating: one token per queued audio embedding.
	PhaseGenerating
	// PhaseDone: the end-of-sequence token was produced.
	PhaseDone
)

// Default decode parameters, matching the realtime model's training setup.
const (
	DefaultLeftPadTokens   = 32
	DefaultRightPadTokens  = 17
	DefaultDelayTokens     = 6
	DefaultWindow          = 8192
	DefaultScratchInterval = 256
)

// Config parameterizes a Generator. Zero values select the defaults above.
type Config struct {
	Temperature     float64
	LeftPadTokens   int
	DelayTokens     int
	Window          int // decoder cache capacity (sliding window)
	ScratchInterval int // steps between scratch-memory release hints
	Seed            int64
}

func (c *Config) fill() {
	if c.LeftPadTokens == 0 {
		c.LeftPadTokens = DefaultLeftPadTokens
	}
	if c.DelayTokens == 0 {
		c.DelayTokens = DefaultDelayTokens
	}
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	if c.ScratchInterval == 0 {
		c.ScratchInterval = DefaultScratchInterval
	}
}

// EmitFunc receives each generated token id, in order, before the next
// position's evaluation completes.
type EmitFunc func(tokenID int) error

// Generator runs the autoregressive decode loop for one utterance. It owns
// the decoder-side rotating caches, the priming prefix, and the one pending
// sampled token whose continuation is evaluated while the token itself is
// being emitted.
type Generator struct {
	mdl     model.Model
	tok     model.Tokenizer
	sampler *Sampler
	cfg     Config

	tCond        []float32
	promptEmbeds [][]float32
	prefixLen    int

	phase   Phase
	caches  []*kvcache.Cache
	pending int // last sampled, not yet emitted token
	steps   int
}

// NewGenerator builds a generator bound to a model and tokenizer. The prompt
// prefix (BOS plus padding tokens) and the time conditioning vector are
// computed once.
func NewGenerator(mdl model.Model, tok model.Tokenizer, cfg Config) *Generator {
	cfg.fill()
	prompt := model.PromptTokens(tok, cfg.LeftPadTokens, cfg.DelayTokens)
	embeds := make([][]float32, len(prompt))
	for i, id := range prompt {
		embeds[i] = mdl.Embed(id)
	}
	return &Generator{
		mdl:          mdl,
		tok:          tok,
		sampler:      NewSampler(cfg.Temperature, cfg.Seed),
		cfg:          cfg,
		tCond:        mdl.TimeEmbedding(float64(cfg.DelayTokens)),
		promptEmbeds: embeds,
		prefixLen:    len(prompt),
	}
}

// Phase returns the current decode phase.
func (g *Generator) Phase() Phase { return g.phase }

// PrefixLen returns the number of priming positions required before the
// first token can be sampled.
func (g *Generator) PrefixLen() int { return g.prefixLen }

// Reset discards all decoder state so the generator can prime again. Used
// after end-of-sequence when a live session keeps listening.
func (g *Generator) Reset() {
	g.phase = PhasePriming
	g.caches = nil
	g.pending = 0
	g.steps = 0
}

// Prime runs the single batched prefill call over the first PrefixLen audio
// embeddings (each summed with its prompt token embedding) under causal
// masking, then samples the first pending token.
func (g *Generator) Prime(audioEmbeds [][]float32) error {
	if g.phase != PhasePriming {
		return fmt.Errorf("prime: generator is in phase %d", g.phase)
	}
	if len(audioEmbeds) < g.prefixLen {
		return fmt.Errorf("prime: need %d positions, have %d", g.prefixLen, len(audioEmbeds))
	}

	g.caches = make([]*kvcache.Cache, g.mdl.NumLayers())
	for i := range g.caches {
		g.caches[i] = kvcache.New(g.cfg.Window)
	}

	prefix := make([][]float32, g.prefixLen)
	for i := 0; i < g.prefixLen; i++ {
		row := make([]float32, len(audioEmbeds[i]))
		copy(row, audioEmbeds[i])
		for j, v := range g.promptEmbeds[i] {
			row[j] += v
		}
		prefix[i] = row
	}

	logits, err := g.mdl.Decode(prefix, g.tCond, true, g.caches)
	if err != nil {
		g.caches = nil
		return fmt.Errorf("prefill decode: %w", err)
	}
	g.pending = g.sampler.Sample(logits[len(logits)-1])
	g.phase = PhaseGenerating
	g.steps = 0
	return nil
}

// DecodeSteps consumes up to len(embeds) queued audio embeddings, emitting
// one token per position. The model evaluation for position i+1 is started
// on a separate goroutine before position i's token is emitted, so emission
// overlaps compute. Returns the number of positions consumed and whether the
// end-of-sequence token was produced (which resets the generator to Done and
// drops its caches).
func (g *Generator) DecodeSteps(embeds [][]float32, emit EmitFunc) (int, bool, error) {
	if g.phase != PhaseGenerating {
		return 0, false, fmt.Errorf("decode steps: generator is in phase %d", g.phase)
	}

	type stepOut struct {
		token int
		err   error
	}

	for i := range embeds {
		tokEmbed := g.mdl.Embed(g.pending)
		stepEmbed := make([]float32, len(embeds[i]))
		copy(stepEmbed, embeds[i])
		for j, v := range tokEmbed {
			stepEmbed[j] += v
		}

		next := make(chan stepOut, 1)
		go func() {
			logits, err := g.mdl.Decode([][]float32{stepEmbed}, g.tCond, false, g.caches)
			if err != nil {
				next <- stepOut{err: err}
				return
			}
			next <- stepOut{token: g.sampler.Sample(logits[len(logits)-1])}
		}()

		current := g.pending
		if current == g.tok.EOSID() {
			// Drain the in-flight evaluation before dropping state; its
			// result is discarded along with the caches.
			<-next
			g.phase = PhaseDone
			g.caches = nil
			return i, true, nil
		}

		if err := emit(current); err != nil {
			<-next
			return i, false, fmt.Errorf("emit token: %w", err)
		}

		out := <-next
		if out.err != nil {
			return i, false, fmt.Errorf("step decode: %w", out.err)
		}
		g.pending = out.token

		g.steps++
		if g.steps%g.cfg.ScratchInterval == 0 {
			g.mdl.ReleaseScratch()
		}
	}
	return len(embeds), false, nil
}

// FlushPending emits the final pending token unless it is the end marker.
// Called at stream stop after every queued position has been decoded.
func (g *Generator) FlushPending(emit EmitFunc) error {
	if g.phase != PhaseGenerating {
		return nil
	}
	if g.pending != g.tok.EOSID() {
		if err := emit(g.pending); err != nil {
			return fmt.Errorf("flush pending token: %w", err)
		}
	}
	g.phase = PhaseDone
	g.caches = nil
	return nil
}
