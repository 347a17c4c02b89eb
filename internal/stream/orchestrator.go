package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cgint/voxmlx/internal/audio"
	"github.com/cgint/voxmlx/internal/decode"
	"github.com/cgint/voxmlx/internal/encoder"
	"github.com/cgint/voxmlx/internal/model"
)

// TokenSink receives decoded text deltas in emission order.
type TokenSink func(text string) error

// Config parameterizes a live session. Zero values select the decode
// package defaults and a 20ms polling cadence.
type Config struct {
	Temperature     float64
	LeftPadTokens   int
	RightPadTokens  int
	DelayTokens     int
	Window          int
	CycleInterval   time.Duration
	Seed            int64
}

func (c *Config) fill() {
	if c.LeftPadTokens == 0 {
		c.LeftPadTokens = decode.DefaultLeftPadTokens
	}
	if c.RightPadTokens == 0 {
		c.RightPadTokens = decode.DefaultRightPadTokens
	}
	if c.DelayTokens == 0 {
		c.DelayTokens = decode.DefaultDelayTokens
	}
	if c.CycleInterval == 0 {
		c.CycleInterval = 20 * time.Millisecond
	}
}

// Orchestrator glues the spectral frontend, incremental encoder, and decode
// loop together for one live session. Feed may be called from a capture
// goroutine while Run cycles; all other state is owned by the cycling
// goroutine.
type Orchestrator struct {
	mdl    model.Model
	tok    model.Tokenizer
	logger *slog.Logger
	cfg    Config
	sink   TokenSink

	mu       sync.Mutex
	captured []float32

	frontend *audio.Frontend
	gen      *decode.Generator

	// Per-utterance carried state, reset on end-of-sequence.
	melTail    []float32
	encState   *encoder.State
	pending    []float32
	embeds     [][]float32
	samplesFed int
	decoded    int
	firstCycle bool
	primed     bool
	finished   bool
}

// New creates an orchestrator for one session.
func New(mdl model.Model, tok model.Tokenizer, logger *slog.Logger, cfg Config, sink TokenSink) *Orchestrator {
	cfg.fill()
	o := &Orchestrator{
		mdl:      mdl,
		tok:      tok,
		logger:   logger,
		cfg:      cfg,
		sink:     sink,
		frontend: audio.NewFrontend(),
		gen: decode.NewGenerator(mdl, tok, decode.Config{
			Temperature:   cfg.Temperature,
			LeftPadTokens: cfg.LeftPadTokens,
			DelayTokens:   cfg.DelayTokens,
			Window:        cfg.Window,
			Seed:          cfg.Seed,
		}),
	}
	o.resetUtterance()
	return o
}

// Feed appends captured samples. Single writer per session; safe to call
// concurrently with the cycle loop.
func (o *Orchestrator) Feed(samples []float32) {
	o.mu.Lock()
	o.captured = append(o.captured, samples...)
	o.mu.Unlock()
}

// SamplesFed returns the raw samples admitted to the encoder so far.
func (o *Orchestrator) SamplesFed() int { return o.samplesFed }

// PositionsDecoded returns positions consumed by the decoder so far,
// including the priming prefix.
func (o *Orchestrator) PositionsDecoded() int { return o.decoded }

// Run cycles on the configured cadence until ctx is cancelled, then runs the
// final flush.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.CycleInterval)
	defer ticker.Stop()

	o.logger.Info("stream session started",
		slog.Int("left_pad_tokens", o.cfg.LeftPadTokens),
		slog.Int("delay_tokens", o.cfg.DelayTokens),
		slog.Duration("cycle_interval", o.cfg.CycleInterval),
	)

	for {
		select {
		case <-ctx.Done():
			if err := o.Finish(); err != nil {
				return err
			}
			return nil
		case <-ticker.C:
			if err := o.Cycle(); err != nil {
				return err
			}
		}
	}
}

// Cycle runs one orchestrator iteration: drain captured audio, encode
// token-aligned chunks, prime when enough positions exist, and decode up to
// the lookahead-safe limit.
func (o *Orchestrator) Cycle() error {
	if o.finished {
		return fmt.Errorf("cycle: orchestrator already finished")
	}

	o.mu.Lock()
	newAudio := o.captured
	o.captured = nil
	o.mu.Unlock()

	if len(newAudio) > 0 {
		o.pending = append(o.pending, newAudio...)
	}

	if o.firstCycle && len(o.pending) < audio.SamplesPerToken {
		return nil
	}

	if err := o.encodePending(); err != nil {
		return err
	}
	if len(o.embeds) == 0 {
		return nil
	}

	decodable := o.safeDecodable()
	if decodable <= 0 {
		return nil
	}

	if !o.primed {
		if o.decoded+len(o.embeds) < o.gen.PrefixLen() {
			return nil
		}
		if err := o.prime(); err != nil {
			return err
		}
		decodable = o.safeDecodable()
		if decodable <= 0 {
			return nil
		}
	}

	consumed, hitEOS, err := o.gen.DecodeSteps(o.embeds[:decodable], o.emit)
	o.decoded += consumed
	o.trimEmbeds(consumed)
	if err != nil {
		return fmt.Errorf("decode cycle: %w", err)
	}
	if hitEOS {
		o.logger.Info("end of sequence, resetting session state",
			slog.Int("positions_decoded", o.decoded),
		)
		o.resetUtterance()
	}
	return nil
}

// Finish feeds the remaining buffered audio plus the fixed right pad through
// the incremental path, decodes every remaining queued position, and emits
// the final pending token if it is not the end marker.
func (o *Orchestrator) Finish() error {
	if o.finished {
		return nil
	}
	o.finished = true

	if !o.primed {
		o.logger.Info("stream session finished before priming, nothing to flush")
		return nil
	}

	o.mu.Lock()
	finalAudio := o.captured
	o.captured = nil
	o.mu.Unlock()
	o.pending = append(o.pending, finalAudio...)

	rightPad := make([]float32, o.cfg.RightPadTokens*audio.SamplesPerToken)
	flushChunk := append(o.pending, rightPad...)
	o.pending = nil
	o.samplesFed += len(flushChunk)

	mel, tail := o.frontend.ComputeStep(flushChunk, o.melTail)
	o.melTail = tail
	if len(mel) > 0 {
		embs, err := o.mdl.EncodeStep(mel, o.encState)
		if err != nil {
			return fmt.Errorf("final encode: %w", err)
		}
		o.embeds = append(o.embeds, embs...)
	}

	if len(o.embeds) > 0 {
		consumed, _, err := o.gen.DecodeSteps(o.embeds, o.emit)
		o.decoded += consumed
		o.trimEmbeds(consumed)
		if err != nil {
			return fmt.Errorf("final decode: %w", err)
		}
	}
	if err := o.gen.FlushPending(o.emit); err != nil {
		return err
	}

	o.logger.Info("stream session finished",
		slog.Int("samples_fed", o.samplesFed),
		slog.Int("positions_decoded", o.decoded),
	)
	return nil
}

// encodePending feeds whole token multiples of pending audio through the
// frontend and encoder, prepending the left-pad silence on the first cycle.
func (o *Orchestrator) encodePending() error {
	nFeed := (len(o.pending) / audio.SamplesPerToken) * audio.SamplesPerToken
	if nFeed == 0 {
		return nil
	}

	var chunk []float32
	if o.firstCycle {
		leftPad := make([]float32, o.cfg.LeftPadTokens*audio.SamplesPerToken)
		chunk = append(leftPad, o.pending[:nFeed]...)
	} else {
		chunk = o.pending[:nFeed:nFeed]
	}
	o.pending = append([]float32(nil), o.pending[nFeed:]...)
	o.samplesFed += nFeed
	o.firstCycle = false

	mel, tail := o.frontend.ComputeStep(chunk, o.melTail)
	o.melTail = tail
	if len(mel) == 0 {
		return nil
	}
	embs, err := o.mdl.EncodeStep(mel, o.encState)
	if err != nil {
		return fmt.Errorf("incremental encode: %w", err)
	}
	o.embeds = append(o.embeds, embs...)
	return nil
}

// safeDecodable bounds decoding by the audio actually received: never
// further ahead than leftPadTokens + samplesFed/samplesPerToken positions.
func (o *Orchestrator) safeDecodable() int {
	safeTotal := o.cfg.LeftPadTokens + o.samplesFed/audio.SamplesPerToken
	n := safeTotal - o.decoded
	if n > len(o.embeds) {
		n = len(o.embeds)
	}
	return n
}

func (o *Orchestrator) prime() error {
	if err := o.gen.Prime(o.embeds[:o.gen.PrefixLen()]); err != nil {
		return fmt.Errorf("priming: %w", err)
	}
	o.trimEmbeds(o.gen.PrefixLen())
	o.decoded = o.gen.PrefixLen()
	o.primed = true
	o.logger.Info("session primed",
		slog.Int("prefix_len", o.gen.PrefixLen()),
		slog.Int("samples_fed", o.samplesFed),
	)
	return nil
}

func (o *Orchestrator) emit(tokenID int) error {
	text := o.tok.Decode([]int{tokenID})
	if text == "" {
		return nil
	}
	return o.sink(text)
}

func (o *Orchestrator) trimEmbeds(n int) {
	if n >= len(o.embeds) {
		o.embeds = nil
		return
	}
	o.embeds = append([][]float32(nil), o.embeds[n:]...)
}

// resetUtterance fully resets carried state (tails, caches, counters) so
// the session can keep listening after an end-of-sequence.
func (o *Orchestrator) resetUtterance() {
	o.melTail = nil
	o.encState = o.mdl.NewEncoderState()
	o.gen.Reset()
	o.pending = nil
	o.embeds = nil
	o.samplesFed = 0
	o.decoded = 0
	o.firstCycle = true
	o.primed = false
}
