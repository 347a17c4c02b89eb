package model

import (
	"github.com/cgint/voxmlx/internal/encoder"
	"github.com/cgint/voxmlx/internal/kvcache"
)

// Model is the opaque compute capability behind encoding and decoding.
// Embeddings and logits are fixed-width vectors the core never inspects
// beyond feeding them back in and sampling. Implementations are not safe for
// concurrent use; callers must serialize access (the compute device session
// is a shared resource).
type Model interface {
	// Encode converts a whole utterance's mel frames [T][NMels] into
	// language-model embeddings, one per downsample group.
	Encode(mel [][]float32) ([][]float32, error)

	// EncodeStep incrementally encodes new mel frames, carrying all
	// streaming state in st. It returns nil embeddings when the new frames
	// complete no downsample group.
	EncodeStep(mel [][]float32, st *encoder.State) ([][]float32, error)

	// NewEncoderState creates fresh incremental encoder state.
	NewEncoderState() *encoder.State

	// Decode runs the decoder over embeds [N][dim] with the per-layer
	// caches, returning logits [N][vocab]. causal selects full causal
	// masking for multi-position (prefill) calls.
	Decode(embeds [][]float32, tCond []float32, causal bool, caches []*kvcache.Cache) ([][]float32, error)

	// Embed returns the token embedding for one vocabulary id.
	Embed(tokenID int) []float32

	// TimeEmbedding returns the conditioning vector for a given number of
	// delay steps.
	TimeEmbedding(delaySteps float64) []float32

	// NumLayers reports the decoder layer count, one cache per layer.
	NumLayers() int

	// Dim reports the language-model embedding width.
	Dim() int

	// ReleaseScratch is a best-effort hint to drop transient compute
	// scratch memory. It has no correctness semantics.
	ReleaseScratch()
}

// Tokenizer is the external text codec capability.
type Tokenizer interface {
	// Decode renders token ids as text, ignoring special tokens.
	Decode(ids []int) string

	EOSID() int
	BOSID() int

	// PadID returns the streaming padding token used for priming positions.
	PadID() int
}

// PromptTokens builds the priming prefix for an utterance: BOS followed by
// one padding token per left-pad and delay position.
func PromptTokens(tok Tokenizer, leftPadTokens, delayTokens int) []int {
	tokens := make([]int, 0, 1+leftPadTokens+delayTokens)
	tokens = append(tokens, tok.BOSID())
	for i := 0; i < leftPadTokens+delayTokens; i++ {
		tokens = append(tokens, tok.PadID())
	}
	return tokens
}
