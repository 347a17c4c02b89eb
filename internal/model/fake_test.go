package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgint/voxmlx/internal/audio"
	"github.com/cgint/voxmlx/internal/kvcache"
)

func testEmbeds(dim, n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		row := make([]float32, dim)
		for j := range row {
			row[j] = 0.2 * pseudo(i*dim+j, 9)
		}
		out[i] = row
	}
	return out
}

func newCaches(f *Fake, capacity int) []*kvcache.Cache {
	caches := make([]*kvcache.Cache, f.NumLayers())
	for i := range caches {
		caches[i] = kvcache.New(capacity)
	}
	return caches
}

func TestDecodePrefillThenStepMatchesCausal(t *testing.T) {
	// A causal prefill over the full batch must produce the same last-position
	// logits as prefilling a prefix and stepping through the rest one by one.
	fullModel, err := NewFake(FakeConfig{})
	require.NoError(t, err)
	stepModel, err := NewFake(FakeConfig{})
	require.NoError(t, err)

	embeds := testEmbeds(fullModel.Dim(), 6)
	tCond := fullModel.TimeEmbedding(6)

	full, err := fullModel.Decode(embeds, tCond, true, newCaches(fullModel, 64))
	require.NoError(t, err)
	require.Len(t, full, 6)

	caches := newCaches(stepModel, 64)
	_, err = stepModel.Decode(embeds[:3], tCond, true, caches)
	require.NoError(t, err)

	var last []float32
	for _, e := range embeds[3:] {
		logits, err := stepModel.Decode([][]float32{e}, tCond, false, caches)
		require.NoError(t, err)
		require.Len(t, logits, 1)
		last = logits[0]
	}

	require.Len(t, last, len(full[5]))
	for v := range full[5] {
		assert.InDelta(t, full[5][v], last[v], 1e-4, "vocab %d", v)
	}
}

func TestDecodeEmptyBatch(t *testing.T) {
	f, err := NewFake(FakeConfig{})
	require.NoError(t, err)

	_, err = f.Decode(nil, nil, true, nil)
	assert.Error(t, err)
}

func TestDecodeEOSScheduling(t *testing.T) {
	f, err := NewFake(FakeConfig{EOSAfter: 2})
	require.NoError(t, err)

	caches := newCaches(f, 64)
	embeds := testEmbeds(f.Dim(), 4)
	tCond := f.TimeEmbedding(6)

	_, err = f.Decode(embeds[:2], tCond, true, caches)
	require.NoError(t, err)

	isEOS := func(logits []float32) bool {
		best := 0
		for i := range logits {
			if logits[i] > logits[best] {
				best = i
			}
		}
		return best == FakeTokenizer{}.EOSID()
	}

	one, err := f.Decode(embeds[2:3], tCond, false, caches)
	require.NoError(t, err)
	assert.False(t, isEOS(one[0]))

	two, err := f.Decode(embeds[3:4], tCond, false, caches)
	require.NoError(t, err)
	assert.True(t, isEOS(two[0]))

	// A fresh prefill resets the schedule.
	caches = newCaches(f, 64)
	_, err = f.Decode(embeds[:2], tCond, true, caches)
	require.NoError(t, err)
	again, err := f.Decode(embeds[2:3], tCond, false, caches)
	require.NoError(t, err)
	assert.False(t, isEOS(again[0]))
}

func TestEncodeFrameLedger(t *testing.T) {
	f, err := NewFake(FakeConfig{})
	require.NoError(t, err)

	// Whole-utterance encoding of 8m mel frames yields m embeddings: the
	// stride-2 stage halves the count and the downsample groups by four.
	mel := make([][]float32, 5*8)
	for i := range mel {
		row := make([]float32, audio.NMels)
		for j := range row {
			row[j] = 0.1 * pseudo(i*audio.NMels+j, 13)
		}
		mel[i] = row
	}

	embeds, err := f.Encode(mel)
	require.NoError(t, err)
	assert.Len(t, embeds, 5)
	for _, e := range embeds {
		assert.Len(t, e, f.Dim())
	}
}

func TestTimeEmbeddingShape(t *testing.T) {
	f, err := NewFake(FakeConfig{})
	require.NoError(t, err)

	v := f.TimeEmbedding(6)
	require.Len(t, v, f.Dim())
	for i, x := range v {
		assert.LessOrEqual(t, x, float32(1), "component %d", i)
		assert.GreaterOrEqual(t, x, float32(-1), "component %d", i)
	}
	assert.NotEqual(t, v, f.TimeEmbedding(0))
}

func TestEmbedDeterministic(t *testing.T) {
	f, err := NewFake(FakeConfig{})
	require.NoError(t, err)

	assert.Equal(t, f.Embed(17), f.Embed(17))
	assert.NotEqual(t, f.Embed(17), f.Embed(18))
	assert.Len(t, f.Embed(0), f.Dim())
}

func TestFakeTokenizerDecode(t *testing.T) {
	tok := FakeTokenizer{}

	tests := []struct {
		name string
		ids  []int
		want string
	}{
		{name: "plain words", ids: []int{10, 11}, want: "w10 w11"},
		{name: "specials skipped", ids: []int{tok.BOSID(), 10, tok.PadID(), 11, tok.EOSID()}, want: "w10 w11"},
		{name: "only specials", ids: []int{tok.BOSID(), tok.EOSID()}, want: ""},
		{name: "empty", ids: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tok.Decode(tt.ids))
		})
	}
}

func TestPromptTokens(t *testing.T) {
	tok := FakeTokenizer{}
	prompt := PromptTokens(tok, 4, 2)

	require.Len(t, prompt, 7)
	assert.Equal(t, tok.BOSID(), prompt[0])
	for i := 1; i < len(prompt); i++ {
		assert.Equal(t, tok.PadID(), prompt[i])
	}
}
