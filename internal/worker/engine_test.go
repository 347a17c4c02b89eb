package worker

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgint/voxmlx/internal/audio"
	"github.com/cgint/voxmlx/internal/decode"
	"github.com/cgint/voxmlx/internal/model"
)

func TestModelTranscriber(t *testing.T) {
	mdl, err := model.NewFake(model.FakeConfig{EOSAfter: 4})
	require.NoError(t, err)

	trans := NewModelTranscriber(mdl, model.FakeTokenizer{}, decode.Options{})
	text, err := trans.Transcribe(context.Background(), make([]float32, 3*audio.SamplesPerToken))
	require.NoError(t, err)
	for _, word := range strings.Fields(text) {
		assert.NotEqual(t, "w2", word, "end marker must not be rendered")
	}
}

func TestModelTranscriberDeterministic(t *testing.T) {
	mdl, err := model.NewFake(model.FakeConfig{EOSAfter: 4})
	require.NoError(t, err)
	trans := NewModelTranscriber(mdl, model.FakeTokenizer{}, decode.Options{})

	samples := make([]float32, 2*audio.SamplesPerToken)
	for i := range samples {
		samples[i] = float32(i%31) * 0.01
	}

	first, err := trans.Transcribe(context.Background(), samples)
	require.NoError(t, err)
	second, err := trans.Transcribe(context.Background(), samples)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestModelTranscriberConcurrent(t *testing.T) {
	mdl, err := model.NewFake(model.FakeConfig{EOSAfter: 3})
	require.NoError(t, err)
	trans := NewModelTranscriber(mdl, model.FakeTokenizer{}, decode.Options{})

	samples := make([]float32, audio.SamplesPerToken)
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := trans.Transcribe(context.Background(), samples)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestModelTranscriberCancelled(t *testing.T) {
	mdl, err := model.NewFake(model.FakeConfig{EOSAfter: 3})
	require.NoError(t, err)
	trans := NewModelTranscriber(mdl, model.FakeTokenizer{}, decode.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = trans.Transcribe(ctx, make([]float32, audio.SamplesPerToken))
	assert.Error(t, err)
}

func TestToneSynthesizerSpeedScaling(t *testing.T) {
	s := NewToneSynthesizer(24000)
	ctx := context.Background()

	slow, err := s.Synthesize(ctx, "abc", "v", 1.0)
	require.NoError(t, err)
	fast, err := s.Synthesize(ctx, "abc", "v", 2.0)
	require.NoError(t, err)

	assert.Equal(t, len(slow), 2*len(fast), "doubling speed halves the output")
}

func TestToneSynthesizerWhitespaceSilence(t *testing.T) {
	s := NewToneSynthesizer(24000)

	out, err := s.Synthesize(context.Background(), " ", "v", 1.0)
	require.NoError(t, err)
	for _, v := range out {
		assert.Zero(t, v)
	}
}

func TestToneSynthesizerBounds(t *testing.T) {
	s := NewToneSynthesizer(24000)

	out, err := s.Synthesize(context.Background(), "speech synthesis", "alto", 1.0)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	for _, v := range out {
		assert.LessOrEqual(t, v, float32(1))
		assert.GreaterOrEqual(t, v, float32(-1))
	}
}

func TestToneSynthesizerInvalidSpeed(t *testing.T) {
	s := NewToneSynthesizer(24000)
	_, err := s.Synthesize(context.Background(), "hi", "v", 0)
	assert.Error(t, err)
}
