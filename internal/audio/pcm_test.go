package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesToFloat32(t *testing.T) {
	samples := []float32{0, 0.5, -1, 0.25}
	got, err := BytesToFloat32(Float32ToBytes(samples))
	require.NoError(t, err)
	assert.Equal(t, samples, got)
}

func TestBytesToFloat32BadLength(t *testing.T) {
	_, err := BytesToFloat32([]byte{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple of 4")
}

func TestBytesToFloat32Empty(t *testing.T) {
	got, err := BytesToFloat32(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFloat32ToPCM16(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		want []int16
	}{
		{name: "zero", in: []float32{0}, want: []int16{0}},
		{name: "full scale", in: []float32{1, -1}, want: []int16{32767, -32767}},
		{name: "clamped", in: []float32{1.5, -2}, want: []int16{32767, -32767}},
		{name: "half", in: []float32{0.5}, want: []int16{16383}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Float32ToPCM16(tt.in))
		})
	}
}

func TestResampleIdentity(t *testing.T) {
	in := []float32{1, 2, 3}
	assert.Equal(t, in, Resample(in, SampleRate))
}

func TestResampleHalvesLength(t *testing.T) {
	in := make([]float32, 3200)
	for i := range in {
		in[i] = float32(i)
	}
	out := Resample(in, 2*SampleRate)
	assert.Len(t, out, 1600)

	// Linear interpolation of a linear ramp stays on the ramp.
	assert.InDelta(t, float64(in[0]), float64(out[0]), 1e-3)
	assert.InDelta(t, float64(in[len(in)-1]), float64(out[len(out)-1]), 2.5)
}

func TestPadForBatch(t *testing.T) {
	tests := []struct {
		name    string
		samples int
		want    int
	}{
		{name: "aligned", samples: 2 * SamplesPerToken, want: (32 + 2 + 17) * SamplesPerToken},
		{name: "unaligned rounds up", samples: SamplesPerToken + 1, want: (32 + 2 + 17) * SamplesPerToken},
		{name: "empty", samples: 0, want: (32 + 17) * SamplesPerToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PadForBatch(make([]float32, tt.samples), 32, 17)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestPadForBatchPlacesAudio(t *testing.T) {
	samples := []float32{1, 2, 3}
	got := PadForBatch(samples, 1, 1)

	left := SamplesPerToken
	assert.Equal(t, float32(0), got[left-1])
	assert.Equal(t, float32(1), got[left])
	assert.Equal(t, float32(3), got[left+2])
	assert.Equal(t, float32(0), got[left+3])
}
