package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BytesToFloat32 decodes little-endian 32-bit float PCM (mono) into samples.
func BytesToFloat32(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("pcm data length must be a multiple of 4, got %d bytes", len(data))
	}
	samples := make([]float32, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}

// Float32ToBytes encodes samples as little-endian 32-bit float PCM.
func Float32ToBytes(samples []float32) []byte {
	data := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(s))
	}
	return data
}

// Float32ToPCM16 converts float samples in [-1, 1] to signed 16-bit PCM,
// clamping out-of-range values.
func Float32ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s)
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		out[i] = int16(v * 32767.0)
	}
	return out
}

// Resample converts samples from an arbitrary rate to SampleRate using
// linear interpolation. Input already at SampleRate is returned unchanged.
func Resample(samples []float32, fromRate int) []float32 {
	if fromRate == SampleRate || len(samples) == 0 {
		return samples
	}
	duration := float64(len(samples)) / float64(fromRate)
	nOut := int(duration * SampleRate)
	out := make([]float32, nOut)
	for i := range out {
		pos := float64(i) * float64(len(samples)-1) / float64(max(nOut-1, 1))
		idx := int(pos)
		frac := float32(pos - float64(idx))
		next := idx + 1
		if next >= len(samples) {
			next = len(samples) - 1
		}
		out[i] = samples[idx]*(1-frac) + samples[next]*frac
	}
	return out
}

// PadForBatch pads an utterance for whole-file decoding: a fixed left pad of
// silence sized to the model's left context, right alignment to a token
// boundary, and a fixed right pad covering the lookahead delay.
func PadForBatch(samples []float32, leftPadTokens, rightPadTokens int) []float32 {
	leftPad := leftPadTokens * SamplesPerToken
	rightAlign := (SamplesPerToken - len(samples)%SamplesPerToken) % SamplesPerToken
	rightPad := rightAlign + rightPadTokens*SamplesPerToken

	out := make([]float32, leftPad+len(samples)+rightPad)
	copy(out[leftPad:], samples)
	return out
}
