package decode

import (
	"math"
	"math/rand"
)

// Sampler turns a logit vector into a token id. Temperature at or below
// zero selects deterministic arg-max; above zero, a categorical draw over
// logits scaled by 1/temperature.
type Sampler struct {
	temperature float64
	rng         *rand.Rand
}

// NewSampler creates a sampler. The seed only matters for temperature > 0.
func NewSampler(temperature float64, seed int64) *Sampler {
	return &Sampler{
		temperature: temperature,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Sample picks a token id from one position's logits.
func (s *Sampler) Sample(logits []float32) int {
	if s.temperature <= 0 {
		return argmax(logits)
	}

	// Softmax over scaled logits, numerically stabilized.
	maxV := logits[argmax(logits)]
	probs := make([]float64, len(logits))
	sum := 0.0
	for i, l := range logits {
		p := math.Exp(float64(l-maxV) / s.temperature)
		probs[i] = p
		sum += p
	}
	r := s.rng.Float64() * sum
	acc := 0.0
	for i, p := range probs {
		acc += p
		if r < acc {
			return i
		}
	}
	return len(logits) - 1
}

func argmax(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
