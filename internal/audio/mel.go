package audio

import "math"

// Audio frontend constants. SamplesPerToken ties the raw sample rate to the
// language model's token rate: hop * conv stride * downsample factor.
const (
	SampleRate      = 16000
	NFFT            = 400
	HopLength       = 160
	NMels           = 128
	GlobalLogMelMax = 1.5
	ConvStride      = 2
	Downsample      = 4
	SamplesPerToken = HopLength * ConvStride * Downsample // 1280

	// TailLen is the minimum number of raw samples carried across chunk
	// boundaries so incremental framing matches whole-utterance framing
	// exactly; the carry grows by the sub-hop remainder when a chunk ends
	// off a hop boundary.
	TailLen = NFFT - HopLength // 240

	nFreqs      = NFFT/2 + 1
	melFloor    = 1e-10
	melFMin     = 0.0
	melFMax     = 8000.0
	minLogHz    = 1000.0
	minLogMel   = 15.0
	melLinScale = 3.0 / 200.0
)

func hzToMel(f float64) float64 {
	if f >= minLogHz {
		logstep := 27.0 / math.Log(6.4)
		return minLogMel + math.Log(f/minLogHz)*logstep
	}
	return melLinScale * f
}

func melToHz(m float64) float64 {
	if m >= minLogMel {
		logstep := math.Log(6.4) / 27.0
		return minLogHz * math.Exp(logstep*(m-minLogMel))
	}
	return m / melLinScale
}

// MelBank builds the Slaney-style mel filter bank used to project power
// spectra onto mel bins: linear spacing below 1 kHz, logarithmic above, with
// Slaney area normalization. Shape: [NMels][NFFT/2+1].
func MelBank() [][]float32 {
	fftFreqs := make([]float64, nFreqs)
	for i := range fftFreqs {
		fftFreqs[i] = float64(i) * (SampleRate / 2.0) / float64(nFreqs-1)
	}

	melMin := hzToMel(melFMin)
	melMax := hzToMel(melFMax)
	filterFreqs := make([]float64, NMels+2)
	for i := range filterFreqs {
		m := melMin + (melMax-melMin)*float64(i)/float64(NMels+1)
		filterFreqs[i] = melToHz(m)
	}

	bank := make([][]float32, NMels)
	for m := 0; m < NMels; m++ {
		row := make([]float32, nFreqs)
		lower := filterFreqs[m]
		center := filterFreqs[m+1]
		upper := filterFreqs[m+2]
		enorm := 2.0 / (upper - lower)
		for k := 0; k < nFreqs; k++ {
			f := fftFreqs[k]
			down := (f - lower) / (center - lower)
			up := (upper - f) / (upper - center)
			w := math.Min(down, up)
			if w < 0 {
				w = 0
			}
			row[k] = float32(w * enorm)
		}
		bank[m] = row
	}
	return bank
}
