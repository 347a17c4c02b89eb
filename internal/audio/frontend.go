package audio

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Frontend converts raw PCM samples into normalized log-mel frames. It owns
// the Hann window, the mel filter bank, and a real-valued FFT plan; a single
// Frontend is safe for reuse across utterances but not for concurrent use.
type Frontend struct {
	window  []float64
	melBank [][]float32
	fft     *fourier.FFT

	// scratch buffers reused across frames
	frame  []float64
	coeffs []complex128
	power  []float64
}

// NewFrontend creates a frontend with the fixed model parameters.
func NewFrontend() *Frontend {
	window := make([]float64, NFFT)
	for i := range window {
		// Periodic Hann window (hanning over NFFT+1 points, last dropped).
		window[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(NFFT)))
	}
	return &Frontend{
		window:  window,
		melBank: MelBank(),
		fft:     fourier.NewFFT(NFFT),
		frame:   make([]float64, NFFT),
		coeffs:  make([]complex128, nFreqs),
		power:   make([]float64, nFreqs),
	}
}

// Compute produces log-mel frames for a whole utterance in one call. The
// signal is symmetrically padded by NFFT/2 zeros on both sides and the final
// frame is dropped, matching the reference short-time transform frame count.
// Output shape: [T][NMels].
func (f *Frontend) Compute(samples []float32) [][]float32 {
	pad := NFFT / 2
	padded := make([]float32, len(samples)+2*pad)
	copy(padded[pad:], samples)

	nFrames := 0
	if len(padded) >= NFFT {
		nFrames = 1 + (len(padded)-NFFT)/HopLength
	}
	if nFrames <= 1 {
		return nil
	}
	// Drop the last frame.
	return f.frames(padded, nFrames-1)
}

// ComputeStep produces log-mel frames incrementally. On the first call
// (tail == nil) the signal is left-padded with NFFT/2 zeros to replicate the
// batch transform's symmetric padding; afterwards the retained tail is
// prepended. Only frames derived from new data are returned. The new tail is
// every sample past the last hop consumed, so frames are bit-identical no
// matter how the signal is split; once frames have been produced its length
// stays in [TailLen, NFFT).
func (f *Frontend) ComputeStep(chunk []float32, tail []float32) ([][]float32, []float32) {
	var combined []float32
	if tail != nil {
		combined = make([]float32, len(tail)+len(chunk))
		copy(combined, tail)
		copy(combined[len(tail):], chunk)
	} else {
		pad := NFFT / 2
		combined = make([]float32, pad+len(chunk))
		copy(combined[pad:], chunk)
	}

	if len(combined) < NFFT {
		return nil, append([]float32(nil), combined...)
	}
	nFrames := 1 + (len(combined)-NFFT)/HopLength
	newTail := append([]float32(nil), combined[nFrames*HopLength:]...)
	return f.frames(combined, nFrames), newTail
}

// frames windows the signal, computes power spectra, projects through the
// mel bank, and applies log compression and normalization.
func (f *Frontend) frames(signal []float32, nFrames int) [][]float32 {
	out := make([][]float32, nFrames)
	floor := GlobalLogMelMax - 8.0
	for i := 0; i < nFrames; i++ {
		start := i * HopLength
		for j := 0; j < NFFT; j++ {
			f.frame[j] = float64(signal[start+j]) * f.window[j]
		}
		f.fft.Coefficients(f.coeffs, f.frame)
		for k := 0; k < nFreqs; k++ {
			re := real(f.coeffs[k])
			im := imag(f.coeffs[k])
			f.power[k] = re*re + im*im
		}

		mel := make([]float32, NMels)
		for m := 0; m < NMels; m++ {
			sum := 0.0
			row := f.melBank[m]
			for k := 0; k < nFreqs; k++ {
				sum += f.power[k] * float64(row[k])
			}
			if sum < melFloor {
				sum = melFloor
			}
			v := math.Log10(sum)
			if v < floor {
				v = floor
			}
			mel[m] = float32((v + 4.0) / 4.0)
		}
		out[i] = mel
	}
	return out
}
