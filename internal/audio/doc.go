// Package audio implements the log-mel spectral frontend and PCM handling.
// It converts raw float32 samples into normalized log-mel frames either in
// one shot or incrementally with a carried short-time-transform tail, and
// provides the wire-format PCM conversions used by the worker protocol.
package audio
