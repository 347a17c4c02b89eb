// Package kvcache implements the rotating key/value cache used by the
// attention layers of both the encoder and the decoder. It provides a bulk
// append path for prefill and a circular single-step path for generation,
// keeping attention context bounded while a stream runs indefinitely.
package kvcache
