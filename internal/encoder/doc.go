// Package encoder implements the causal feature encoder: two causal
// convolutions downsampling mel frames in time, a transformer capability
// supplied by the model layer, and grouping of encoded frames into
// language-model embeddings. It supports whole-utterance evaluation and an
// incremental path carrying convolution tails, attention caches, and the
// partial downsample group across chunk boundaries.
package encoder
