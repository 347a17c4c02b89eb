// Package decode implements the autoregressive decode loop: token sampling,
// the priming/generation state machine over queued audio embeddings, and the
// whole-utterance generate path. Evaluation of the next position is
// pipelined with emission of the current token so transmit latency overlaps
// model compute.
package decode
