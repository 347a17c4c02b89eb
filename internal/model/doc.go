// Package model defines the capability interfaces the core needs from the
// underlying sequence model and tokenizer. The tensor arithmetic behind
// these interfaces (attention, projections, quantized weights) lives in an
// external backend; the core only feeds embeddings back in and samples from
// logits. A deterministic fake backend with small dimensions is provided for
// tests and end-to-end plumbing.
package model
