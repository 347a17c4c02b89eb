// Package worker implements the framed command loops that drive the speech
// workers over a byte channel. STTWorker manages concurrent transcription
// sessions with background partial pollers; TTSWorker streams synthesized
// audio back as ordered chunks. Both speak the same length-prefixed JSON
// protocol and treat malformed input as recoverable.
package worker
