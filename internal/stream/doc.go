// Package stream provides the streaming orchestrator for one live
// transcription session. It buffers arriving audio, feeds token-aligned
// chunks through the incremental frontend and encoder, enforces the fixed
// lookahead margin between audio received and positions decoded, and
// handles priming, end-of-sequence reset, and the end-of-stream flush.
package stream
