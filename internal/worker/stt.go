package worker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cgint/voxmlx/internal/audio"
	"github.com/cgint/voxmlx/internal/config"
	"github.com/cgint/voxmlx/internal/metrics"
	"github.com/cgint/voxmlx/internal/protocol"
)

// sttSession holds one transcription session's accumulated audio. The table
// mutex in STTWorker is always taken before the session mutex.
type sttSession struct {
	id string

	mu          sync.Mutex
	samples     []float32
	chunks      int
	lastPartial int // chunk count at the last emitted partial
	stopping    bool

	started time.Time
	cancel  context.CancelFunc
}

// STTWorker runs the streaming transcription command loop. One goroutine
// reads framed commands; each session gets a poller goroutine that emits
// partial transcripts while audio accumulates.
type STTWorker struct {
	in      io.Reader
	out     *protocol.FrameWriter
	trans   Transcriber
	logger  *slog.Logger
	metrics *metrics.Metrics

	partialInterval time.Duration
	minChunks       int

	mu       sync.Mutex
	sessions map[string]*sttSession
	wg       sync.WaitGroup
}

// NewSTTWorker wires a transcription worker over the given channel.
func NewSTTWorker(in io.Reader, out io.Writer, trans Transcriber,
	cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *STTWorker {

	return &STTWorker{
		in:              in,
		out:             protocol.NewFrameWriter(out),
		trans:           trans,
		logger:          logger,
		metrics:         m,
		partialInterval: cfg.Transcription.GetPartialIntervalDuration(),
		minChunks:       cfg.Transcription.MinChunksForPartial,
		sessions:        make(map[string]*sttSession),
	}
}

// Run processes commands until shutdown or channel closure. Protocol errors
// are reported to the peer and never end the loop.
func (w *STTWorker) Run(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		w.stopAll()
		w.wg.Wait()
	}()

	w.send(protocol.Event{Event: protocol.EventReady, TSMs: time.Now().UnixMilli()})

	for {
		payload, err := protocol.ReadFrame(w.in)
		if err != nil {
			if errors.Is(err, protocol.ErrChannelClosed) {
				w.logger.Info("channel closed, stopping worker")
				return nil
			}
			return fmt.Errorf("reading command: %w", err)
		}

		cmd, err := protocol.ParseCommand(payload)
		if err != nil {
			w.sendError("", fmt.Sprintf("invalid command: %v", err))
			continue
		}
		w.metrics.RecordCommand(cmd.Cmd)

		switch cmd.Cmd {
		case protocol.CmdStartSession:
			w.handleStart(pollCtx, cmd)
		case protocol.CmdAudioChunk:
			w.handleAudio(cmd)
		case protocol.CmdStopSession:
			w.handleStop(ctx, cmd)
		case protocol.CmdShutdown:
			w.send(protocol.Event{Event: protocol.EventBye})
			return nil
		default:
			w.sendError(cmd.SessionID, fmt.Sprintf("unknown cmd: %s", cmd.Cmd))
		}
	}
}

// SessionIDs returns the ids of the live sessions, for monitoring.
func (w *STTWorker) SessionIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.sessions))
	for id := range w.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (w *STTWorker) handleStart(ctx context.Context, cmd protocol.Command) {
	if cmd.SessionID == "" {
		w.sendError("", "missing session_id")
		return
	}

	w.mu.Lock()
	if _, exists := w.sessions[cmd.SessionID]; exists {
		w.mu.Unlock()
		w.sendError(cmd.SessionID, fmt.Sprintf("session %s already exists", cmd.SessionID))
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	s := &sttSession{
		id:      cmd.SessionID,
		started: time.Now(),
		cancel:  cancel,
	}
	w.sessions[cmd.SessionID] = s
	w.mu.Unlock()

	w.metrics.RecordSessionStarted()
	w.wg.Add(1)
	go w.poll(pollCtx, s)

	w.logger.Info("session started", slog.String("session_id", s.id))
	w.send(protocol.Event{Event: protocol.EventSessionStarted, SessionID: s.id})
}

func (w *STTWorker) handleAudio(cmd protocol.Command) {
	s := w.lookup(cmd.SessionID)
	if s == nil {
		w.sendError(cmd.SessionID, fmt.Sprintf("unknown session: %s", cmd.SessionID))
		return
	}

	raw, err := base64.StdEncoding.DecodeString(cmd.PCMB64)
	if err != nil {
		w.metrics.RecordDecodeError()
		w.sendError(cmd.SessionID, fmt.Sprintf("invalid base64: %v", err))
		return
	}
	samples, err := audio.BytesToFloat32(raw)
	if err != nil {
		w.metrics.RecordDecodeError()
		w.sendError(cmd.SessionID, fmt.Sprintf("invalid pcm: %v", err))
		return
	}

	s.mu.Lock()
	s.samples = append(s.samples, samples...)
	s.chunks++
	s.mu.Unlock()

	w.metrics.RecordChunkReceived(len(raw))
}

func (w *STTWorker) handleStop(ctx context.Context, cmd protocol.Command) {
	w.mu.Lock()
	s, ok := w.sessions[cmd.SessionID]
	if ok {
		delete(w.sessions, cmd.SessionID)
	}
	w.mu.Unlock()

	if !ok {
		w.sendError(cmd.SessionID, fmt.Sprintf("unknown session: %s", cmd.SessionID))
		return
	}

	s.mu.Lock()
	s.stopping = true
	snapshot := make([]float32, len(s.samples))
	copy(snapshot, s.samples)
	s.mu.Unlock()
	s.cancel()

	started := time.Now()
	text, err := w.trans.Transcribe(ctx, snapshot)
	if err != nil {
		w.sendError(s.id, fmt.Sprintf("final transcription failed: %v", err))
	} else {
		w.metrics.RecordFinal(time.Since(started).Seconds())
		w.send(protocol.Event{Event: protocol.EventFinal, SessionID: s.id, Text: text})
	}

	w.metrics.RecordSessionStopped(time.Since(s.started).Seconds())
	w.logger.Info("session stopped",
		slog.String("session_id", s.id),
		slog.Int("samples", len(snapshot)),
	)
	w.send(protocol.Event{Event: protocol.EventSessionStopped, SessionID: s.id})
}

// poll emits a partial transcript whenever new audio arrived since the last
// one and the chunk threshold is met. Transcription runs outside the session
// lock so audio keeps accumulating while the model works.
func (w *STTWorker) poll(ctx context.Context, s *sttSession) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.partialInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.stopping {
			s.mu.Unlock()
			return
		}
		if s.chunks < w.minChunks || s.chunks == s.lastPartial {
			s.mu.Unlock()
			continue
		}
		snapshot := make([]float32, len(s.samples))
		copy(snapshot, s.samples)
		count := s.chunks
		s.mu.Unlock()

		text, err := w.trans.Transcribe(ctx, snapshot)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.sendError(s.id, fmt.Sprintf("partial transcription failed: %v", err))
			continue
		}

		s.mu.Lock()
		stopping := s.stopping
		if !stopping {
			s.lastPartial = count
		}
		s.mu.Unlock()
		if stopping {
			return
		}
		if text == "" {
			continue
		}

		w.metrics.RecordPartial()
		w.send(protocol.Event{
			Event:      protocol.EventPartial,
			SessionID:  s.id,
			Text:       text,
			ChunkCount: count,
		})
	}
}

func (w *STTWorker) lookup(id string) *sttSession {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessions[id]
}

func (w *STTWorker) stopAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, s := range w.sessions {
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()
		s.cancel()
		delete(w.sessions, id)
	}
}

func (w *STTWorker) sendError(sessionID, msg string) {
	w.metrics.RecordProtocolError()
	w.logger.Warn("protocol error", slog.String("message", msg))
	w.send(protocol.Event{Event: protocol.EventError, SessionID: sessionID, Message: msg})
}

// send writes one event. Write failures mean the peer is gone; the read
// side will observe the closure, so they are logged and swallowed here.
func (w *STTWorker) send(e protocol.Event) {
	payload, err := e.Marshal()
	if err != nil {
		w.logger.Error("encoding event", slog.String("event", e.Event), slog.String("error", err.Error()))
		return
	}
	if err := w.out.Write(payload); err != nil {
		w.logger.Warn("writing event", slog.String("event", e.Event), slog.String("error", err.Error()))
	}
}
