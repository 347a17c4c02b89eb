package worker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cgint/voxmlx/internal/audio"
	"github.com/cgint/voxmlx/internal/config"
	"github.com/cgint/voxmlx/internal/metrics"
	"github.com/cgint/voxmlx/internal/protocol"
)

// TTSWorker runs the synthesis command loop. Sessions are registered before
// any speak_text is accepted for them; each speak_text command is rendered in
// full and streamed back as ordered audio chunks.
type TTSWorker struct {
	in      io.Reader
	out     *protocol.FrameWriter
	synth   Synthesizer
	logger  *slog.Logger
	metrics *metrics.Metrics

	voice     string
	speed     float64
	chunkSize int

	mu       sync.Mutex
	sessions map[string]time.Time
}

// NewTTSWorker wires a synthesis worker over the given channel.
func NewTTSWorker(in io.Reader, out io.Writer, synth Synthesizer,
	cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *TTSWorker {

	return &TTSWorker{
		in:        in,
		out:       protocol.NewFrameWriter(out),
		synth:     synth,
		logger:    logger,
		metrics:   m,
		voice:     cfg.Synthesis.Voice,
		speed:     cfg.Synthesis.Speed,
		chunkSize: cfg.Synthesis.ChunkSize,
		sessions:  make(map[string]time.Time),
	}
}

// SessionIDs returns the registered session ids, sorted.
func (w *TTSWorker) SessionIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.sessions))
	for id := range w.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run processes commands until shutdown or channel closure.
func (w *TTSWorker) Run(ctx context.Context) error {
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

		if cmd.Cmd == protocol.CmdShutdown {
			w.send(protocol.Event{Event: protocol.EventBye})
			return nil
		}
		if cmd.SessionID == "" {
			w.sendError("", "missing session_id")
			continue
		}

		switch cmd.Cmd {
		case protocol.CmdStartSession:
			w.handleStart(cmd.SessionID)
		case protocol.CmdStopSession:
			w.handleStop(cmd.SessionID)
		case protocol.CmdSpeakText:
			w.handleSpeak(ctx, cmd)
		default:
			w.sendError(cmd.SessionID, fmt.Sprintf("unknown cmd: %s", cmd.Cmd))
		}
	}
}

func (w *TTSWorker) handleStart(sessionID string) {
	w.mu.Lock()
	w.sessions[sessionID] = time.Now()
	w.mu.Unlock()

	w.metrics.RecordSessionStarted()
	w.logger.Info("session started", slog.String("session_id", sessionID))
	w.send(protocol.Event{Event: protocol.EventSessionStarted, SessionID: sessionID})
}

func (w *TTSWorker) handleStop(sessionID string) {
	w.mu.Lock()
	started, ok := w.sessions[sessionID]
	delete(w.sessions, sessionID)
	w.mu.Unlock()

	if ok {
		w.metrics.RecordSessionStopped(time.Since(started).Seconds())
	}
	w.send(protocol.Event{Event: protocol.EventSessionStopped, SessionID: sessionID})
}

func (w *TTSWorker) handleSpeak(ctx context.Context, cmd protocol.Command) {
	w.mu.Lock()
	_, ok := w.sessions[cmd.SessionID]
	w.mu.Unlock()
	if !ok {
		w.sendError(cmd.SessionID, "unknown session")
		return
	}

	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		w.send(protocol.Event{Event: protocol.EventSessionDone, SessionID: cmd.SessionID})
		return
	}

	voice := w.voice
	if cmd.Voice != "" {
		voice = cmd.Voice
	}
	speed := w.speed
	if cmd.Speed != nil {
		speed = *cmd.Speed
	}

	w.metrics.RecordSpeakRequest()
	started := time.Now()

	samples, err := w.synth.Synthesize(ctx, text, voice, speed)
	if err != nil {
		w.sendError(cmd.SessionID, fmt.Sprintf("synthesis failed: %v", err))
		return
	}

	chunks := 0
	for off := 0; off < len(samples); off += w.chunkSize {
		end := off + w.chunkSize
		if end > len(samples) {
			end = len(samples)
		}
		seq := chunks
		w.send(protocol.Event{
			Event:      protocol.EventAudioChunk,
			SessionID:  cmd.SessionID,
			Seq:        &seq,
			PCMB64:     base64.StdEncoding.EncodeToString(audio.Float32ToBytes(samples[off:end])),
			SampleRate: w.synth.SampleRate(),
			Channels:   1,
			Format:     "f32le",
		})
		chunks++
	}

	w.metrics.RecordSynthesis(chunks, time.Since(started).Seconds())
	w.logger.Info("synthesis complete",
		slog.String("session_id", cmd.SessionID),
		slog.Int("chunks", chunks),
		slog.Int("samples", len(samples)),
	)
	w.send(protocol.Event{Event: protocol.EventSessionDone, SessionID: cmd.SessionID})
}

func (w *TTSWorker) sendError(sessionID, msg string) {
	w.metrics.RecordProtocolError()
	w.logger.Warn("protocol error", slog.String("message", msg))
	w.send(protocol.Event{Event: protocol.EventError, SessionID: sessionID, Message: msg})
}

func (w *TTSWorker) send(e protocol.Event) {
	payload, err := e.Marshal()
	if err != nil {
		w.logger.Error("encoding event", slog.String("event", e.Event), slog.String("error", err.Error()))
		return
	}
	if err := w.out.Write(payload); err != nil {
		w.logger.Warn("writing event", slog.String("event", e.Event), slog.String("error", err.Error()))
	}
}
