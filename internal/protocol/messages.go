package protocol

import (
	"encoding/json"
	"fmt"
)

// Command names accepted by the workers.
const (
	CmdStartSession = "start_session"
	CmdAudioChunk   = "audio_chunk"
	CmdStopSession  = "stop_session"
	CmdSpeakText    = "speak_text"
	CmdShutdown     = "shutdown"
)

// Event names emitted by the workers.
const (
	EventReady          = "ready"
	EventSessionStarted = "session_started"
	EventSessionStopped = "session_stopped"
	EventSessionDone    = "session_done"
	EventPartial        = "partial"
	EventFinal          = "final"
	EventAudioChunk     = "audio_chunk"
	EventError          = "error"
	EventBye            = "bye"
)

// Command is one inbound control message. Every command except shutdown
// carries a session id; audio_chunk adds base64 PCM, speak_text adds the
// text to render plus optional voice and speed overrides.
type Command struct {
	Cmd       string   `json:"cmd"`
	SessionID string   `json:"session_id,omitempty"`
	PCMB64    string   `json:"pcm_b64,omitempty"`
	Text      string   `json:"text,omitempty"`
	Voice     string   `json:"voice,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

// Event is one outbound message. Field presence depends on the event:
// partial and final carry text, audio_chunk carries the PCM block and its
// format, error carries a message, ready carries a timestamp.
type Event struct {
	Event      string `json:"event"`
	SessionID  string `json:"session_id,omitempty"`
	Text       string `json:"text,omitempty"`
	ChunkCount int    `json:"chunk_count,omitempty"`
	Seq        *int   `json:"seq,omitempty"`
	PCMB64     string `json:"pcm_b64,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Format     string `json:"format,omitempty"`
	Message    string `json:"message,omitempty"`
	TSMs       int64  `json:"ts_ms,omitempty"`
}

// ParseCommand decodes one command payload.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("decoding command: %w", err)
	}
	if cmd.Cmd == "" {
		return Command{}, fmt.Errorf("command missing cmd field")
	}
	return cmd, nil
}

// Marshal encodes the event for framing.
func (e Event) Marshal() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", e.Event, err)
	}
	return payload, nil
}
