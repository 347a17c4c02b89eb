package protocol

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "simple", payload: []byte(`{"cmd":"shutdown"}`)},
		{name: "empty", payload: []byte{}},
		{name: "binary", payload: []byte{0x00, 0xFF, 0x7F, 0x80}},
		{name: "large", payload: bytes.Repeat([]byte("a"), 1<<16)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, tt.payload))

			got, err := ReadFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.payload, got)
		})
	}
}

func TestReadFrameMultiple(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("first")))
	require.NoError(t, WriteFrame(&buf, []byte("second")))

	first, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), first)

	second, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), second)

	_, err = ReadFrame(&buf)
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestReadFrameClosed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty stream", data: nil},
		{name: "truncated header", data: []byte{0x00, 0x00}},
		{name: "truncated payload", data: []byte{0x00, 0x00, 0x00, 0x08, 'h', 'i'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, ErrChannelClosed)
		})
	}
}

func TestReadFrameOversized(t *testing.T) {
	header := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	_, err := ReadFrame(bytes.NewReader(header))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrChannelClosed)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Command
		wantErr bool
	}{
		{
			name:    "start session",
			payload: `{"cmd":"start_session","session_id":"s1"}`,
			want:    Command{Cmd: CmdStartSession, SessionID: "s1"},
		},
		{
			name:    "audio chunk",
			payload: `{"cmd":"audio_chunk","session_id":"s1","pcm_b64":"AAAA"}`,
			want:    Command{Cmd: CmdAudioChunk, SessionID: "s1", PCMB64: "AAAA"},
		},
		{
			name:    "speak text with speed",
			payload: `{"cmd":"speak_text","session_id":"t1","text":"hello","speed":1.5}`,
			want:    Command{Cmd: CmdSpeakText, SessionID: "t1", Text: "hello", Speed: floatPtr(1.5)},
		},
		{
			name:    "malformed json",
			payload: `{"cmd":`,
			wantErr: true,
		},
		{
			name:    "missing cmd",
			payload: `{"session_id":"s1"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventMarshalOmitsAbsent(t *testing.T) {
	payload, err := Event{Event: EventSessionStarted, SessionID: "s1"}.Marshal()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))
	assert.Equal(t, map[string]any{"event": "session_started", "session_id": "s1"}, raw)
}

func TestEventMarshalSeqZero(t *testing.T) {
	seq := 0
	payload, err := Event{
		Event:      EventAudioChunk,
		SessionID:  "t1",
		Seq:        &seq,
		PCMB64:     "AAAA",
		SampleRate: 24000,
		Channels:   1,
		Format:     "f32le",
	}.Marshal()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))
	assert.Equal(t, float64(0), raw["seq"])
	assert.Equal(t, "f32le", raw["format"])
}

func TestFrameWriterConcurrent(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			done <- fw.Write([]byte("payload"))
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}

	for i := 0; i < 8; i++ {
		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), got)
	}
	_, err := ReadFrame(&buf)
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func floatPtr(f float64) *float64 { return &f }
