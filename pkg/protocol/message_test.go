package protocol

import (
	"testing"
)

func TestWireShapes(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"audio chunk", AudioChunk("UklGRg=="), `{"type":"audio_chunk","audio":"UklGRg=="}`},
		{"finished", FinishedAudio(), `{"type":"finished_audio"}`},
		{"error", Error("No LLM response found to stream."), `{"type":"error","message":"No LLM response found to stream."}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.msg.Bytes()
			if err != nil {
				t.Fatalf("Bytes: %v", err)
			}
			if string(b) != tt.want {
				t.Errorf("got %s, want %s", b, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	if AudioChunk("x").IsTerminal() {
		t.Error("audio_chunk is not terminal")
	}
	if !FinishedAudio().IsTerminal() || !Error("x").IsTerminal() {
		t.Error("finished_audio and error are terminal")
	}
}

func TestParse(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"audio_chunk","audio":"QQ=="}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg != AudioChunk("QQ==") {
		t.Errorf("msg = %+v", msg)
	}

	for _, bad := range []string{`{"type":"motor"}`, `not json`, `{}`} {
		if _, err := Parse([]byte(bad)); err == nil {
			t.Errorf("Parse(%s) succeeded", bad)
		}
	}
}
