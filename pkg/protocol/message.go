// Package protocol defines the JSON messages sent to browser clients over
// the streaming WebSocket.
package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Server → Client messages
	TypeAudioChunk    MessageType = "audio_chunk"    // Base64 audio fragment
	TypeFinishedAudio MessageType = "finished_audio" // Turn audio complete
	TypeError         MessageType = "error"          // Turn failed
)

// Message is the wire shape of every client message. Only the fields that
// belong to Type are set.
type Message struct {
	Type    MessageType `json:"type"`
	Audio   string      `json:"audio,omitempty"`
	Message string      `json:"message,omitempty"`
}

// AudioChunk creates an audio_chunk message. b64 is forwarded as received
// from the speech service.
func AudioChunk(b64 string) Message {
	return Message{Type: TypeAudioChunk, Audio: b64}
}

// FinishedAudio creates a finished_audio message.
func FinishedAudio() Message {
	return Message{Type: TypeFinishedAudio}
}

// Error creates an error message.
func Error(msg string) Message {
	return Message{Type: TypeError, Message: msg}
}

// IsTerminal reports whether m ends a streamed turn.
func (m Message) IsTerminal() bool {
	return m.Type == TypeFinishedAudio || m.Type == TypeError
}

// Bytes returns the JSON-encoded message
func (m Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// Parse decodes a message and checks its type is known.
func Parse(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to parse message: %w", err)
	}
	switch msg.Type {
	case TypeAudioChunk, TypeFinishedAudio, TypeError:
		return msg, nil
	default:
		return Message{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
}
