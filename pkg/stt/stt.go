// Package stt provides the speech-to-text capability used by the chat
// orchestrator.
//
// Providers take a complete audio upload and return its transcript. An empty
// transcript is reported as a TranscriptionError rather than a blank success,
// so callers never forward silence to the language model.
//
// Example usage:
//
//	provider := stt.NewAssemblyAI(
//	    stt.WithAPIKey(os.Getenv("ASSEMBLYAI_API_KEY")),
//	)
//
//	text, err := provider.Transcribe(ctx, audio)
package stt

import "context"

// Provider defines the transcription interface.
type Provider interface {
	// Transcribe converts a complete audio buffer to text.
	// The returned text is never empty when err is nil.
	Transcribe(ctx context.Context, audio []byte) (string, error)
}
