// Package inference provides the reply-generation capability for the chat
// orchestrator.
//
// A Provider receives the provider-facing history (a leading system message
// carrying the persona, followed by the prior user/model turns) plus the new
// user utterance, and returns the model's reply text.
//
// Example usage:
//
//	gen := inference.NewGemini(
//	    inference.WithAPIKey(os.Getenv("GEMINI_API_KEY")),
//	    inference.WithModel("gemini-1.5-flash"),
//	)
//
//	reply, _ := gen.GenerateReply(ctx, []inference.Message{
//	    inference.NewSystemMessage(persona),
//	}, "Hello!")
package inference

import "context"

// Provider is the reply-generation interface.
type Provider interface {
	// GenerateReply returns the model's reply to text given history.
	// The returned reply is never empty when err is nil.
	GenerateReply(ctx context.Context, history []Message, text string) (string, error)
}
