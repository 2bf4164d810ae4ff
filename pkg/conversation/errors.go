package conversation

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-barbie/pkg/inference"
	"github.com/teslashibe/go-barbie/pkg/stt"
	"github.com/teslashibe/go-barbie/pkg/tts"
)

// ErrorKind classifies a failed turn.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindConfiguration ErrorKind = "configuration"
	KindTranscription ErrorKind = "transcription"
	KindGeneration    ErrorKind = "generation"
	KindSynthesis     ErrorKind = "synthesis"
	KindBusy          ErrorKind = "busy"
)

// Client facing details.
const (
	detailTextRequired    = "Text input is required."
	detailAudioRequired   = "Audio file is required."
	detailUnclearAudio    = "Could not transcribe audio. Please speak more clearly."
	detailSTTNotConfig    = "Missing AssemblyAI API key. Please set it in .env."
	detailLLMNotConfig    = "LLM service failed: Gemini API key is not configured."
	detailTTSNotConfig    = "Speech synthesis failed: Murf AI API key is not configured."
	detailSessionBusy     = "Another message for this session is still being processed."
	detailUnsupportedKind = "Unsupported input."
)

// TurnError describes why a turn fell back.
type TurnError struct {
	Kind ErrorKind

	// StatusCode is the HTTP-style code reported to the client.
	StatusCode int

	// Detail is the client facing description.
	Detail string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *TurnError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("conversation: %s (%d): %s", e.Kind, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("conversation: %s (%d): %s: %v", e.Kind, e.StatusCode, e.Detail, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TurnError) Unwrap() error {
	return e.Err
}

func validationError(detail string) *TurnError {
	return &TurnError{Kind: KindValidation, StatusCode: 400, Detail: detail}
}

func busyError(err error) *TurnError {
	return &TurnError{Kind: KindBusy, StatusCode: 409, Detail: detailSessionBusy, Err: err}
}

func transcriptionError(err error) *TurnError {
	switch {
	case errors.Is(err, stt.ErrNoAPIKey):
		return &TurnError{Kind: KindConfiguration, StatusCode: 500, Detail: detailSTTNotConfig, Err: err}
	case errors.Is(err, stt.ErrEmptyTranscript):
		return &TurnError{Kind: KindTranscription, StatusCode: 400, Detail: detailUnclearAudio, Err: err}
	case errors.Is(err, stt.ErrEmptyAudio):
		return validationError(detailAudioRequired)
	default:
		return &TurnError{Kind: KindTranscription, StatusCode: 500,
			Detail: "Audio transcription service failed: " + err.Error(), Err: err}
	}
}

func generationError(err error) *TurnError {
	if errors.Is(err, inference.ErrNoAPIKey) {
		return &TurnError{Kind: KindConfiguration, StatusCode: 500, Detail: detailLLMNotConfig, Err: err}
	}
	return &TurnError{Kind: KindGeneration, StatusCode: 500,
		Detail: "LLM service failed: " + err.Error(), Err: err}
}

func synthesisError(err error) *TurnError {
	if errors.Is(err, tts.ErrNoAPIKey) {
		return &TurnError{Kind: KindConfiguration, StatusCode: 500, Detail: detailTTSNotConfig, Err: err}
	}
	return &TurnError{Kind: KindSynthesis, StatusCode: 500,
		Detail: "Speech synthesis failed: " + err.Error(), Err: err}
}
