package conversation

// InputKind says how the user spoke.
type InputKind string

const (
	InputAudio InputKind = "audio"
	InputText  InputKind = "text"
)

// Input is one user utterance. Audio is used for InputAudio, Text for
// InputText.
type Input struct {
	Kind  InputKind
	Audio []byte
	Text  string
}

// AudioInput wraps recorded audio.
func AudioInput(audio []byte) Input {
	return Input{Kind: InputAudio, Audio: audio}
}

// TextInput wraps typed text.
func TextInput(text string) Input {
	return Input{Kind: InputText, Text: text}
}

// Status is the overall outcome of a turn.
type Status string

const (
	StatusOK       Status = "ok"
	StatusFallback Status = "fallback"
)

// TurnResult is what every turn produces, successful or not.
type TurnResult struct {
	SessionID string
	Input     InputKind
	Status    Status

	// UserText is the transcript or trimmed text. Empty when the turn
	// failed before it was known.
	UserText string

	// ModelText is the reply, or the apology for failed turns.
	ModelText string

	// AudioURL is set in url mode, and for failed turns when the apology
	// could be synthesized.
	AudioURL string

	// StreamPending tells the client to open the streaming socket to hear
	// ModelText.
	StreamPending bool

	// Err is set when Status is StatusFallback.
	Err *TurnError
}

// OK reports whether the turn succeeded.
func (r TurnResult) OK() bool {
	return r.Status == StatusOK
}
