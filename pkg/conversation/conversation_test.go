package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-barbie/pkg/inference"
	"github.com/teslashibe/go-barbie/pkg/session"
	"github.com/teslashibe/go-barbie/pkg/stt"
	"github.com/teslashibe/go-barbie/pkg/tts"
)

const (
	testPersona   = "You are Barbie."
	fallbackAudio = "https://audio.example/sorry.mp3"
	replyAudio    = "https://audio.example/reply.mp3"
)

type fixture struct {
	store *session.Store
	stt   *stt.Mock
	llm   *inference.Mock
	tts   *tts.Mock
	agent *Agent
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store: session.NewStore(100),
		stt:   stt.NewMock("what should I wear?"),
		llm:   inference.NewMock("Hi, Barbie!"),
	}
	f.tts = &tts.Mock{SynthesizeFunc: func(ctx context.Context, text string, voice tts.Voice) (string, error) {
		if text == DefaultFallbackMessage {
			return fallbackAudio, nil
		}
		return replyAudio, nil
	}}
	opts = append([]Option{WithPersona(testPersona), WithMode(ModeURL)}, opts...)
	f.agent = New(f.store, f.stt, f.llm, f.tts, opts...)
	return f
}

func TestTextTurn(t *testing.T) {
	f := newFixture(t)

	res := f.agent.HandleTurn(context.Background(), "s1", TextInput("  Hello "))
	if !res.OK() {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if res.SessionID != "s1" || res.Input != InputText {
		t.Errorf("result identity = %q/%q", res.SessionID, res.Input)
	}
	if res.UserText != "Hello" || res.ModelText != "Hi, Barbie!" || res.AudioURL != replyAudio {
		t.Errorf("result = %+v", res)
	}

	want := []session.Turn{
		{Role: session.RoleUser, Text: "Hello"},
		{Role: session.RoleModel, Text: "Hi, Barbie!"},
	}
	got := f.store.Get("s1")
	if len(got) != len(want) {
		t.Fatalf("history = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("history[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestHistoryGrowsByTwoPerTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 4
	for i := 0; i < n; i++ {
		res := f.agent.HandleTurn(ctx, "s1", TextInput(fmt.Sprintf("message %d", i)))
		if !res.OK() {
			t.Fatalf("turn %d failed: %v", i, res.Err)
		}
	}

	history := f.store.Get("s1")
	if len(history) != 2*n {
		t.Fatalf("history length = %d, want %d", len(history), 2*n)
	}
	if history[len(history)-1].Role != session.RoleModel {
		t.Error("history ends with a user turn")
	}
}

func TestProviderHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.agent.HandleTurn(ctx, "s1", TextInput("first"))
	f.agent.HandleTurn(ctx, "s1", TextInput("second"))

	calls := f.llm.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d", len(calls))
	}

	first := calls[0]
	if len(first.History) != 1 || first.History[0].Role != inference.RoleSystem || first.History[0].Content != testPersona {
		t.Errorf("first history = %+v, want persona only", first.History)
	}

	second := calls[1]
	if second.Text != "second" {
		t.Errorf("text = %q", second.Text)
	}
	wantRoles := []inference.Role{inference.RoleSystem, inference.RoleUser, inference.RoleModel}
	if len(second.History) != len(wantRoles) {
		t.Fatalf("second history = %+v", second.History)
	}
	for i, r := range wantRoles {
		if second.History[i].Role != r {
			t.Errorf("history[%d].Role = %s, want %s", i, second.History[i].Role, r)
		}
	}

	for _, turn := range f.store.Get("s1") {
		if turn.Text == testPersona {
			t.Error("persona was stored in the session")
		}
	}
}

func TestGenerationFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.agent.HandleTurn(ctx, "s1", TextInput("first"))
	before := len(f.store.Get("s1"))

	f.llm.GenerateFunc = func(ctx context.Context, history []inference.Message, text string) (string, error) {
		return "", inference.WrapError("gemini", "generate content", errors.New("boom"))
	}
	res := f.agent.HandleTurn(ctx, "s1", TextInput("second"))

	if res.Status != StatusFallback || res.Err == nil || res.Err.Kind != KindGeneration {
		t.Fatalf("result = %+v", res)
	}
	if res.Err.StatusCode != 500 {
		t.Errorf("status code = %d", res.Err.StatusCode)
	}
	if res.UserText != "second" {
		t.Errorf("user text = %q, want echoed input", res.UserText)
	}
	if got := len(f.store.Get("s1")); got != before {
		t.Errorf("history length = %d, want %d", got, before)
	}
}

func TestBlankTextIsRejectedWithoutProviderCalls(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		f := newFixture(t)
		res := f.agent.HandleTurn(context.Background(), "s1", TextInput(text))

		if res.Err == nil || res.Err.Kind != KindValidation || res.Err.StatusCode != 400 {
			t.Fatalf("%q: result = %+v", text, res)
		}
		if res.Err.Detail != "Text input is required." {
			t.Errorf("detail = %q", res.Err.Detail)
		}
		if f.stt.CallCount() != 0 || f.llm.CallCount() != 0 {
			t.Errorf("%q: provider calls stt=%d llm=%d", text, f.stt.CallCount(), f.llm.CallCount())
		}
		if calls := f.tts.Calls(); len(calls) != 1 || calls[0].Text != DefaultFallbackMessage {
			t.Errorf("%q: tts calls = %+v, want only the apology", text, calls)
		}
		if len(f.store.Get("s1")) != 0 {
			t.Error("validation failure touched the history")
		}
	}
}

func TestFallbackShape(t *testing.T) {
	f := newFixture(t)
	res := f.agent.HandleTurn(context.Background(), "s1", TextInput(""))

	if res.Status != StatusFallback {
		t.Fatalf("status = %s", res.Status)
	}
	if res.ModelText != DefaultFallbackMessage {
		t.Errorf("model text = %q", res.ModelText)
	}
	if res.AudioURL != fallbackAudio {
		t.Errorf("audio url = %q", res.AudioURL)
	}
	if res.UserText != "" {
		t.Errorf("user text = %q, want empty", res.UserText)
	}
	if calls := f.tts.Calls(); calls[0].Voice.ID != "en-US-teresa" {
		t.Errorf("fallback voice = %+v", calls[0].Voice)
	}
}

func TestFallbackNeverFails(t *testing.T) {
	f := newFixture(t)
	f.tts.SynthesizeFunc = func(ctx context.Context, text string, voice tts.Voice) (string, error) {
		return "", tts.ErrNoAPIKey
	}

	res := f.agent.HandleTurn(context.Background(), "s1", TextInput(" "))
	if res.Status != StatusFallback || res.AudioURL != "" || res.ModelText != DefaultFallbackMessage {
		t.Errorf("result = %+v", res)
	}
}

func TestAudioTurn(t *testing.T) {
	f := newFixture(t)
	res := f.agent.HandleTurn(context.Background(), "s1", AudioInput([]byte("RIFF")))

	if !res.OK() || res.Input != InputAudio {
		t.Fatalf("result = %+v", res)
	}
	if res.UserText != "what should I wear?" {
		t.Errorf("user text = %q", res.UserText)
	}
	if got := f.llm.Calls()[0].Text; got != "what should I wear?" {
		t.Errorf("generated from %q", got)
	}
}

func TestTranscriptionFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   ErrorKind
		status int
	}{
		{"empty transcript", stt.WrapError("assemblyai", "transcript", stt.ErrEmptyTranscript), KindTranscription, 400},
		{"missing key", stt.ErrNoAPIKey, KindConfiguration, 500},
		{"provider down", stt.WrapError("assemblyai", "upload audio", errors.New("EOF")), KindTranscription, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.stt.TranscribeFunc = func(ctx context.Context, audio []byte) (string, error) {
				return "", tt.err
			}

			res := f.agent.HandleTurn(context.Background(), "s1", AudioInput([]byte("x")))
			if res.Err == nil || res.Err.Kind != tt.kind || res.Err.StatusCode != tt.status {
				t.Fatalf("result = %+v, err = %+v", res, res.Err)
			}
			if f.llm.CallCount() != 0 {
				t.Error("generation ran after failed transcription")
			}
			if len(f.store.Get("s1")) != 0 {
				t.Error("history was modified")
			}
		})
	}

	t.Run("no audio", func(t *testing.T) {
		f := newFixture(t)
		res := f.agent.HandleTurn(context.Background(), "s1", AudioInput(nil))
		if res.Err == nil || res.Err.Kind != KindValidation || f.stt.CallCount() != 0 {
			t.Errorf("result = %+v", res)
		}
	})
}

func TestMissingGenerationKey(t *testing.T) {
	f := newFixture(t)
	f.llm.GenerateFunc = func(ctx context.Context, history []inference.Message, text string) (string, error) {
		return "", inference.ErrNoAPIKey
	}

	res := f.agent.HandleTurn(context.Background(), "s1", TextInput("Hello"))
	if res.Err == nil || res.Err.Kind != KindConfiguration || res.Err.StatusCode != 500 {
		t.Fatalf("result = %+v", res)
	}
}

func TestSynthesisFailureKeepsReply(t *testing.T) {
	f := newFixture(t)
	f.tts.SynthesizeFunc = func(ctx context.Context, text string, voice tts.Voice) (string, error) {
		if text == DefaultFallbackMessage {
			return fallbackAudio, nil
		}
		return "", tts.WrapError("murf", "generate speech", &tts.APIError{StatusCode: 503, Provider: "murf"})
	}

	res := f.agent.HandleTurn(context.Background(), "s1", TextInput("Hello"))
	if res.Status != StatusFallback || res.Err.Kind != KindSynthesis {
		t.Fatalf("result = %+v", res)
	}
	if res.UserText != "Hello" || res.ModelText != "Hi, Barbie!" {
		t.Errorf("texts = %q / %q, want the real exchange", res.UserText, res.ModelText)
	}
	if res.AudioURL != fallbackAudio {
		t.Errorf("audio = %q", res.AudioURL)
	}
	if got := len(f.store.Get("s1")); got != 2 {
		t.Errorf("history length = %d, want 2 (exchange persists)", got)
	}
}

func TestStreamMode(t *testing.T) {
	f := newFixture(t, WithMode(ModeStream))

	res := f.agent.HandleTurn(context.Background(), "s1", TextInput("Hello"))
	if !res.OK() || !res.StreamPending {
		t.Fatalf("result = %+v", res)
	}
	if res.AudioURL != "" {
		t.Errorf("audio url = %q, want none in stream mode", res.AudioURL)
	}
	if f.tts.CallCount() != 0 {
		t.Errorf("tts calls = %d, want 0", f.tts.CallCount())
	}
}

func TestSameSessionTurnsAreSerialised(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	active, maxActive := 0, 0
	f.llm.GenerateFunc = func(ctx context.Context, history []inference.Message, text string) (string, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return "reply to " + text, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.agent.HandleTurn(context.Background(), "s1", TextInput(fmt.Sprintf("m%d", i)))
		}(i)
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent generations = %d, want 1", maxActive)
	}

	history := f.store.Get("s1")
	if len(history) != 16 {
		t.Fatalf("history length = %d, want 16", len(history))
	}
	for i := 0; i < len(history); i += 2 {
		u, m := history[i], history[i+1]
		if u.Role != session.RoleUser || m.Role != session.RoleModel || m.Text != "reply to "+u.Text {
			t.Errorf("turns %d/%d interleaved: %+v %+v", i, i+1, u, m)
		}
	}
}

func TestBusySession(t *testing.T) {
	f := newFixture(t, WithTurnWait(20*time.Millisecond))

	lease, err := f.store.Lock(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer lease.Unlock()

	res := f.agent.HandleTurn(context.Background(), "s1", TextInput("Hello"))
	if res.Err == nil || res.Err.Kind != KindBusy || res.Err.StatusCode != 409 {
		t.Fatalf("result = %+v", res)
	}
	if !errors.Is(res.Err, session.ErrSessionBusy) {
		t.Errorf("err = %v, want ErrSessionBusy", res.Err)
	}
	if f.llm.CallCount() != 0 || len(f.store.Get("s1")) != 0 {
		t.Error("busy turn touched providers or history")
	}
}
