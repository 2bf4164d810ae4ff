package web

import (
	"io"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-barbie/pkg/conversation"
	"github.com/teslashibe/go-barbie/pkg/relay"
)

// Response field holding the user's words, per entry point.
const (
	keyUserTranscript = "user_transcript"
	keyUserText       = "user_text"
)

// ChatTextRequest is the body of POST /agent/chat_text/:session_id.
type ChatTextRequest struct {
	UserText string `json:"user_text"`
}

// handleChatAudio runs a turn from an uploaded recording.
func (s *Server) handleChatAudio(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")

	var audio []byte
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err == nil {
			audio, err = io.ReadAll(f)
			f.Close()
		}
		if err != nil {
			s.logger.Warn("reading upload failed", "session_id", sessionID, "error", err)
			audio = nil
		}
	}

	res := s.agent.HandleTurn(c.UserContext(), sessionID, conversation.AudioInput(audio))
	return c.JSON(turnResponse(res, keyUserTranscript))
}

// handleChatText runs a turn from typed text. A body that cannot be parsed
// is treated as empty text.
func (s *Server) handleChatText(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")

	var req ChatTextRequest
	if err := c.BodyParser(&req); err != nil {
		s.logger.Debug("invalid chat body", "session_id", sessionID, "error", err)
		req.UserText = ""
	}

	res := s.agent.HandleTurn(c.UserContext(), sessionID, conversation.TextInput(req.UserText))
	return c.JSON(turnResponse(res, keyUserText))
}

// handleResetSession forgets a session's history.
func (s *Server) handleResetSession(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")
	existed := s.store.Delete(sessionID)
	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"deleted":    existed,
	})
}

// handleHealth reports liveness and basic state.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"version":  s.config.Version,
		"sessions": s.store.Len(),
		"mode":     s.agent.Mode(),
	})
}

// handleChatWS streams one turn per client message.
func (s *Server) handleChatWS(c *websocket.Conn) {
	s.relay.Serve(s.ctx, c.Params("session_id"), c, relay.ModeLoop)
}

// handleAudioStreamWS streams the latest reply once, then closes.
func (s *Server) handleAudioStreamWS(c *websocket.Conn) {
	s.relay.Serve(s.ctx, c.Params("session_id"), c, relay.ModeSingle)
}

// turnResponse renders a TurnResult in the client's JSON shape. The HTTP
// status is always 200; failures carry status_code in the body.
func turnResponse(res conversation.TurnResult, userKey string) fiber.Map {
	m := fiber.Map{
		"session_id":        res.SessionID,
		"llm_response_text": res.ModelText,
	}
	if res.UserText != "" {
		m[userKey] = res.UserText
	} else {
		m[userKey] = nil
	}

	if !res.OK() {
		m["llm_response_audio_url"] = res.AudioURL
		m["message"] = "❌ Error: " + res.Err.Detail
		m["status_code"] = res.Err.StatusCode
		return m
	}

	if !res.StreamPending {
		m["llm_response_audio_url"] = res.AudioURL
	}
	m["message"] = successMessage(res)
	return m
}

func successMessage(res conversation.TurnResult) string {
	msg := "✅ Agent chat successful"
	if res.Input == conversation.InputText {
		msg += " (text input)"
	}
	if res.StreamPending {
		return msg + ". Client should initiate WebSocket for audio streaming."
	}
	return msg + "."
}
