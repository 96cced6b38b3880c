package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"chatrelay/internal/conversation"
	"chatrelay/internal/metrics"
	"chatrelay/internal/middleware"
	"chatrelay/internal/models"
	"chatrelay/internal/services"
)

// generator produces text from a rendered conversation context.
type generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type ChatHandler struct {
	conversations *conversation.Store
	inference     generator
	maxTurns      int
}

func NewChatHandler(conversations *conversation.Store, inference generator, maxTurns int) *ChatHandler {
	return &ChatHandler{
		conversations: conversations,
		inference:     inference,
		maxTurns:      maxTurns,
	}
}

// Chat handles one exchange: validate, append the user turn, send the
// windowed context to the backend, extract and record the reply.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.ChatRequests.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid input data"})
		return
	}

	if strings.TrimSpace(req.Inputs) == "" {
		metrics.ChatRequests.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid input data"})
		return
	}

	sessionID := h.sessionKey(r, req.SessionID)

	h.conversations.Append(sessionID, models.RoleUser, req.Inputs)
	prompt := h.conversations.RenderContext(sessionID, h.maxTurns)

	start := time.Now()
	generated, err := h.inference.Generate(r.Context(), prompt)
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		// The exchange failed, so the user turn it opened is rolled
		// back. The client sees only the fixed reason string.
		h.conversations.RemoveLastUserTurn(sessionID)
		log.Printf("ERROR: text generation failed for session %s: %v", sessionID, err)
		metrics.ChatRequests.WithLabelValues("inference_error").Inc()
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate response"})
		return
	}

	reply := services.ExtractReply(generated)
	h.conversations.Append(sessionID, models.RoleBot, reply)

	metrics.ChatRequests.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, models.ChatResponse{Reply: reply, SessionID: sessionID})
}

// History returns the transcript of a session.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := h.sessionKey(r, r.URL.Query().Get("session_id"))
	writeJSON(w, http.StatusOK, models.HistoryResponse{
		SessionID: sessionID,
		Turns:     h.conversations.History(sessionID),
	})
}

// CloseSession drops a session and its transcript.
func (h *ChatHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := h.sessionKey(r, r.URL.Query().Get("session_id"))
	h.conversations.Close(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// sessionKey prefers an explicit session ID and falls back to the client
// address, so clients that never send one keep a continuous
// conversation per host.
func (h *ChatHandler) sessionKey(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return middleware.ClientID(r)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
