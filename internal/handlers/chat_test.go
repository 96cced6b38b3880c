package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatrelay/internal/conversation"
	"chatrelay/internal/models"
)

type stubGenerator struct {
	reply string
	err   error

	gotPrompt string
	calls     int
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls++
	g.gotPrompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func newChatRequest(t *testing.T, body interface{}) *http.Request {
	t.Helper()
	jsonBody, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.1:4242"
	return req
}

func TestChatSuccess(t *testing.T) {
	store := conversation.NewStore(time.Hour)
	gen := &stubGenerator{reply: "User: hello\nBot: hi, how can I help?"}
	h := NewChatHandler(store, gen, 0)

	rr := httptest.NewRecorder()
	h.Chat(rr, newChatRequest(t, models.ChatRequest{Inputs: "hello", SessionID: "s1"}))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp models.ChatResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Reply != "hi, how can I help?" {
		t.Errorf("Expected extracted reply, got %q", resp.Reply)
	}
	if resp.SessionID != "s1" {
		t.Errorf("Expected session s1, got %q", resp.SessionID)
	}

	if gen.gotPrompt != "User: hello\nBot:" {
		t.Errorf("Backend got wrong context: %q", gen.gotPrompt)
	}

	turns := store.History("s1")
	if len(turns) != 2 {
		t.Fatalf("Expected 2 turns recorded, got %d", len(turns))
	}
	if turns[0].Role != models.RoleUser || turns[1].Role != models.RoleBot {
		t.Errorf("Wrong turn roles: %v", turns)
	}
	if turns[1].Text != "hi, how can I help?" {
		t.Errorf("Bot turn should hold the extracted reply, got %q", turns[1].Text)
	}
}

func TestChatAccumulatesContext(t *testing.T) {
	store := conversation.NewStore(time.Hour)
	gen := &stubGenerator{reply: "Bot: sure"}
	h := NewChatHandler(store, gen, 0)

	for _, msg := range []string{"first", "second"} {
		rr := httptest.NewRecorder()
		h.Chat(rr, newChatRequest(t, models.ChatRequest{Inputs: msg, SessionID: "s1"}))
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
	}

	want := "User: first\nBot: sure\nUser: second\nBot:"
	if gen.gotPrompt != want {
		t.Errorf("Expected accumulated context %q, got %q", want, gen.gotPrompt)
	}
}

func TestChatInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"missing inputs", map[string]string{}},
		{"empty inputs", models.ChatRequest{Inputs: ""}},
		{"blank inputs", models.ChatRequest{Inputs: "   "}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := conversation.NewStore(time.Hour)
			gen := &stubGenerator{reply: "Bot: nope"}
			h := NewChatHandler(store, gen, 0)

			rr := httptest.NewRecorder()
			h.Chat(rr, newChatRequest(t, tc.body))

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", rr.Code)
			}

			var resp models.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Error != "Invalid input data" {
				t.Errorf("Expected fixed reason string, got %q", resp.Error)
			}

			if gen.calls != 0 {
				t.Error("Backend must not be invoked for invalid input")
			}
			if len(store.History("10.0.0.1")) != 0 {
				t.Error("Invalid input must not mutate the transcript")
			}
		})
	}
}

func TestChatMalformedBody(t *testing.T) {
	store := conversation.NewStore(time.Hour)
	h := NewChatHandler(store, &stubGenerator{}, 0)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("not json"))
	req.RemoteAddr = "10.0.0.1:4242"
	rr := httptest.NewRecorder()
	h.Chat(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rr.Code)
	}
}

func TestChatBackendFailureRollsBack(t *testing.T) {
	store := conversation.NewStore(time.Hour)
	gen := &stubGenerator{err: errors.New("upstream exploded")}
	h := NewChatHandler(store, gen, 0)

	rr := httptest.NewRecorder()
	h.Chat(rr, newChatRequest(t, models.ChatRequest{Inputs: "hello", SessionID: "s1"}))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rr.Code)
	}

	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "Failed to generate response" {
		t.Errorf("Expected fixed reason string, got %q", resp.Error)
	}
	if strings.Contains(rr.Body.String(), "exploded") {
		t.Error("Internal error detail leaked to the client")
	}

	if len(store.History("s1")) != 0 {
		t.Error("Failed exchange must roll back the user turn")
	}
}

func TestChatSessionFallsBackToClientAddress(t *testing.T) {
	store := conversation.NewStore(time.Hour)
	gen := &stubGenerator{reply: "Bot: hey"}
	h := NewChatHandler(store, gen, 0)

	rr := httptest.NewRecorder()
	h.Chat(rr, newChatRequest(t, models.ChatRequest{Inputs: "hello"}))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	var resp models.ChatResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.SessionID != "10.0.0.1" {
		t.Errorf("Expected client address as session key, got %q", resp.SessionID)
	}
	if len(store.History("10.0.0.1")) != 2 {
		t.Error("Expected exchange recorded under the client address")
	}
}

func TestChatContextWindow(t *testing.T) {
	store := conversation.NewStore(time.Hour)
	gen := &stubGenerator{reply: "Bot: ok"}
	h := NewChatHandler(store, gen, 3)

	for _, msg := range []string{"one", "two", "three"} {
		rr := httptest.NewRecorder()
		h.Chat(rr, newChatRequest(t, models.ChatRequest{Inputs: msg, SessionID: "s1"}))
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
	}

	// Transcript holds all six turns, the rendered prompt only the last three.
	if len(store.History("s1")) != 6 {
		t.Errorf("Expected full transcript, got %d turns", len(store.History("s1")))
	}
	want := "Bot: ok\nUser: three\nBot:"
	if !strings.HasSuffix(gen.gotPrompt, want) || strings.Contains(gen.gotPrompt, "one") {
		t.Errorf("Expected windowed context, got %q", gen.gotPrompt)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	store := conversation.NewStore(time.Hour)
	store.Append("s1", models.RoleUser, "hello")
	store.Append("s1", models.RoleBot, "hi")
	h := NewChatHandler(store, &stubGenerator{}, 0)

	req := httptest.NewRequest(http.MethodGet, "/chat/history?session_id=s1", nil)
	req.RemoteAddr = "10.0.0.1:4242"
	rr := httptest.NewRecorder()
	h.History(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	var resp models.HistoryResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID != "s1" || len(resp.Turns) != 2 {
		t.Errorf("Unexpected history response: %+v", resp)
	}
}

func TestCloseSessionEndpoint(t *testing.T) {
	store := conversation.NewStore(time.Hour)
	store.Append("s1", models.RoleUser, "hello")
	h := NewChatHandler(store, &stubGenerator{}, 0)

	req := httptest.NewRequest(http.MethodDelete, "/chat/history?session_id=s1", nil)
	req.RemoteAddr = "10.0.0.1:4242"
	rr := httptest.NewRecorder()
	h.CloseSession(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rr.Code)
	}
	if len(store.History("s1")) != 0 {
		t.Error("Expected session gone after close")
	}
}
