package conversation

import (
	"strings"
	"sync"
	"time"

	"chatrelay/internal/models"
)

// ContextMarker terminates the rendered context so the model generates
// the next bot turn. The same marker is used to split the reply out of
// the generated text.
const ContextMarker = "Bot:"

type session struct {
	turns    []models.Turn
	lastSeen time.Time
}

// Store holds per-session transcripts in memory. Sessions are created on
// first append and evicted after sitting idle longer than ttl.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
}

func NewStore(ttl time.Duration) *Store {
	s := &Store{
		sessions: make(map[string]*session),
		ttl:      ttl,
	}

	// Cleanup goroutine
	go func() {
		for {
			time.Sleep(ttl)
			s.evictIdle()
		}
	}()

	return s
}

func (s *Store) evictIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if time.Since(sess.lastSeen) > s.ttl {
			delete(s.sessions, id)
		}
	}
}

// Append adds a turn to the session's transcript, creating the session
// if this is its first turn.
func (s *Store) Append(sessionID, role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{}
		s.sessions[sessionID] = sess
	}
	sess.turns = append(sess.turns, models.Turn{
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	})
	sess.lastSeen = time.Now()
}

// RemoveLastUserTurn drops the most recent turn of the session if it is a
// user turn. Used to roll back an exchange whose generation failed.
func (s *Store) RemoveLastUserTurn(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || len(sess.turns) == 0 {
		return
	}
	if sess.turns[len(sess.turns)-1].Role == models.RoleUser {
		sess.turns = sess.turns[:len(sess.turns)-1]
	}
}

// RenderContext serializes the session transcript as alternating
// "User: ..." / "Bot: ..." lines followed by a trailing marker, capped to
// the most recent maxTurns turns (0 means no cap).
func (s *Store) RenderContext(sessionID string, maxTurns int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var turns []models.Turn
	if sess, ok := s.sessions[sessionID]; ok {
		turns = sess.turns
		if maxTurns > 0 && len(turns) > maxTurns {
			turns = turns[len(turns)-maxTurns:]
		}
	}

	var b strings.Builder
	for _, t := range turns {
		if t.Role == models.RoleUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Bot: ")
		}
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	b.WriteString(ContextMarker)
	return b.String()
}

// History returns a copy of the session's transcript, empty if the
// session does not exist.
func (s *Store) History(sessionID string) []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return []models.Turn{}
	}
	out := make([]models.Turn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// Close removes the session and its transcript.
func (s *Store) Close(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
