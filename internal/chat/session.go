package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/portailagence/knowledgeflow/internal/models"
)

// FallbackMessage is the fixed, user-safe text appended to the transcript
// when a query fails for any reason. The underlying cause is never shown to
// the end user.
const FallbackMessage = "Une erreur technique est survenue, veuillez réessayer plus tard."

// ErrRequestInFlight reports a Submit while a previous request is still
// unresolved. The UI keeps the input disabled while pending, so hitting this
// means the caller bypassed the control.
var ErrRequestInFlight = errors.New("a chat request is already in flight")

// asker abstracts the gateway client.
type asker interface {
	Ask(ctx context.Context, query string) (*models.ChatResponse, error)
}

// Session is the ephemeral state of one chat surface: an append-only
// transcript and at most one in-flight request. It lives for the lifetime of
// the surface and is never persisted.
type Session struct {
	mu         sync.Mutex
	gateway    asker
	isOpen     bool
	pending    bool
	transcript []models.ChatMessage
}

// NewSession creates a closed session over the given gateway.
func NewSession(gateway asker) *Session {
	return &Session{gateway: gateway}
}

// Open marks the chat surface visible.
func (s *Session) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isOpen = true
}

// Close hides the chat surface. The transcript is kept.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isOpen = false
}

// IsOpen reports whether the surface is visible.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOpen
}

// Pending reports whether a request is in flight (the input control is
// disabled while true).
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Transcript returns a copy of the messages in append order.
func (s *Session) Transcript() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Submit sends one question through the gateway. An empty or whitespace-only
// query is a no-op: no network call, transcript unchanged, nil error. The
// user message is appended immediately; once the request resolves, exactly
// one bot message follows it — the answer on success, FallbackMessage on any
// failure. A failed query is not an error to the caller.
func (s *Session) Submit(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return ErrRequestInFlight
	}
	s.pending = true
	s.append(models.RoleUser, query, nil)
	s.mu.Unlock()

	resp, err := s.gateway.Ask(ctx, query)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false

	if err != nil {
		slog.Warn("Chat query failed, showing fallback.", "error", err)
		s.append(models.RoleBot, FallbackMessage, nil)
		return nil
	}
	s.append(models.RoleBot, resp.Answer, resp.Sources)
	return nil
}

// append adds one message; callers must hold s.mu.
func (s *Session) append(role models.Role, content string, sources []models.Citation) {
	s.transcript = append(s.transcript, models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Sources:   sources,
		CreatedAt: time.Now(),
	})
}
