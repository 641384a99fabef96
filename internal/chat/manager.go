// Package chat keeps per-session conversation history and routes chat
// messages to the explanation orchestrator.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
	"github.com/covid-rag/reinfection-advisor/internal/explain"
	"github.com/covid-rag/reinfection-advisor/internal/fallback"
	"github.com/covid-rag/reinfection-advisor/internal/query"
)

// DefaultSessionID is used when a caller does not name a session.
const DefaultSessionID = "default"

const (
	DefaultMaxSessions = 1000
	DefaultSessionTTL  = 24 * time.Hour
)

// Explainer is the orchestrator capability the manager delegates to.
type Explainer interface {
	Explain(ctx context.Context, patient domain.PatientContext) string
}

// Session is one conversation. Messages are only appended while mu is held.
type Session struct {
	ID string

	mu       sync.Mutex
	messages []domain.ChatMessage
}

func (s *Session) append(role, content string) {
	s.messages = append(s.messages, domain.ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// Options bound the session store.
type Options struct {
	MaxSessions int
	SessionTTL  time.Duration
}

// Manager owns every chat session. Sessions beyond MaxSessions are evicted
// least recently used first, and idle sessions expire after SessionTTL.
type Manager struct {
	explainer Explainer
	available func() bool

	mu       sync.Mutex
	sessions *expirable.LRU[string, *Session]
}

// NewManager returns a Manager. available reports whether the backend can
// serve chat at all; nil means always available.
func NewManager(explainer Explainer, available func() bool, opts Options) *Manager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if available == nil {
		available = func() bool { return true }
	}

	onEvict := func(id string, _ *Session) {
		slog.Debug("chat session evicted", slog.String("session_id", id))
	}

	return &Manager{
		explainer: explainer,
		available: available,
		sessions:  expirable.NewLRU[string, *Session](opts.MaxSessions, onEvict, opts.SessionTTL),
	}
}

// session returns the session for id, creating it on first use. Every call
// refreshes the session's expiry.
func (m *Manager) session(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions.Get(id)
	if !ok {
		s = &Session{ID: id}
	}
	m.sessions.Add(id, s)
	return s
}

// ProcessMessage records message in the session, answers it and records the
// answer. It always returns text.
func (m *Manager) ProcessMessage(ctx context.Context, message string, patient domain.PatientContext, sessionID string) string {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = DefaultSessionID
	}

	s := m.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.append(domain.RoleUser, message)

	var reply string
	if !m.available() {
		reply = fallback.ChatUnavailableNotice
	} else {
		reply = m.delegate(ctx, message, patient)
	}

	s.append(domain.RoleAssistant, reply)
	return reply
}

func (m *Manager) delegate(ctx context.Context, message string, patient domain.PatientContext) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("chat delegation failed", slog.Any("panic", r))
			reply = apology(fmt.Errorf("%v", r))
		}
	}()

	text := message
	if len(patient) > 0 && !strings.Contains(strings.ToLower(message), "question") {
		text = query.PatientSummary(patient) + message
	}

	answer := m.explainer.Explain(ctx, domain.PatientContext{"question": text})
	answer = strings.ReplaceAll(answer, explain.LiteratureMarker, "")
	return strings.TrimSpace(answer)
}

func apology(err error) string {
	return fmt.Sprintf("I encountered an error while retrieving information: %s. Please try rephrasing your question or ask something else.", err)
}

// History returns a copy of the session's messages. Reading history does
// not extend the session's lifetime.
func (m *Manager) History(sessionID string) ([]domain.ChatMessage, bool) {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = DefaultSessionID
	}

	m.mu.Lock()
	s, ok := m.sessions.Peek(sessionID)
	m.mu.Unlock()
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChatMessage(nil), s.messages...), true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}
