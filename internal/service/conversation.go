// Package service owns the conversation log and brokers chat turns to the completion endpoint.
package service

import (
	"sync"

	"github.com/google/uuid"

	"github.com/capitalize-ai/traychat/internal/model"
	"github.com/capitalize-ai/traychat/pkg/metrics"
)

// DefaultPreamble is the system instruction that opens every session.
const DefaultPreamble = "Be precise and concise."

// ConversationService holds the ordered conversation log of the current session.
// All access goes through its methods; the log is never exposed by reference.
type ConversationService struct {
	preamble string

	mu        sync.Mutex
	turns     []model.Turn
	sessionID string
}

// NewConversationService creates an empty conversation. An empty preamble
// selects DefaultPreamble.
func NewConversationService(preamble string) *ConversationService {
	if preamble == "" {
		preamble = DefaultPreamble
	}
	return &ConversationService{
		preamble:  preamble,
		sessionID: newSessionID(),
	}
}

// Preamble returns the system instruction text.
func (s *ConversationService) Preamble() string {
	return s.preamble
}

// SessionID returns the id of the current session.
func (s *ConversationService) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// EnsurePreamble inserts the system turn if the log is empty.
func (s *ConversationService) EnsurePreamble() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensurePreambleLocked()
}

// AppendUser appends a user turn, inserting the preamble first if needed.
func (s *ConversationService) AppendUser(text string) model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(model.RoleUser, text)
}

// AppendAssistant appends an assistant turn, inserting the preamble first if needed.
func (s *ConversationService) AppendAssistant(text string) model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(model.RoleAssistant, text)
}

// Clear empties the log and starts a new session. The preamble is
// reinserted by the next append.
func (s *ConversationService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

// Snapshot returns a copy of the log.
func (s *ConversationService) Snapshot() []model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len returns the number of turns in the log.
func (s *ConversationService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Pending describes a turn that has been recorded and is awaiting a reply.
type Pending struct {
	SessionID string
	Preamble  *model.Turn // set when this call started the session
	User      model.Turn
	Snapshot  []model.Turn
}

// Begin performs, in one critical section, the optional clear, the preamble
// check, the user append and the snapshot the request is built from.
func (s *ConversationService) Begin(clearHistory bool, input string) Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	if clearHistory {
		s.clearLocked()
	}

	var p Pending
	if preamble, added := s.ensurePreambleLocked(); added {
		p.Preamble = &preamble
	}
	p.User = s.appendLocked(model.RoleUser, input)
	p.SessionID = s.sessionID
	p.Snapshot = s.snapshotLocked()
	return p
}

// Complete appends the assistant reply if the session that asked is still
// current. It reports false when the log was cleared in the meantime, in
// which case nothing is appended.
func (s *ConversationService) Complete(sessionID, text string) (model.Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID != s.sessionID {
		return model.Turn{}, false
	}
	return s.appendLocked(model.RoleAssistant, text), true
}

func (s *ConversationService) ensurePreambleLocked() (model.Turn, bool) {
	if len(s.turns) > 0 {
		return model.Turn{}, false
	}
	turn := model.NewTurn(model.RoleSystem, s.preamble)
	s.turns = append(s.turns, turn)
	metrics.TurnsTotal.WithLabelValues(string(model.RoleSystem)).Inc()
	metrics.ConversationLength.Set(float64(len(s.turns)))
	return turn, true
}

func (s *ConversationService) appendLocked(role model.Role, text string) model.Turn {
	s.ensurePreambleLocked()
	turn := model.NewTurn(role, text)
	s.turns = append(s.turns, turn)
	metrics.TurnsTotal.WithLabelValues(string(role)).Inc()
	metrics.ConversationLength.Set(float64(len(s.turns)))
	return turn
}

func (s *ConversationService) clearLocked() {
	s.turns = nil
	s.sessionID = newSessionID()
	metrics.ClearsTotal.Inc()
	metrics.ConversationLength.Set(0)
}

func (s *ConversationService) snapshotLocked() []model.Turn {
	out := make([]model.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func newSessionID() string {
	return uuid.Must(uuid.NewV7()).String()
}
