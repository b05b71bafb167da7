package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/warmline/warmline/internal/models"
)

// Conversation is the mutable per-contact session state. All mutation goes
// through ConversationStore so interleaved timer continuations never split a
// read-modify-write across a suspension point.
type Conversation struct {
	Address        string
	History        []models.Turn
	LastActivityAt time.Time
}

// ConversationStore owns every conversation of one warming session, plus the
// disabled-contact set and the single-slot pending-reply queue per contact.
// It is safe for concurrent use.
type ConversationStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	pending       map[string]string
	disabled      map[string]bool
}

// NewConversationStore creates an empty conversation store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]*Conversation),
		pending:       make(map[string]string),
		disabled:      make(map[string]bool),
	}
}

// Init creates an empty conversation for the address if none exists.
func (s *ConversationStore) Init(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initLocked(address)
}

func (s *ConversationStore) initLocked(address string) *Conversation {
	c, ok := s.conversations[address]
	if !ok {
		c = &Conversation{Address: address}
		s.conversations[address] = c
		slog.Debug("conversation created", "address", address)
	}
	return c
}

// AppendTurn records a turn for the address, lazily creating the conversation
// and updating its last-activity timestamp as one atomic operation.
func (s *ConversationStore) AppendTurn(address string, turn models.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.initLocked(address)
	c.History = append(c.History, turn)
	if turn.Timestamp.After(c.LastActivityAt) {
		c.LastActivityAt = turn.Timestamp
	}
}

// AppendTurnIfExists records a turn only when a conversation for the address
// is still present, and reports whether it did. Continuations completing after
// the session cleared its state must not resurrect a conversation.
func (s *ConversationStore) AppendTurnIfExists(address string, turn models.Turn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[address]
	if !ok {
		return false
	}
	c.History = append(c.History, turn)
	if turn.Timestamp.After(c.LastActivityAt) {
		c.LastActivityAt = turn.Timestamp
	}
	return true
}

// HasTurn reports whether an identical (text, direction) turn is already
// recorded. Used when draining the pending queue to avoid double-recording a
// message that also arrived through the normal inbound path.
func (s *ConversationStore) HasTurn(address, text string, direction models.Direction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[address]
	if !ok {
		return false
	}
	for _, t := range c.History {
		if t.Direction == direction && t.Text == text {
			return true
		}
	}
	return false
}

// Exists reports whether a conversation exists for the address.
func (s *ConversationStore) Exists(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conversations[address]
	return ok
}

// History returns a copy of the conversation history for the address.
func (s *ConversationStore) History(address string) []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[address]
	if !ok {
		return nil
	}
	out := make([]models.Turn, len(c.History))
	copy(out, c.History)
	return out
}

// ActiveAddresses returns the addresses that currently have a conversation.
func (s *ConversationStore) ActiveAddresses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.conversations))
	for addr := range s.conversations {
		out = append(out, addr)
	}
	return out
}

// Clear removes every conversation and pending entry. The disabled set
// survives: enabling/disabling a contact is contact management, not session
// state.
func (s *ConversationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = make(map[string]*Conversation)
	s.pending = make(map[string]string)
	slog.Debug("conversation store cleared")
}

// SetPending stores the latest inbound text for a disabled contact,
// overwriting any earlier entry. Only the most recent message matters.
func (s *ConversationStore) SetPending(address, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[address] = text
}

// TakePending removes and returns the pending entry for the address.
func (s *ConversationStore) TakePending(address string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.pending[address]
	if ok {
		delete(s.pending, address)
	}
	return text, ok
}

// Disable marks the contact as disabled; inbound messages will be queued
// instead of replied to.
func (s *ConversationStore) Disable(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled[address] = true
}

// Enable clears the disabled flag for the contact.
func (s *ConversationStore) Enable(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.disabled, address)
}

// IsDisabled reports whether the contact is currently disabled.
func (s *ConversationStore) IsDisabled(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled[address]
}
