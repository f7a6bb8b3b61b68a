package session

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jask/railchat/internal/kv"
)

const (
	// DefaultTitle is the placeholder title a fresh session carries until
	// the first user message names it.
	DefaultTitle = "New chat"

	// titleMax caps titles derived from the first user message.
	titleMax = 50
)

// MessageUpdate is a partial-field merge applied by UpdateMessage. Nil
// pointers leave the corresponding field untouched.
type MessageUpdate struct {
	Content        *string
	Status         *Status
	TraceID        *string
	RailEvents     []RailEvent
	ToolCalls      []ToolCall
	GeneratedRails *GeneratedRails
}

// Store owns the Session collection and, per session, its ordered message
// list. Messages live in a single arena slice; an index maps session id to
// ordered arena positions, so cascade-delete is one index removal. Every
// mutation write-through persists before returning; persistence failures
// are logged and absorbed, never surfaced to callers.
type Store struct {
	mu sync.Mutex

	store kv.Store
	log   *zap.Logger
	now   func() time.Time

	sessions  []Session
	arena     []Message
	index     map[string][]int // session id -> ordered arena indices
	loaded    map[string]bool  // session id -> messages pulled from kv
	currentID string
}

// NewStore builds a Store over the given persistence adapter. Call
// LoadSessions before use on a cold start.
func NewStore(store kv.Store, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		store:  store,
		log:    log,
		now:    time.Now,
		index:  make(map[string][]int),
		loaded: make(map[string]bool),
	}
}

// LoadSessions populates the store from the persistence adapter. A missing
// or malformed index is treated as empty. If at least one session exists
// and none is current, the first in stored order becomes current and its
// messages are loaded.
func (s *Store) LoadSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok, err := s.store.Get(kv.KeySessions)
	if err != nil {
		s.log.Warn("session index read failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	var sessions []Session
	if err := json.Unmarshal(raw, &sessions); err != nil {
		s.log.Warn("session index malformed, starting empty", zap.Error(err))
		return
	}
	s.sessions = sessions
	if s.currentID == "" && len(s.sessions) > 0 {
		s.currentID = s.sessions[0].ID
		s.loadMessagesLocked(s.currentID)
	}
}

// CreateSession allocates a new session with the default title, makes it
// current, and persists immediately.
func (s *Store) CreateSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := Session{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions = append(s.sessions, sess)
	s.index[sess.ID] = nil
	s.loaded[sess.ID] = true
	s.currentID = sess.ID

	s.persistIndexLocked()
	s.persistMessagesLocked(sess.ID)
	return sess.ID
}

// EnsureSession creates a session when none exist and returns the current
// session id. Used at bootstrap so the composer always has a target.
func (s *Store) EnsureSession() string {
	s.mu.Lock()
	empty := len(s.sessions) == 0
	s.mu.Unlock()
	if empty {
		return s.CreateSession()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentID == "" {
		s.currentID = s.sessions[0].ID
		s.loadMessagesLocked(s.currentID)
	}
	return s.currentID
}

// DeleteSession removes the session and its entire message list. If it was
// current, the next remaining session (in existing order) becomes current,
// or none.
func (s *Store) DeleteSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := -1
	for i, sess := range s.sessions {
		if sess.ID == sessionID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return
	}
	s.sessions = append(s.sessions[:pos], s.sessions[pos+1:]...)
	delete(s.index, sessionID)
	delete(s.loaded, sessionID)

	if s.currentID == sessionID {
		s.currentID = ""
		if len(s.sessions) > 0 {
			next := pos
			if next >= len(s.sessions) {
				next = len(s.sessions) - 1
			}
			s.currentID = s.sessions[next].ID
			s.loadMessagesLocked(s.currentID)
		}
	}

	s.persistIndexLocked()
	if err := s.store.Delete(kv.SessionMessagesKey(sessionID)); err != nil {
		s.log.Warn("session messages delete failed", zap.String("session", sessionID), zap.Error(err))
	}
}

// RenameSession updates the title and UpdatedAt. A title that is empty
// after trimming is a no-op.
func (s *Store) RenameSession(sessionID, title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionLocked(sessionID)
	if sess == nil {
		return
	}
	sess.Title = title
	sess.UpdatedAt = s.now()
	s.persistIndexLocked()
}

// SetCurrentSession changes focus. An empty id clears the selection.
// The target session's messages are loaded lazily on first focus.
func (s *Store) SetCurrentSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID == "" {
		s.currentID = ""
		return
	}
	if s.sessionLocked(sessionID) == nil {
		return
	}
	s.currentID = sessionID
	s.loadMessagesLocked(sessionID)
}

// AddMessage appends to the session's message list, bumping MessageCount
// and UpdatedAt. The first message of a session, when it is a user
// message and the session still carries the default title, derives the
// title from its content. Later messages never touch the title, so a
// session renamed to the default placeholder keeps it.
func (s *Store) AddMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionLocked(msg.SessionID)
	if sess == nil {
		return
	}
	s.loadMessagesLocked(msg.SessionID)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	first := len(s.index[msg.SessionID]) == 0

	s.arena = append(s.arena, msg)
	s.index[msg.SessionID] = append(s.index[msg.SessionID], len(s.arena)-1)

	sess.MessageCount = len(s.index[msg.SessionID])
	sess.UpdatedAt = s.now()

	if first && msg.Role == RoleUser && sess.Title == DefaultTitle {
		sess.Title = deriveTitle(msg.Content)
	}

	s.persistIndexLocked()
	s.persistMessagesLocked(msg.SessionID)
}

// UpdateMessage merges upd into the matching message. It never fails:
// an unknown message id is a no-op, and so is any update targeting a
// message already in a terminal status — terminal messages are immutable,
// so whichever of the response and cancellation handlers loses their
// race is silently dropped here.
func (s *Store) UpdateMessage(sessionID, messageID string, upd MessageUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadMessagesLocked(sessionID)
	var msg *Message
	for _, i := range s.index[sessionID] {
		if s.arena[i].ID == messageID {
			msg = &s.arena[i]
			break
		}
	}
	if msg == nil {
		return
	}
	if msg.Status.Terminal() {
		return
	}

	if upd.Content != nil {
		msg.Content = *upd.Content
	}
	if upd.Status != nil {
		msg.Status = *upd.Status
	}
	if upd.TraceID != nil {
		msg.TraceID = *upd.TraceID
	}
	if upd.RailEvents != nil {
		msg.RailEvents = upd.RailEvents
	}
	if upd.ToolCalls != nil {
		msg.ToolCalls = upd.ToolCalls
	}
	if upd.GeneratedRails != nil {
		msg.GeneratedRails = upd.GeneratedRails
	}

	sess := s.sessionLocked(sessionID)
	if sess != nil {
		sess.UpdatedAt = s.now()
		s.persistIndexLocked()
	}
	s.persistMessagesLocked(sessionID)
}

// CurrentMessages returns the ordered message list of the current session,
// empty when no session is current.
func (s *Store) CurrentMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentID == "" {
		return nil
	}
	return s.messagesLocked(s.currentID)
}

// Messages returns the ordered message list of one session.
func (s *Store) Messages(sessionID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadMessagesLocked(sessionID)
	return s.messagesLocked(sessionID)
}

// Sessions returns the session list in stored order.
func (s *Store) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// CurrentSessionID returns the id of the current session, empty if none.
func (s *Store) CurrentSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Session returns a copy of the session with the given id.
func (s *Store) Session(sessionID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionLocked(sessionID)
	if sess == nil {
		return Session{}, false
	}
	return *sess, true
}

// ---------------------------------------------------------------------------
// Internals (callers hold s.mu)
// ---------------------------------------------------------------------------

func (s *Store) sessionLocked(sessionID string) *Session {
	for i := range s.sessions {
		if s.sessions[i].ID == sessionID {
			return &s.sessions[i]
		}
	}
	return nil
}

func (s *Store) messagesLocked(sessionID string) []Message {
	idx := s.index[sessionID]
	out := make([]Message, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.arena[i])
	}
	return out
}

// loadMessagesLocked pulls a session's message list from the adapter into
// the arena, once. A missing or malformed value is an empty list.
func (s *Store) loadMessagesLocked(sessionID string) {
	if s.loaded[sessionID] {
		return
	}
	s.loaded[sessionID] = true

	raw, ok, err := s.store.Get(kv.SessionMessagesKey(sessionID))
	if err != nil {
		s.log.Warn("message list read failed", zap.String("session", sessionID), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		s.log.Warn("message list malformed, starting empty", zap.String("session", sessionID), zap.Error(err))
		return
	}
	for _, m := range msgs {
		s.arena = append(s.arena, m)
		s.index[sessionID] = append(s.index[sessionID], len(s.arena)-1)
	}
	if sess := s.sessionLocked(sessionID); sess != nil && sess.MessageCount != len(msgs) {
		sess.MessageCount = len(msgs)
	}
}

func (s *Store) persistIndexLocked() {
	raw, err := json.Marshal(s.sessions)
	if err != nil {
		s.log.Warn("session index marshal failed", zap.Error(err))
		return
	}
	if err := s.store.Set(kv.KeySessions, raw); err != nil {
		s.log.Warn("session index write failed", zap.Error(err))
	}
}

func (s *Store) persistMessagesLocked(sessionID string) {
	raw, err := json.Marshal(s.messagesLocked(sessionID))
	if err != nil {
		s.log.Warn("message list marshal failed", zap.String("session", sessionID), zap.Error(err))
		return
	}
	if err := s.store.Set(kv.SessionMessagesKey(sessionID), raw); err != nil {
		s.log.Warn("message list write failed", zap.String("session", sessionID), zap.Error(err))
	}
}

func deriveTitle(content string) string {
	t := strings.TrimSpace(content)
	if t == "" {
		return DefaultTitle
	}
	runes := []rune(t)
	if len(runes) > titleMax {
		t = string(runes[:titleMax])
	}
	return t
}
