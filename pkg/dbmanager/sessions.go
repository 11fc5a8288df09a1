package dbmanager

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConnectionSession is a token-addressable lease over one connection id.
// All mutation goes through SessionStore accessors; nothing else touches
// the fields once the session is stored.
type ConnectionSession struct {
	Token          string
	ConnectionID   string
	ReadOnlyStatus string
	CreatedAt      time.Time
	LastActivityAt time.Time

	cachedSchema        *SchemaInfo
	cachedKnowledgeBase []KnowledgeBaseEntry
}

// ChatMessage is one entry of a chat session's ordered history.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessageView is the downstream shape of a message: role and content
// only, timestamps stripped.
type ChatMessageView struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatSession is a conversation thread tied to a parent ConnectionSession by
// token only. It never owns the pool and dies with its parent.
type ChatSession struct {
	Token       string
	ParentToken string
	IsFollowUp  bool
	History     []ChatMessage
}

// SessionStore owns the two token namespaces: connection sessions and chat
// sessions. Both maps live behind accessors so the backing store can change
// without touching callers.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*ConnectionSession
	chats    map[string]*ChatSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*ConnectionSession),
		chats:    make(map[string]*ChatSession),
	}
}

// CreateSession mints a session token for an initialized connection.
func (s *SessionStore) CreateSession(connectionID, readOnlyStatus string) *ConnectionSession {
	now := time.Now()
	session := &ConnectionSession{
		Token:          uuid.NewString(),
		ConnectionID:   connectionID,
		ReadOnlyStatus: readOnlyStatus,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	s.mu.Lock()
	s.sessions[session.Token] = session
	s.mu.Unlock()
	return session
}

// Resolve maps a session token to its connection id. With touch set the idle
// clock is extended; passive status checks pass touch=false so they never
// keep a dead session alive. This is the load-bearing distinction for idle
// detection.
func (s *SessionStore) Resolve(token string, touch bool) (string, bool) {
	if !touch {
		s.mu.RLock()
		defer s.mu.RUnlock()
		session, exists := s.sessions[token]
		if !exists {
			return "", false
		}
		return session.ConnectionID, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	session, exists := s.sessions[token]
	if !exists {
		return "", false
	}
	// Activity timestamps are monotonically non-decreasing within a session.
	if now := time.Now(); now.After(session.LastActivityAt) {
		session.LastActivityAt = now
	}
	return session.ConnectionID, true
}

// Touch extends the idle clock of a session if it exists.
func (s *SessionStore) Touch(token string) {
	s.Resolve(token, true)
}

// DeleteSession removes a session and cascades to every chat session bound
// to it. Returns the connection id the session held.
func (s *SessionStore) DeleteSession(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[token]
	if !exists {
		return "", false
	}
	delete(s.sessions, token)

	for chatToken, chat := range s.chats {
		if chat.ParentToken == token {
			delete(s.chats, chatToken)
		}
	}
	return session.ConnectionID, true
}

// IdleSessions returns the tokens of sessions whose inactivity exceeds the
// timeout, computed against a snapshot under the read lock.
func (s *SessionStore) IdleSessions(timeout time.Duration) []string {
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var idle []string
	for token, session := range s.sessions {
		if now.Sub(session.LastActivityAt) > timeout {
			idle = append(idle, token)
		}
	}
	return idle
}

// SessionCount reports the number of live connection sessions.
func (s *SessionStore) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SessionsForConnection counts the live sessions bound to a connection id.
// The pool for an id stays open while this is non-zero.
func (s *SessionStore) SessionsForConnection(connectionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, session := range s.sessions {
		if session.ConnectionID == connectionID {
			count++
		}
	}
	return count
}

// CacheSchema stores the introspected schema on a session. Set once, read
// many: a second write is ignored so concurrent initializers cannot clobber
// each other.
func (s *SessionStore) CacheSchema(token string, schema *SchemaInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, exists := s.sessions[token]; exists && session.cachedSchema == nil {
		session.cachedSchema = schema
	}
}

// ReplaceCachedSchema overwrites the schema cached on a session, bypassing
// the set-once rule. Only an explicit refresh goes through here.
func (s *SessionStore) ReplaceCachedSchema(token string, schema *SchemaInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, exists := s.sessions[token]; exists {
		session.cachedSchema = schema
	}
}

// CachedSchema returns the schema cached on a session, if any.
func (s *SessionStore) CachedSchema(token string) (*SchemaInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[token]
	if !exists || session.cachedSchema == nil {
		return nil, false
	}
	return session.cachedSchema, true
}

// CacheKnowledgeBase stores knowledge-base entries on a session, set once.
func (s *SessionStore) CacheKnowledgeBase(token string, entries []KnowledgeBaseEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, exists := s.sessions[token]; exists && session.cachedKnowledgeBase == nil {
		session.cachedKnowledgeBase = entries
	}
}

// CachedKnowledgeBase returns the knowledge-base entries cached on a session.
func (s *SessionStore) CachedKnowledgeBase(token string) ([]KnowledgeBaseEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[token]
	if !exists || session.cachedKnowledgeBase == nil {
		return nil, false
	}
	return session.cachedKnowledgeBase, true
}

// CreateChat opens a chat session against a live connection session.
func (s *SessionStore) CreateChat(parentToken string) (*ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[parentToken]; !exists {
		return nil, fmt.Errorf("session not found: %s", parentToken)
	}

	chat := &ChatSession{
		Token:       uuid.NewString(),
		ParentToken: parentToken,
	}
	s.chats[chat.Token] = chat
	return chat, nil
}

// AppendMessage adds a timestamped message to a chat's ordered history and
// marks the thread as a follow-up from the second message on.
func (s *SessionStore) AppendMessage(chatToken, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, exists := s.chats[chatToken]
	if !exists {
		return fmt.Errorf("chat session not found: %s", chatToken)
	}

	chat.History = append(chat.History, ChatMessage{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	chat.IsFollowUp = len(chat.History) > 1
	return nil
}

// History returns the full ordered history of a chat, role and content only.
func (s *SessionStore) History(chatToken string) ([]ChatMessageView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, exists := s.chats[chatToken]
	if !exists {
		return nil, fmt.Errorf("chat session not found: %s", chatToken)
	}

	views := make([]ChatMessageView, len(chat.History))
	for i, msg := range chat.History {
		views[i] = ChatMessageView{Role: msg.Role, Content: msg.Content}
	}
	return views, nil
}

// ClearHistory wipes a chat's history and follow-up flag but keeps the token.
func (s *SessionStore) ClearHistory(chatToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, exists := s.chats[chatToken]
	if !exists {
		return fmt.Errorf("chat session not found: %s", chatToken)
	}
	chat.History = nil
	chat.IsFollowUp = false
	return nil
}

// ResetChat deletes a chat token and mints a fresh one on the same parent
// connection session. The analysis pipeline uses this to start over without
// losing the connection binding.
func (s *SessionStore) ResetChat(chatToken string) (*ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.chats[chatToken]
	if !exists {
		return nil, fmt.Errorf("chat session not found: %s", chatToken)
	}
	delete(s.chats, chatToken)

	fresh := &ChatSession{
		Token:       uuid.NewString(),
		ParentToken: old.ParentToken,
	}
	s.chats[fresh.Token] = fresh
	return fresh, nil
}

// ChatCount reports the number of live chat sessions.
func (s *SessionStore) ChatCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chats)
}
