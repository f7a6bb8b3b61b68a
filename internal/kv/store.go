// Package kv provides the local persistence layer for railchat: a flat
// key-value store holding UTF-8 JSON values. The UI never touches it
// directly; the session and guardrails stores write through it.
package kv

// Store is the persistence contract. An absent key is (nil, false, nil),
// never an error. Writes are last-writer-wins; there are no transactions.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// Well-known keys. One key for the session index, one per session for
// its message list, one for the guardrails configuration.
const (
	KeySessions   = "sessions"
	KeyGuardrails = "guardrails:config"
)

// SessionMessagesKey returns the key holding the message list for one session.
func SessionMessagesKey(sessionID string) string {
	return "session:" + sessionID + ":messages"
}
