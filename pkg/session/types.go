// Copyright 2025 Certen Protocol
//
// Session types: the data model a compute-host node tracks per client
// conversation.

package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// Role identifies who authored a conversation Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one append-only entry in a session's conversation history.
type Message struct {
	Role        Role
	Content     string
	Timestamp   time.Time
	TokenCount  int
	ProofAnchor string // optional per-message proof reference, empty if none
}

// Config captures the per-session parameters fixed at creation time.
type Config struct {
	MaxTokens      int
	Temperature    float64
	TopP           float64
	TopK           int
	RepeatPenalty  float64
	MinP           float64
	Seed           int64
	StopSequences  []string
}

// VectorStore is the narrow, pluggable collaborator a session may attach
// for retrieval-augmented generation. The core treats it as opaque; no
// implementation is assumed (see SPEC_FULL.md's Open Questions decision on
// the embedding stub).
type VectorStore interface {
	Upsert(id string, vector []float32, metadata map[string]string) error
	Search(query []float32, topK int) ([]VectorMatch, error)
}

// VectorMatch is one result from a VectorStore.Search call.
type VectorMatch struct {
	ID       string
	Score    float32
	Metadata map[string]string
}

// Session is the live state for one client-addressed conversation.
//
// Session is single-writer: only the actor goroutine owned by the Store
// mutates it (see actor.go). Fields are otherwise safe to read only from
// that goroutine; external callers interact through Store methods or
// Session.Mutate, both of which marshal requests onto the actor's mailbox.
type Session struct {
	ID      string
	JobID   uint64
	ChainID uint64
	ModelID string // immutable once set, fixed from first prompt to session end

	ConversationHistory []Message
	VectorStore         VectorStore

	TokenCounter            uint64
	LastCheckpointedTokens  uint64
	CheckpointCursor        int
	CheckpointSequence      uint64

	EncryptionKey    *[32]byte // nil until an encrypted_session_init completes
	HandshakeAt      time.Time

	CreatedAt    time.Time
	LastActivity time.Time

	cancelFlag atomic.Bool

	mu sync.Mutex // guards fields mutated from outside the actor loop (LastActivity, cancelFlag is atomic)

	mailbox chan actorRequest
	done    chan struct{}
}

// SetCancel atomically requests cancellation of any in-flight generation.
func (s *Session) SetCancel(v bool) { s.cancelFlag.Store(v) }

// Cancelled reports whether cancellation has been requested.
func (s *Session) Cancelled() bool { return s.cancelFlag.Load() }

// touch updates LastActivity; called by the actor loop on every processed
// request.
func (s *Session) touch() {
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

// lastActivity returns LastActivity safely from the store's eviction sweep,
// which runs on a different goroutine than the session's own actor loop.
func (s *Session) lastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastActivity
}
