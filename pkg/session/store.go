// Copyright 2025 Certen Protocol
//
// Store owns the mapping from session id to live session state. Eviction
// order is tracked with a doubly-linked list plus map, the same shape as
// the teacher's in-memory LRU/index bookkeeping.

package session

import (
	"container/list"
	"log"
	"sync"
	"time"
)

var logger = log.New(log.Writer(), "[SessionStore] ", log.LstdFlags)

// OnEvict is invoked synchronously when End or EvictIdle removes a session
// from the store. The store never evicts for capacity (EnsureExists and
// Create return ErrCapacityExceeded instead), and Create's replace path
// does not call it. It runs with the session already detached from the
// store (so re-entrant Store calls for the same id are safe) and before
// the session's actor stops, so Session.Mutate still works inside it.
// cmd/node's callback runs the checkpoint publisher once more; checkpoints
// carry no session-state field, so that last one is not marked closed,
// and the callback does not remove the session's key from the session
// key store.
type OnEvict func(*Session)

// Store is the Session Store component (spec.md section 4.1).
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*list.Element // value type *Session
	lru         *list.List               // front = most recently used
	maxSessions int
	chains      map[uint64]bool
	onEvict     OnEvict
}

// NewStore constructs an empty Store. chains is the set of configured
// chain ids; a session whose chain_id is not a member is rejected at
// creation.
func NewStore(maxSessions int, chains map[uint64]bool, onEvict OnEvict) *Store {
	if onEvict == nil {
		onEvict = func(*Session) {}
	}
	return &Store{
		sessions:    make(map[string]*list.Element),
		lru:         list.New(),
		maxSessions: maxSessions,
		chains:      chains,
		onEvict:     onEvict,
	}
}

// CapacityCheck reports ErrCapacityExceeded if the store is full. Callers
// use this before Create; EnsureExists never needs it because an existing
// id always succeeds regardless of capacity.
func (st *Store) CapacityCheck() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.lru.Len() >= st.maxSessions {
		return ErrCapacityExceeded
	}
	return nil
}

// EnsureExists creates the session if absent, or returns the existing one
// without mutating it — the re-init path. This must succeed even when the
// store is at capacity, because the bug class it closes is a repeated
// handshake wiping history.
func (st *Store) EnsureExists(id string, cfg Config, chainID uint64) (existing *Session, created bool, err error) {
	st.mu.Lock()
	if elem, ok := st.sessions[id]; ok {
		st.lru.MoveToFront(elem)
		s := elem.Value.(*Session)
		st.mu.Unlock()
		return s, false, nil
	}

	if !st.chains[chainID] {
		st.mu.Unlock()
		return nil, false, ErrChainNotConfigured
	}
	if st.lru.Len() >= st.maxSessions {
		st.mu.Unlock()
		return nil, false, ErrCapacityExceeded
	}

	s := newSession(id, cfg, chainID)
	elem := st.lru.PushFront(s)
	st.sessions[id] = elem
	st.mu.Unlock()

	logger.Printf("session %s created (chain_id=%d)", id, chainID)
	return s, true, nil
}

// Create unconditionally replaces any existing session at id — the
// explicit "start new session" intent. If a prior session existed, its
// actor is stopped (without triggering onEvict; replace is not a
// graceful close) before the new one is installed.
func (st *Store) Create(id string, cfg Config, chainID uint64) (*Session, error) {
	if !st.chains[chainID] {
		return nil, ErrChainNotConfigured
	}

	st.mu.Lock()
	if elem, ok := st.sessions[id]; ok {
		old := elem.Value.(*Session)
		st.lru.Remove(elem)
		delete(st.sessions, id)
		st.mu.Unlock()
		old.stop()
		st.mu.Lock()
	} else if st.lru.Len() >= st.maxSessions {
		st.mu.Unlock()
		return nil, ErrCapacityExceeded
	}

	s := newSession(id, cfg, chainID)
	elem := st.lru.PushFront(s)
	st.sessions[id] = elem
	st.mu.Unlock()

	logger.Printf("session %s replaced (chain_id=%d)", id, chainID)
	return s, nil
}

// Get returns the live session for id, touching its LRU position.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	elem, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	st.lru.MoveToFront(elem)
	return elem.Value.(*Session), nil
}

// Update appends msg to the session's conversation history via its actor,
// preserving single-writer ordering.
func (st *Store) Update(id string, msg Message) error {
	s, err := st.Get(id)
	if err != nil {
		return err
	}
	s.submit(func(sess *Session) {
		sess.ConversationHistory = append(sess.ConversationHistory, msg)
		if msg.TokenCount > 0 {
			sess.TokenCounter += uint64(msg.TokenCount)
		}
	})
	return nil
}

// BindModel fixes a session's model_id on first prompt. Subsequent calls
// with a different model_id fail with ErrModelAlreadyBound.
func (st *Store) BindModel(id string, modelID string) error {
	s, err := st.Get(id)
	if err != nil {
		return err
	}
	var bindErr error
	s.submit(func(sess *Session) {
		if sess.ModelID == "" {
			sess.ModelID = modelID
			return
		}
		if sess.ModelID != modelID {
			bindErr = ErrModelAlreadyBound
		}
	})
	return bindErr
}

// End removes id from the store and runs onEvict for graceful close.
func (st *Store) End(id string) error {
	st.mu.Lock()
	elem, ok := st.sessions[id]
	if !ok {
		st.mu.Unlock()
		return ErrNotFound
	}
	st.lru.Remove(elem)
	delete(st.sessions, id)
	st.mu.Unlock()

	s := elem.Value.(*Session)
	st.onEvict(s)
	s.stop()
	logger.Printf("session %s ended", id)
	return nil
}

// EvictIdle removes every session whose last activity is older than
// idleTimeout (measured from now), oldest-first, running onEvict for each.
// Intended to be driven by a periodic sweep, not its own goroutine, so the
// caller controls cadence and can coordinate with other maintenance tasks.
func (st *Store) EvictIdle(now time.Time, idleTimeout time.Duration) []string {
	var evicted []string
	for {
		st.mu.Lock()
		back := st.lru.Back()
		if back == nil {
			st.mu.Unlock()
			break
		}
		s := back.Value.(*Session)
		if now.Sub(s.lastActivity()) < idleTimeout {
			st.mu.Unlock()
			break
		}
		st.lru.Remove(back)
		delete(st.sessions, s.ID)
		st.mu.Unlock()

		st.onEvict(s)
		s.stop()
		evicted = append(evicted, s.ID)
		logger.Printf("session %s evicted (idle)", s.ID)
	}
	return evicted
}

// Mutate runs fn with exclusive access to the session identified by id,
// the same single-writer guarantee Update and BindModel rely on. It is
// the extension point other components (Token Accountant, Checkpoint
// Publisher) use to read/modify session fields without reaching into
// unexported actor plumbing.
func (st *Store) Mutate(id string, fn func(*Session)) error {
	s, err := st.Get(id)
	if err != nil {
		return err
	}
	s.Mutate(fn)
	return nil
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lru.Len()
}

func newSession(id string, cfg Config, chainID uint64) *Session {
	_ = cfg // sampler defaults are consumed by the inference driver, not stored per-message here
	now := time.Now()
	s := &Session{
		ID:           id,
		ChainID:      chainID,
		CreatedAt:    now,
		LastActivity: now,
	}
	newSessionActor(s)
	return s
}
