// Copyright 2025 Certen Protocol

package session

import (
	"testing"
	"time"
)

func testChains() map[uint64]bool {
	return map[uint64]bool{84532: true, 5611: true}
}

func TestEnsureExistsIdempotent(t *testing.T) {
	st := NewStore(4, testChains(), nil)

	s1, created1, err := st.EnsureExists("s1", Config{}, 84532)
	if err != nil || !created1 {
		t.Fatalf("first ensure_exists: got created=%v err=%v", created1, err)
	}
	if err := st.Update("s1", Message{Role: RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	s2, created2, err := st.EnsureExists("s1", Config{}, 84532)
	if err != nil {
		t.Fatalf("second ensure_exists: %v", err)
	}
	if created2 {
		t.Fatalf("second ensure_exists should not report created")
	}
	if s1 != s2 {
		t.Fatalf("expected same session pointer across ensure_exists calls")
	}
	if len(s2.ConversationHistory) != 1 {
		t.Fatalf("re-init must preserve conversation history, got %d entries", len(s2.ConversationHistory))
	}
}

func TestCapacityExceeded(t *testing.T) {
	st := NewStore(1, testChains(), nil)

	if _, err := st.Create("a", Config{}, 84532); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if _, err := st.Create("b", Config{}, 84532); err != ErrCapacityExceeded {
		t.Fatalf("expected ErrCapacityExceeded creating past capacity, got %v", err)
	}

	// ensure_exists on the existing id must still succeed at capacity.
	if _, created, err := st.EnsureExists("a", Config{}, 84532); err != nil || created {
		t.Fatalf("ensure_exists at capacity for existing id: created=%v err=%v", created, err)
	}
	// ensure_exists on a new id at capacity must fail.
	if _, _, err := st.EnsureExists("c", Config{}, 84532); err != ErrCapacityExceeded {
		t.Fatalf("expected ErrCapacityExceeded for new id at capacity, got %v", err)
	}
}

func TestChainNotConfigured(t *testing.T) {
	st := NewStore(4, testChains(), nil)
	if _, err := st.Create("x", Config{}, 999); err != ErrChainNotConfigured {
		t.Fatalf("expected ErrChainNotConfigured, got %v", err)
	}
}

func TestModelBindOnce(t *testing.T) {
	st := NewStore(4, testChains(), nil)
	if _, err := st.Create("s", Config{}, 84532); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.BindModel("s", "model-a"); err != nil {
		t.Fatalf("first bind: %v", err)
	}
	if err := st.BindModel("s", "model-a"); err != nil {
		t.Fatalf("rebinding same model should be a no-op: %v", err)
	}
	if err := st.BindModel("s", "model-b"); err != ErrModelAlreadyBound {
		t.Fatalf("expected ErrModelAlreadyBound, got %v", err)
	}
}

func TestEvictIdle(t *testing.T) {
	var evictedIDs []string
	st := NewStore(4, testChains(), func(s *Session) {
		evictedIDs = append(evictedIDs, s.ID)
	})

	if _, err := st.Create("old", Config{}, 84532); err != nil {
		t.Fatalf("create: %v", err)
	}

	future := time.Now().Add(time.Hour)
	evicted := st.EvictIdle(future, time.Minute)
	if len(evicted) != 1 || evicted[0] != "old" {
		t.Fatalf("expected [old] evicted, got %v", evicted)
	}
	if len(evictedIDs) != 1 {
		t.Fatalf("expected onEvict called once, got %d", len(evictedIDs))
	}
	if st.Len() != 0 {
		t.Fatalf("expected store empty after eviction, got %d", st.Len())
	}
}

func TestEndRemovesSession(t *testing.T) {
	st := NewStore(4, testChains(), nil)
	if _, err := st.Create("s", Config{}, 84532); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.End("s"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := st.Get("s"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after end, got %v", err)
	}
}
