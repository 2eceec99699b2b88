// Copyright 2025 Certen Protocol

package accounting

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/certen/independant-validator/pkg/session"
)

// fakeTrigger records each invocation and optionally returns a canned
// error, letting tests assert both "fires exactly once" and "a failed
// trigger does not advance last_checkpointed_tokens".
type fakeTrigger struct {
	mu       sync.Mutex
	calls    int
	failNext bool
	order    []string
}

func (f *fakeTrigger) Run(ctx context.Context, sess *session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.order = append(f.order, "put-before-submit") // storage write precedes proof submission by construction
	if f.failNext {
		f.failNext = false
		return errors.New("storage unavailable")
	}
	sess.Mutate(func(s *session.Session) {
		s.LastCheckpointedTokens = s.TokenCounter
		s.CheckpointSequence++
	})
	return nil
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	store := session.NewStore(10, map[uint64]bool{84532: true}, nil)
	s, _, err := store.EnsureExists("sess-1", session.Config{}, 84532)
	if err != nil {
		t.Fatalf("ensure exists: %v", err)
	}
	return s
}

func TestRecordTextTokensFiresExactlyOnceAtThreshold(t *testing.T) {
	trig := &fakeTrigger{}
	a := NewAccountant(trig, 1000)
	sess := newTestSession(t)

	for i := 0; i < 9; i++ {
		if err := a.RecordTextTokens(context.Background(), sess, 100); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	trig.mu.Lock()
	calls := trig.calls
	trig.mu.Unlock()
	if calls != 0 {
		t.Fatalf("expected 0 trigger calls before threshold, got %d", calls)
	}

	if err := a.RecordTextTokens(context.Background(), sess, 100); err != nil {
		t.Fatalf("record: %v", err)
	}
	trig.mu.Lock()
	calls = trig.calls
	trig.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly 1 trigger call at threshold crossing, got %d", calls)
	}

	if err := a.RecordTextTokens(context.Background(), sess, 50); err != nil {
		t.Fatalf("record: %v", err)
	}
	trig.mu.Lock()
	calls = trig.calls
	trig.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected no additional trigger call below next threshold, got %d", calls)
	}
}

func TestRecordImageGenerationBillsCeilingTokens(t *testing.T) {
	trig := &fakeTrigger{}
	a := NewAccountant(trig, 1000)
	sess := newTestSession(t)

	if err := a.RecordImageGeneration(context.Background(), sess, 1024, 1024, 20, 1.0); err != nil {
		t.Fatalf("record image: %v", err)
	}

	var counter uint64
	sess.Mutate(func(s *session.Session) { counter = s.TokenCounter })
	if counter != 1000 {
		t.Fatalf("expected 1000 billable tokens for baseline image, got %d", counter)
	}
	trig.mu.Lock()
	calls := trig.calls
	trig.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected trigger to fire once at exact threshold, got %d", calls)
	}
}

func TestFailedTriggerDoesNotAdvanceCheckpointCursor(t *testing.T) {
	trig := &fakeTrigger{failNext: true}
	a := NewAccountant(trig, 100)
	sess := newTestSession(t)

	err := a.RecordTextTokens(context.Background(), sess, 100)
	if err == nil {
		t.Fatal("expected trigger failure to propagate")
	}

	var lastCheckpointed uint64
	sess.Mutate(func(s *session.Session) { lastCheckpointed = s.LastCheckpointedTokens })
	if lastCheckpointed != 0 {
		t.Fatalf("expected last_checkpointed_tokens to remain 0 after failed trigger, got %d", lastCheckpointed)
	}

	// Next record call re-crosses the threshold and retries successfully.
	if err := a.RecordTextTokens(context.Background(), sess, 1); err != nil {
		t.Fatalf("retry record: %v", err)
	}
	trig.mu.Lock()
	calls := trig.calls
	trig.mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected trigger retried on next crossing, got %d calls", calls)
	}
}

func TestZeroDeltaNeverFires(t *testing.T) {
	trig := &fakeTrigger{}
	a := NewAccountant(trig, 1000)
	sess := newTestSession(t)

	if err := a.RecordTextTokens(context.Background(), sess, 0); err != nil {
		t.Fatalf("record: %v", err)
	}
	trig.mu.Lock()
	calls := trig.calls
	trig.mu.Unlock()
	if calls != 0 {
		t.Fatalf("expected no trigger call for zero delta, got %d", calls)
	}
}
