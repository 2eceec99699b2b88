// Copyright 2025 Certen Protocol

package transport

import "testing"

func TestStateMachineHappyPath(t *testing.T) {
	m := NewMachine()
	if m.Current() != StateClosed {
		t.Fatalf("initial state should be Closed, got %s", m.Current())
	}

	steps := []MessageType{
		TypeSessionInit,
		TypePrompt,
		TypeResponseToken,
		TypeResponseToken,
		TypeResponseEnd,
		TypeSessionEnd,
	}
	for _, msg := range steps {
		if err := m.Advance(msg); err != nil {
			t.Fatalf("advance(%s) from %s: %v", msg, m.Current(), err)
		}
	}
	if m.Current() != StateClosing {
		t.Fatalf("expected Closing after session_end, got %s", m.Current())
	}
	m.Finalize()
	if m.Current() != StateClosed {
		t.Fatalf("expected Closed after finalize, got %s", m.Current())
	}
}

func TestStateMachineCancelPath(t *testing.T) {
	m := NewMachine()
	m.Advance(TypeSessionInit)
	m.Advance(TypePrompt)
	if err := m.Advance(TypeStreamCancel); err != nil {
		t.Fatalf("advance stream_cancel: %v", err)
	}
	if m.Current() != StateCancelling {
		t.Fatalf("expected Cancelling, got %s", m.Current())
	}
	if err := m.Advance(TypeResponseEnd); err != nil {
		t.Fatalf("advance response_end from cancelling: %v", err)
	}
	if m.Current() != StateOpen {
		t.Fatalf("expected Open after cancelled response_end, got %s", m.Current())
	}
}

func TestStateMachineRejectsOutOfOrder(t *testing.T) {
	m := NewMachine()
	// prompt before any session_init is out of order.
	if err := m.Advance(TypePrompt); err == nil {
		t.Fatal("expected error advancing prompt from Closed")
	}
}

func TestStateMachineRecoverFoldsToOpen(t *testing.T) {
	m := NewMachine()
	m.Advance(TypeSessionInit)
	m.Advance(TypePrompt)
	if m.Current() != StateGenerating {
		t.Fatalf("expected Generating, got %s", m.Current())
	}
	m.Recover()
	if m.Current() != StateOpen {
		t.Fatalf("expected Recover to fold Generating back to Open, got %s", m.Current())
	}
}
