// Copyright 2025 Certen Protocol

package inference

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
)

func TestMockRuntimeGeneratesConfiguredCompletion(t *testing.T) {
	rt := NewMockRuntime()
	req := Request{
		ModelID: "test-model",
		Prompt:  "The capital of France is",
		Sampler: Sampler{MaxTokens: 10},
	}

	sink := make(chan TokenEvent, 16)
	result, err := rt.Generate(context.Background(), req, sink)
	close(sink)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.FinishReason != FinishStop {
		t.Fatalf("expected finish=stop, got %s", result.FinishReason)
	}

	var full string
	for tok := range sink {
		full += tok.Text
	}
	if full == "" {
		t.Fatal("expected non-empty generated text")
	}
}

func TestMockRuntimeHonorsCancellation(t *testing.T) {
	rt := NewMockRuntime()
	rt.Completions["long"] = " one two three four five"
	var cancelled atomic.Bool
	req := Request{
		Prompt:     "long",
		Sampler:    Sampler{MaxTokens: 100},
		CancelFlag: cancelled.Load,
	}

	// Unbuffered, so the flag is set as soon as the first token is taken
	// and before Generate polls it again.
	sink := make(chan TokenEvent)
	go func() {
		for range sink {
			cancelled.Store(true)
		}
	}()

	result, err := rt.Generate(context.Background(), req, sink)
	close(sink)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.FinishReason != FinishCancelled {
		t.Fatalf("expected finish=cancelled, got %s", result.FinishReason)
	}
}

func TestCheckContextWindowBoundary(t *testing.T) {
	rt := &MockRuntime{TokensPerChar: 1} // 1 char == 1 token, for an exact boundary test
	meta := ModelMetadata{ContextWindowSize: 10}

	exact := Request{Prompt: "0123456789", Metadata: meta} // exactly 10 tokens
	if _, err := CheckContextWindow(rt, exact); err != nil {
		t.Fatalf("expected exact-boundary prompt to succeed, got %v", err)
	}

	over := Request{Prompt: "0123456789X", Metadata: meta} // 11 tokens
	_, err := CheckContextWindow(rt, over)
	overflow, ok := err.(*ContextOverflow)
	if !ok {
		t.Fatalf("expected *ContextOverflow, got %v", err)
	}
	if overflow.Overflow != 1 {
		t.Fatalf("expected overflow=1, got %d", overflow.Overflow)
	}
}

func TestGenerationUnitsFormula(t *testing.T) {
	units := GenerationUnits(1024, 1024, 20, 1.0)
	if math.Abs(units-1.0) > 1e-9 {
		t.Fatalf("expected 1.0 megapixel/baseline-steps unit, got %f", units)
	}

	billable := int(math.Ceil(units * 1000))
	if billable != 1000 {
		t.Fatalf("expected 1000 billable tokens for baseline image, got %d", billable)
	}
}
