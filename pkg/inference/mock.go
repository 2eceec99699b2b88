// Copyright 2025 Certen Protocol
//
// MockRuntime produces deterministic tokens for tests, the same
// mock-vs-real-backend split the teacher uses for its zk proving backend
// (real Groth16 vs. deterministic placeholder), and matching
// original_source's own minimal stand-in runtime pattern.

package inference

import (
	"context"
	"strings"
	"time"
)

// MockRuntime is a deterministic Runtime: it echoes a canned completion
// word-by-word, honoring cancellation between tokens. Generate does no
// context-window check of its own; callers run CheckContextWindow first.
type MockRuntime struct {
	// Completions maps a prompt verbatim to the text MockRuntime should
	// emit; prompts not present fall back to Default.
	Completions map[string]string
	Default     string

	// TokensPerChar approximates token counting for CountTokens without
	// a real tokenizer: ceil(len(prompt) / TokensPerChar).
	TokensPerChar int
}

// NewMockRuntime builds a MockRuntime with sensible defaults.
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{
		Completions:   map[string]string{"The capital of France is": " Paris."},
		Default:       " I don't have an answer for that.",
		TokensPerChar: 4,
	}
}

// CountTokens approximates a character-based token count; good enough for
// deterministic context-window tests without depending on a real
// tokenizer vocabulary.
func (m *MockRuntime) CountTokens(modelID string, prompt string) (int, error) {
	perChar := m.TokensPerChar
	if perChar <= 0 {
		perChar = 4
	}
	tokens := (len(prompt) + perChar - 1) / perChar
	if tokens == 0 {
		tokens = 1
	}
	return tokens, nil
}

// Generate emits the configured completion one word at a time, polling
// CancelFlag between tokens.
func (m *MockRuntime) Generate(ctx context.Context, req Request, sink chan<- TokenEvent) (*Result, error) {
	start := time.Now()

	completion, ok := m.Completions[req.Prompt]
	if !ok {
		completion = m.Default
	}

	words := strings.Fields(completion)
	if req.Sampler.MaxTokens > 0 && len(words) > req.Sampler.MaxTokens {
		words = words[:req.Sampler.MaxTokens]
	}

	var built strings.Builder
	finish := FinishStop
	emitted := 0

	for i, w := range words {
		if req.CancelFlag != nil && req.CancelFlag() {
			finish = FinishCancelled
			break
		}
		select {
		case <-ctx.Done():
			finish = FinishCancelled
		default:
		}
		if finish == FinishCancelled {
			break
		}

		text := w
		if i > 0 {
			text = " " + w
		}
		sink <- TokenEvent{Index: i, Text: text}
		built.WriteString(text)
		emitted++

		if req.Sampler.MaxTokens > 0 && emitted >= req.Sampler.MaxTokens && i < len(words)-1 {
			finish = FinishLength
			break
		}
	}

	elapsed := time.Since(start)
	tps := 0.0
	if elapsed > 0 {
		tps = float64(emitted) / elapsed.Seconds()
	}

	return &Result{
		Text:            built.String(),
		TokensGenerated: emitted,
		Duration:        int64(elapsed),
		TokensPerSecond: tps,
		FinishReason:    finish,
	}, nil
}
