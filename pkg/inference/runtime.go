// Copyright 2025 Certen Protocol
//
// Inference Driver contract (spec.md section 4.4). The LLM runtime itself
// is an external collaborator; this package defines the narrow interface
// the core needs and ships one deterministic reference implementation for
// tests (MockRuntime), never picking a specific llama.cpp binding per the
// Open Questions decision.

package inference

import (
	"context"
	"fmt"
)

// FinishReason is why generation stopped.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishCancelled FinishReason = "cancelled"
	FinishError     FinishReason = "error"
)

// Sampler holds the generation parameters a client controls.
type Sampler struct {
	MaxTokens     int
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	MinP          float64
	Seed          int64
	StopSequences []string
}

// ModelMetadata describes a served model, including the chat template tag
// that drives prompt formatting (never the filename — a frequent bug
// source per spec.md section 4.4).
type ModelMetadata struct {
	ModelID          string
	ChatTemplate     string
	ContextWindowSize int
}

// Request is one generation request handed to a Runtime.
type Request struct {
	ModelID    string
	Metadata   ModelMetadata
	Prompt     string
	Sampler    Sampler
	CancelFlag func() bool // polled between tokens; cooperative cancellation
}

// TokenEvent is emitted once per generated token, in strict order.
type TokenEvent struct {
	Index int
	Text  string
}

// Result summarizes a completed (or cancelled/failed) generation.
type Result struct {
	Text             string
	TokensGenerated  int
	Duration         int64 // nanoseconds, avoids a direct time.Duration-on-the-wire assumption
	TokensPerSecond  float64
	FinishReason     FinishReason
	PromptTokens     int
}

// ContextOverflow is returned when prompt_tokens exceeds the model's
// context window, before any token is emitted.
type ContextOverflow struct {
	PromptTokens      int
	ContextWindowSize int
	Overflow          int
}

func (e *ContextOverflow) Error() string {
	return fmt.Sprintf("prompt exceeds context window: %d tokens over %d by %d", e.PromptTokens, e.ContextWindowSize, e.Overflow)
}

// Runtime is the opaque text-generation collaborator.
type Runtime interface {
	// CountTokens measures prompt token count for a model, used for the
	// context-window check before generation starts.
	CountTokens(modelID string, prompt string) (int, error)

	// Generate produces tokens to sink in strict order and returns once
	// generation completes, is cancelled, or fails. It must poll
	// req.CancelFlag at least between tokens.
	Generate(ctx context.Context, req Request, sink chan<- TokenEvent) (*Result, error)
}

// CheckContextWindow measures prompt tokens and returns a *ContextOverflow
// error if they exceed the model's context window, per spec.md section
// 4.4: this must happen before any token is emitted.
func CheckContextWindow(rt Runtime, req Request) (promptTokens int, err error) {
	promptTokens, err = rt.CountTokens(req.ModelID, req.Prompt)
	if err != nil {
		return 0, err
	}
	if promptTokens > req.Metadata.ContextWindowSize {
		return promptTokens, &ContextOverflow{
			PromptTokens:      promptTokens,
			ContextWindowSize: req.Metadata.ContextWindowSize,
			Overflow:          promptTokens - req.Metadata.ContextWindowSize,
		}
	}
	return promptTokens, nil
}
