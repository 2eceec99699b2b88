// Copyright 2025 Certen Protocol
//
// PromptRunner ties the Inference Driver, Token Accountant, and Model
// Authorizer into the single collaborator pkg/transport.Handler needs,
// the same unifying role pkg/execution/unified_orchestrator.go plays
// between chain strategies, attestation, and proof assembly: one type
// that owns the ordering between otherwise-independent packages so no
// individual package needs to know about the others.

package orchestrator

import (
	"context"
	"fmt"

	"github.com/certen/independant-validator/pkg/accounting"
	"github.com/certen/independant-validator/pkg/inference"
	"github.com/certen/independant-validator/pkg/modelauth"
	"github.com/certen/independant-validator/pkg/session"
	"github.com/certen/independant-validator/pkg/transport"
)

// ModelBinder fixes a session's served model on its first prompt.
type ModelBinder interface {
	BindModel(sessionID string, modelID string) error
}

// PromptRunner implements transport.PromptRunner against a single served
// model: the node's one Runtime, bound to the model filename resolved
// by the Model Authorizer at startup.
type PromptRunner struct {
	Runtime    inference.Runtime
	Metadata   inference.ModelMetadata
	Authorizer *modelauth.Authorizer
	ModelFile  string
	Accountant *accounting.Accountant
	Sessions   ModelBinder
}

// NewPromptRunner constructs a PromptRunner serving one model file.
func NewPromptRunner(rt inference.Runtime, metadata inference.ModelMetadata, authorizer *modelauth.Authorizer, modelFile string, accountant *accounting.Accountant, sessions ModelBinder) *PromptRunner {
	return &PromptRunner{
		Runtime:    rt,
		Metadata:   metadata,
		Authorizer: authorizer,
		ModelFile:  modelFile,
		Accountant: accountant,
		Sessions:   sessions,
	}
}

// RunPrompt implements transport.PromptRunner: binds the session's model
// on first use, checks the context window, streams generation, and
// records billable tokens as they are produced.
func (r *PromptRunner) RunPrompt(ctx context.Context, sess *session.Session, prompt string, messageIndex uint64, emit func(token string, index uint64)) (string, transport.ContextUsage, error) {
	if _, err := r.Authorizer.Resolve(r.ModelFile); err != nil {
		return "error", transport.ContextUsage{}, fmt.Errorf("resolve served model: %w", err)
	}
	if err := r.Sessions.BindModel(sess.ID, r.Metadata.ModelID); err != nil {
		return "error", transport.ContextUsage{}, fmt.Errorf("bind model: %w", err)
	}

	req := inference.Request{
		ModelID:  r.Metadata.ModelID,
		Metadata: r.Metadata,
		Prompt:   prompt,
		Sampler:  inference.Sampler{},
		CancelFlag: func() bool {
			return sess.Cancelled()
		},
	}

	promptTokens, err := inference.CheckContextWindow(r.Runtime, req)
	if err != nil {
		usage := transport.ContextUsage{PromptTokens: promptTokens, ContextWindowSize: r.Metadata.ContextWindowSize}
		return "error", usage, err
	}

	sink := make(chan inference.TokenEvent, 32)
	done := make(chan struct{})
	var accountErr error
	go func() {
		defer close(done)
		for ev := range sink {
			emit(ev.Text, messageIndex+uint64(ev.Index))
			if err := r.Accountant.RecordTextTokens(ctx, sess, 1); err != nil && accountErr == nil {
				// The Accountant already logged the failure; keep the
				// first one seen (a checkpoint trigger failure, e.g. a
				// storage outage) and surface it once generation ends so
				// the transport handler can classify and report it,
				// rather than silently dropping it.
				accountErr = err
			}
		}
	}()

	result, err := r.Runtime.Generate(ctx, req, sink)
	close(sink)
	<-done
	if err == nil {
		err = accountErr
	}

	usage := transport.ContextUsage{
		PromptTokens:      promptTokens,
		ContextWindowSize: r.Metadata.ContextWindowSize,
	}
	if result != nil {
		usage.CompletionTokens = result.TokensGenerated
		return string(result.FinishReason), usage, err
	}
	return "error", usage, err
}
