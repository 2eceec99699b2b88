// Copyright 2025 Certen Protocol
//
// Token Accountant (spec.md section 4.5): per-session billable_tokens
// counters and the ordered checkpoint trigger. The sequencing guarantee —
// storage upload strictly precedes proof submission — is enforced by
// construction: CheckpointTrigger.Run is the single call site for both,
// and Run cannot reach its proof-submission step until its own storage
// PUT call has returned successfully, mirroring the ordering doc comment
// in original_source's checkpoint module.

package accounting

import (
	"context"
	"log"
	"math"

	"github.com/certen/independant-validator/pkg/inference"
	"github.com/certen/independant-validator/pkg/session"
)

// CheckpointTrigger is the seven-step unit of work a crossed threshold
// enqueues: build delta, sign, PUT to storage, update index, compute
// hashes, submit proof and wait, advance cursor. Its concrete
// implementation lives in pkg/checkpoint, composed with pkg/zkproof and
// pkg/settlement; Accountant only needs to know when to call it.
type CheckpointTrigger interface {
	Run(ctx context.Context, sess *session.Session) error
}

// Accountant tracks billable_tokens per session and fires CheckpointTrigger
// when the configured interval is crossed.
type Accountant struct {
	Trigger  CheckpointTrigger
	Interval uint64 // CHECKPOINT_INTERVAL_TOKENS, default 1000
	logger   *log.Logger
}

// NewAccountant constructs an Accountant. interval is the
// CHECKPOINT_INTERVAL_TOKENS configuration value.
func NewAccountant(trigger CheckpointTrigger, interval uint64) *Accountant {
	if interval == 0 {
		interval = 1000
	}
	return &Accountant{
		Trigger:  trigger,
		Interval: interval,
		logger:   log.New(log.Writer(), "[Accountant] ", log.LstdFlags),
	}
}

// RecordTextTokens increments billable_tokens by n (1 per generated text
// token) and fires the checkpoint trigger if the interval is crossed.
func (a *Accountant) RecordTextTokens(ctx context.Context, sess *session.Session, n int) error {
	return a.record(ctx, sess, uint64(n))
}

// RecordImageGeneration converts an image generation to token-equivalent
// billable units via ceil(generation_units * 1000) and records them,
// per spec.md section 4.5's image-billing formula.
func (a *Accountant) RecordImageGeneration(ctx context.Context, sess *session.Session, width, height, steps int, modelMultiplier float64) error {
	units := inference.GenerationUnits(width, height, steps, modelMultiplier)
	billable := uint64(math.Ceil(units * 1000))
	return a.record(ctx, sess, billable)
}

// record performs the atomic increment-and-check, then fires the trigger
// outside the session's actor loop so checkpoint publication (which can
// block on network I/O) never holds up other session mutations.
func (a *Accountant) record(ctx context.Context, sess *session.Session, delta uint64) error {
	if delta == 0 {
		return nil
	}

	var shouldTrigger bool
	sess.Mutate(func(s *session.Session) {
		s.TokenCounter += delta
		if s.TokenCounter-s.LastCheckpointedTokens >= a.Interval {
			shouldTrigger = true
		}
	})

	if !shouldTrigger {
		return nil
	}
	return a.fire(ctx, sess)
}

// fire runs the checkpoint trigger. Errors are returned to the caller
// (typically the transport handler, which surfaces a STORAGE_UNAVAILABLE
// or similar client-visible error) without advancing
// last_checkpointed_tokens — the unit remains pending and will be retried
// on the next crossing, per the ordering guarantee in spec.md section 4.5.
func (a *Accountant) fire(ctx context.Context, sess *session.Session) error {
	if err := a.Trigger.Run(ctx, sess); err != nil {
		a.logger.Printf("session %s: checkpoint trigger failed: %v", sess.ID, err)
		return err
	}
	return nil
}
