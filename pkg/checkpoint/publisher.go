// Copyright 2025 Certen Protocol
//
// Publisher is the Checkpoint Publisher: it implements
// accounting.CheckpointTrigger and drives the seven-step sequence spec.md
// section 4.5 fixes in order. Storage must complete before proof
// submission is attempted, by construction — the proof step is only
// reachable after the index write that records the storage CID succeeds.

package checkpoint

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/certen/independant-validator/pkg/session"
)

// Storage PUT retry policy (spec.md section 7): retried with exponential
// backoff up to a bound; on exhaustion the checkpoint's proof submission
// is blocked rather than skipped, since a client's ability to resume
// depends on checkpoints being durable. Mirrors
// pkg/settlement/backoff.go's nextBackoff, duplicated here rather than
// imported since pkg/settlement already imports pkg/checkpoint (to
// implement ProofSubmitter) and importing back would cycle.
const (
	defaultStorageMaxRetries  = 5
	defaultStorageBaseBackoff = 500 * time.Millisecond
	defaultStorageMaxBackoff  = 10 * time.Second
)

// ProofSubmitter accepts a checkpoint's witness (the proof itself is
// generated by the implementation) and hands it to the settlement
// pipeline. Defined here (rather than depending on
// pkg/zkproof and pkg/settlement directly) so Publisher stays decoupled
// from their concrete wiring; cmd/node supplies the real implementation.
type ProofSubmitter interface {
	Submit(ctx context.Context, sessionID string, sequence uint64, jobID string, chainID uint64, tokenCount uint64, checkpointCID string, witness Witness) error
}

// Store is the content-addressed storage collaborator Publisher uploads
// signed deltas to.
type Store interface {
	Put(ctx context.Context, body []byte) (cid string, err error)
}

// Publisher orchestrates checkpoint creation for one node.
type Publisher struct {
	Store     Store
	Index     *Index
	Submitter ProofSubmitter
	NodeKey   *ecdsa.PrivateKey
	ModelID   string

	StorageMaxRetries  int
	StorageBaseBackoff time.Duration
	StorageMaxBackoff  time.Duration

	logger *log.Logger
}

// NewPublisher constructs a Publisher. Storage retry parameters take
// documented defaults; override the exported fields before first use to
// change them.
func NewPublisher(store Store, index *Index, submitter ProofSubmitter, nodeKey *ecdsa.PrivateKey, modelID string) *Publisher {
	return &Publisher{
		Store:              store,
		Index:              index,
		Submitter:          submitter,
		NodeKey:            nodeKey,
		ModelID:            modelID,
		StorageMaxRetries:  defaultStorageMaxRetries,
		StorageBaseBackoff: defaultStorageBaseBackoff,
		StorageMaxBackoff:  defaultStorageMaxBackoff,
		logger:             log.New(log.Writer(), "[CheckpointPublisher] ", log.LstdFlags),
	}
}

// Run implements accounting.CheckpointTrigger. It is invoked by the Token
// Accountant whenever a session crosses its checkpoint interval.
func (p *Publisher) Run(ctx context.Context, sess *session.Session) error {
	var (
		sessionID              string
		jobID                  string
		chainID                uint64
		checkpointCursor       int
		history                []session.Message
		tokenCounter           uint64
		lastCheckpointedTokens uint64
		nextSequence           uint64
	)
	sess.Mutate(func(s *session.Session) {
		sessionID = s.ID
		jobID = strconv.FormatUint(s.JobID, 10)
		chainID = s.ChainID
		checkpointCursor = s.CheckpointCursor
		history = append([]session.Message(nil), s.ConversationHistory...)
		tokenCounter = s.TokenCounter
		lastCheckpointedTokens = s.LastCheckpointedTokens
		nextSequence = s.CheckpointSequence + 1
	})

	previousCID, err := p.Index.PreviousCID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load previous checkpoint cid: %w", err)
	}

	// Step 1: build delta.
	delta := BuildDelta(sessionID, previousCID, checkpointCursor, history, tokenCounter)

	// Step 2: sign.
	signed, err := Sign(delta, p.NodeKey)
	if err != nil {
		return fmt.Errorf("sign checkpoint delta: %w", err)
	}

	payload, err := signed.SignedCanonicalBytes()
	if err != nil {
		return fmt.Errorf("canonicalize signed delta: %w", err)
	}

	// Step 3: PUT to storage, retried with bounded exponential backoff.
	// Nothing downstream may run until this succeeds; on exhaustion the
	// error propagates up through the Token Accountant to the transport
	// handler, which surfaces STORAGE_UNAVAILABLE to the client, and the
	// checkpoint cursor is left unadvanced so the unit is retried on the
	// next threshold crossing.
	cid, err := p.putToStorageWithRetry(ctx, payload)
	if err != nil {
		return fmt.Errorf("upload checkpoint delta to storage: %w", err)
	}

	deltaTokens := tokenCounter - lastCheckpointedTokens

	// Step 4: update index. Only after this succeeds is the CID durably
	// recorded, which is what gates step 6's proof submission.
	if err := p.Index.Record(ctx, sessionID, nextSequence, jobID, deltaTokens, tokenCounter, cid, payload, signed.Signature); err != nil {
		return fmt.Errorf("update checkpoint index: %w", err)
	}

	// Step 5: compute witness hashes.
	prompt, generated := promptAndGeneratedBytes(signed.Messages)
	witness := BuildWitness(jobID, p.ModelID, prompt, generated)

	// Step 6: submit proof and hand off to settlement.
	if p.Submitter != nil {
		if err := p.Submitter.Submit(ctx, sessionID, nextSequence, jobID, chainID, tokenCounter, cid, witness); err != nil {
			return fmt.Errorf("submit checkpoint proof: %w", err)
		}
	}

	// Step 7: advance the session's checkpoint cursor.
	sess.Mutate(func(s *session.Session) {
		s.CheckpointCursor = len(history)
		s.LastCheckpointedTokens = tokenCounter
		s.CheckpointSequence = nextSequence
	})

	p.logger.Printf("session %s: checkpoint %d published, cid=%s", sessionID, nextSequence, cid)
	return nil
}

// putToStorageWithRetry retries p.Store.Put with exponential backoff up to
// StorageMaxRetries before giving up and returning the last error.
func (p *Publisher) putToStorageWithRetry(ctx context.Context, payload []byte) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= p.StorageMaxRetries; attempt++ {
		cid, err := p.Store.Put(ctx, payload)
		if err == nil {
			return cid, nil
		}
		lastErr = err
		if attempt == p.StorageMaxRetries {
			break
		}
		backoff := storageBackoff(attempt, p.StorageBaseBackoff, p.StorageMaxBackoff)
		p.logger.Printf("storage put failed (attempt %d/%d), retrying in %s: %v", attempt+1, p.StorageMaxRetries+1, backoff, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	p.logger.Printf("storage put exhausted %d retries, blocking proof submission: %v", p.StorageMaxRetries+1, lastErr)
	return "", lastErr
}

// storageBackoff doubles base for every prior attempt, capped at max.
func storageBackoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		d = max
	}
	return d
}
