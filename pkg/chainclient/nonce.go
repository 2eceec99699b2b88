// Copyright 2025 Certen Protocol
//
// NonceTracker reserves strictly-increasing nonces per chain, refreshing
// from the chain's pending nonce periodically and skipping nonces already
// reserved locally. Structure (reserve/mark-submitted/mark-confirmed/
// mark-failed, periodic chain refresh, confirmed-nonce cleanup) follows
// pkg/execution/nonce_tracker.go, adapted from an Accumulate signer-URL
// nonce source to an EVM PendingNonceAt source.

package chainclient

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// nonceStatus mirrors pkg/execution/nonce_tracker.go's NonceState.Status
// values.
type nonceStatus string

const (
	nonceReserved  nonceStatus = "reserved"
	nonceSubmitted nonceStatus = "submitted"
	nonceConfirmed nonceStatus = "confirmed"
	nonceFailed    nonceStatus = "failed"
)

type nonceState struct {
	status      nonceStatus
	reservedAt  time.Time
	confirmedAt time.Time
}

// NonceTracker manages transaction nonces for one chain's signer address.
type NonceTracker struct {
	mu sync.Mutex

	client *Client

	lastKnownNonce uint64
	pending        map[uint64]*nonceState
	lastQuery      time.Time

	queryInterval time.Duration
	maxPending    int

	logger *log.Logger
}

// NewNonceTracker constructs a NonceTracker for client's chain.
func NewNonceTracker(client *Client) *NonceTracker {
	return &NonceTracker{
		client:        client,
		pending:       make(map[uint64]*nonceState),
		queryInterval: 30 * time.Second,
		maxPending:    256,
		logger:        log.New(log.Writer(), fmt.Sprintf("[NonceTracker:%d] ", client.ChainID), log.LstdFlags),
	}
}

// Next reserves and returns the next available nonce, refreshing the
// cached chain nonce if it is stale.
func (t *NonceTracker) Next(ctx context.Context) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if time.Since(t.lastQuery) > t.queryInterval {
		if err := t.refreshLocked(ctx); err != nil {
			t.logger.Printf("refresh chain nonce failed, using cached value: %v", err)
		}
	}

	next := t.lastKnownNonce
	for {
		if state, exists := t.pending[next]; exists {
			if state.status == nonceReserved || state.status == nonceSubmitted {
				next++
				continue
			}
		}
		break
	}

	if len(t.pending) >= t.maxPending {
		return 0, fmt.Errorf("chain %d: too many pending nonces (%d)", t.client.ChainID, len(t.pending))
	}

	t.pending[next] = &nonceState{status: nonceReserved, reservedAt: time.Now()}
	return next, nil
}

// MarkSubmitted records that nonce was included in a submitted transaction.
func (t *NonceTracker) MarkSubmitted(nonce uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.pending[nonce]; ok {
		s.status = nonceSubmitted
	}
}

// MarkConfirmed records that nonce's transaction reached the chain's
// confirmation depth, advancing the tracked baseline nonce to nonce+1
// whenever nonce is at or above the current baseline.
func (t *NonceTracker) MarkConfirmed(nonce uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.pending[nonce]; ok {
		s.status = nonceConfirmed
		s.confirmedAt = time.Now()
	}
	if nonce >= t.lastKnownNonce {
		t.lastKnownNonce = nonce + 1
		t.cleanupLocked()
	}
}

// MarkFailed releases nonce for reuse by a later Next call.
func (t *NonceTracker) MarkFailed(nonce uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.pending[nonce]; ok {
		s.status = nonceFailed
	}
}

// Refresh forces a re-query of the chain's pending nonce, used after a
// NonceConflict to resync before a single retry attempt (spec.md section
// 9's "auto resync+retry" behavior).
func (t *NonceTracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refreshLocked(ctx)
}

func (t *NonceTracker) refreshLocked(ctx context.Context) error {
	nonce, err := t.client.PendingNonceAt(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	t.lastKnownNonce = nonce
	t.lastQuery = time.Now()
	return nil
}

func (t *NonceTracker) cleanupLocked() {
	threshold := time.Now().Add(-5 * time.Minute)
	for nonce, s := range t.pending {
		if s.status == nonceConfirmed && s.confirmedAt.Before(threshold) {
			delete(t.pending, nonce)
		}
		if s.status == nonceFailed && s.reservedAt.Before(threshold) {
			delete(t.pending, nonce)
		}
	}
}
