// Copyright 2025 Certen Protocol

package storexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// SettlementStatus mirrors the Postgres settlement_status enum.
type SettlementStatus string

const (
	SettlementPending    SettlementStatus = "pending"
	SettlementSubmitted  SettlementStatus = "submitted"
	SettlementConfirmed  SettlementStatus = "confirmed"
	SettlementFailed     SettlementStatus = "failed"
	SettlementDeadLetter SettlementStatus = "dead_letter"
)

// SettlementRequest is one queued on-chain settlement unit of work, keyed
// at-most-once by (session_id, checkpoint_sequence).
type SettlementRequest struct {
	ID                 int64
	SessionID          string
	CheckpointSequence uint64
	ChainID            uint64
	JobID              string
	BillableTokens     uint64
	CheckpointCID      string
	Priority           uint8
	Status             SettlementStatus
	AttemptCount       int
	NextAttemptAt      time.Time
	TxHash             string
	Nonce              *uint64
	LastError          string
}

// SettlementRepository persists the settlement queue.
type SettlementRepository struct {
	client *Client
}

// NewSettlementRepository constructs a SettlementRepository over client.
func NewSettlementRepository(client *Client) *SettlementRepository {
	return &SettlementRepository{client: client}
}

// Enqueue inserts a new settlement request. A duplicate (session_id,
// checkpoint_sequence) pair returns ErrDuplicateSettlementRequest so callers
// can treat re-enqueue attempts as a no-op, preserving at-most-once
// submission semantics.
func (r *SettlementRepository) Enqueue(ctx context.Context, req *SettlementRequest) (int64, error) {
	var id int64
	err := r.client.QueryRowContext(ctx, `
		INSERT INTO settlement_requests
			(session_id, checkpoint_sequence, chain_id, job_id, billable_tokens, checkpoint_cid, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, req.SessionID, req.CheckpointSequence, req.ChainID, req.JobID,
		req.BillableTokens, req.CheckpointCID, req.Priority, SettlementPending).Scan(&id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return 0, ErrDuplicateSettlementRequest
		}
		return 0, fmt.Errorf("enqueue settlement request: %w", err)
	}
	return id, nil
}

// DueForAttempt returns pending/failed requests for chainID whose
// next_attempt_at has elapsed, ordered by priority (highest first) and then
// by next_attempt_at (earliest first), for the per-chain worker loop to
// pull from.
func (r *SettlementRepository) DueForAttempt(ctx context.Context, chainID uint64, limit int) ([]*SettlementRequest, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT id, session_id, checkpoint_sequence, chain_id, job_id, billable_tokens, checkpoint_cid, priority,
		       status, attempt_count, next_attempt_at, COALESCE(tx_hash, ''), nonce,
		       COALESCE(last_error, '')
		FROM settlement_requests
		WHERE chain_id = $1 AND status IN ('pending', 'failed') AND next_attempt_at <= now()
		ORDER BY priority DESC, next_attempt_at ASC
		LIMIT $2
	`, chainID, limit)
	if err != nil {
		return nil, fmt.Errorf("query due settlement requests: %w", err)
	}
	defer rows.Close()

	var reqs []*SettlementRequest
	for rows.Next() {
		req, err := scanSettlementRow(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// MarkSubmitted transitions a request to submitted with its tx hash/nonce.
func (r *SettlementRepository) MarkSubmitted(ctx context.Context, id int64, txHash string, nonce uint64) error {
	_, err := r.client.ExecContext(ctx, `
		UPDATE settlement_requests
		SET status = $2, tx_hash = $3, nonce = $4, attempt_count = attempt_count + 1,
		    updated_at = now()
		WHERE id = $1
	`, id, SettlementSubmitted, txHash, nonce)
	if err != nil {
		return fmt.Errorf("mark settlement submitted: %w", err)
	}
	return nil
}

// MarkConfirmed transitions a request to confirmed once the chain has
// finalized it past the configured confirmation depth.
func (r *SettlementRepository) MarkConfirmed(ctx context.Context, id int64) error {
	_, err := r.client.ExecContext(ctx, `
		UPDATE settlement_requests SET status = $2, updated_at = now() WHERE id = $1
	`, id, SettlementConfirmed)
	if err != nil {
		return fmt.Errorf("mark settlement confirmed: %w", err)
	}
	return nil
}

// MarkRetry records a failed attempt and schedules the next attempt after
// backoff, or moves the request to dead_letter once maxRetries is reached.
func (r *SettlementRepository) MarkRetry(ctx context.Context, id int64, lastErr error, nextAttempt time.Time, maxRetries int) error {
	status := SettlementFailed
	row := r.client.QueryRowContext(ctx, `SELECT attempt_count FROM settlement_requests WHERE id = $1`, id)
	var attempts int
	if err := row.Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSettlementRequestNotFound
		}
		return fmt.Errorf("read attempt count: %w", err)
	}
	if attempts+1 >= maxRetries {
		status = SettlementDeadLetter
	}

	_, err := r.client.ExecContext(ctx, `
		UPDATE settlement_requests
		SET status = $2, attempt_count = attempt_count + 1, next_attempt_at = $3,
		    last_error = $4, updated_at = now()
		WHERE id = $1
	`, id, status, nextAttempt, lastErr.Error())
	if err != nil {
		return fmt.Errorf("mark settlement retry: %w", err)
	}
	return nil
}

// ByID loads a single settlement request.
func (r *SettlementRepository) ByID(ctx context.Context, id int64) (*SettlementRequest, error) {
	row := r.client.QueryRowContext(ctx, `
		SELECT id, session_id, checkpoint_sequence, chain_id, job_id, billable_tokens, checkpoint_cid, priority,
		       status, attempt_count, next_attempt_at, COALESCE(tx_hash, ''), nonce,
		       COALESCE(last_error, '')
		FROM settlement_requests WHERE id = $1
	`, id)
	return scanSettlementRow(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSettlementRow(row rowScanner) (*SettlementRequest, error) {
	req := &SettlementRequest{}
	err := row.Scan(&req.ID, &req.SessionID, &req.CheckpointSequence, &req.ChainID,
		&req.JobID, &req.BillableTokens, &req.CheckpointCID, &req.Priority, &req.Status, &req.AttemptCount,
		&req.NextAttemptAt, &req.TxHash, &req.Nonce, &req.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSettlementRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan settlement request: %w", err)
	}
	return req, nil
}
