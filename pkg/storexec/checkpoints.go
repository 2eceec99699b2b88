// Copyright 2025 Certen Protocol

package storexec

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Checkpoint is the persisted record of one checkpoint delta for a session.
type Checkpoint struct {
	SessionID        string
	Sequence         uint64
	JobID            string
	BillableTokens   uint64
	DeltaTokens      uint64
	StorageCID       string
	ContentHash      string
	HostSignature    string
	CanonicalPayload json.RawMessage
}

// CheckpointRepository persists the checkpoint index.
type CheckpointRepository struct {
	client *Client
}

// NewCheckpointRepository constructs a CheckpointRepository over client.
func NewCheckpointRepository(client *Client) *CheckpointRepository {
	return &CheckpointRepository{client: client}
}

// Insert records a new checkpoint. Sequence numbers are expected to be
// assigned by the caller (monotonic per session) and are the index's
// primary key alongside session_id.
func (r *CheckpointRepository) Insert(ctx context.Context, cp *Checkpoint) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO checkpoints
			(session_id, sequence, job_id, billable_tokens, delta_tokens,
			 storage_cid, content_hash, host_signature, canonical_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, cp.SessionID, cp.Sequence, cp.JobID, cp.BillableTokens, cp.DeltaTokens,
		cp.StorageCID, cp.ContentHash, cp.HostSignature, cp.CanonicalPayload)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// Latest returns the highest-sequence checkpoint for a session.
func (r *CheckpointRepository) Latest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	row := r.client.QueryRowContext(ctx, `
		SELECT session_id, sequence, job_id, billable_tokens, delta_tokens,
		       storage_cid, content_hash, host_signature, canonical_payload
		FROM checkpoints
		WHERE session_id = $1
		ORDER BY sequence DESC
		LIMIT 1
	`, sessionID)
	return scanCheckpoint(row)
}

// BySequence returns a specific (session_id, sequence) checkpoint.
func (r *CheckpointRepository) BySequence(ctx context.Context, sessionID string, sequence uint64) (*Checkpoint, error) {
	row := r.client.QueryRowContext(ctx, `
		SELECT session_id, sequence, job_id, billable_tokens, delta_tokens,
		       storage_cid, content_hash, host_signature, canonical_payload
		FROM checkpoints
		WHERE session_id = $1 AND sequence = $2
	`, sessionID, sequence)
	return scanCheckpoint(row)
}

// OlderThanRetention returns session_id/sequence pairs for checkpoints whose
// created_at is outside the retention window, for the cleanup scheduler.
func (r *CheckpointRepository) OlderThanRetention(ctx context.Context, retentionSeconds int64) ([]CheckpointRef, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT session_id, sequence
		FROM checkpoints
		WHERE created_at < now() - ($1 * interval '1 second')
	`, retentionSeconds)
	if err != nil {
		return nil, fmt.Errorf("query expired checkpoints: %w", err)
	}
	defer rows.Close()

	var refs []CheckpointRef
	for rows.Next() {
		var ref CheckpointRef
		if err := rows.Scan(&ref.SessionID, &ref.Sequence); err != nil {
			return nil, fmt.Errorf("scan checkpoint ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// DeleteBefore removes checkpoint rows older than the retention window.
func (r *CheckpointRepository) DeleteBefore(ctx context.Context, retentionSeconds int64) (int64, error) {
	res, err := r.client.ExecContext(ctx, `
		DELETE FROM checkpoints WHERE created_at < now() - ($1 * interval '1 second')
	`, retentionSeconds)
	if err != nil {
		return 0, fmt.Errorf("delete expired checkpoints: %w", err)
	}
	return res.RowsAffected()
}

// CheckpointRef identifies a checkpoint without loading its full payload.
type CheckpointRef struct {
	SessionID string
	Sequence  uint64
}

func scanCheckpoint(row *sql.Row) (*Checkpoint, error) {
	cp := &Checkpoint{}
	err := row.Scan(&cp.SessionID, &cp.Sequence, &cp.JobID, &cp.BillableTokens,
		&cp.DeltaTokens, &cp.StorageCID, &cp.ContentHash, &cp.HostSignature,
		&cp.CanonicalPayload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}
	return cp, nil
}
