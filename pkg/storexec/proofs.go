// Copyright 2025 Certen Protocol

package storexec

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ProofArtifact is the persisted zero-knowledge proof for one checkpoint,
// bound to the four witness hashes spec.md requires.
type ProofArtifact struct {
	SessionID    string
	Sequence     uint64
	JobIDHash    string
	ModelHash    string
	InputHash    string
	OutputHash   string
	ProofBytes   []byte
	PublicInputs json.RawMessage
	ProverMode   string // "groth16" or "mock"
}

// ProofArtifactRepository persists zero-knowledge proof artifacts.
type ProofArtifactRepository struct {
	client *Client
}

// NewProofArtifactRepository constructs a ProofArtifactRepository over client.
func NewProofArtifactRepository(client *Client) *ProofArtifactRepository {
	return &ProofArtifactRepository{client: client}
}

// Insert records a newly generated proof artifact.
func (r *ProofArtifactRepository) Insert(ctx context.Context, p *ProofArtifact) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO proof_artifacts
			(session_id, sequence, job_id_hash, model_hash, input_hash, output_hash,
			 proof_bytes, public_inputs, prover_mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.SessionID, p.Sequence, p.JobIDHash, p.ModelHash, p.InputHash, p.OutputHash,
		p.ProofBytes, p.PublicInputs, p.ProverMode)
	if err != nil {
		return fmt.Errorf("insert proof artifact: %w", err)
	}
	return nil
}

// BySequence returns the proof artifact for a given (session_id, sequence).
func (r *ProofArtifactRepository) BySequence(ctx context.Context, sessionID string, sequence uint64) (*ProofArtifact, error) {
	row := r.client.QueryRowContext(ctx, `
		SELECT session_id, sequence, job_id_hash, model_hash, input_hash, output_hash,
		       proof_bytes, public_inputs, prover_mode
		FROM proof_artifacts
		WHERE session_id = $1 AND sequence = $2
	`, sessionID, sequence)

	p := &ProofArtifact{}
	err := row.Scan(&p.SessionID, &p.Sequence, &p.JobIDHash, &p.ModelHash, &p.InputHash,
		&p.OutputHash, &p.ProofBytes, &p.PublicInputs, &p.ProverMode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProofArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan proof artifact: %w", err)
	}
	return p, nil
}
