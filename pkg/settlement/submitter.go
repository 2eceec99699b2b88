// Copyright 2025 Certen Protocol
//
// Submitter implements pkg/checkpoint.ProofSubmitter: given a published
// checkpoint's witness, it generates the zero-knowledge proof (step 6 of
// the Token Accountant's seven-step trigger, spec.md section 4.5) and
// enqueues the settlement request the per-chain workers will later submit
// on-chain (spec.md section 4.8).

package settlement

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/certen/independant-validator/pkg/checkpoint"
	"github.com/certen/independant-validator/pkg/storexec"
	"github.com/certen/independant-validator/pkg/zkproof"
)

// Submitter binds a zkproof.Prover to the proof-artifact and
// settlement-request repositories.
type Submitter struct {
	Prover      zkproof.Prover
	ProverMode  string // "groth16" or "mock", recorded alongside the artifact
	Proofs      *storexec.ProofArtifactRepository
	Requests    *storexec.SettlementRepository
	DefaultPrio uint8
}

// NewSubmitter constructs a Submitter.
func NewSubmitter(prover zkproof.Prover, proverMode string, proofs *storexec.ProofArtifactRepository, requests *storexec.SettlementRepository) *Submitter {
	return &Submitter{Prover: prover, ProverMode: proverMode, Proofs: proofs, Requests: requests, DefaultPrio: 0}
}

// Submit generates the checkpoint's proof and enqueues it for on-chain
// settlement. A duplicate (session_id, checkpoint_sequence) enqueue is
// treated as success, preserving at-most-once submission.
func (s *Submitter) Submit(ctx context.Context, sessionID string, sequence uint64, jobID string, chainID uint64, tokenCount uint64, checkpointCID string, witness checkpoint.Witness) error {
	w := zkproof.Witness{
		JobIDHash:  witness.JobIDHash,
		ModelHash:  witness.ModelHash,
		InputHash:  witness.InputHash,
		OutputHash: witness.OutputHash,
	}

	proofBytes, publicInputs, err := s.Prover.GenerateProof(w)
	if err != nil {
		return fmt.Errorf("generate proof for session %s checkpoint %d: %w", sessionID, sequence, err)
	}

	publicInputsJSON, err := json.Marshal([]string{
		publicInputs[0].String(), publicInputs[1].String(),
		publicInputs[2].String(), publicInputs[3].String(),
	})
	if err != nil {
		return fmt.Errorf("marshal public inputs: %w", err)
	}

	hex := func(b [32]byte) string { return "0x" + fmt.Sprintf("%x", b) }
	artifact := &storexec.ProofArtifact{
		SessionID:    sessionID,
		Sequence:     sequence,
		JobIDHash:    hex(witness.JobIDHash),
		ModelHash:    hex(witness.ModelHash),
		InputHash:    hex(witness.InputHash),
		OutputHash:   hex(witness.OutputHash),
		ProofBytes:   proofBytes,
		PublicInputs: publicInputsJSON,
		ProverMode:   s.ProverMode,
	}
	if err := s.Proofs.Insert(ctx, artifact); err != nil {
		return fmt.Errorf("persist proof artifact: %w", err)
	}

	req := &storexec.SettlementRequest{
		SessionID:          sessionID,
		CheckpointSequence: sequence,
		ChainID:            chainID,
		JobID:              jobID,
		BillableTokens:     tokenCount,
		CheckpointCID:      checkpointCID,
		Priority:           s.DefaultPrio,
	}
	if _, err := s.Requests.Enqueue(ctx, req); err != nil {
		if err == storexec.ErrDuplicateSettlementRequest {
			return nil
		}
		return fmt.Errorf("enqueue settlement request: %w", err)
	}
	return nil
}
