// Copyright 2025 Certen Protocol
//
// MockProver stands in for GnarkProver when no trusted setup is available
// (local development, CI, SPEC_FULL.md section 14's proving-backend open
// question resolved in favor of an explicit mock mode rather than skipping
// proof submission entirely). It produces a deterministic placeholder
// proof over the same witness a real prover would consume, so the rest of
// the checkpoint/settlement pipeline is exercised identically either way.

package zkproof

import (
	"crypto/sha256"
	"math/big"
)

const mockProofPrefix = "mock-proof:"

// MockProver returns deterministic, non-cryptographic placeholder proofs.
type MockProver struct{}

// NewMockProver constructs a MockProver.
func NewMockProver() *MockProver { return &MockProver{} }

// GenerateProof returns a deterministic hash of the witness prefixed with a
// marker, so callers and tests can distinguish mock proofs from real ones.
func (MockProver) GenerateProof(w Witness) (proofBytes []byte, publicInputs [4]*big.Int, err error) {
	sum := sha256.Sum256(w.Concat())
	proofBytes = append([]byte(mockProofPrefix), sum[:]...)
	return proofBytes, w.FieldElements(), nil
}

// VerifyProofLocally recomputes the same deterministic digest and compares.
func (MockProver) VerifyProofLocally(proofBytes []byte, w Witness) (bool, error) {
	want, _, err := (MockProver{}).GenerateProof(w)
	if err != nil {
		return false, err
	}
	if len(proofBytes) != len(want) {
		return false, nil
	}
	for i := range proofBytes {
		if proofBytes[i] != want[i] {
			return false, nil
		}
	}
	return true, nil
}
