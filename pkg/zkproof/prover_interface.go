// Copyright 2025 Certen Protocol

package zkproof

import "math/big"

// Prover produces a zero-knowledge proof binding a checkpoint's four-hash
// witness, and can locally verify one. Exactly two implementations exist:
// GnarkProver (real Groth16 backend) and MockProver (deterministic
// placeholder, for environments without a trusted setup) — mirroring
// pkg/inference.Runtime's real-vs-mock split, never a third "mode" picked
// at random.
type Prover interface {
	GenerateProof(w Witness) (proofBytes []byte, publicInputs [4]*big.Int, err error)
	VerifyProofLocally(proofBytes []byte, w Witness) (bool, error)
}
