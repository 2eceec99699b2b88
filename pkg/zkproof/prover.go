// Copyright 2025 Certen Protocol
//
// Groth16 prover for checkpoint witnesses. Lifecycle — Initialize compiles
// the circuit and runs the trusted setup, GenerateProof builds a witness
// assignment and proves, VerifyProofLocally rebuilds the public witness and
// verifies — follows pkg/crypto/bls_zkp/prover.go exactly. Unlike the
// teacher, proof points are serialized via gnark's own WriteTo/ReadFrom
// wire format rather than extracted into Solidity calldata components:
// spec.md only requires an opaque proof blob handed to the settlement call,
// not an on-chain verifier ABI.

package zkproof

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// ErrProverNotInitialized is returned when GenerateProof or
// VerifyProofLocally is called before Initialize/InitializeFromKeys.
var ErrProverNotInitialized = errors.New("zk prover not initialized")

// GnarkProver generates and locally verifies Groth16 proofs over a
// checkpoint's four-hash witness.
type GnarkProver struct {
	mu sync.RWMutex

	cs constraint.ConstraintSystem
	pk groth16.ProvingKey
	vk groth16.VerifyingKey

	initialized bool
}

// NewGnarkProver constructs an uninitialized GnarkProver.
func NewGnarkProver() *GnarkProver {
	return &GnarkProver{}
}

// Initialize compiles WitnessCircuit and runs the one-time Groth16 trusted
// setup. This is expensive and should run once at node startup or via
// cmd/zksetup, not per-proof.
func (p *GnarkProver) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}

	var circuit WitnessCircuit
	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return fmt.Errorf("compile witness circuit: %w", err)
	}
	p.cs = cs

	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return fmt.Errorf("groth16 setup: %w", err)
	}
	p.pk = pk
	p.vk = vk

	p.initialized = true
	return nil
}

// InitializeFromKeys loads a previously generated trusted setup from disk,
// for nodes that reuse cmd/zksetup's output instead of re-running setup.
func (p *GnarkProver) InitializeFromKeys(pkPath, vkPath, csPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}

	csFile, err := os.Open(csPath)
	if err != nil {
		return fmt.Errorf("open constraint system: %w", err)
	}
	defer csFile.Close()
	p.cs = groth16.NewCS(ecc.BN254)
	if _, err := p.cs.ReadFrom(csFile); err != nil {
		return fmt.Errorf("read constraint system: %w", err)
	}

	pkFile, err := os.Open(pkPath)
	if err != nil {
		return fmt.Errorf("open proving key: %w", err)
	}
	defer pkFile.Close()
	p.pk = groth16.NewProvingKey(ecc.BN254)
	if _, err := p.pk.ReadFrom(pkFile); err != nil {
		return fmt.Errorf("read proving key: %w", err)
	}

	vkFile, err := os.Open(vkPath)
	if err != nil {
		return fmt.Errorf("open verification key: %w", err)
	}
	defer vkFile.Close()
	p.vk = groth16.NewVerifyingKey(ecc.BN254)
	if _, err := p.vk.ReadFrom(vkFile); err != nil {
		return fmt.Errorf("read verification key: %w", err)
	}

	p.initialized = true
	return nil
}

// SaveKeys persists the compiled constraint system and trusted-setup keys,
// for cmd/zksetup to produce artifacts a running node loads via
// InitializeFromKeys.
func (p *GnarkProver) SaveKeys(pkPath, vkPath, csPath string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return ErrProverNotInitialized
	}

	csFile, err := os.Create(csPath)
	if err != nil {
		return fmt.Errorf("create constraint system file: %w", err)
	}
	defer csFile.Close()
	if _, err := p.cs.WriteTo(csFile); err != nil {
		return fmt.Errorf("write constraint system: %w", err)
	}

	pkFile, err := os.Create(pkPath)
	if err != nil {
		return fmt.Errorf("create proving key file: %w", err)
	}
	defer pkFile.Close()
	if _, err := p.pk.WriteTo(pkFile); err != nil {
		return fmt.Errorf("write proving key: %w", err)
	}

	vkFile, err := os.Create(vkPath)
	if err != nil {
		return fmt.Errorf("create verification key file: %w", err)
	}
	defer vkFile.Close()
	if _, err := p.vk.WriteTo(vkFile); err != nil {
		return fmt.Errorf("write verification key: %w", err)
	}

	return nil
}

// GenerateProof proves knowledge of w's four field elements and returns the
// serialized proof bytes plus the public inputs in fixed order.
func (p *GnarkProver) GenerateProof(w Witness) (proofBytes []byte, publicInputs [4]*big.Int, err error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return nil, publicInputs, ErrProverNotInitialized
	}

	fields := w.FieldElements()
	assignment := &WitnessCircuit{
		JobIDHash:      fields[0],
		ModelHash:      fields[1],
		InputHash:      fields[2],
		OutputHash:     fields[3],
		JobIDHashPriv:  fields[0],
		ModelHashPriv:  fields[1],
		InputHashPriv:  fields[2],
		OutputHashPriv: fields[3],
	}

	witnessData, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, publicInputs, fmt.Errorf("build witness: %w", err)
	}

	proof, err := groth16.Prove(p.cs, p.pk, witnessData)
	if err != nil {
		return nil, publicInputs, fmt.Errorf("generate proof: %w", err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, publicInputs, fmt.Errorf("serialize proof: %w", err)
	}

	return buf.Bytes(), fields, nil
}

// VerifyProofLocally rebuilds the public witness for w and verifies
// proofBytes against it. Used by tests and by any node that wants to
// double-check a proof before handing it to settlement.
func (p *GnarkProver) VerifyProofLocally(proofBytes []byte, w Witness) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return false, ErrProverNotInitialized
	}

	fields := w.FieldElements()
	assignment := &WitnessCircuit{
		JobIDHash:  fields[0],
		ModelHash:  fields[1],
		InputHash:  fields[2],
		OutputHash: fields[3],
	}
	publicWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, fmt.Errorf("build public witness: %w", err)
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return false, fmt.Errorf("deserialize proof: %w", err)
	}

	if err := groth16.Verify(proof, p.vk, publicWitness); err != nil {
		return false, nil
	}
	return true, nil
}
