// Copyright 2025 Certen Protocol

package zkproof

import (
	"crypto/sha256"
	"testing"
)

func testWitness() Witness {
	return Witness{
		JobIDHash:  sha256.Sum256([]byte("job-1")),
		ModelHash:  sha256.Sum256([]byte("model-1")),
		InputHash:  sha256.Sum256([]byte("prompt")),
		OutputHash: sha256.Sum256([]byte("Paris")),
	}
}

func TestMockProverRoundTrip(t *testing.T) {
	p := NewMockProver()
	w := testWitness()

	proof, pub, err := p.GenerateProof(w)
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}
	if len(proof) == 0 {
		t.Fatal("expected non-empty proof bytes")
	}
	want := w.FieldElements()
	for i := range pub {
		if pub[i].Cmp(want[i]) != 0 {
			t.Fatalf("public input %d mismatch: got %s want %s", i, pub[i], want[i])
		}
	}

	ok, err := p.VerifyProofLocally(proof, w)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected mock proof to verify against its own witness")
	}

	other := testWitness()
	other.OutputHash = sha256.Sum256([]byte("London"))
	ok, err = p.VerifyProofLocally(proof, other)
	if err != nil {
		t.Fatalf("verify against different witness: %v", err)
	}
	if ok {
		t.Fatal("expected proof not to verify against a different witness")
	}
}

func TestWitnessConcatFixedOrder(t *testing.T) {
	w := testWitness()
	concat := w.Concat()
	if len(concat) != 128 {
		t.Fatalf("expected 128 bytes, got %d", len(concat))
	}
	if string(concat[:32]) != string(w.JobIDHash[:]) {
		t.Fatal("expected jobId hash first")
	}
	if string(concat[96:]) != string(w.OutputHash[:]) {
		t.Fatal("expected output hash last")
	}
}

// TestGnarkProverRoundTrip exercises the real Groth16 backend. Trusted
// setup is expensive, so it is skipped under -short.
func TestGnarkProverRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping gnark trusted setup in short mode")
	}

	p := NewGnarkProver()
	if err := p.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	w := testWitness()
	proof, _, err := p.GenerateProof(w)
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}

	ok, err := p.VerifyProofLocally(proof, w)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected valid proof to verify")
	}

	other := testWitness()
	other.OutputHash = sha256.Sum256([]byte("London"))
	ok, err = p.VerifyProofLocally(proof, other)
	if err != nil {
		t.Fatalf("verify against different witness: %v", err)
	}
	if ok {
		t.Fatal("expected proof not to verify against a different witness")
	}
}
