// Copyright 2025 Certen Protocol
//
// The zk witness: four 32-byte hashes a checkpoint's proof commits to the
// public journal in fixed order (spec.md sections 3, 4.7, 6). Mirrors
// pkg/checkpoint.Witness's shape so the checkpoint package never needs to
// import gnark directly.

package zkproof

import "math/big"

// Witness is the ordered public input set for one checkpoint's proof.
type Witness struct {
	JobIDHash  [32]byte
	ModelHash  [32]byte
	InputHash  [32]byte
	OutputHash [32]byte
}

// FieldElements converts the four fixed-size hashes into the big.Int form
// gnark's frontend.Variable assignment expects, in the same order the
// circuit declares its public inputs.
func (w Witness) FieldElements() [4]*big.Int {
	return [4]*big.Int{
		new(big.Int).SetBytes(w.JobIDHash[:]),
		new(big.Int).SetBytes(w.ModelHash[:]),
		new(big.Int).SetBytes(w.InputHash[:]),
		new(big.Int).SetBytes(w.OutputHash[:]),
	}
}

// Concat returns the four hashes concatenated in fixed order: the exact 128
// bytes the public journal commits, and the bytes a mock proof hashes over.
func (w Witness) Concat() []byte {
	out := make([]byte, 0, 128)
	out = append(out, w.JobIDHash[:]...)
	out = append(out, w.ModelHash[:]...)
	out = append(out, w.InputHash[:]...)
	out = append(out, w.OutputHash[:]...)
	return out
}
