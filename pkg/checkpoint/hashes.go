// Copyright 2025 Certen Protocol
//
// The four 32-byte witness hashes a Proof Submitter commits to the zk
// journal, in the fixed order spec.md sections 3 and 4.7 require: jobId,
// modelHash, inputHash, outputHash. Adapted from
// pkg/proof/canonical_blob_hash.go's per-blob SHA-256 pattern, simplified
// because these four values are already fixed-size hashes rather than
// arbitrary JSON blobs needing canonicalization.

package checkpoint

import "crypto/sha256"

// Witness is the ordered set of public inputs a checkpoint's proof commits
// to the zk journal.
type Witness struct {
	JobIDHash  [32]byte
	ModelHash  [32]byte
	InputHash  [32]byte
	OutputHash [32]byte
}

// Concat returns the four hashes concatenated in fixed order, the exact 128
// bytes the zk guest reads as its witness and commits verbatim to the
// public journal.
func (w Witness) Concat() []byte {
	out := make([]byte, 0, 128)
	out = append(out, w.JobIDHash[:]...)
	out = append(out, w.ModelHash[:]...)
	out = append(out, w.InputHash[:]...)
	out = append(out, w.OutputHash[:]...)
	return out
}

// BuildWitness hashes the raw job id, model id, and the concatenated
// prompt/generated bytes of a checkpoint's delta into the four fixed
// 32-byte witness values.
func BuildWitness(jobID, modelID string, promptBytes, generatedBytes []byte) Witness {
	return Witness{
		JobIDHash:  sha256.Sum256([]byte(jobID)),
		ModelHash:  sha256.Sum256([]byte(modelID)),
		InputHash:  sha256.Sum256(promptBytes),
		OutputHash: sha256.Sum256(generatedBytes),
	}
}

// promptAndGeneratedBytes splits a delta's messages into the bytes of
// user/system prompt content and assistant-generated content, concatenated
// in conversation order, for witness hashing.
func promptAndGeneratedBytes(messages []DeltaMessage) (prompt []byte, generated []byte) {
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			generated = append(generated, []byte(m.Content)...)
		default:
			prompt = append(prompt, []byte(m.Content)...)
		}
	}
	return prompt, generated
}
