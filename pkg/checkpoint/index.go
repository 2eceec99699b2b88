// Copyright 2025 Certen Protocol
//
// Checkpoint index: the durable record tying a session's signed deltas to
// their storage CIDs and content hashes, backed by pkg/storexec's Postgres
// repository. The checkpoint trigger runs outside the session actor (see
// accounting.Accountant.record), so nothing here serializes two updates
// for the same session; the (session_id, sequence) primary key rejects a
// second insert of the same sequence. Cross-session inserts run in
// parallel against independent rows (spec.md section 4.6).

package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/certen/independant-validator/pkg/storexec"
)

// Index persists signed checkpoint deltas keyed by (session_id, sequence).
type Index struct {
	repo *storexec.CheckpointRepository
}

// NewIndex constructs an Index over repo.
func NewIndex(repo *storexec.CheckpointRepository) *Index {
	return &Index{repo: repo}
}

// Record writes one checkpoint's index entry after its delta has already
// been uploaded to storage. cid is the storage CID returned by the PUT step;
// payload is the delta's signed canonical bytes; signature is the delta's
// EIP-191 signature (0x-prefixed hex).
func (idx *Index) Record(ctx context.Context, sessionID string, sequence uint64, jobID string, deltaTokens, tokenCountAtEnd uint64, cid string, payload []byte, signature string) error {
	sum := sha256.Sum256(payload)
	cp := &storexec.Checkpoint{
		SessionID:        sessionID,
		Sequence:         sequence,
		JobID:            jobID,
		BillableTokens:   tokenCountAtEnd,
		DeltaTokens:      deltaTokens,
		StorageCID:       cid,
		ContentHash:      "0x" + hex.EncodeToString(sum[:]),
		HostSignature:    signature,
		CanonicalPayload: payload,
	}
	if err := idx.repo.Insert(ctx, cp); err != nil {
		return fmt.Errorf("record checkpoint index entry: %w", err)
	}
	return nil
}

// Latest returns the most recent checkpoint recorded for a session, or
// storexec.ErrCheckpointNotFound if the session has none yet.
func (idx *Index) Latest(ctx context.Context, sessionID string) (*storexec.Checkpoint, error) {
	return idx.repo.Latest(ctx, sessionID)
}

// PreviousCID returns the storage CID of the latest recorded checkpoint for
// sessionID, or nil if the session has no prior checkpoint (first delta in
// the chain).
func (idx *Index) PreviousCID(ctx context.Context, sessionID string) (*string, error) {
	latest, err := idx.repo.Latest(ctx, sessionID)
	if err != nil {
		if err == storexec.ErrCheckpointNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("load previous checkpoint: %w", err)
	}
	cid := latest.StorageCID
	return &cid, nil
}
