// Copyright 2025 Certen Protocol
//
// Package storexec provides sentinel errors for repository operations.

package storexec

import "errors"

// Sentinel errors for storexec repository operations
var (
	// ErrNotFound is returned when a requested entity is not found in the database
	ErrNotFound = errors.New("entity not found")

	// ErrCheckpointNotFound is returned when a checkpoint record is not found
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrSessionNotFound is returned when a session record is not found
	ErrSessionNotFound = errors.New("session not found")

	// ErrSettlementRequestNotFound is returned when a settlement request is not found
	ErrSettlementRequestNotFound = errors.New("settlement request not found")

	// ErrProofArtifactNotFound is returned when a proof artifact is not found
	ErrProofArtifactNotFound = errors.New("proof artifact not found")

	// ErrDuplicateSettlementRequest is returned when a settlement request for the
	// same (session_id, checkpoint_sequence) already exists, enforcing
	// at-most-once submission semantics.
	ErrDuplicateSettlementRequest = errors.New("settlement request already exists for session and checkpoint sequence")
)
