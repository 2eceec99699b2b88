// Copyright 2025 Certen Protocol

package modelauth

import "errors"

// Sentinel errors naming the exact failing condition of the four-step
// ordered startup validation and the per-job admission check, per spec.md
// section 4.9. Each is fatal at startup if global, per-job if local.
var (
	ErrHashMismatch         = errors.New("model file sha-256 does not match on-chain expected hash")
	ErrModelNotApproved     = errors.New("model is not approved on-chain")
	ErrNodeNotAuthorized    = errors.New("node is not authorized to serve this model")
	ErrUnauthorizedJobClaim = errors.New("job's model id does not match the node's served model id")
	ErrUnknownModel         = errors.New("model filename not found in dynamic model map")
)
