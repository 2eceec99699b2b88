// Copyright 2025 Certen Protocol

package chainclient

import "errors"

// Sentinel errors shared by settlement and model authorization, matching
// spec.md section 4.8's failure taxonomy.
var (
	ErrUnsupportedChain    = errors.New("unsupported chain")
	ErrProviderUnavailable = errors.New("chain rpc provider unavailable")
	ErrInsufficientFunds   = errors.New("insufficient funds for transaction")
	ErrNonceConflict       = errors.New("nonce conflict")
	ErrRevertedOnChain     = errors.New("transaction reverted on chain")
)
