// Copyright 2025 Certen Protocol
//
// Failure classification for chain RPC errors. go-ethereum surfaces most
// node-rejection reasons as plain error strings rather than typed errors,
// so nonce and funding failures are recognized by substring the way
// pkg/chain/strategy/evm_strategy.go's callers inspect SendTransaction
// errors before deciding whether to retry.

package settlement

import (
	"errors"
	"strings"

	"github.com/certen/independant-validator/pkg/chainclient"
)

func classifySubmitError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, chainclient.ErrRevertedOnChain) || errors.Is(err, chainclient.ErrNonceConflict) ||
		errors.Is(err, chainclient.ErrInsufficientFunds) || errors.Is(err, chainclient.ErrProviderUnavailable) ||
		errors.Is(err, chainclient.ErrUnsupportedChain) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "nonce too low"), strings.Contains(msg, "nonce too high"), strings.Contains(msg, "replacement transaction underpriced"):
		return chainclient.ErrNonceConflict
	case strings.Contains(msg, "insufficient funds"):
		return chainclient.ErrInsufficientFunds
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "timeout"), strings.Contains(msg, "eof"):
		return chainclient.ErrProviderUnavailable
	default:
		return err
	}
}
