// Copyright 2025 Certen Protocol
//
// EIP-191 personal-message signing and ECDSA signature recovery, used to
// authenticate a client's wallet address during session initialization.

package cryptosession

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureSize is the length of a compact ECDSA signature (r || s || v).
const SignatureSize = 65

// ErrSignatureMismatch is returned when a recovered signer does not match
// the address the caller claimed, a security violation per spec.md
// section 7 (close session and clear key), not a recoverable protocol
// error.
var ErrSignatureMismatch = errors.New("recovered signer does not match claimed address")

// EIP191Hash returns the keccak256 hash of message prefixed per EIP-191
// ("\x19Ethereum Signed Message:\n" + len(message) + message).
func EIP191Hash(message []byte) common.Hash {
	return accounts.TextHash(message)
}

// RecoverAddress recovers the Ethereum address that produced a 65-byte
// compact signature (r || s || v) over messageHash.
func RecoverAddress(signature []byte, messageHash []byte) (common.Address, error) {
	if len(signature) != SignatureSize {
		return common.Address{}, fmt.Errorf("invalid signature size: expected %d bytes, got %d", SignatureSize, len(signature))
	}
	if len(messageHash) != 32 {
		return common.Address{}, fmt.Errorf("invalid message hash size: expected 32 bytes, got %d", len(messageHash))
	}

	sig := make([]byte, SignatureSize)
	copy(sig, signature)
	// go-ethereum's Ecrecover expects a recovery id of 0 or 1; wallets
	// following the Ethereum convention encode v as 27/28 (or 0/1 plus a
	// chain-id offset for EIP-155). Normalize to 0/1 before recovery.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(messageHash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed: %w", err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyClientSignature recovers the signer of message (EIP-191 hashed) and
// reports whether it matches expectedAddress.
func VerifyClientSignature(message []byte, signature []byte, expectedAddress common.Address) (bool, error) {
	hash := EIP191Hash(message)
	recovered, err := RecoverAddress(signature, hash.Bytes())
	if err != nil {
		return false, err
	}
	return recovered == expectedAddress, nil
}
