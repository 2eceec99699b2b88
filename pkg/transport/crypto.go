// Copyright 2025 Certen Protocol
//
// Encrypted session handshake: ECDH -> HKDF -> XChaCha20-Poly1305 decrypt
// -> inner payload -> ECDSA recover, per spec.md sections 4.2/4.3/6.

package transport

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/independant-validator/pkg/cryptosession"
)

// HandshakeResult is what a successful encrypted_session_init yields.
type HandshakeResult struct {
	SessionID     string
	SessionKey    [32]byte
	WalletAddress common.Address
}

// handleEncryptedInit runs the full ECDH->HKDF->AEAD->recover chain
// described in spec.md section 4.2. nodeKey is nil when the node has no
// HOST_PRIVATE_KEY configured (plaintext-only mode), in which case
// encrypted inits are rejected with a typed error rather than a panic.
func handleEncryptedInit(msg *EncryptedSessionInit, nodeKey *cryptosession.NodeKey) (*HandshakeResult, error) {
	if nodeKey == nil {
		return nil, fmt.Errorf("node is running in plaintext-only mode: no HOST_PRIVATE_KEY configured")
	}

	ephPub, err := hex.DecodeString(msg.EphemeralPubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid ephemeralPubKey hex: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(msg.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("invalid ciphertext base64: %w", err)
	}

	nonce, err := base64.StdEncoding.DecodeString(msg.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce base64: %w", err)
	}

	signature, err := hex.DecodeString(msg.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature hex: %w", err)
	}

	sharedKey, err := cryptosession.DeriveSharedKey(ephPub, nodeKey.Private)
	if err != nil {
		return nil, fmt.Errorf("ECDH derivation failed: %w", err)
	}

	aad := []byte(TypeEncryptedSessionInit)
	plaintext, err := cryptosession.Decrypt(ciphertext, nonce, aad, sharedKey[:])
	if err != nil {
		return nil, fmt.Errorf("AEAD decryption failed: %w", err)
	}

	var inner encryptedInnerPayload
	if err := json.Unmarshal(plaintext, &inner); err != nil {
		return nil, fmt.Errorf("inner payload is not valid JSON: %w", err)
	}

	if !common.IsHexAddress(inner.WalletAddress) {
		return nil, fmt.Errorf("inner payload walletAddress is not a valid address")
	}
	claimedAddr := common.HexToAddress(inner.WalletAddress)

	// The signature is produced over the ciphertext bytes, not the
	// recovered plaintext, so a tampered envelope fails recovery even if
	// somehow decryption had succeeded with the wrong key.
	valid, err := cryptosession.VerifyClientSignature(ciphertext, signature, claimedAddr)
	if err != nil {
		return nil, fmt.Errorf("signature recovery failed: %w", err)
	}
	if !valid {
		return nil, fmt.Errorf("encrypted_session_init: %w", cryptosession.ErrSignatureMismatch)
	}

	sessionKeyBytes, err := base64.StdEncoding.DecodeString(inner.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid sessionKey base64: %w", err)
	}
	if len(sessionKeyBytes) != 32 {
		return nil, fmt.Errorf("sessionKey must be exactly 32 bytes, got %d", len(sessionKeyBytes))
	}

	var sessionKey [32]byte
	copy(sessionKey[:], sessionKeyBytes)

	return &HandshakeResult{
		SessionID:     inner.SessionID,
		SessionKey:    sessionKey,
		WalletAddress: claimedAddr,
	}, nil
}
