// Copyright 2025 Certen Protocol
//
// XChaCha20-Poly1305 authenticated encryption for session message envelopes.

package cryptosession

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// NonceSize is the XChaCha20-Poly1305 extended nonce size.
	NonceSize = chacha20poly1305.NonceSizeX
	// KeySize is the XChaCha20-Poly1305 key size.
	KeySize = chacha20poly1305.KeySize
)

// Encrypt seals plaintext under key with the given 24-byte nonce and
// optional additional authenticated data, returning ciphertext with the
// 16-byte Poly1305 tag appended.
func Encrypt(plaintext, nonce, aad, key []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("invalid nonce size: expected %d bytes, got %d", NonceSize, len(nonce))
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: expected %d bytes, got %d", KeySize, len(key))
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Decrypt opens ciphertext under key with the given nonce/aad, returning an
// error if the authentication tag does not verify (tampered or wrong key).
func Decrypt(ciphertext, nonce, aad, key []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("invalid nonce size: expected %d bytes, got %d", NonceSize, len(nonce))
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: expected %d bytes, got %d", KeySize, len(key))
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (authentication error): %w", err)
	}
	return plaintext, nil
}
