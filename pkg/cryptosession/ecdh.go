// Copyright 2025 Certen Protocol
//
// ECDH key exchange over secp256k1 (the same curve Ethereum uses), with
// HKDF-SHA256 used to derive a symmetric session key from the shared point.

package cryptosession

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfo = "fabstir-session-v1"

// DeriveSharedKey performs ECDH between the node's static private key and a
// client's ephemeral public key (accepted as either 33-byte compressed or
// 65-byte uncompressed secp256k1 encoding), then runs the resulting shared
// point's X-coordinate through HKDF-SHA256 to produce a 32-byte key suitable
// for XChaCha20-Poly1305.
func DeriveSharedKey(clientEphemeralPub []byte, nodePriv *ecdsa.PrivateKey) ([32]byte, error) {
	var out [32]byte

	pub, err := parsePublicKey(clientEphemeralPub)
	if err != nil {
		return out, fmt.Errorf("parse client ephemeral public key: %w", err)
	}

	curve := crypto.S256()
	if !curve.IsOnCurve(pub.X, pub.Y) {
		return out, fmt.Errorf("client ephemeral public key is not on curve")
	}

	sharedX, _ := curve.ScalarMult(pub.X, pub.Y, nodePriv.D.Bytes())
	if sharedX == nil {
		return out, fmt.Errorf("ECDH scalar multiplication failed")
	}

	sharedSecret := make([]byte, 32)
	sharedX.FillBytes(sharedSecret)

	kdf := hkdf.New(sha256.New, sharedSecret, nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, out[:]); err != nil {
		return out, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return out, nil
}

// parsePublicKey accepts 33-byte compressed or 65-byte uncompressed
// secp256k1 public keys, matching what client SDKs commonly send.
func parsePublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	switch len(raw) {
	case 65:
		return crypto.UnmarshalPubkey(raw)
	case 33:
		return crypto.DecompressPubkey(raw)
	default:
		return nil, fmt.Errorf("expected 33 or 65 byte public key, got %d bytes", len(raw))
	}
}
