// Copyright 2025 Certen Protocol

package checkpoint

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/independant-validator/pkg/cryptosession"
)

// Sign computes the EIP-191 signature over d's canonical bytes (signature
// field blanked) and returns d with Signature populated as "0x"-prefixed
// hex, matching spec.md section 3's checkpoint-delta signature contract.
func Sign(d Delta, nodeKey *ecdsa.PrivateKey) (Delta, error) {
	canon, err := d.CanonicalBytes()
	if err != nil {
		return Delta{}, fmt.Errorf("canonicalize delta for signing: %w", err)
	}
	hash := cryptosession.EIP191Hash(canon)
	sig, err := crypto.Sign(hash.Bytes(), nodeKey)
	if err != nil {
		return Delta{}, fmt.Errorf("sign checkpoint delta: %w", err)
	}
	d.Signature = "0x" + hex.EncodeToString(sig)
	return d, nil
}

// VerifySignature recovers the signer of d's canonical bytes and reports
// whether it matches expectedAddress. Used by tests and by any consumer
// re-validating an uploaded checkpoint.
func VerifySignature(d Delta, expectedAddress string) (bool, error) {
	sigHex := d.Signature
	d.Signature = ""
	canon, err := d.CanonicalBytes()
	if err != nil {
		return false, fmt.Errorf("canonicalize delta for verification: %w", err)
	}

	sigBytes, err := hex.DecodeString(trimHexPrefix(sigHex))
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	hash := cryptosession.EIP191Hash(canon)
	addr, err := cryptosession.RecoverAddress(sigBytes, hash.Bytes())
	if err != nil {
		return false, err
	}
	return addr.Hex() == expectedAddress, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
