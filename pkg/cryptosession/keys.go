// Copyright 2025 Certen Protocol
//
// Node private key extraction from HOST_PRIVATE_KEY, mirroring the key
// lifecycle discipline of a load-or-generate file keystore (validate
// format strictly, never log the secret itself).

package cryptosession

import (
	"crypto/ecdsa"
	"fmt"
	"log"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

var logger = log.New(log.Writer(), "[CryptoSession] ", log.LstdFlags)

// NodeKey holds the compute host's static secp256k1 identity key.
type NodeKey struct {
	Private *ecdsa.PrivateKey
	Address string
}

// LoadNodeKey parses a HOST_PRIVATE_KEY value. It must be a 0x-prefixed,
// 64 hex-character secp256k1 private key. The raw key material is never
// logged; only success/failure is.
func LoadNodeKey(hostPrivateKey string) (*NodeKey, error) {
	key := strings.TrimSpace(hostPrivateKey)
	if key == "" {
		return nil, fmt.Errorf("HOST_PRIVATE_KEY is empty")
	}
	if !strings.HasPrefix(key, "0x") {
		return nil, fmt.Errorf("HOST_PRIVATE_KEY must start with '0x' prefix")
	}
	hexPart := key[2:]
	if len(hexPart) != 64 {
		return nil, fmt.Errorf("HOST_PRIVATE_KEY must be exactly 64 hex characters, got %d", len(hexPart))
	}

	priv, err := crypto.HexToECDSA(hexPart)
	if err != nil {
		return nil, fmt.Errorf("HOST_PRIVATE_KEY is not a valid secp256k1 key: %w", err)
	}

	addr := crypto.PubkeyToAddress(priv.PublicKey)
	logger.Printf("node private key loaded successfully (address=%s)", addr.Hex())

	return &NodeKey{Private: priv, Address: addr.Hex()}, nil
}
