// Copyright 2025 Certen Protocol

package cryptosession

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestAEADRoundTrip(t *testing.T) {
	var key [KeySize]byte
	var nonce [NonceSize]byte
	if _, err := rand.Read(key[:]); err != nil {
		t.Fatal(err)
	}
	if _, err := rand.Read(nonce[:]); err != nil {
		t.Fatal(err)
	}

	plaintext := []byte("test message")
	aad := []byte("prompt")

	ciphertext, err := Encrypt(plaintext, nonce[:], aad, key[:])
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	decrypted, err := Decrypt(ciphertext, nonce[:], aad, key[:])
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", decrypted, plaintext)
	}
}

func TestAEADTamperedAADFails(t *testing.T) {
	var key [KeySize]byte
	var nonce [NonceSize]byte
	rand.Read(key[:])
	rand.Read(nonce[:])

	ciphertext, err := Encrypt([]byte("hello"), nonce[:], []byte("tag-a"), key[:])
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decrypt(ciphertext, nonce[:], []byte("tag-b"), key[:]); err == nil {
		t.Fatal("expected decryption to fail with tampered AAD")
	}
}

func TestAEADRejectsBadSizes(t *testing.T) {
	key := make([]byte, KeySize)
	if _, err := Encrypt([]byte("x"), make([]byte, 12), nil, key); err == nil {
		t.Fatal("expected error for short nonce")
	}
	if _, err := Encrypt([]byte("x"), make([]byte, NonceSize), nil, make([]byte, 16)); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestECDHSharedKeyAgreement(t *testing.T) {
	nodePriv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	clientPriv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	clientPub := crypto.FromECDSAPub(&clientPriv.PublicKey) // 65-byte uncompressed
	key1, err := DeriveSharedKey(clientPub, nodePriv)
	if err != nil {
		t.Fatalf("node-side derive: %v", err)
	}

	nodePub := crypto.FromECDSAPub(&nodePriv.PublicKey)
	key2, err := DeriveSharedKey(nodePub, clientPriv)
	if err != nil {
		t.Fatalf("client-side derive: %v", err)
	}

	if key1 != key2 {
		t.Fatalf("ECDH shared keys do not match: %x vs %x", key1, key2)
	}
}

func TestECDHRejectsBadPubKeySize(t *testing.T) {
	nodePriv, _ := crypto.GenerateKey()
	if _, err := DeriveSharedKey(make([]byte, 10), nodePriv); err == nil {
		t.Fatal("expected error for invalid public key length")
	}
}

func TestSignatureRecoverRoundTrip(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr := crypto.PubkeyToAddress(priv.PublicKey)

	message := []byte(`{"sessionId":"s1"}`)
	hash := EIP191Hash(message)

	sig, err := crypto.Sign(hash.Bytes(), priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	recovered, err := RecoverAddress(sig, hash.Bytes())
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != addr {
		t.Fatalf("recovered address mismatch: got %s want %s", recovered.Hex(), addr.Hex())
	}

	ok, err := VerifyClientSignature(message, sig, addr)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected signature to verify against signer address")
	}
}

func TestLoadNodeKeyValidation(t *testing.T) {
	if _, err := LoadNodeKey(""); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := LoadNodeKey("deadbeef"); err == nil {
		t.Fatal("expected error for missing 0x prefix")
	}
	if _, err := LoadNodeKey("0x1234"); err == nil {
		t.Fatal("expected error for short key")
	}

	valid := "0x1111111111111111111111111111111111111111111111111111111111111111"[:66]
	key, err := LoadNodeKey(valid)
	if err != nil {
		t.Fatalf("expected valid key to load, got %v", err)
	}
	if key.Address == "" {
		t.Fatal("expected derived address")
	}
}

func TestSessionKeyStoreTTL(t *testing.T) {
	store := NewSessionKeyStore(0)
	var key [32]byte
	store.Put("s1", key)

	if _, err := store.Get("s1"); err == nil {
		t.Fatal("expected immediate expiry with zero TTL")
	}
}
