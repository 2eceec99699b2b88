// Copyright 2025 Certen Protocol

package storage

import (
	"context"
	"errors"
	"testing"
)

func TestNoOpPutGetRoundTrip(t *testing.T) {
	c := NewClient(Config{Enabled: false})
	ctx := context.Background()

	body := []byte("checkpoint delta bytes")
	cid, err := c.Put(ctx, body)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if cid == "" {
		t.Fatal("expected non-empty cid")
	}

	got, err := c.Get(ctx, cid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(body) {
		t.Fatalf("round trip mismatch: got %q want %q", got, body)
	}
}

func TestNoOpGetMissingReturnsNotFound(t *testing.T) {
	c := NewClient(Config{Enabled: false})
	_, err := c.Get(context.Background(), "local:deadbeef")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSameContentProducesSameCID(t *testing.T) {
	c := NewClient(Config{Enabled: false})
	ctx := context.Background()
	body := []byte("identical payload")

	cid1, err := c.Put(ctx, body)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	cid2, err := c.Put(ctx, body)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if cid1 != cid2 {
		t.Fatalf("expected content-addressed cid stability, got %q vs %q", cid1, cid2)
	}
}
