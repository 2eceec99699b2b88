// Copyright 2025 Certen Protocol

package settlement

import (
	"errors"
	"testing"
	"time"

	"github.com/certen/independant-validator/pkg/chainclient"
)

func TestPriorityQueueOrdersByPriorityThenFIFO(t *testing.T) {
	pq := newPriorityQueue()
	base := time.Now()
	pq.Push(1, 0, base)
	pq.Push(2, 5, base.Add(time.Second))
	pq.Push(3, 5, base)
	pq.Push(4, 2, base)

	var order []int64
	for {
		item, ok := pq.Pop()
		if !ok {
			break
		}
		order = append(order, item.requestID)
	}

	want := []int64{3, 2, 4, 1}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestNextBackoffDoublesAndCaps(t *testing.T) {
	base := time.Second
	max := 10 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, max},
		{10, max},
	}
	for _, c := range cases {
		got := nextBackoff(c.attempt, base, max)
		if got != c.want {
			t.Errorf("nextBackoff(%d) = %s, want %s", c.attempt, got, c.want)
		}
	}
}

func TestClassifySubmitErrorRecognizesNonceConflict(t *testing.T) {
	err := errors.New("nonce too low")
	if got := classifySubmitError(err); got != chainclient.ErrNonceConflict {
		t.Fatalf("got %v, want ErrNonceConflict", got)
	}
}

func TestClassifySubmitErrorRecognizesInsufficientFunds(t *testing.T) {
	err := errors.New("insufficient funds for gas * price + value")
	if got := classifySubmitError(err); got != chainclient.ErrInsufficientFunds {
		t.Fatalf("got %v, want ErrInsufficientFunds", got)
	}
}

func TestClassifySubmitErrorPassesThroughSentinels(t *testing.T) {
	if got := classifySubmitError(chainclient.ErrRevertedOnChain); got != chainclient.ErrRevertedOnChain {
		t.Fatalf("got %v, want ErrRevertedOnChain", got)
	}
}

func TestDecodePublicInputsRoundTrip(t *testing.T) {
	raw := []byte(`["1","2","3","4"]`)
	out, err := decodePublicInputs(raw)
	if err != nil {
		t.Fatalf("decodePublicInputs: %v", err)
	}
	if out[0][31] != 1 || out[3][31] != 4 {
		t.Fatalf("unexpected decode: %x", out)
	}
}

func TestDecodePublicInputsRejectsWrongCount(t *testing.T) {
	raw := []byte(`["1","2"]`)
	if _, err := decodePublicInputs(raw); err == nil {
		t.Fatal("expected error for wrong input count")
	}
}
