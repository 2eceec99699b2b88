// Copyright 2025 Certen Protocol
//
// Checkpoint delta: the signed, canonical-JSON unit a Checkpoint Publisher
// uploads to content-addressed storage. Field names follow spec.md section
// 6's wire example; keys are sorted by byte order, so "messageRangeStart"
// precedes "messages" (messageRangeStart/messages/previousCid/sessionId/
// signature/tokenCountAtEnd, no whitespace).

package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/certen/independant-validator/pkg/commitment"
	"github.com/certen/independant-validator/pkg/session"
)

// DeltaMessage is the wire representation of one session.Message inside a
// checkpoint delta.
type DeltaMessage struct {
	Role      session.Role `json:"role"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
}

// Delta is one signed checkpoint unit: the new messages since the previous
// checkpoint, plus enough bookkeeping for an external SDK to rebuild session
// state from a chain of checkpoints.
type Delta struct {
	SessionID         string         `json:"sessionId"`
	PreviousCID       *string        `json:"previousCid"`
	MessageRangeStart int            `json:"messageRangeStart"`
	Messages          []DeltaMessage `json:"messages"`
	TokenCountAtEnd   uint64         `json:"tokenCountAtEnd"`
	Signature         string         `json:"signature"`
}

// BuildDelta slices conversation_history[checkpointCursor:] into a Delta,
// the first step of the Token Accountant's seven-step trigger (spec.md
// section 4.5 step 1).
func BuildDelta(sessionID string, previousCID *string, checkpointCursor int, history []session.Message, tokenCountAtEnd uint64) Delta {
	slice := history[checkpointCursor:]
	messages := make([]DeltaMessage, len(slice))
	for i, m := range slice {
		messages[i] = DeltaMessage{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp}
	}
	return Delta{
		SessionID:         sessionID,
		PreviousCID:       previousCID,
		MessageRangeStart: checkpointCursor,
		Messages:          messages,
		TokenCountAtEnd:   tokenCountAtEnd,
	}
}

// CanonicalBytes returns the canonical JSON bytes the signature covers:
// the delta with its own signature field blanked, keys sorted, no
// whitespace. Both signing and later verification must operate on exactly
// these bytes (spec.md section 4.6).
func (d Delta) CanonicalBytes() ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, err
	}
	return commitment.CanonicalSigningBytes(asMap, "signature")
}

// SignedCanonicalBytes returns the canonical JSON bytes of the delta
// including its populated signature field, for upload to storage.
func (d Delta) SignedCanonicalBytes() ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return commitment.CanonicalizeJSON(raw)
}
