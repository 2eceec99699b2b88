// Copyright 2025 Certen Protocol

package session

import "errors"

var (
	// ErrNotFound is returned by Get/Update/End for an unknown session id.
	ErrNotFound = errors.New("session not found")

	// ErrCapacityExceeded is returned by Create when the store is at
	// max_sessions and the id does not already exist.
	ErrCapacityExceeded = errors.New("session store at capacity")

	// ErrChainNotConfigured is returned when a session is created with a
	// chain_id outside the configured chain set.
	ErrChainNotConfigured = errors.New("chain_id is not configured")

	// ErrModelAlreadyBound is returned if code attempts to change a
	// session's model_id after it was fixed by the first prompt.
	ErrModelAlreadyBound = errors.New("session model_id is already bound")

	// ErrClosed is not returned by any Store method: once a session has
	// ended its id is gone from the store, and lookups return ErrNotFound.
	ErrClosed = errors.New("session is closed")
)
