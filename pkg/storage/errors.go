// Copyright 2025 Certen Protocol

package storage

import "errors"

var (
	ErrNotFound   = errors.New("object not found in storage")
	ErrUnavailable = errors.New("storage backend unavailable")
)
