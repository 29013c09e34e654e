package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateKey is returned when a unique field (email, username) is taken.
var ErrDuplicateKey = errors.New("duplicate key")
