package storage

import (
	"errors"
)

var (
	// ErrNotFound is returned when a retrieved key does not exist in the database.
	ErrNotFound = errors.New("key not found")

	// ErrAlreadyExists is returned when an insert attempts to set the value
	// of a key that already exists.
	ErrAlreadyExists = errors.New("key already exists")

	// ErrDataMismatch is returned when a repeatable insert would overwrite an
	// existing key with different data.
	ErrDataMismatch = errors.New("data for key is different")
)
