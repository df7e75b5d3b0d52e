package store

import "errors"

var (
	// ErrUserExists is returned when adding a username that already has a
	// record.
	ErrUserExists = errors.New("user already exists")
)
