package chat

import "errors"

var (
	// ErrDuplicateLogin is returned by Registry.Admit when the username
	// already has a live connection.
	ErrDuplicateLogin = errors.New("username already connected")

	// ErrRegistryClosed is returned by Registry.Admit once shutdown has
	// begun and no further admissions are accepted.
	ErrRegistryClosed = errors.New("registry closed")

	// ErrInvalidDuration is returned for mute durations that do not match
	// the <digits><s|m|h> form.
	ErrInvalidDuration = errors.New("invalid duration")
)
