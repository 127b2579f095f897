package errors

import (
	"fmt"
)

var (
	ErrNotFound           = fmt.Errorf("not found")
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrDuplicateEmail     = fmt.Errorf("email already registered")
	ErrInvalidCredentials = fmt.Errorf("invalid email or password")
	ErrUnauthenticated    = fmt.Errorf("unauthenticated")
	ErrBotDetected        = fmt.Errorf("bot detected")
	ErrVerificationFailed = fmt.Errorf("verification failed")
	// ErrCorruptRow is returned when a stored row cannot be mapped onto the domain model.
	ErrCorruptRow = fmt.Errorf("corrupt row")
)
