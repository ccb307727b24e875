package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrAlreadyTerminal   = errors.New("job already finished")
	ErrInvalidSource     = errors.New("invalid source url")
)

// ExtractError is returned by a clip extractor when the encoder exits
// unsuccessfully. Output holds the tail of the encoder's diagnostic stream and
// is meant for operator logs only.
type ExtractError struct {
	ExitCode int
	Output   string
	Err      error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("clip extraction failed (exit %d): %v", e.ExitCode, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}
