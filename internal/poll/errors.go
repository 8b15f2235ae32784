package poll

import (
	"errors"
	"fmt"
)

// ErrMaxAttemptsExceeded matches every PollExhaustedError with errors.Is.
var ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")

// PollExhaustedError is returned when a session spends its attempt budget
// without observing the target condition.
type PollExhaustedError struct {
	Kind     Kind
	Label    string
	Attempts int
	// Last is the error of the final attempt; nil when that query succeeded
	// but did not match.
	Last error
}

func (e *PollExhaustedError) Error() string {
	msg := fmt.Sprintf("%v after %d attempts", ErrMaxAttemptsExceeded, e.Attempts)
	if e.Label != "" {
		msg = fmt.Sprintf("%s poll for %s: %s", e.Kind, e.Label, msg)
	}
	if e.Last != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.Last)
	}
	return msg
}

func (e *PollExhaustedError) Unwrap() error {
	return e.Last
}

// Is reports whether target is ErrMaxAttemptsExceeded.
func (e *PollExhaustedError) Is(target error) bool {
	return target == ErrMaxAttemptsExceeded
}
