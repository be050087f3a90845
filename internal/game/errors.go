package game

import (
	"errors"
	"fmt"
)

// InvalidMoveError reports an illegal action: wrong declared rank, a card not
// in the acting player's hand, or a call with nothing to call. It is always
// recoverable; the session surfaces the reason to the acting participant and
// the turn continues.
type InvalidMoveError struct {
	Reason string
}

func (e *InvalidMoveError) Error() string {
	return e.Reason
}

// invalidMovef builds an InvalidMoveError with a formatted reason.
func invalidMovef(format string, args ...any) error {
	return &InvalidMoveError{Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidMove reports whether err is an InvalidMoveError.
func IsInvalidMove(err error) bool {
	var ime *InvalidMoveError
	return errors.As(err, &ime)
}

// ErrMissingPrerequisite indicates an automated participant cannot be
// constructed, typically because an external credential is absent. It is
// raised at session-construction time, before any queued humans are popped.
var ErrMissingPrerequisite = errors.New("missing prerequisite")

// ParticipantFailure indicates an automated participant could not produce a
// valid action after one retry. The session converts it to a failure event
// and substitutes a bot; it never propagates further.
type ParticipantFailure struct {
	Reason string
}

func (e *ParticipantFailure) Error() string {
	return e.Reason
}
