package escrow

import (
	"errors"
	"fmt"
)

var (
	errNilState   = errors.New("escrow engine: state not configured")
	errNilFetcher = errors.New("escrow engine: fetcher not configured")
	errNilJudge   = errors.New("escrow engine: judge not configured")

	// ErrJobNotFound is returned when the referenced job does not exist.
	ErrJobNotFound = errors.New("escrow engine: job not found")
)

// PreconditionCode classifies why an operation was refused. The code lets
// callers distinguish "not your turn" (wrong_state), "not your job"
// (wrong_actor), malformed arguments (invalid_input) and premature deadline
// claims (deadline_not_reached) without parsing messages.
type PreconditionCode string

const (
	CodeWrongState         PreconditionCode = "wrong_state"
	CodeWrongActor         PreconditionCode = "wrong_actor"
	CodeInvalidInput       PreconditionCode = "invalid_input"
	CodeDeadlineNotReached PreconditionCode = "deadline_not_reached"
)

// PreconditionError reports a refused state transition. Operations that
// return it have made no state mutation and moved no funds.
type PreconditionError struct {
	Op      string
	Code    PreconditionCode
	Message string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("escrow %s: %s (%s)", e.Op, e.Message, e.Code)
}

// AsPrecondition unwraps err into a PreconditionError if it is one.
func AsPrecondition(err error) (*PreconditionError, bool) {
	var pre *PreconditionError
	if errors.As(err, &pre) {
		return pre, true
	}
	return nil, false
}

func errWrongState(op string, got JobStatus) error {
	return &PreconditionError{Op: op, Code: CodeWrongState, Message: fmt.Sprintf("not allowed in status %s", got)}
}

func errWrongActor(op, message string) error {
	return &PreconditionError{Op: op, Code: CodeWrongActor, Message: message}
}

func errInvalidInput(op, message string) error {
	return &PreconditionError{Op: op, Code: CodeInvalidInput, Message: message}
}

func errDeadlineNotReached(op string) error {
	return &PreconditionError{Op: op, Code: CodeDeadlineNotReached, Message: "deadline not yet passed"}
}
