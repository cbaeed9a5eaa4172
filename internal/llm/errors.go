package llm

import "errors"

// ErrEmptyExam is the cause attached when a generated exam has no questions.
var ErrEmptyExam = errors.New("empty or invalid exam data")

// ServiceError reports that an upstream call failed or that its reply could
// not be parsed into the expected shape. It is the only error the gateway
// returns to callers.
type ServiceError struct {
	Op  string // gateway operation, e.g. "practice_set"
	Msg string // user-facing description
	Err error  // underlying cause, may be nil
}

func (e *ServiceError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Msg {
		return e.Op + ": " + e.Msg + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Msg
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func serviceErr(op, msg string, err error) *ServiceError {
	return &ServiceError{Op: op, Msg: msg, Err: err}
}

// IsServiceError reports whether err is, or wraps, a *ServiceError.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// Message returns the user-facing message of a *ServiceError, or err.Error()
// for any other error.
func Message(err error) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Msg
	}
	return err.Error()
}
