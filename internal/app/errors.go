package app

import (
	"errors"
	"fmt"
)

// ErrTerminated is returned when Run is called on a loop that already ran.
var ErrTerminated = errors.New("control loop already terminated")

// ErrAlreadyRunning is returned when another instance holds the lock file.
var ErrAlreadyRunning = errors.New("another instance is already running")

// StartupError reports a component that could not be initialized. No frame
// has been processed when it is returned.
type StartupError struct {
	Component string
	Err       error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("cannot initialize %s: %v", e.Component, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// AcquisitionError reports that the camera failed more often in a row than allowed.
type AcquisitionError struct {
	Failures int
	Err      error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("frame acquisition failed %d times in a row: %v", e.Failures, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// ActuationError reports a level the actuator refused. The loop absorbs it.
type ActuationError struct {
	Level float64
	Err   error
}

func (e *ActuationError) Error() string {
	return fmt.Sprintf("cannot apply level %.2f: %v", e.Level, e.Err)
}

func (e *ActuationError) Unwrap() error {
	return e.Err
}

// UnexpectedError wraps any other failure inside an iteration, including
// recovered panics.
type UnexpectedError struct {
	Iteration uint64
	Cause     any
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected failure in iteration %d: %v", e.Iteration, e.Cause)
}

func (e *UnexpectedError) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}

// AsError is errors.As returning the match.
func AsError[T error](err error) (T, bool) {
	var target T
	return target, errors.As(err, &target)
}
