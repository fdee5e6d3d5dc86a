package pipeline

import (
	"errors"
	"fmt"

	"github.com/jo-hoe/khmerscribe/internal/common"
)

var (
	// ErrInvalidInput marks an unsupported or malformed video link.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstream marks a failure reported by a remote service.
	ErrUpstream = errors.New("upstream failure")
	// ErrStream marks a transport interruption before a terminal event.
	ErrStream = errors.New("stream failure")
)

// StageError records which step failed and how the failure is classified.
type StageError struct {
	Stage Step
	Kind  error // ErrInvalidInput, ErrUpstream or ErrStream
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is / errors.As.
func (e *StageError) Unwrap() []error {
	if e == nil {
		return nil
	}
	return []error{e.Kind, e.Err}
}

// Message is the user-visible text for err: the cause without stage or kind decoration.
func Message(err error) string {
	var se *StageError
	if errors.As(err, &se) && se.Err != nil {
		err = se.Err
	}
	if err == nil || err.Error() == "" {
		return common.MsgProcessingFailed
	}
	return err.Error()
}
