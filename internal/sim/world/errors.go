package world

import (
	"errors"
	"fmt"

	"seeyuj.sim/internal/protocol"
)

// CommandError is a rejected command. It never aborts a tick.
type CommandError struct {
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

// Is matches by code so callers can test errors.Is(err, &CommandError{Code: ...}).
func (e *CommandError) Is(target error) bool {
	t, ok := target.(*CommandError)
	return ok && t.Code == e.Code
}

func reject(code, format string, args ...any) *CommandError {
	return &CommandError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsRejected reports whether err is a rejected command.
func IsRejected(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}

var (
	ErrRejectedInvalid = &CommandError{Code: protocol.ErrInvalid}
	ErrZoneNotFound    = &CommandError{Code: protocol.ErrZoneNotFound}
	ErrZoneExists      = &CommandError{Code: protocol.ErrZoneExists}
	ErrEntityNotFound  = &CommandError{Code: protocol.ErrEntityNotFound}
	ErrConflict        = &CommandError{Code: protocol.ErrConflict}
)
