package storage

import (
	"errors"
	"fmt"
)

// DestinationError is a failure reported by, or talking to, a destination.
type DestinationError struct {
	Kind  string
	Op    string
	Table string
	Err   error
}

func (e *DestinationError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Kind, e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *DestinationError) Unwrap() error { return e.Err }

// Wrap returns err as a *DestinationError, or nil. Errors that already are
// one are returned unchanged.
func Wrap(kind, op, table string, err error) error {
	if err == nil {
		return nil
	}
	var de *DestinationError
	if errors.As(err, &de) {
		return err
	}
	return &DestinationError{Kind: kind, Op: op, Table: table, Err: err}
}
