package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRunNotFound  = errors.New("payment_run_not_found")
	ErrLineNotFound = errors.New("payment_line_not_found")
	ErrNoLines      = errors.New("payment_run_has_no_lines")
)

// IllegalTransitionError surfaces a caller/ordering bug: the run is not in the
// state the requested operation needs. It is never retried automatically.
type IllegalTransitionError struct {
	RunID    int64
	Required RunStatus
	Actual   RunStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("payment run %d requires status %s, got %s", e.RunID, e.Required, e.Actual)
}
