package synergy

import (
	"errors"
	"fmt"
)

// Error represents an error in the synergy discovery system.
type Error struct {
	Type    string
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Type, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Error type tags. InsufficientData is non-fatal and produces an
// empty result; InvalidConfiguration is fatal at construction.
const (
	TypeInsufficientData     = "InsufficientData"
	TypeInvalidConfiguration = "InvalidConfiguration"
	TypeMiningFailed         = "MiningFailed"
)

// ErrInsufficientData creates an error for mining runs with too little
// history to reach the support threshold.
func ErrInsufficientData(events int) error {
	return &Error{
		Type:    TypeInsufficientData,
		Message: fmt.Sprintf("not enough events to mine (%d)", events),
	}
}

// ErrInvalidConfiguration creates a fatal construction-time error.
func ErrInvalidConfiguration(err error) error {
	return &Error{
		Type:    TypeInvalidConfiguration,
		Message: "configuration rejected",
		Wrapped: err,
	}
}

// ErrMiningFailed wraps a failure inside a mining run. Failures are
// isolated per run; the scheduler decides whether to retry.
func ErrMiningFailed(stage string, err error) error {
	return &Error{
		Type:    TypeMiningFailed,
		Message: fmt.Sprintf("mining failed during %s", stage),
		Wrapped: err,
	}
}

// IsInsufficientData reports whether err is an InsufficientData error.
func IsInsufficientData(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == TypeInsufficientData
}
