package derive

import (
	"errors"
	"fmt"
)

// Severity tells the driver how to react to a derivation or engine failure.
type Severity uint8

const (
	// SeverityTemporary errors are retried on the next tick.
	SeverityTemporary Severity = iota
	// SeverityReset errors rewind derivation to the finalized head.
	SeverityReset
	// SeverityCritical errors stop the node.
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityTemporary:
		return "temporary"
	case SeverityReset:
		return "reset"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", uint8(s))
	}
}

// Error wraps an error with a severity.
type Error struct {
	err      error
	severity Severity
}

func (e Error) Error() string {
	if e.err == nil {
		return e.severity.String()
	}
	return fmt.Sprintf("%s: %v", e.severity, e.err)
}

func (e Error) Unwrap() error {
	return e.err
}

func (e Error) Severity() Severity {
	return e.severity
}

// Is matches any Error of the same severity, so errors.Is(err, ErrTemporary) works.
func (e Error) Is(target error) bool {
	var other Error
	if !errors.As(target, &other) {
		return false
	}
	return other.err == nil && e.severity == other.severity
}

func NewError(err error, severity Severity) error {
	return Error{err: err, severity: severity}
}

func NewTemporaryError(err error) error { return NewError(err, SeverityTemporary) }
func NewResetError(err error) error     { return NewError(err, SeverityReset) }
func NewCriticalError(err error) error  { return NewError(err, SeverityCritical) }

var (
	ErrTemporary = NewTemporaryError(nil)
	ErrReset     = NewResetError(nil)
	ErrCritical  = NewCriticalError(nil)
)

// SeverityOf returns the severity attached to err. Unclassified errors are critical.
func SeverityOf(err error) Severity {
	var e Error
	if errors.As(err, &e) {
		return e.severity
	}
	return SeverityCritical
}

var (
	// ErrBlockNotIncluded is returned when the L2 parent of a batch is unknown yet.
	ErrBlockNotIncluded = errors.New("L2 parent block not included yet")
	// ErrL2BlockNotFound is returned by the L2 ref lookup when the engine does not have the block.
	ErrL2BlockNotFound = errors.New("L2 block not found")
	// ErrL1InfoNotFound is returned when the L1 origin of an accepted batch is no longer known.
	ErrL1InfoNotFound = errors.New("L1 info for epoch not found")
)
