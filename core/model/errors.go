package model

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by ConfigurationError.
var (
	// ErrDuplicateLabel indicates a bus or node label registered twice.
	ErrDuplicateLabel = errors.New("duplicate label")
	// ErrUnresolvedReference indicates an edge pointing at a bus that was not
	// registered before the node referencing it.
	ErrUnresolvedReference = errors.New("unresolved reference")
	// ErrMissingInertiaConstant indicates a synchronous inertia provider
	// without an explicit inertia constant.
	ErrMissingInertiaConstant = errors.New("missing inertia constant")
	// ErrInvalidParameter indicates a parameter outside its valid range.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrFrozen is returned when a builder is used after Build.
	ErrFrozen = errors.New("energy system already built")
)

// ConfigurationError reports an invalid energy system definition. It is
// always fatal: nothing in this package repairs a definition.
type ConfigurationError struct {
	Label  string
	Field  string
	Detail string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Label != "" {
		msg += fmt.Sprintf(" on %q", e.Label)
	}
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(label, field string, err error, format string, args ...any) error {
	return &ConfigurationError{Label: label, Field: field, Err: err, Detail: fmt.Sprintf(format, args...)}
}
