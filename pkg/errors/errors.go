// Package errors provides structured error types used across the pipeline.
// We prefer these over raw fmt.Errorf strings to enable reliable checks with
// errors.Is / errors.As and to carry minimal context about the failure.
package errors

import (
	"errors"
	"fmt"
)

// ValidationError indicates invalid input/state provided by a caller.
type ValidationError struct {
	Op  string // where it happened (package.Function)
	Msg string // human friendly message
	Err error  // underlying cause (optional)
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("validation: %s: %s", e.Op, e.Msg)
}

func (e *ValidationError) Unwrap() error     { return e.Err }
func (e *ValidationError) Operation() string { return e.Op }

func NewValidation(op, msg string, err error) error {
	return &ValidationError{Op: op, Msg: msg, Err: err}
}

// DBError represents database access/operation failures.
type DBError struct {
	Op  string
	Msg string
	Err error
}

func (e *DBError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("db: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("db: %s: %s", e.Op, e.Msg)
}

func (e *DBError) Unwrap() error     { return e.Err }
func (e *DBError) Operation() string { return e.Op }

func NewDB(op, msg string, err error) error { return &DBError{Op: op, Msg: msg, Err: err} }

// ExternalAPIError represents failures in external services (venue websites,
// Google Places, OpenAI).
type ExternalAPIError struct {
	Op     string
	Msg    string
	Err    error
	System string // e.g. "http" / "places" / "openai"
}

func (e *ExternalAPIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	sys := e.System
	if sys == "" {
		sys = "external"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", sys, e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", sys, e.Op, e.Msg)
}

func (e *ExternalAPIError) Unwrap() error     { return e.Err }
func (e *ExternalAPIError) Operation() string { return e.Op }

func NewExternal(op, system, msg string, err error) error {
	return &ExternalAPIError{Op: op, System: system, Msg: msg, Err: err}
}

// IntegrityError indicates corrupted or impossible state: invalid area
// bounds, a source hash with the wrong shape, two runs marked running at
// once. Fatal to the current pipeline run.
type IntegrityError struct {
	Op  string
	Msg string
	Err error
}

func (e *IntegrityError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("integrity: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("integrity: %s: %s", e.Op, e.Msg)
}

func (e *IntegrityError) Unwrap() error     { return e.Err }
func (e *IntegrityError) Operation() string { return e.Op }

func NewIntegrity(op, msg string, err error) error {
	return &IntegrityError{Op: op, Msg: msg, Err: err}
}

// ConfigError indicates a missing or invalid configuration value for a stage
// that was actually invoked. Fatal at startup before any work begins.
type ConfigError struct {
	Op  string
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("config: %s: %s", e.Op, e.Msg)
}

func (e *ConfigError) Unwrap() error     { return e.Err }
func (e *ConfigError) Operation() string { return e.Op }

func NewConfig(op, msg string, err error) error {
	return &ConfigError{Op: op, Msg: msg, Err: err}
}

// Kind sentinels: allow callers to check error kind without type assertions.
var (
	ErrValidation = &ValidationError{}
	ErrDB         = &DBError{}
	ErrExternal   = &ExternalAPIError{}
	ErrIntegrity  = &IntegrityError{}
	ErrConfig     = &ConfigError{}
)

// Is enables errors.Is(err, ErrDB) via errors.As semantics. We delegate to
// errors.As with the zero-value pointer of each type.
func Is(err, target error) bool {
	if err == nil || target == nil {
		return errors.Is(err, target)
	}
	switch target.(type) {
	case *ValidationError:
		var v *ValidationError
		return errors.As(err, &v)
	case *DBError:
		var d *DBError
		return errors.As(err, &d)
	case *ExternalAPIError:
		var ex *ExternalAPIError
		return errors.As(err, &ex)
	case *IntegrityError:
		var in *IntegrityError
		return errors.As(err, &in)
	case *ConfigError:
		var c *ConfigError
		return errors.As(err, &c)
	default:
		return errors.Is(err, target)
	}
}

// IsFatal reports whether an error should abort the whole pipeline run
// rather than being recorded per item. Only integrity and config problems
// qualify; everything else lands in the manifest and the daily report.
func IsFatal(err error) bool {
	return Is(err, ErrIntegrity) || Is(err, ErrConfig)
}
