// Package apperr defines the error categories shared by the query layer, the
// storage backend and the HTTP dispatcher.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type Category int

// Declaration order is match order for the dispatcher.
const (
	MissingScrobbleParameters Category = iota
	MissingEntityParameter
	EntityExists
	BackendNotReady
	MalformedInput
	Unknown
)

func (c Category) String() string {
	switch c {
	case MissingScrobbleParameters:
		return "missing_scrobble_parameters"
	case MissingEntityParameter:
		return "missing_entity_parameter"
	case EntityExists:
		return "entity_exists"
	case BackendNotReady:
		return "backend_not_ready"
	case MalformedInput:
		return "malformed_input"
	default:
		return "unknown"
	}
}

// MissingScrobbleParametersError is returned by the backend when a scrobble
// lacks required fields.
type MissingScrobbleParametersError struct {
	Params []string
}

func (e *MissingScrobbleParametersError) Error() string {
	return fmt.Sprintf("scrobble is missing parameters: %s", strings.Join(e.Params, ", "))
}

// MissingEntityParameterError is returned when a query needs an artist or
// track filter and none was supplied.
type MissingEntityParameterError struct {
	Reason string
}

func (e *MissingEntityParameterError) Error() string {
	if e.Reason == "" {
		return "missing entity parameter"
	}
	return "missing entity parameter: " + e.Reason
}

// EntityExistsError is returned when an edit would create a duplicate.
type EntityExistsError struct {
	Entity map[string]any
}

func (e *EntityExistsError) Error() string {
	return fmt.Sprintf("entity already exists: %v", e.Entity)
}

// NotReadyError is returned while the backend is rebuilding.
type NotReadyError struct {
	Reason string
}

func (e *NotReadyError) Error() string {
	return "backend not ready: " + e.Reason
}

// MalformedInputError describes a parameter that could not be parsed.
type MalformedInputError struct {
	Param string
	Value string
	// Kind overrides the wire type tag, e.g. "malformed_b64".
	Kind string
	Err  error
}

func (e *MalformedInputError) Error() string {
	msg := fmt.Sprintf("malformed %s %q", e.Param, e.Value)
	if e.Param == "" {
		msg = "malformed input"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// Malformed is a shorthand for a MalformedInputError on a named parameter.
func Malformed(param, value string, err error) error {
	return &MalformedInputError{Param: param, Value: value, Err: err}
}

// Malformedf builds a MalformedInputError with a formatted cause.
func Malformedf(param, value, format string, args ...any) error {
	return &MalformedInputError{Param: param, Value: value, Err: fmt.Errorf(format, args...)}
}

// NotReady is the error every backend call returns during a rebuild.
var NotReady = &NotReadyError{Reason: "db_upgrade"}

// StatusError lets an otherwise uncategorized error carry its own HTTP status.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func (e *StatusError) HTTPStatus() int {
	return e.Status
}

// Classify returns the category of err, walking wrapped errors.
func Classify(err error) Category {
	var (
		msp *MissingScrobbleParametersError
		mep *MissingEntityParameterError
		ee  *EntityExistsError
		nr  *NotReadyError
		mi  *MalformedInputError
	)
	switch {
	case errors.As(err, &msp):
		return MissingScrobbleParameters
	case errors.As(err, &mep):
		return MissingEntityParameter
	case errors.As(err, &ee):
		return EntityExists
	case errors.As(err, &nr):
		return BackendNotReady
	case errors.As(err, &mi):
		return MalformedInput
	default:
		return Unknown
	}
}
