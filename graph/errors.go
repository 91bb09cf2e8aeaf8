package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrLoadDisallowed is returned when a descriptor carries an identifier
	// while loading is not allowed.
	ErrLoadDisallowed = errors.New("espalier: loading records by identifier is not allowed")

	// ErrExpectedRecord is returned when a collection member materializes
	// into a collection instead of a single record.
	ErrExpectedRecord = errors.New("espalier: expected record but got collection")

	// ErrExpectedMapping is returned when a node that must describe a record
	// or a collection is a scalar.
	ErrExpectedMapping = errors.New("espalier: expected mapping but got scalar")

	// ErrInvalidIdentifier is returned when an identifier cannot be coerced
	// to an integer.
	ErrInvalidIdentifier = errors.New("espalier: identifier is not an integer")

	// ErrInvalidKind is returned when the kind key holds anything other
	// than a non-empty string.
	ErrInvalidKind = errors.New("espalier: kind must be a non-empty string")

	// ErrTooDeep is returned when the input nests deeper than Config.MaxDepth.
	ErrTooDeep = errors.New("espalier: input nesting too deep")

	// ErrTooManyNodes is returned when the input holds more than
	// Config.MaxNodes descriptors and collections.
	ErrTooManyNodes = errors.New("espalier: input has too many nodes")
)

// Error reports where in the input tree materialization failed.
type Error struct {
	// Path is the attribute path of the offending node, e.g. "ownItem[1].name".
	// Empty for the root.
	Path string

	// Kind is the kind of the nearest enclosing descriptor, if any.
	Kind string

	Err error
}

func (e *Error) Error() string {
	where := e.Path
	if where == "" {
		where = "<root>"
	}
	if e.Kind != "" {
		return fmt.Sprintf("%v (at %s in %s)", e.Err, where, e.Kind)
	}
	return fmt.Sprintf("%v (at %s)", e.Err, where)
}

func (e *Error) Unwrap() error { return e.Err }
