package store

import "errors"

var (
	// ErrNotFound is returned when a record doesn't exist or is trashed.
	ErrNotFound = errors.New("espalier: record not found")

	// ErrAlreadyExists is returned when a new record's identifier is already taken.
	ErrAlreadyExists = errors.New("espalier: record already exists")

	// ErrConcurrentModification is returned when optimistic lock fails (version mismatch).
	ErrConcurrentModification = errors.New("espalier: record was modified concurrently")

	// ErrHasChildren is returned when trashing a record that still owns active records.
	ErrHasChildren = errors.New("espalier: record has active children")

	// ErrUnsupportedValue is returned when an attribute value has no DynamoDB encoding.
	ErrUnsupportedValue = errors.New("espalier: unsupported attribute value")

	// ErrReservedAttribute is returned when an attribute name collides with a managed field.
	ErrReservedAttribute = errors.New("espalier: reserved attribute name")

	// ErrTooManyItems is returned when a graph needs more writes than one transaction allows.
	ErrTooManyItems = errors.New("espalier: graph exceeds transaction item limit")

	// ErrNotBean is returned when a graph holds records the Store did not dispense.
	ErrNotBean = errors.New("espalier: record was not dispensed by this store")

	// ErrOwnerConflict is returned when one record is owned by two records in the same graph.
	ErrOwnerConflict = errors.New("espalier: record has more than one owner")

	// ErrUndeclaredRelation is returned when a registry declares relationships
	// and a saved own attribute is not one of them, or holds the wrong kind.
	ErrUndeclaredRelation = errors.New("espalier: own attribute not declared in registry")

	// ErrInvalidKind is returned for an empty kind.
	ErrInvalidKind = errors.New("espalier: invalid kind")
)
