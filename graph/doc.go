// Package graph materializes untyped input trees into graphs of records.
//
// Input usually comes from a submitted form or a JSON document. Record
// boundaries are inferred from structure rather than from a schema: a
// mapping with a "kind" key describes one record, any other mapping or
// sequence is a collection of records. Attributes whose value is itself a
// mapping become nested records or nested collections.
//
//	{
//	    "kind": "order",
//	    "note": "",
//	    "ownItem": [
//	        {"kind": "item", "name": "pen"},
//	        {"kind": "item", "identifier": 12}
//	    ]
//	}
//
// Records are never built here. They come from a [Factory] (see the store
// package for a DynamoDB implementation), either dispensed fresh or loaded
// by identifier.
//
// # Security
//
// A descriptor with a non-null "identifier" key asks for an existing record
// to be loaded. Since input is untrusted, this is refused with
// [ErrLoadDisallowed] unless [Config.AllowLoad] is set. A null identifier is
// the same as none: a fresh record is dispensed.
//
// # Errors
//
//   - [ErrLoadDisallowed] - non-null identifier while loading is off
//   - [ErrExpectedRecord] - a collection member is itself a collection
//   - [ErrExpectedMapping] - a scalar where a record or collection is required
//   - [ErrInvalidIdentifier] - identifier is not an integer
//   - [ErrInvalidKind] - kind is not a non-empty string
//   - [ErrTooDeep], [ErrTooManyNodes] - input exceeds the configured bounds
//
// Failures are returned as [*Error] values carrying the attribute path.
// Errors from the Factory are passed through untouched.
package graph
