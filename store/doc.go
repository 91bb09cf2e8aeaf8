// Package store persists record graphs in DynamoDB.
//
// A [Store] is the record factory for a graph.Materializer: Dispense hands
// out empty [Bean] values and Load reads stored ones. Save writes a whole
// materialized graph in a single transaction, and Trash soft-deletes a
// record through its TTL.
//
// # Tables
//
// Each kind lives in its own table with a numeric "id" hash key. The table
// name is the kind, optionally prefixed by [Config.TablePrefix] or replaced
// through [Registry.RegisterTable]. Two shared tables complete the layout:
//
//   - SequenceTable (hash key "kind"): one counter per kind for identifiers
//   - RelationshipTable (hash key "pk", range key "child_ref"): one row per
//     owned record, sharded by owner
//
// Every stored item carries managed attributes (id, entity_ref, version,
// created_at, updated_at and, for owned records, parent_ref). Attribute
// names that collide with them are rejected with [ErrReservedAttribute].
//
// # Relations
//
// Nested records are persisted according to the attribute name:
//
//   - "ownItem": owned records, trashed together with their owner
//   - "sharedTag": a list of references ("tag#3")
//   - anything else: a single reference, or a list for collections
//
// A [Registry] that declares relationships restricts own attributes to the
// declared ones; Save fails with [ErrUndeclaredRelation] otherwise.
//
// # Trash and cascade
//
// Trash sets the TTL and bumps the version. With DynamoDB Streams enabled
// on the kind tables, the stream package propagates the TTL to owned
// records. Loads and child checks treat an expired TTL as deleted even
// before DynamoDB removes the item.
//
// # Configuration
//
// Use [DefaultConfig] for small datasets (NumShards=1, single queries).
// Increase NumShards for owners with many children:
//
//	cfg := store.DefaultConfig()
//	cfg.NumShards = 16
//
// # Errors
//
//   - [ErrNotFound] - record doesn't exist or is trashed
//   - [ErrAlreadyExists] - identifier of a new record is taken
//   - [ErrConcurrentModification] - optimistic lock failed
//   - [ErrHasChildren] - cannot trash a record that owns active records
//   - [ErrTooManyItems] - graph too large for one transaction
//   - [ErrNotBean], [ErrOwnerConflict], [ErrReservedAttribute],
//     [ErrUnsupportedValue] - graph can't be stored as given
package store
