package store

const (
	defaultRelationshipTable = "espalier_relationships"
	defaultSequenceTable     = "espalier_sequences"
)

// Config holds configuration for the Store.
type Config struct {
	// RelationshipTable holds one row per owned record, keyed by the
	// sharded owner reference and the child reference.
	// Default: "espalier_relationships"
	RelationshipTable string

	// SequenceTable holds one counter per kind for identifier allocation.
	// Default: "espalier_sequences"
	SequenceTable string

	// TablePrefix is prepended to the kind to name its table when the
	// registry has no explicit table for it. Default: "" (table = kind).
	TablePrefix string

	// NumShards is the number of shards for the relationship table.
	// Ownership checks and cascades query every shard of an owner in
	// parallel, so higher values trade read fan-out for write throughput.
	// Default: 1
	// Max: 256
	NumShards int
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		RelationshipTable: defaultRelationshipTable,
		SequenceTable:     defaultSequenceTable,
		NumShards:         1,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.RelationshipTable == "" {
		c.RelationshipTable = defaultRelationshipTable
	}
	if c.SequenceTable == "" {
		c.SequenceTable = defaultSequenceTable
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > 256 {
		c.NumShards = 256
	}
}
