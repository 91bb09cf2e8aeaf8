package graph

const (
	defaultMaxDepth = 64
	defaultMaxNodes = 10000
)

// Config holds the materialization policy. It is copied into the
// Materializer on construction and never changes afterwards.
type Config struct {
	// AllowLoad permits descriptors carrying an identifier to load existing
	// records. Untrusted input can then address any stored record of any
	// kind, so only enable it when the caller validates ownership.
	// Default: false
	AllowLoad bool

	// NullForEmptyString stores empty string scalars as Null.
	// Default: false
	NullForEmptyString bool

	// MaxDepth bounds the nesting depth of the input tree.
	// Default: 64
	MaxDepth int

	// MaxNodes bounds the number of descriptors and collections visited
	// in a single call.
	// Default: 10000
	MaxNodes int
}

// DefaultConfig returns the safe defaults: no loading, no normalization.
func DefaultConfig() Config {
	return Config{
		MaxDepth: defaultMaxDepth,
		MaxNodes: defaultMaxNodes,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.MaxDepth < 1 {
		c.MaxDepth = defaultMaxDepth
	}
	if c.MaxNodes < 1 {
		c.MaxNodes = defaultMaxNodes
	}
}
