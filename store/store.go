package store

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/espalier/graph"
	"github.com/jacentio/espalier/internal/shard"
)

// Store persists beans in DynamoDB, one table per kind. It implements
// graph.Factory, so a Materializer can dispense and load through it.
type Store struct {
	client   Client
	config   Config
	registry *Registry
}

var _ graph.Factory = (*Store)(nil)

// New creates a new Store instance.
func New(client Client, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// NewWithRegistry creates a new Store instance with a relationship registry.
func NewWithRegistry(client Client, config Config, registry *Registry) *Store {
	config.validate()
	return &Store{
		client:   client,
		config:   config,
		registry: registry,
	}
}

// SetRegistry sets the relationship registry.
func (s *Store) SetRegistry(registry *Registry) {
	s.registry = registry
}

// Registry returns the relationship registry, or nil if not set.
func (s *Store) Registry() *Registry {
	return s.registry
}

// Config returns the validated configuration.
func (s *Store) Config() Config {
	return s.config
}

// Table returns the DynamoDB table holding records of kind.
func (s *Store) Table(kind string) string {
	if s.registry != nil {
		if t, ok := s.registry.Table(kind); ok {
			return t
		}
	}
	return s.config.TablePrefix + kind
}

// relationshipPK computes the sharded partition key for a relationship row.
func (s *Store) relationshipPK(parentRef, childRef string) string {
	return shard.RelationPK(parentRef, childRef, s.config.NumShards)
}

// Dispense returns a fresh, unsaved bean. It does not touch DynamoDB.
func (s *Store) Dispense(_ context.Context, kind string) (graph.Record, error) {
	if kind == "" {
		return nil, ErrInvalidKind
	}
	return NewBean(kind), nil
}

// Load implements graph.Factory.
func (s *Store) Load(ctx context.Context, kind string, id int64) (graph.Record, error) {
	return s.LoadBean(ctx, kind, id)
}

// LoadBean reads a record with a consistent read, returning ErrNotFound if
// it is missing or trashed.
func (s *Store) LoadBean(ctx context.Context, kind string, id int64) (*Bean, error) {
	if kind == "" {
		return nil, ErrInvalidKind
	}

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.Table(kind)),
		Key:            keyOf(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ref(kind, id), err)
	}
	if result.Item == nil || IsTrashed(result.Item) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref(kind, id))
	}

	return s.unmarshalBean(kind, id, result.Item)
}

// unmarshalBean converts a stored item into a bean. Attribute order follows
// the sorted attribute names, as DynamoDB keeps none.
func (s *Store) unmarshalBean(kind string, id int64, item map[string]types.AttributeValue) (*Bean, error) {
	b := NewBean(kind)
	b.id = id
	b.version = getNumber(item, attrVersion)
	b.createdAt = getString(item, attrCreatedAt)
	b.parentRef = getString(item, attrParentRef)

	for _, name := range slices.Sorted(maps.Keys(item)) {
		if IsReserved(name) {
			continue
		}
		v, err := decodeScalar(item[name])
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", b.Ref(), name, err)
		}
		b.SetAttribute(name, v)
	}
	return b, nil
}
