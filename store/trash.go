package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/espalier/internal/shard"
)

// maxShardQueries bounds concurrent relationship-table queries per call.
const maxShardQueries = 16

// errChildFound stops the shard fan-out once any active child is seen.
var errChildFound = errors.New("active child found")

// IsTrashed checks if an item has an expired TTL (is marked for deletion).
func IsTrashed(item map[string]types.AttributeValue) bool {
	ttlAttr, ok := item[attrTTL].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(ttlAttr.Value, 10, 64)
	if err != nil {
		return false
	}
	return ttl <= time.Now().Unix()
}

// TTLFilterExpr returns the filter expression that excludes trashed items.
// It expects #ttl and :now to be bound.
func TTLFilterExpr() string {
	return "attribute_not_exists(#ttl) OR #ttl > :now"
}

// TrashOptions configures Trash.
type TrashOptions struct {
	// Cascade trashes owned records too. The owner is marked here and the
	// stream handler propagates the TTL down the ownership tree.
	Cascade bool

	// OrphanProtect fails with ErrHasChildren while active owned records
	// exist. It is ignored when Cascade is set.
	OrphanProtect bool
}

// Trash marks a stored bean for deletion by setting its TTL to now.
func (s *Store) Trash(ctx context.Context, b *Bean, opts TrashOptions) error {
	if b.IsNew() {
		return fmt.Errorf("%w: %s was never saved", ErrNotFound, b.Kind())
	}

	if opts.OrphanProtect && !opts.Cascade && s.mayOwn(b.Kind()) {
		hasChildren, err := s.HasActiveChildren(ctx, b.Ref())
		if err != nil {
			return err
		}
		if hasChildren {
			return fmt.Errorf("%w: %s", ErrHasChildren, b.Ref())
		}
	}

	return s.SetTTLByKey(ctx, s.Table(b.Kind()), keyOf(b.ID()), time.Now().Unix())
}

// mayOwn reports whether records of kind can have owned children. Unless
// the registry declares relationships, every kind may.
func (s *Store) mayOwn(kind string) bool {
	if s.registry == nil || !s.registry.Declares() {
		return true
	}
	return s.registry.HasChildren(kind)
}

// HasActiveChildren checks if a record owns any active (non-trashed) records.
// All shards are queried concurrently; the first hit cancels the rest.
func (s *Store) HasActiveChildren(ctx context.Context, parentRef string) (bool, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxShardQueries)

	for _, shardPK := range shard.All(parentRef, s.config.NumShards) {
		g.Go(func() error {
			paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
				TableName:                aws.String(s.config.RelationshipTable),
				KeyConditionExpression:   aws.String("pk = :pk"),
				FilterExpression:         aws.String(TTLFilterExpr()),
				ExpressionAttributeNames: map[string]string{"#ttl": attrTTL},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":pk":  stringAttr(shardPK),
					":now": &types.AttributeValueMemberN{Value: now},
				},
			})
			for paginator.HasMorePages() {
				page, err := paginator.NextPage(gctx)
				if err != nil {
					return fmt.Errorf("shard %s: %w", shardPK, err)
				}
				if len(page.Items) > 0 {
					return errChildFound
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, errChildFound) {
		return true, nil
	}
	return false, err
}

// QueryAllChildren returns every owned record of parentRef, trashed ones
// included, in shard order. Used by the cascade handler.
func (s *Store) QueryAllChildren(ctx context.Context, parentRef string) ([]ChildRef, error) {
	perShard := make([][]ChildRef, s.config.NumShards)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxShardQueries)

	for i, shardPK := range shard.All(parentRef, s.config.NumShards) {
		g.Go(func() error {
			paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
				TableName:              aws.String(s.config.RelationshipTable),
				KeyConditionExpression: aws.String("pk = :pk"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":pk": stringAttr(shardPK),
				},
			})
			for paginator.HasMorePages() {
				page, err := paginator.NextPage(gctx)
				if err != nil {
					return fmt.Errorf("shard %s: %w", shardPK, err)
				}
				for _, item := range page.Items {
					perShard[i] = append(perShard[i], unmarshalChildRef(item, shardPK))
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var children []ChildRef
	for _, refs := range perShard {
		children = append(children, refs...)
	}
	return children, nil
}

// SetTTLByKey sets TTL on a record by table and key, bumping its version so
// concurrent saves fail. Records that already carry a TTL are left alone.
func (s *Store) SetTTLByKey(ctx context.Context, table string, key PK, ttl int64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(table),
		Key:                 key,
		UpdateExpression:    aws.String("SET #ttl = :ttl, #version = #version + :one"),
		ConditionExpression: aws.String("attribute_exists(id) AND attribute_not_exists(#ttl)"),
		ExpressionAttributeNames: map[string]string{
			"#ttl":     attrTTL,
			"#version": attrVersion,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl": numberAttr(ttl),
			":one": numberAttr(1),
		},
	})

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

// SetRelationshipTTL sets TTL on the relationship row linking childRef to parentRef.
func (s *Store) SetRelationshipTTL(ctx context.Context, childRef, parentRef string, ttl int64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.config.RelationshipTable),
		Key:                      s.relationshipKey(parentRef, childRef),
		UpdateExpression:         aws.String("SET #ttl = :ttl"),
		ConditionExpression:      aws.String("attribute_exists(pk) AND attribute_not_exists(#ttl)"),
		ExpressionAttributeNames: map[string]string{"#ttl": attrTTL},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl": numberAttr(ttl),
		},
	})

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

func (s *Store) relationshipKey(parentRef, childRef string) PK {
	return PK{
		"pk":        stringAttr(s.relationshipPK(parentRef, childRef)),
		"child_ref": stringAttr(childRef),
	}
}

// unmarshalChildRef converts a relationship row to a ChildRef.
func unmarshalChildRef(item map[string]types.AttributeValue, shardPK string) ChildRef {
	ref := ChildRef{
		Ref:       getString(item, "child_ref"),
		TableName: getString(item, "child_table"),
		ShardPK:   shardPK,
	}
	if v, ok := item["child_key"].(*types.AttributeValueMemberM); ok {
		ref.Key = v.Value
	}
	return ref
}
