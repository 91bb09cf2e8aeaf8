package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/espalier/graph"
)

// maxTransactItems is the DynamoDB TransactWriteItems limit.
const maxTransactItems = 100

// Save stores a materialized graph: a single record or a collection, with
// every record reachable through its attributes. New beans get identifiers
// from a per-kind sequence; all writes then go out in one transaction, so
// either the whole graph is stored or none of it is.
//
// Beans reached through an own-list attribute ("ownItem") are owned by the
// bean holding the list. Other nested records are stored as references.
func (s *Store) Save(ctx context.Context, v graph.Value) error {
	p := &savePlan{
		seen:     make(map[*Bean]bool),
		owners:   make(map[*Bean]*Bean),
		registry: s.registry,
	}
	switch v.Kind() {
	case graph.KindScalar:
		if !v.IsNull() {
			return fmt.Errorf("%w: cannot save a scalar", ErrNotBean)
		}
		return nil
	default:
		if err := p.collect(v, nil); err != nil {
			return err
		}
	}
	if len(p.beans) == 0 {
		return nil
	}

	if n := p.itemCount(); n > maxTransactItems {
		return fmt.Errorf("%w: %d writes, max %d", ErrTooManyItems, n, maxTransactItems)
	}

	assigned, err := s.assignIDs(ctx, p.beans)
	if err != nil {
		resetIDs(assigned)
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	items, writes, err := s.buildTransaction(p, now)
	if err != nil {
		resetIDs(assigned)
		return err
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		err = mapSaveTransactionError(err, writes)
		resetIDs(assigned)
		return err
	}

	for _, b := range p.beans {
		if b.version == 0 {
			b.createdAt = now
		}
		b.version++
		if owner, ok := p.owners[b]; ok {
			b.parentRef = owner.Ref()
		}
	}
	return nil
}

// savePlan is the set of beans reachable from a saved value.
type savePlan struct {
	beans    []*Bean
	seen     map[*Bean]bool
	owners   map[*Bean]*Bean
	registry *Registry
}

func (p *savePlan) collect(v graph.Value, owner *Bean) error {
	switch v.Kind() {
	case graph.KindRecord:
		r, _ := v.Record()
		return p.add(r, owner)
	case graph.KindCollection:
		c, _ := v.Collection()
		for _, r := range c.All() {
			if err := p.add(r, owner); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *savePlan) add(r graph.Record, owner *Bean) error {
	b, ok := r.(*Bean)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotBean, r)
	}

	if owner != nil {
		if prev, ok := p.owners[b]; ok && prev != owner {
			return fmt.Errorf("%w: %s owned by %s and %s", ErrOwnerConflict, b.Kind(), prev.Kind(), owner.Kind())
		}
		p.owners[b] = owner
	}

	if p.seen[b] {
		return nil
	}
	p.seen[b] = true
	p.beans = append(p.beans, b)

	for name, v := range b.Attributes() {
		var childOwner *Bean
		if RelationOf(name) == Own {
			if err := p.checkOwn(b, name, v); err != nil {
				return err
			}
			childOwner = b
		}
		if err := p.collect(v, childOwner); err != nil {
			return err
		}
	}
	return nil
}

// checkOwn validates an own attribute against the registry, when the
// registry declares relationships.
func (p *savePlan) checkOwn(owner *Bean, name string, v graph.Value) error {
	if p.registry == nil || !p.registry.Declares() {
		return nil
	}
	rel, ok := p.registry.Relation(owner.kind, name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUndeclaredRelation, owner.kind, name)
	}

	check := func(r graph.Record) error {
		if r.Kind() != rel.MemberKind {
			return fmt.Errorf("%w: %s.%s holds %s, declared %s", ErrUndeclaredRelation, owner.kind, name, r.Kind(), rel.MemberKind)
		}
		return nil
	}
	switch v.Kind() {
	case graph.KindRecord:
		r, _ := v.Record()
		return check(r)
	case graph.KindCollection:
		c, _ := v.Collection()
		for _, r := range c.All() {
			if err := check(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// ownershipChange reports whether b needs a new relationship row, and
// whether an old one has to go.
func (p *savePlan) ownershipChange(b *Bean) (put, remove bool) {
	owner, ok := p.owners[b]
	if !ok {
		return false, false
	}
	if b.version == 0 || b.parentRef == "" {
		return true, false
	}
	if owner.IsNew() || owner.Ref() != b.parentRef {
		return true, true
	}
	return false, false
}

func (p *savePlan) itemCount() int {
	n := 0
	for _, b := range p.beans {
		n++
		put, remove := p.ownershipChange(b)
		if put {
			n++
		}
		if remove {
			n++
		}
	}
	return n
}

// assignIDs gives every new bean an identifier, reserving one block per kind.
// It returns the beans it assigned, even on error.
func (s *Store) assignIDs(ctx context.Context, beans []*Bean) ([]*Bean, error) {
	var kinds []string
	byKind := make(map[string][]*Bean)
	for _, b := range beans {
		if !b.IsNew() {
			continue
		}
		if _, ok := byKind[b.kind]; !ok {
			kinds = append(kinds, b.kind)
		}
		byKind[b.kind] = append(byKind[b.kind], b)
	}

	var assigned []*Bean
	for _, kind := range kinds {
		pending := byKind[kind]
		first, err := s.nextIDs(ctx, kind, len(pending))
		if err != nil {
			return assigned, err
		}
		for i, b := range pending {
			b.id = first + int64(i)
			assigned = append(assigned, b)
		}
	}
	return assigned, nil
}

// nextIDs atomically reserves n identifiers for kind and returns the first.
func (s *Store) nextIDs(ctx context.Context, kind string, n int) (int64, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.config.SequenceTable),
		Key:                      PK{"kind": stringAttr(kind)},
		UpdateExpression:         aws.String("ADD #seq :n"),
		ExpressionAttributeNames: map[string]string{"#seq": "seq"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n": numberAttr(int64(n)),
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("allocate %s identifiers: %w", kind, err)
	}

	last := getNumber(out.Attributes, "seq")
	if last < int64(n) {
		return 0, fmt.Errorf("allocate %s identifiers: sequence returned %d for %d", kind, last, n)
	}
	return last - int64(n) + 1, nil
}

func resetIDs(beans []*Bean) {
	for _, b := range beans {
		b.id = 0
	}
}

// buildTransaction returns the write items and, per item, the bean whose
// condition it carries (nil for relationship rows).
func (s *Store) buildTransaction(p *savePlan, now string) ([]types.TransactWriteItem, []*Bean, error) {
	var items []types.TransactWriteItem
	var writes []*Bean

	for _, b := range p.beans {
		parentRef := b.parentRef
		owner, owned := p.owners[b]
		if owned {
			parentRef = owner.Ref()
		}

		item, err := s.marshalBean(b, parentRef, now)
		if err != nil {
			return nil, nil, err
		}

		put := &types.Put{
			TableName: aws.String(s.Table(b.kind)),
			Item:      item,
		}
		if b.version == 0 {
			put.ConditionExpression = aws.String("attribute_not_exists(id)")
		} else {
			put.ConditionExpression = aws.String("#version = :expected_version AND attribute_not_exists(#ttl)")
			put.ExpressionAttributeNames = map[string]string{
				"#version": attrVersion,
				"#ttl":     attrTTL,
			}
			put.ExpressionAttributeValues = map[string]types.AttributeValue{
				":expected_version": numberAttr(b.version),
			}
		}
		items = append(items, types.TransactWriteItem{Put: put})
		writes = append(writes, b)

		putRel, removeRel := p.ownershipChange(b)
		if removeRel {
			items = append(items, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName: aws.String(s.config.RelationshipTable),
					Key:       s.relationshipKey(b.parentRef, b.Ref()),
				},
			})
			writes = append(writes, nil)
		}
		if putRel {
			items = append(items, types.TransactWriteItem{
				Put: &types.Put{
					TableName: aws.String(s.config.RelationshipTable),
					Item:      s.relationshipItem(parentRef, b),
				},
			})
			writes = append(writes, nil)
		}
	}

	return items, writes, nil
}

// marshalBean converts a bean to a full item. Own-list attributes are not
// stored on the owner; the owned records point back through parent_ref.
func (s *Store) marshalBean(b *Bean, parentRef, now string) (map[string]types.AttributeValue, error) {
	createdAt := b.createdAt
	if createdAt == "" {
		createdAt = now
	}

	item := map[string]types.AttributeValue{
		attrID:        numberAttr(b.id),
		attrEntityRef: stringAttr(b.Ref()),
		attrVersion:   numberAttr(b.version + 1),
		attrCreatedAt: stringAttr(createdAt),
		attrUpdatedAt: stringAttr(now),
	}
	if parentRef != "" {
		item[attrParentRef] = stringAttr(parentRef)
	}

	for name, v := range b.Attributes() {
		if IsReserved(name) {
			return nil, fmt.Errorf("%w: %s.%s", ErrReservedAttribute, b.kind, name)
		}

		switch v.Kind() {
		case graph.KindRecord:
			if RelationOf(name) == Own {
				continue
			}
			r, _ := v.Record()
			item[name] = stringAttr(r.(*Bean).Ref())
		case graph.KindCollection:
			if RelationOf(name) == Own {
				continue
			}
			c, _ := v.Collection()
			refs := make([]types.AttributeValue, 0, c.Len())
			for _, r := range c.All() {
				refs = append(refs, stringAttr(r.(*Bean).Ref()))
			}
			item[name] = &types.AttributeValueMemberL{Value: refs}
		default:
			sv, _ := v.Scalar()
			av, err := encodeScalar(sv)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", b.kind, name, err)
			}
			item[name] = av
		}
	}
	return item, nil
}

func (s *Store) relationshipItem(parentRef string, child *Bean) map[string]types.AttributeValue {
	childRef := child.Ref()
	return map[string]types.AttributeValue{
		"pk":          stringAttr(s.relationshipPK(parentRef, childRef)),
		"child_ref":   stringAttr(childRef),
		"parent_ref":  stringAttr(parentRef),
		"child_table": stringAttr(s.Table(child.kind)),
		"child_key":   &types.AttributeValueMemberM{Value: keyOf(child.id)},
	}
}

// mapSaveTransactionError maps a cancelled transaction to the failing bean:
// a new bean means its identifier was taken, a stored one was changed or
// trashed since it was loaded.
func mapSaveTransactionError(err error, writes []*Bean) error {
	var txErr *types.TransactionCanceledException
	if !errors.As(err, &txErr) {
		return err
	}

	for i, reason := range txErr.CancellationReasons {
		if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" {
			continue
		}
		if i >= len(writes) || writes[i] == nil {
			break
		}
		b := writes[i]
		if b.version == 0 {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, b.Ref())
		}
		return fmt.Errorf("%w: %s", ErrConcurrentModification, b.Ref())
	}
	return err
}
