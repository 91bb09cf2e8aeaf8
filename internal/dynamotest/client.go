// Package dynamotest provides an in-memory stand-in for the DynamoDB calls
// the store makes. It understands the handful of expressions the store
// builds and nothing more.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a stored DynamoDB item.
type Item = map[string]types.AttributeValue

// Client is an in-memory DynamoDB. The zero value is not usable; call New.
type Client struct {
	mu     sync.Mutex
	tables map[string]map[string]Item

	// Err, when set, is returned by every call.
	Err error

	// QueryCalls counts Query requests.
	QueryCalls int

	// Transactions records every TransactWriteItems request, failed ones included.
	Transactions []*dynamodb.TransactWriteItemsInput
}

// New returns an empty client.
func New() *Client {
	return &Client{tables: make(map[string]map[string]Item)}
}

// Put stores item directly, bypassing conditions.
func (c *Client) Put(table string, item Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table(table)[keyString(keyOf(item))] = maps.Clone(item)
}

// Get returns a copy of the stored item with the given key.
func (c *Client) Get(table string, key Item) (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.tables[table][keyString(key)]
	return maps.Clone(item), ok
}

// Items returns copies of all items in table, ordered by key.
func (c *Client) Items(table string) []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tables[table]
	out := make([]Item, 0, len(t))
	for _, k := range slices.Sorted(maps.Keys(t)) {
		out = append(out, maps.Clone(t[k]))
	}
	return out
}

func (c *Client) table(name string) map[string]Item {
	t, ok := c.tables[name]
	if !ok {
		t = make(map[string]Item)
		c.tables[name] = t
	}
	return t
}

func (c *Client) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	item, ok := c.tables[aws.ToString(in.TableName)][keyString(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: maps.Clone(item)}, nil
}

// UpdateItem supports "ADD #x :n" counters and "SET a = :v, b = b + :one"
// assignments guarded by attribute_exists/attribute_not_exists conditions.
func (c *Client) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}

	t := c.table(aws.ToString(in.TableName))
	k := keyString(in.Key)
	item, exists := t[k]
	if !checkCondition(aws.ToString(in.ConditionExpression), item, exists, in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	if !exists {
		item = maps.Clone(Item(in.Key))
	} else {
		item = maps.Clone(item)
	}

	expr := aws.ToString(in.UpdateExpression)
	updated := Item{}
	switch {
	case strings.HasPrefix(expr, "ADD "):
		parts := strings.Fields(strings.TrimPrefix(expr, "ADD "))
		name := resolve(parts[0], in.ExpressionAttributeNames)
		n := number(in.ExpressionAttributeValues[parts[1]])
		item[name] = num(number(item[name]) + n)
		updated[name] = item[name]
	case strings.HasPrefix(expr, "SET "):
		for _, clause := range strings.Split(strings.TrimPrefix(expr, "SET "), ",") {
			lhs, rhs, _ := strings.Cut(clause, "=")
			name := resolve(strings.TrimSpace(lhs), in.ExpressionAttributeNames)
			rhs = strings.TrimSpace(rhs)
			if base, inc, ok := strings.Cut(rhs, "+"); ok {
				cur := item[resolve(strings.TrimSpace(base), in.ExpressionAttributeNames)]
				item[name] = num(number(cur) + number(in.ExpressionAttributeValues[strings.TrimSpace(inc)]))
			} else {
				item[name] = in.ExpressionAttributeValues[rhs]
			}
			updated[name] = item[name]
		}
	default:
		return nil, fmt.Errorf("dynamotest: unsupported update expression %q", expr)
	}

	t[k] = item
	return &dynamodb.UpdateItemOutput{Attributes: updated}, nil
}

// Query supports "pk = :pk" key conditions and the TTL filter. All matches
// come back in one page.
func (c *Client) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.QueryCalls++
	if c.Err != nil {
		return nil, c.Err
	}

	pk := str(in.ExpressionAttributeValues[":pk"])
	t := c.tables[aws.ToString(in.TableName)]
	var items []Item
	for _, k := range slices.Sorted(maps.Keys(t)) {
		item := t[k]
		if str(item["pk"]) != pk {
			continue
		}
		if in.FilterExpression != nil && !liveAt(item, number(in.ExpressionAttributeValues[":now"])) {
			continue
		}
		items = append(items, maps.Clone(item))
	}
	return &dynamodb.QueryOutput{Items: items, Count: int32(len(items))}, nil
}

// TransactWriteItems checks every condition first and applies nothing if
// any fails, reporting per-item cancellation reasons.
func (c *Client) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions = append(c.Transactions, in)
	if c.Err != nil {
		return nil, c.Err
	}
	if len(in.TransactItems) > 100 {
		return nil, errors.New("dynamotest: transaction exceeds 100 items")
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		ok := true
		switch {
		case ti.Put != nil:
			item, exists := c.tables[aws.ToString(ti.Put.TableName)][keyString(keyOf(ti.Put.Item))]
			ok = checkCondition(aws.ToString(ti.Put.ConditionExpression), item, exists, ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues)
		case ti.Delete != nil:
			item, exists := c.tables[aws.ToString(ti.Delete.TableName)][keyString(ti.Delete.Key)]
			ok = checkCondition(aws.ToString(ti.Delete.ConditionExpression), item, exists, ti.Delete.ExpressionAttributeNames, ti.Delete.ExpressionAttributeValues)
		}
		if ok {
			reasons[i] = types.CancellationReason{Code: aws.String("None")}
		} else {
			reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		switch {
		case ti.Put != nil:
			c.table(aws.ToString(ti.Put.TableName))[keyString(keyOf(ti.Put.Item))] = maps.Clone(ti.Put.Item)
		case ti.Delete != nil:
			delete(c.table(aws.ToString(ti.Delete.TableName)), keyString(ti.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// checkCondition evaluates conjunctions of attribute_exists(x),
// attribute_not_exists(x) and "#a = :b" terms. A parenthesised
// "(attribute_not_exists(#ttl) OR #ttl > :now)" group is treated as a
// liveness check.
func checkCondition(expr string, item Item, exists bool, names map[string]string, values map[string]types.AttributeValue) bool {
	if expr == "" {
		return true
	}
	for _, term := range strings.Split(expr, " AND ") {
		term = strings.TrimSpace(term)
		switch {
		case strings.HasPrefix(term, "attribute_exists("):
			name := resolve(strings.TrimSuffix(strings.TrimPrefix(term, "attribute_exists("), ")"), names)
			if _, ok := item[name]; !exists || !ok {
				return false
			}
		case strings.HasPrefix(term, "attribute_not_exists("):
			name := resolve(strings.TrimSuffix(strings.TrimPrefix(term, "attribute_not_exists("), ")"), names)
			if _, ok := item[name]; exists && ok {
				return false
			}
		case strings.HasPrefix(term, "("):
			if !exists || !liveAt(item, number(values[":now"])) {
				return false
			}
		default:
			lhs, rhs, ok := strings.Cut(term, " = ")
			if !ok {
				return false
			}
			name := resolve(strings.TrimSpace(lhs), names)
			if !exists || number(item[name]) != number(values[strings.TrimSpace(rhs)]) {
				return false
			}
		}
	}
	return true
}

func liveAt(item Item, now int64) bool {
	ttl, ok := item["ttl"]
	return !ok || number(ttl) > now
}

// keyOf extracts the primary key of an item from the tables the store uses:
// relationship rows (pk, child_ref), sequences (kind) and records (id).
func keyOf(item Item) Item {
	if _, ok := item["pk"]; ok {
		return Item{"pk": item["pk"], "child_ref": item["child_ref"]}
	}
	if _, ok := item["id"]; ok {
		return Item{"id": item["id"]}
	}
	return Item{"kind": item["kind"]}
}

func keyString(key Item) string {
	var b strings.Builder
	for _, name := range slices.Sorted(maps.Keys(key)) {
		b.WriteString(name)
		b.WriteByte('=')
		switch v := key[name].(type) {
		case *types.AttributeValueMemberS:
			b.WriteString(v.Value)
		case *types.AttributeValueMemberN:
			b.WriteString(v.Value)
		}
		b.WriteByte(';')
	}
	return b.String()
}

func resolve(name string, names map[string]string) string {
	if n, ok := names[name]; ok {
		return n
	}
	return name
}

func number(av types.AttributeValue) int64 {
	if v, ok := av.(*types.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	}
	return 0
}

func str(av types.AttributeValue) string {
	if v, ok := av.(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func num(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

// Expired returns a TTL attribute one hour in the past.
func Expired() *types.AttributeValueMemberN {
	return num(time.Now().Add(-time.Hour).Unix())
}
