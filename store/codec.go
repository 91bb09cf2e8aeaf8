package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/espalier/graph"
)

// Managed item attributes.
const (
	attrID        = "id"
	attrEntityRef = "entity_ref"
	attrParentRef = "parent_ref"
	attrVersion   = "version"
	attrCreatedAt = "created_at"
	attrUpdatedAt = "updated_at"
	attrTTL       = "ttl"
)

var reserved = map[string]bool{
	attrID:        true,
	attrEntityRef: true,
	attrParentRef: true,
	attrVersion:   true,
	attrCreatedAt: true,
	attrUpdatedAt: true,
	attrTTL:       true,
}

// IsReserved reports whether name is managed by the Store and can't be
// used as a record attribute.
func IsReserved(name string) bool {
	return reserved[name]
}

// encodeScalar converts a terminal graph value to a DynamoDB attribute.
// Decoded JSON numbers keep their literal text.
func encodeScalar(v any) (types.AttributeValue, error) {
	switch t := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case string:
		return &types.AttributeValueMemberS{Value: t}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: t}, nil
	case json.Number:
		if _, err := t.Float64(); err != nil {
			return nil, fmt.Errorf("%w: number %q", ErrUnsupportedValue, t)
		}
		return &types.AttributeValueMemberN{Value: t.String()}, nil
	}

	av, err := attributevalue.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %T: %v", ErrUnsupportedValue, v, err)
	}
	if av == nil {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
	return av, nil
}

// decodeScalar converts a stored attribute back to a terminal graph value.
// Numbers come back as json.Number so they round-trip unchanged.
func decodeScalar(av types.AttributeValue) (graph.Value, error) {
	switch t := av.(type) {
	case *types.AttributeValueMemberNULL:
		return graph.Null, nil
	case *types.AttributeValueMemberS:
		return graph.ScalarValue(t.Value), nil
	case *types.AttributeValueMemberN:
		return graph.ScalarValue(json.Number(t.Value)), nil
	case *types.AttributeValueMemberBOOL:
		return graph.ScalarValue(t.Value), nil
	}

	var v any
	if err := attributevalue.Unmarshal(av, &v); err != nil {
		return graph.Null, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
	}
	return graph.ScalarValue(v), nil
}

func numberAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func stringAttr(s string) *types.AttributeValueMemberS {
	return &types.AttributeValueMemberS{Value: s}
}

// keyOf returns the primary key of the record with the given identifier.
func keyOf(id int64) PK {
	return PK{attrID: numberAttr(id)}
}

func getString(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func getNumber(item map[string]types.AttributeValue, name string) int64 {
	if v, ok := item[name].(*types.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	}
	return 0
}
