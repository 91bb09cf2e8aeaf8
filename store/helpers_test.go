package store_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/espalier/graph"
	"github.com/jacentio/espalier/internal/dynamotest"
	"github.com/jacentio/espalier/store"
)

// --- Helpers ---

func newTestStore(t *testing.T) (*store.Store, *dynamotest.Client) {
	t.Helper()
	client := dynamotest.New()
	return store.New(client, store.DefaultConfig()), client
}

// materialize builds a graph from doc with loading allowed.
func materialize(t *testing.T, s *store.Store, doc string) graph.Value {
	t.Helper()
	n, err := graph.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse %s: %v", doc, err)
	}
	cfg := graph.DefaultConfig()
	cfg.AllowLoad = true
	v, err := graph.New(s, cfg, nil).Materialize(context.Background(), n, false)
	if err != nil {
		t.Fatalf("materialize %s: %v", doc, err)
	}
	return v
}

func asBean(t *testing.T, v graph.Value) *store.Bean {
	t.Helper()
	r, ok := v.Record()
	if !ok {
		t.Fatalf("expected record, got %s", v.Kind())
	}
	b, ok := r.(*store.Bean)
	if !ok {
		t.Fatalf("expected *store.Bean, got %T", r)
	}
	return b
}

func n(v string) *types.AttributeValueMemberN { return &types.AttributeValueMemberN{Value: v} }
func s(v string) *types.AttributeValueMemberS { return &types.AttributeValueMemberS{Value: v} }

func idKey(id string) dynamotest.Item {
	return dynamotest.Item{"id": n(id)}
}

func getAttr(t *testing.T, item dynamotest.Item, name string) types.AttributeValue {
	t.Helper()
	v, ok := item[name]
	if !ok {
		t.Fatalf("expected attribute %q in %v", name, item)
	}
	return v
}
