package store_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/espalier/graph"
	"github.com/jacentio/espalier/internal/dynamotest"
	"github.com/jacentio/espalier/store"
)

func TestIsTrashed(t *testing.T) {
	tests := []struct {
		name     string
		item     map[string]types.AttributeValue
		expected bool
	}{
		{"no TTL attribute", map[string]types.AttributeValue{}, false},
		{"TTL in past", map[string]types.AttributeValue{"ttl": n("1000000000")}, true},
		{"TTL in future", map[string]types.AttributeValue{"ttl": n(strconv.FormatInt(time.Now().Unix()+3600, 10))}, false},
		{"TTL is now", map[string]types.AttributeValue{"ttl": n(strconv.FormatInt(time.Now().Unix(), 10))}, true},
		{"TTL not a number", map[string]types.AttributeValue{"ttl": s("soon")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := store.IsTrashed(tt.item); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func saveOrder(t *testing.T, st *store.Store, doc string) *store.Bean {
	t.Helper()
	v := materialize(t, st, doc)
	if err := st.Save(context.Background(), v); err != nil {
		t.Fatalf("save: %v", err)
	}
	return asBean(t, v)
}

func TestTrash(t *testing.T) {
	st, client := newTestStore(t)
	order := saveOrder(t, st, `{"kind": "order", "total": 3}`)

	if err := st.Trash(context.Background(), order, store.TrashOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := client.Get("order", idKey("1"))
	if _, ok := stored["ttl"]; !ok {
		t.Error("expected ttl to be set")
	}
	if v := stored["version"].(*types.AttributeValueMemberN).Value; v != "2" {
		t.Errorf("expected version bumped to 2, got %s", v)
	}

	if _, err := st.Load(context.Background(), "order", 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected trashed order to be not found, got %v", err)
	}

	if err := st.Trash(context.Background(), order, store.TrashOptions{}); err != nil {
		t.Errorf("expected trashing twice to succeed, got %v", err)
	}
}

func TestTrash_NeverSaved(t *testing.T) {
	st, _ := newTestStore(t)
	err := st.Trash(context.Background(), store.NewBean("order"), store.TrashOptions{})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTrash_OrphanProtect(t *testing.T) {
	st, client := newTestStore(t)
	order := saveOrder(t, st, `{"kind": "order", "ownItem": [{"kind": "item"}]}`)

	err := st.Trash(context.Background(), order, store.TrashOptions{OrphanProtect: true})
	if !errors.Is(err, store.ErrHasChildren) {
		t.Fatalf("expected ErrHasChildren, got %v", err)
	}
	if stored, _ := client.Get("order", idKey("1")); stored["ttl"] != nil {
		t.Error("expected order not to be trashed")
	}

	if err := st.Trash(context.Background(), order, store.TrashOptions{OrphanProtect: true, Cascade: true}); err != nil {
		t.Errorf("expected cascade to bypass orphan check, got %v", err)
	}
}

func TestTrash_OrphanProtect_TrashedChildren(t *testing.T) {
	st, _ := newTestStore(t)
	order := saveOrder(t, st, `{"kind": "order", "ownItem": [{"kind": "item"}]}`)

	if err := st.SetRelationshipTTL(context.Background(), "item#1", order.Ref(), time.Now().Unix()); err != nil {
		t.Fatal(err)
	}

	if err := st.Trash(context.Background(), order, store.TrashOptions{OrphanProtect: true}); err != nil {
		t.Errorf("expected trashed children to be ignored, got %v", err)
	}
}

func TestTrash_RegistrySkipsChildlessKinds(t *testing.T) {
	st, client := newTestStore(t)
	reg := store.NewRegistry()
	reg.Register(store.Relationship{OwnerKind: "order", MemberKind: "item", Attribute: "ownItem"})
	st.SetRegistry(reg)

	order := saveOrder(t, st, `{"kind": "order", "ownItem": [{"kind": "item"}]}`)
	r, _ := order.Attribute("ownItem")
	c, _ := r.Collection()
	item, _ := c.Get("0")

	if err := st.Trash(context.Background(), item.(*store.Bean), store.TrashOptions{OrphanProtect: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.QueryCalls != 0 {
		t.Errorf("expected no child query for a kind without relationships, got %d", client.QueryCalls)
	}

	err := st.Trash(context.Background(), order, store.TrashOptions{OrphanProtect: true})
	if !errors.Is(err, store.ErrHasChildren) {
		t.Fatalf("expected ErrHasChildren, got %v", err)
	}
	if client.QueryCalls == 0 {
		t.Error("expected child query for order")
	}
}

func TestTrash_TableOnlyRegistryStillProtects(t *testing.T) {
	st, client := newTestStore(t)
	reg := store.NewRegistry()
	reg.RegisterTable("order", "orders")
	st.SetRegistry(reg)

	order := saveOrder(t, st, `{"kind": "order", "ownItem": [{"kind": "item"}]}`)

	err := st.Trash(context.Background(), order, store.TrashOptions{OrphanProtect: true})
	if !errors.Is(err, store.ErrHasChildren) {
		t.Fatalf("expected ErrHasChildren, got %v", err)
	}
	if client.QueryCalls == 0 {
		t.Error("expected child query for order")
	}
	item, ok := client.Get("orders", idKey("1"))
	if !ok {
		t.Fatal("expected order in the overridden table")
	}
	if _, trashed := item["ttl"]; trashed {
		t.Error("expected order not to be trashed")
	}
}

func TestHasActiveChildren_Sharded(t *testing.T) {
	client := dynamotest.New()
	cfg := store.DefaultConfig()
	cfg.NumShards = 16
	st := store.New(client, cfg)

	if has, err := st.HasActiveChildren(context.Background(), "order#1"); err != nil || has {
		t.Fatalf("expected no children, got %v (%v)", has, err)
	}
	if client.QueryCalls != 16 {
		t.Errorf("expected 16 shard queries, got %d", client.QueryCalls)
	}

	order := saveOrder(t, st, `{"kind": "order", "ownItem": [{"kind": "item"}, {"kind": "item"}, {"kind": "item"}]}`)
	has, err := st.HasActiveChildren(context.Background(), order.Ref())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !has {
		t.Error("expected active children")
	}
}

func TestHasActiveChildren_Error(t *testing.T) {
	st, client := newTestStore(t)
	boom := errors.New("throttled")
	client.Err = boom

	if _, err := st.HasActiveChildren(context.Background(), "order#1"); !errors.Is(err, boom) {
		t.Errorf("expected client error, got %v", err)
	}
}

func TestQueryAllChildren(t *testing.T) {
	client := dynamotest.New()
	cfg := store.DefaultConfig()
	cfg.NumShards = 8
	st := store.New(client, cfg)

	order := saveOrder(t, st, `{"kind": "order", "ownItem": [{"kind": "item"}, {"kind": "item"}, {"kind": "item"}, {"kind": "item"}]}`)
	if err := st.SetRelationshipTTL(context.Background(), "item#2", order.Ref(), time.Now().Unix()); err != nil {
		t.Fatal(err)
	}

	children, err := st.QueryAllChildren(context.Background(), order.Ref())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(children) != 4 {
		t.Fatalf("expected 4 children including trashed, got %d", len(children))
	}

	seen := make(map[string]bool)
	for _, child := range children {
		seen[child.Ref] = true
		if child.TableName != "item" {
			t.Errorf("expected table 'item', got %q", child.TableName)
		}
		if _, ok := child.Key["id"].(*types.AttributeValueMemberN); !ok {
			t.Errorf("expected numeric id key, got %v", child.Key)
		}
	}
	for i := 1; i <= 4; i++ {
		if ref := fmt.Sprintf("item#%d", i); !seen[ref] {
			t.Errorf("expected %s among children", ref)
		}
	}
}

func TestSetTTLByKey_MissingRecord(t *testing.T) {
	st, client := newTestStore(t)
	if err := st.SetTTLByKey(context.Background(), "order", store.PK{"id": n("9")}, time.Now().Unix()); err != nil {
		t.Errorf("expected missing record to be ignored, got %v", err)
	}
	if _, ok := client.Get("order", idKey("9")); ok {
		t.Error("expected no record to be created")
	}
}

func TestSetRelationshipTTL_KeepsFirstTTL(t *testing.T) {
	st, client := newTestStore(t)
	order := saveOrder(t, st, `{"kind": "order", "ownItem": [{"kind": "item"}]}`)

	if err := st.SetRelationshipTTL(context.Background(), "item#1", order.Ref(), 100); err != nil {
		t.Fatal(err)
	}
	if err := st.SetRelationshipTTL(context.Background(), "item#1", order.Ref(), 200); err != nil {
		t.Fatal(err)
	}

	rels := client.Items(store.DefaultConfig().RelationshipTable)
	if ttl := rels[0]["ttl"].(*types.AttributeValueMemberN).Value; ttl != "100" {
		t.Errorf("expected first ttl 100 to stick, got %s", ttl)
	}
}

func ExampleStore_Save() {
	st := store.New(dynamotest.New(), store.DefaultConfig())

	n, _ := graph.Parse([]byte(`{"kind": "order", "ownItem": [{"kind": "item", "name": "pen"}]}`))
	v, _ := graph.New(st, graph.DefaultConfig(), nil).Materialize(context.Background(), n, false)

	if err := st.Save(context.Background(), v); err != nil {
		fmt.Println(err)
		return
	}
	out, _ := v.MarshalJSON()
	fmt.Println(string(out))
	// Output: {"kind":"order","identifier":1,"ownItem":{"0":{"kind":"item","identifier":1,"name":"pen"}}}
}
