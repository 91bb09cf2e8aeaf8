package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jacentio/espalier/graph"
	"github.com/jacentio/espalier/internal/dynamotest"
	"github.com/jacentio/espalier/store"
)

func TestDefaultConfig(t *testing.T) {
	cfg := store.DefaultConfig()

	if cfg.RelationshipTable != "espalier_relationships" {
		t.Errorf("expected RelationshipTable 'espalier_relationships', got %q", cfg.RelationshipTable)
	}
	if cfg.SequenceTable != "espalier_sequences" {
		t.Errorf("expected SequenceTable 'espalier_sequences', got %q", cfg.SequenceTable)
	}
	if cfg.NumShards != 1 {
		t.Errorf("expected NumShards 1, got %d", cfg.NumShards)
	}
}

func TestNew_ValidatesConfig(t *testing.T) {
	st := store.New(dynamotest.New(), store.Config{NumShards: 1000})
	cfg := st.Config()

	if cfg.NumShards != 256 {
		t.Errorf("expected NumShards clamped to 256, got %d", cfg.NumShards)
	}
	if cfg.RelationshipTable == "" || cfg.SequenceTable == "" {
		t.Errorf("expected default table names, got %+v", cfg)
	}

	st = store.New(dynamotest.New(), store.Config{NumShards: -4})
	if st.Config().NumShards != 1 {
		t.Errorf("expected NumShards 1, got %d", st.Config().NumShards)
	}
}

func TestStore_Table(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.TablePrefix = "shop_"
	reg := store.NewRegistry()
	reg.RegisterTable("order", "orders")
	st := store.NewWithRegistry(dynamotest.New(), cfg, reg)

	if got := st.Table("order"); got != "orders" {
		t.Errorf("expected registered table 'orders', got %q", got)
	}
	if got := st.Table("item"); got != "shop_item" {
		t.Errorf("expected prefixed table 'shop_item', got %q", got)
	}

	st.SetRegistry(nil)
	if st.Registry() != nil {
		t.Error("expected nil registry")
	}
	if got := st.Table("order"); got != "shop_order" {
		t.Errorf("expected 'shop_order' without registry, got %q", got)
	}
}

func TestStore_Dispense(t *testing.T) {
	st, client := newTestStore(t)

	r, err := st.Dispense(context.Background(), "order")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b := r.(*store.Bean)
	if b.Kind() != "order" || !b.IsNew() || b.Version() != 0 {
		t.Errorf("expected fresh order bean, got kind=%s id=%d version=%d", b.Kind(), b.ID(), b.Version())
	}
	if len(client.Transactions) != 0 || client.QueryCalls != 0 {
		t.Error("expected Dispense not to touch DynamoDB")
	}

	if _, err := st.Dispense(context.Background(), ""); !errors.Is(err, store.ErrInvalidKind) {
		t.Errorf("expected ErrInvalidKind, got %v", err)
	}
}

func TestStore_Load(t *testing.T) {
	st, client := newTestStore(t)
	client.Put("order", dynamotest.Item{
		"id":         n("7"),
		"entity_ref": s("order#7"),
		"version":    n("3"),
		"created_at": s("2024-01-01T00:00:00Z"),
		"updated_at": s("2024-01-02T00:00:00Z"),
		"parent_ref": s("customer#1"),
		"total":      n("12.50"),
		"note":       s("rush"),
	})

	b, err := st.LoadBean(context.Background(), "order", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.ID() != 7 || b.Version() != 3 || b.ParentRef() != "customer#1" {
		t.Errorf("unexpected bean state: id=%d version=%d parent=%q", b.ID(), b.Version(), b.ParentRef())
	}
	if b.Ref() != "order#7" {
		t.Errorf("expected ref 'order#7', got %q", b.Ref())
	}

	var names []string
	for name := range b.Attributes() {
		names = append(names, name)
	}
	if len(names) != 2 || names[0] != "note" || names[1] != "total" {
		t.Errorf("expected user attributes [note total], got %v", names)
	}

	total, _ := b.Attribute("total")
	if v, _ := total.Scalar(); v != json.Number("12.50") {
		t.Errorf("expected json.Number 12.50, got %#v", v)
	}
}

func TestStore_Load_NotFound(t *testing.T) {
	st, client := newTestStore(t)
	client.Put("order", dynamotest.Item{"id": n("1"), "version": n("1"), "ttl": dynamotest.Expired()})

	for _, id := range []int64{1, 2} {
		_, err := st.Load(context.Background(), "order", id)
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("id %d: expected ErrNotFound, got %v", id, err)
		}
	}
}

func TestStore_Load_ClientError(t *testing.T) {
	st, client := newTestStore(t)
	boom := errors.New("throttled")
	client.Err = boom

	_, err := st.Load(context.Background(), "order", 1)
	if !errors.Is(err, boom) {
		t.Errorf("expected client error, got %v", err)
	}
}

func TestStore_AsFactory(t *testing.T) {
	st, client := newTestStore(t)
	client.Put("item", dynamotest.Item{"id": n("4"), "version": n("1"), "name": s("pen")})

	v := materialize(t, st, `{"kind": "order", "ownItem": [{"kind": "item", "identifier": "4", "qty": 2}]}`)

	order := asBean(t, v)
	items, _ := order.Attribute("ownItem")
	c, ok := items.Collection()
	if !ok || c.Len() != 1 {
		t.Fatalf("expected one item, got %v", items)
	}
	r, _ := c.Get("0")
	item := r.(*store.Bean)
	if item.ID() != 4 || item.IsNew() {
		t.Errorf("expected loaded item 4, got id=%d", item.ID())
	}
	name, _ := item.Attribute("name")
	if sv, _ := name.Scalar(); sv != "pen" {
		t.Errorf("expected stored name 'pen', got %v", sv)
	}
	qty, _ := item.Attribute("qty")
	if sv, _ := qty.Scalar(); sv != json.Number("2") {
		t.Errorf("expected input qty 2, got %v", sv)
	}
}

func TestStore_AsFactory_MissingRecord(t *testing.T) {
	st, _ := newTestStore(t)

	node, err := graph.Parse([]byte(`{"kind": "item", "identifier": 99}`))
	if err != nil {
		t.Fatal(err)
	}
	cfg := graph.DefaultConfig()
	cfg.AllowLoad = true
	_, err = graph.New(st, cfg, nil).Materialize(context.Background(), node, false)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound from loader, got %v", err)
	}
}
