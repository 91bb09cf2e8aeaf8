package graph_test

import (
	"context"
	"testing"

	"github.com/jacentio/espalier/graph"
)

// --- Test Record / Factory ---

// testRecord remembers attribute assignment order.
type testRecord struct {
	kind   string
	id     int64
	loaded bool
	names  []string
	attrs  map[string]graph.Value
}

func (r *testRecord) Kind() string { return r.kind }

func (r *testRecord) SetAttribute(name string, v graph.Value) {
	if r.attrs == nil {
		r.attrs = make(map[string]graph.Value)
	}
	if _, ok := r.attrs[name]; !ok {
		r.names = append(r.names, name)
	}
	r.attrs[name] = v
}

// IsEmpty treats null and "" as empty, like a freshly dispensed form row.
func (r *testRecord) IsEmpty() bool {
	for _, v := range r.attrs {
		s, ok := v.Scalar()
		if !ok {
			return false
		}
		if s != nil && s != "" {
			return false
		}
	}
	return true
}

type loadCall struct {
	kind string
	id   int64
}

type testFactory struct {
	dispensed []string
	loads     []loadCall
	loadErr   error
}

func (f *testFactory) Dispense(_ context.Context, kind string) (graph.Record, error) {
	f.dispensed = append(f.dispensed, kind)
	return &testRecord{kind: kind}, nil
}

func (f *testFactory) Load(_ context.Context, kind string, id int64) (graph.Record, error) {
	f.loads = append(f.loads, loadCall{kind: kind, id: id})
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return &testRecord{kind: kind, id: id, loaded: true}, nil
}

// --- Helpers ---

func mustParse(t *testing.T, doc string) graph.Node {
	t.Helper()
	n, err := graph.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse %s: %v", doc, err)
	}
	return n
}

func materialize(t *testing.T, cfg graph.Config, doc string, filterEmpty bool) (graph.Value, *testFactory, error) {
	t.Helper()
	f := &testFactory{}
	m := graph.New(f, cfg, nil)
	v, err := m.Materialize(context.Background(), mustParse(t, doc), filterEmpty)
	return v, f, err
}

func asRecord(t *testing.T, v graph.Value) *testRecord {
	t.Helper()
	r, ok := v.Record()
	if !ok {
		t.Fatalf("expected record, got %s", v.Kind())
	}
	return r.(*testRecord)
}

func asCollection(t *testing.T, v graph.Value) *graph.Collection {
	t.Helper()
	c, ok := v.Collection()
	if !ok {
		t.Fatalf("expected collection, got %s", v.Kind())
	}
	return c
}

func scalarAttr(t *testing.T, r *testRecord, name string) any {
	t.Helper()
	v, ok := r.attrs[name]
	if !ok {
		t.Fatalf("attribute %q not set on %s", name, r.kind)
	}
	s, ok := v.Scalar()
	if !ok {
		t.Fatalf("attribute %q is a %s, expected scalar", name, v.Kind())
	}
	return s
}
