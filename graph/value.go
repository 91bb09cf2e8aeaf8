package graph

import (
	"bytes"
	"encoding/json"
	"iter"
)

// ValueKind tells which member of the Value union is set.
type ValueKind int

const (
	// KindScalar is a terminal value, null included.
	KindScalar ValueKind = iota

	// KindRecord is a single Record.
	KindRecord

	// KindCollection is an ordered Collection of Records.
	KindCollection
)

func (k ValueKind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindCollection:
		return "collection"
	default:
		return "scalar"
	}
}

// Value is an attribute value: a scalar, a Record or a Collection of Records.
// The zero Value is the null scalar.
type Value struct {
	kind       ValueKind
	scalar     any
	record     Record
	collection *Collection
}

// Null is the null identity value.
var Null = Value{}

// ScalarValue wraps a terminal value.
func ScalarValue(v any) Value {
	return Value{kind: KindScalar, scalar: v}
}

// RecordValue wraps a single record.
func RecordValue(r Record) Value {
	return Value{kind: KindRecord, record: r}
}

// CollectionValue wraps an ordered record collection.
func CollectionValue(c *Collection) Value {
	return Value{kind: KindCollection, collection: c}
}

// Kind returns which member of the union v holds.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is the null scalar.
func (v Value) IsNull() bool {
	return v.kind == KindScalar && v.scalar == nil
}

// Scalar returns the terminal value when v is a scalar.
func (v Value) Scalar() (any, bool) {
	return v.scalar, v.kind == KindScalar
}

// Record returns the record when v holds one.
func (v Value) Record() (Record, bool) {
	return v.record, v.kind == KindRecord
}

// Collection returns the collection when v holds one.
func (v Value) Collection() (*Collection, bool) {
	return v.collection, v.kind == KindCollection
}

// MarshalJSON renders scalars as-is, records through their own
// json.Marshaler (or as {"kind": ...}) and collections as ordered objects.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindRecord:
		if m, ok := v.record.(json.Marshaler); ok {
			return m.MarshalJSON()
		}
		return json.Marshal(map[string]string{KindKey: v.record.Kind()})
	case KindCollection:
		return v.collection.MarshalJSON()
	default:
		return json.Marshal(v.scalar)
	}
}

// Collection is an ordered mapping from input keys to records.
type Collection struct {
	keys    []string
	records map[string]Record
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{records: make(map[string]Record)}
}

// Put appends r under key, or replaces the record in place if key exists.
func (c *Collection) Put(key string, r Record) {
	if c.records == nil {
		c.records = make(map[string]Record)
	}
	if _, ok := c.records[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.records[key] = r
}

// Get returns the record stored under key.
func (c *Collection) Get(key string) (Record, bool) {
	if c == nil {
		return nil, false
	}
	r, ok := c.records[key]
	return r, ok
}

// Len returns the number of records.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Keys returns the keys in insertion order.
func (c *Collection) Keys() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// All iterates over key/record pairs in insertion order.
func (c *Collection) All() iter.Seq2[string, Record] {
	return func(yield func(string, Record) bool) {
		if c == nil {
			return
		}
		for _, k := range c.keys {
			if !yield(k, c.records[k]) {
				return
			}
		}
	}
}

// MarshalJSON renders the collection as an object in insertion order.
func (c *Collection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		rec, err := RecordValue(c.records[k]).MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(rec)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
