package store

import (
	"bytes"
	"encoding/json"
	"iter"
	"reflect"
	"strconv"

	"github.com/jacentio/espalier/graph"
)

// Bean is the Store's record: a kind, a numeric identifier and an ordered
// set of attributes. A Bean with identifier 0 has never been saved.
type Bean struct {
	kind      string
	id        int64
	version   int64
	createdAt string
	parentRef string

	names []string
	attrs map[string]graph.Value
}

var _ graph.Record = (*Bean)(nil)

// NewBean returns an empty, unsaved bean.
func NewBean(kind string) *Bean {
	return &Bean{
		kind:  kind,
		attrs: make(map[string]graph.Value),
	}
}

// Kind returns the record kind.
func (b *Bean) Kind() string { return b.kind }

// ID returns the identifier, 0 until the bean is saved.
func (b *Bean) ID() int64 { return b.id }

// Version returns the optimistic lock version, 0 until the bean is saved.
func (b *Bean) Version() int64 { return b.version }

// IsNew reports whether the bean has not been stored yet.
func (b *Bean) IsNew() bool { return b.id == 0 }

// ParentRef returns the reference of the owning record, if any.
func (b *Bean) ParentRef() string { return b.parentRef }

// Ref returns the type-qualified reference, e.g. "order#12".
func (b *Bean) Ref() string {
	return ref(b.kind, b.id)
}

func ref(kind string, id int64) string {
	return kind + "#" + strconv.FormatInt(id, 10)
}

// SetAttribute stores v under name. The identifier attribute is not stored:
// it sets the bean identifier instead, and is ignored when it can't be
// coerced.
func (b *Bean) SetAttribute(name string, v graph.Value) {
	if name == graph.IdentifierKey {
		if s, ok := v.Scalar(); ok {
			if s == nil {
				b.id = 0
			} else if id, err := graph.CoerceIdentifier(s); err == nil {
				b.id = id
			}
		}
		return
	}

	if b.attrs == nil {
		b.attrs = make(map[string]graph.Value)
	}
	if _, ok := b.attrs[name]; !ok {
		b.names = append(b.names, name)
	}
	b.attrs[name] = v
}

// Attribute returns the value stored under name.
func (b *Bean) Attribute(name string) (graph.Value, bool) {
	v, ok := b.attrs[name]
	return v, ok
}

// Attributes iterates over the attributes in assignment order.
func (b *Bean) Attributes() iter.Seq2[string, graph.Value] {
	return func(yield func(string, graph.Value) bool) {
		for _, name := range b.names {
			if !yield(name, b.attrs[name]) {
				return
			}
		}
	}
}

// IsEmpty reports whether every attribute is null, "", false, numeric zero
// or an empty collection.
func (b *Bean) IsEmpty() bool {
	for _, v := range b.attrs {
		if !isEmptyValue(v) {
			return false
		}
	}
	return true
}

func isEmptyValue(v graph.Value) bool {
	switch v.Kind() {
	case graph.KindRecord:
		return false
	case graph.KindCollection:
		c, _ := v.Collection()
		return c.Len() == 0
	}

	s, _ := v.Scalar()
	switch t := s.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	}

	rv := reflect.ValueOf(s)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return rv.IsZero()
	default:
		return false
	}
}

// MarshalJSON renders the bean as an object: kind, identifier (once saved
// or loaded), then the attributes in assignment order.
func (b *Bean) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	kind, err := json.Marshal(b.kind)
	if err != nil {
		return nil, err
	}
	buf.Write(kind)

	if b.id != 0 {
		buf.WriteString(`,"identifier":`)
		buf.WriteString(strconv.FormatInt(b.id, 10))
	}

	for name, v := range b.Attributes() {
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
