package graph

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
)

const (
	// KindKey is the reserved key that turns a mapping into a record descriptor.
	KindKey = "kind"

	// IdentifierKey marks a descriptor as a request to load an existing record.
	IdentifierKey = "identifier"
)

// Node is an input tree node. It is one of [ScalarNode], [*DescriptorNode]
// or [*CollectionNode].
type Node interface {
	node()
}

// Entry is one key/value pair of an ordered mapping.
type Entry struct {
	Key  string
	Node Node
}

// ScalarNode is a terminal value: string, bool, nil, json.Number or a Go number.
type ScalarNode struct {
	Value any
}

// DescriptorNode describes a single record. The kind key has already been
// removed from Fields.
type DescriptorNode struct {
	Kind   string
	Fields []Entry
}

// CollectionNode is an ordered group of nodes without a kind.
type CollectionNode struct {
	Entries []Entry
}

func (ScalarNode) node()      {}
func (*DescriptorNode) node() {}
func (*CollectionNode) node() {}

// Lookup returns the node stored under key, if any.
func (d *DescriptorNode) Lookup(key string) (Node, bool) {
	for _, f := range d.Fields {
		if f.Key == key {
			return f.Node, true
		}
	}
	return nil, false
}

// Scalar is a convenience constructor for ScalarNode.
func Scalar(v any) ScalarNode {
	return ScalarNode{Value: v}
}

// Descriptor builds a descriptor node of the given kind.
func Descriptor(kind string, fields ...Entry) *DescriptorNode {
	return &DescriptorNode{Kind: kind, Fields: fields}
}

// List builds a collection keyed by position.
func List(nodes ...Node) *CollectionNode {
	c := &CollectionNode{Entries: make([]Entry, 0, len(nodes))}
	for i, n := range nodes {
		c.Entries = append(c.Entries, Entry{Key: strconv.Itoa(i), Node: n})
	}
	return c
}

// Field is a convenience constructor for Entry.
func Field(key string, n Node) Entry {
	return Entry{Key: key, Node: n}
}

// orderedMap is a mapping that remembers insertion order. A repeated key
// keeps its first position and takes the last value.
type orderedMap struct {
	entries []Entry
	index   map[string]int
}

func (m *orderedMap) set(key string, n Node) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[key]; ok {
		m.entries[i].Node = n
		return
	}
	m.index[key] = len(m.entries)
	m.entries = append(m.entries, Entry{Key: key, Node: n})
}

// classify turns an ordered mapping into a descriptor or a collection
// depending on the presence of the kind key.
func classify(m *orderedMap) (Node, error) {
	i, ok := m.index[KindKey]
	if !ok {
		return &CollectionNode{Entries: m.entries}, nil
	}

	s, isScalar := m.entries[i].Node.(ScalarNode)
	kind, isString := s.Value.(string)
	if !isScalar || !isString || kind == "" {
		return nil, ErrInvalidKind
	}

	fields := make([]Entry, 0, len(m.entries)-1)
	fields = append(fields, m.entries[:i]...)
	fields = append(fields, m.entries[i+1:]...)
	return &DescriptorNode{Kind: kind, Fields: fields}, nil
}

// Parse decodes a JSON document into a Node, keeping object key order.
// Numbers are kept as json.Number.
func Parse(data []byte) (Node, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a single JSON value from r into a Node.
func Decode(r io.Reader) (Node, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	n, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("espalier: trailing data after JSON value")
	}
	return n, nil
}

func decodeValue(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("espalier: decode input: %w", err)
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		}
		return nil, fmt.Errorf("espalier: unexpected delimiter %q", t)
	default:
		return ScalarNode{Value: t}, nil
	}
}

func decodeObject(dec *json.Decoder) (Node, error) {
	m := &orderedMap{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("espalier: decode input: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("espalier: unexpected object key %v", tok)
		}
		n, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		m.set(key, n)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("espalier: decode input: %w", err)
	}
	return classify(m)
}

func decodeArray(dec *json.Decoder) (Node, error) {
	c := &CollectionNode{}
	for i := 0; dec.More(); i++ {
		n, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		c.Entries = append(c.Entries, Entry{Key: strconv.Itoa(i), Node: n})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("espalier: decode input: %w", err)
	}
	return c, nil
}

// FromValue converts generic Go data (as produced by encoding/json into
// an any, or built by hand) into a Node. Go maps carry no order, so map
// keys are sorted: integer keys numerically first, then the rest
// lexically. Callers that care about order should use [Parse] or build
// nodes directly.
func FromValue(v any) (Node, error) {
	switch t := v.(type) {
	case Node:
		return t, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareKeys)

		m := &orderedMap{}
		for _, k := range keys {
			n, err := FromValue(t[k])
			if err != nil {
				return nil, err
			}
			m.set(k, n)
		}
		return classify(m)
	case []any:
		c := &CollectionNode{Entries: make([]Entry, 0, len(t))}
		for i, item := range t {
			n, err := FromValue(item)
			if err != nil {
				return nil, err
			}
			c.Entries = append(c.Entries, Entry{Key: strconv.Itoa(i), Node: n})
		}
		return c, nil
	case []map[string]any:
		items := make([]any, len(t))
		for i := range t {
			items[i] = t[i]
		}
		return FromValue(items)
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return ScalarNode{Value: t}, nil
	default:
		return nil, fmt.Errorf("espalier: unsupported input type %T", v)
	}
}

func compareKeys(a, b string) int {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		return cmp.Compare(ai, bi)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return cmp.Compare(a, b)
}
