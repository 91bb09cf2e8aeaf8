package graph

import (
	"context"
	"log/slog"
)

// Record is a typed, attribute-bearing unit produced by a Factory.
type Record interface {
	// Kind returns the record type name (e.g. "order").
	Kind() string

	// SetAttribute stores v under name.
	SetAttribute(name string, v Value)

	// IsEmpty reports whether the record carries no meaningful attributes.
	IsEmpty() bool
}

// Factory creates and loads records. It is implemented by the persistence layer.
type Factory interface {
	// Dispense returns a fresh, empty record of the given kind.
	Dispense(ctx context.Context, kind string) (Record, error)

	// Load returns the stored record of the given kind and identifier.
	Load(ctx context.Context, kind string, id int64) (Record, error)
}

// Materializer turns input trees into record graphs.
type Materializer struct {
	factory Factory
	config  Config
	logger  *slog.Logger
}

// New creates a Materializer. The config is validated and copied.
func New(factory Factory, config Config, logger *slog.Logger) *Materializer {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{
		factory: factory,
		config:  config,
		logger:  logger,
	}
}

// Config returns the policy the Materializer was built with.
func (m *Materializer) Config() Config {
	return m.config
}

// Materialize walks n and returns either a single record (for a descriptor)
// or a collection of records (for a collection). With filterEmpty set,
// collection members whose record reports IsEmpty are dropped.
//
// Any failure aborts the whole call; no partial graph is returned. Errors
// raised by the Factory are returned unchanged, all others are *Error
// values wrapping one of the package sentinels.
func (m *Materializer) Materialize(ctx context.Context, n Node, filterEmpty bool) (Value, error) {
	w := &walker{
		m:           m,
		filterEmpty: filterEmpty,
	}
	return w.visit(ctx, n, "", "", 1)
}

// walker holds the state of a single Materialize call.
type walker struct {
	m           *Materializer
	filterEmpty bool
	nodes       int
}

func (w *walker) visit(ctx context.Context, n Node, path, kind string, depth int) (Value, error) {
	if err := ctx.Err(); err != nil {
		return Null, err
	}
	if depth > w.m.config.MaxDepth {
		return Null, &Error{Path: path, Kind: kind, Err: ErrTooDeep}
	}

	switch t := n.(type) {
	case *DescriptorNode:
		if err := w.count(path, kind); err != nil {
			return Null, err
		}
		r, err := w.record(ctx, t, path, depth)
		if err != nil {
			return Null, err
		}
		return RecordValue(r), nil
	case *CollectionNode:
		if err := w.count(path, kind); err != nil {
			return Null, err
		}
		c, err := w.collection(ctx, t, path, kind, depth)
		if err != nil {
			return Null, err
		}
		return CollectionValue(c), nil
	default:
		return Null, &Error{Path: path, Kind: kind, Err: ErrExpectedMapping}
	}
}

func (w *walker) count(path, kind string) error {
	w.nodes++
	if w.nodes > w.m.config.MaxNodes {
		return &Error{Path: path, Kind: kind, Err: ErrTooManyNodes}
	}
	return nil
}

func (w *walker) record(ctx context.Context, d *DescriptorNode, path string, depth int) (Record, error) {
	if d.Kind == "" {
		return nil, &Error{Path: path, Err: ErrInvalidKind}
	}

	rec, err := w.obtain(ctx, d, path)
	if err != nil {
		return nil, err
	}

	for _, f := range d.Fields {
		if f.Node == nil {
			rec.SetAttribute(f.Key, Null)
			continue
		}
		if s, ok := f.Node.(ScalarNode); ok {
			rec.SetAttribute(f.Key, w.scalar(s))
			continue
		}

		v, err := w.visit(ctx, f.Node, joinPath(path, f.Key), d.Kind, depth+1)
		if err != nil {
			return nil, err
		}
		rec.SetAttribute(f.Key, v)
	}

	return rec, nil
}

// obtain loads the record when the descriptor names an identifier and
// dispenses a fresh one otherwise. A null identifier names nothing. Load is
// only reachable through the AllowLoad gate.
func (w *walker) obtain(ctx context.Context, d *DescriptorNode, path string) (Record, error) {
	idNode, ok := d.Lookup(IdentifierKey)
	if s, isScalar := idNode.(ScalarNode); !ok || idNode == nil || (isScalar && s.Value == nil) {
		return w.m.factory.Dispense(ctx, d.Kind)
	}

	if !w.m.config.AllowLoad {
		w.m.logger.Warn("rejected record load from input",
			"kind", d.Kind,
			"path", path,
		)
		return nil, &Error{Path: path, Kind: d.Kind, Err: ErrLoadDisallowed}
	}

	s, ok := idNode.(ScalarNode)
	if !ok {
		return nil, &Error{Path: joinPath(path, IdentifierKey), Kind: d.Kind, Err: ErrInvalidIdentifier}
	}
	id, err := CoerceIdentifier(s.Value)
	if err != nil {
		return nil, &Error{Path: joinPath(path, IdentifierKey), Kind: d.Kind, Err: err}
	}

	w.m.logger.Debug("loading record",
		"kind", d.Kind,
		"identifier", id,
		"path", path,
	)
	return w.m.factory.Load(ctx, d.Kind, id)
}

func (w *walker) scalar(s ScalarNode) Value {
	if str, ok := s.Value.(string); ok && str == "" && w.m.config.NullForEmptyString {
		return Null
	}
	return ScalarValue(s.Value)
}

func (w *walker) collection(ctx context.Context, c *CollectionNode, path, kind string, depth int) (*Collection, error) {
	out := NewCollection()

	for _, e := range c.Entries {
		memberPath := path + "[" + e.Key + "]"

		v, err := w.visit(ctx, e.Node, memberPath, kind, depth+1)
		if err != nil {
			return nil, err
		}

		r, ok := v.Record()
		if !ok {
			return nil, &Error{Path: memberPath, Kind: kind, Err: ErrExpectedRecord}
		}

		if w.filterEmpty && r.IsEmpty() {
			continue
		}
		out.Put(e.Key, r)
	}

	return out, nil
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
