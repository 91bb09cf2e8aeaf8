package store

import "unicode"

// RelationType tells how a nested record attribute is persisted.
type RelationType int

const (
	// Plain attributes hold a single record, stored as its reference.
	Plain RelationType = iota

	// Own attributes ("ownItem") hold records exclusively owned by the
	// record. Owned records carry parent_ref and a relationship row, and
	// are trashed with their owner.
	Own

	// Shared attributes ("sharedTag") hold records that may appear under
	// many owners. They are stored as a list of references.
	Shared
)

func (t RelationType) String() string {
	switch t {
	case Own:
		return "own"
	case Shared:
		return "shared"
	default:
		return "plain"
	}
}

// RelationOf classifies an attribute name by its prefix. The prefix must be
// followed by an uppercase letter, so "owner" and "sharedness" are Plain.
func RelationOf(name string) RelationType {
	switch {
	case hasRelationPrefix(name, "own"):
		return Own
	case hasRelationPrefix(name, "shared"):
		return Shared
	default:
		return Plain
	}
}

func hasRelationPrefix(name, prefix string) bool {
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return false
	}
	return unicode.IsUpper(rune(name[len(prefix)]))
}

// Relationship declares that records of OwnerKind own records of MemberKind
// through Attribute.
type Relationship struct {
	// OwnerKind is the owning record kind (e.g., "order").
	OwnerKind string

	// MemberKind is the owned record kind (e.g., "item").
	MemberKind string

	// Attribute is the own-list attribute on the owner (e.g., "ownItem").
	Attribute string
}

// Registry holds declared ownership relationships and table overrides.
// It is optional: without it every kind maps to TablePrefix+kind and
// Trash always checks the relationship table for children.
//
// Once a registry declares any relationship it is authoritative: Save
// rejects own attributes it does not list, and Trash skips the child
// query for kinds that own nothing.
type Registry struct {
	relationships []Relationship
	byOwner       map[string][]Relationship
	tables        map[string]string
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		relationships: []Relationship{},
		byOwner:       make(map[string][]Relationship),
		tables:        make(map[string]string),
	}
}

// Register adds an ownership relationship.
func (r *Registry) Register(rel Relationship) {
	r.relationships = append(r.relationships, rel)
	r.byOwner[rel.OwnerKind] = append(r.byOwner[rel.OwnerKind], rel)
}

// RegisterTable stores records of kind in table instead of the prefixed default.
func (r *Registry) RegisterTable(kind, table string) {
	r.tables[kind] = table
}

// Table returns the table registered for kind.
func (r *Registry) Table(kind string) (string, bool) {
	t, ok := r.tables[kind]
	return t, ok
}

// ChildrenOf returns all relationships owned by a kind.
func (r *Registry) ChildrenOf(ownerKind string) []Relationship {
	return r.byOwner[ownerKind]
}

// AllRelationships returns all registered relationships.
func (r *Registry) AllRelationships() []Relationship {
	return r.relationships
}

// Relation returns the relationship declared for an owner's own attribute.
func (r *Registry) Relation(ownerKind, attribute string) (Relationship, bool) {
	for _, rel := range r.ChildrenOf(ownerKind) {
		if rel.Attribute == attribute {
			return rel, true
		}
	}
	return Relationship{}, false
}

// Declares reports whether any relationship is registered.
func (r *Registry) Declares() bool {
	return len(r.relationships) > 0
}

// HasChildren returns true if the kind owns any registered relationship.
func (r *Registry) HasChildren(ownerKind string) bool {
	return len(r.byOwner[ownerKind]) > 0
}
