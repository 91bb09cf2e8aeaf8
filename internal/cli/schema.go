package cli

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/jacentio/espalier/store"
)

// A schema file declares per-kind table overrides and ownership:
//
//	kind "order" {
//	  table = "orders"
//
//	  own "ownItem" {
//	    kind = "item"
//	  }
//	}
type hclSchemaFile struct {
	Kinds []*hclKind `hcl:"kind,block"`
}

type hclKind struct {
	Name  string    `hcl:"name,label"`
	Table *string   `hcl:"table,optional"`
	Owns  []*hclOwn `hcl:"own,block"`
}

type hclOwn struct {
	Attribute string `hcl:"attribute,label"`
	Kind      string `hcl:"kind"`
}

// LoadSchema reads an HCL schema file into a registry.
func LoadSchema(path string) (*store.Registry, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return ParseSchema(src, path)
}

// ParseSchema decodes HCL schema source. filename is used in diagnostics.
func ParseSchema(src []byte, filename string) (*store.Registry, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse schema %s: %w", filename, diags)
	}

	var parsed hclSchemaFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode schema %s: %w", filename, diags)
	}

	reg := store.NewRegistry()
	seen := make(map[string]bool, len(parsed.Kinds))
	for _, k := range parsed.Kinds {
		if k.Name == "" {
			return nil, fmt.Errorf("%s: kind name must not be empty", filename)
		}
		if seen[k.Name] {
			return nil, fmt.Errorf("%s: kind %q declared twice", filename, k.Name)
		}
		seen[k.Name] = true

		if k.Table != nil {
			if *k.Table == "" {
				return nil, fmt.Errorf("%s: kind %q: table must not be empty", filename, k.Name)
			}
			reg.RegisterTable(k.Name, *k.Table)
		}
		for _, o := range k.Owns {
			if store.RelationOf(o.Attribute) != store.Own {
				return nil, fmt.Errorf("%s: kind %q: %q is not an own attribute", filename, k.Name, o.Attribute)
			}
			if o.Kind == "" {
				return nil, fmt.Errorf("%s: kind %q: own %q needs a member kind", filename, k.Name, o.Attribute)
			}
			reg.Register(store.Relationship{
				OwnerKind:  k.Name,
				MemberKind: o.Kind,
				Attribute:  o.Attribute,
			})
		}
	}
	return reg, nil
}
