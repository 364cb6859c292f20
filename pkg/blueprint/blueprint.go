// Package blueprint turns table schemas into cached, reusable rendering
// blueprints. A Blueprint is a plain ordered description of how rows of one
// table project into the output shape: body fields, the _links section, and
// lazily resolved embedded relations. Blueprints are immutable once built
// and shared across requests; anything request-dependent (signed blob URLs,
// field stripping) happens in the rendering layer.
package blueprint

import (
	"sync"

	"github.com/tablodata/tablo/pkg/schema"
)

// Kind classifies a body field descriptor.
type Kind string

const (
	// KindScalar copies a storage column into the body under its external name.
	KindScalar Kind = "scalar"
	// KindRelatedID carries the raw related identifier of a single-valued
	// relation, exposed as "<field>Id".
	KindRelatedID Kind = "relatedId"
	// KindBlob marks a remote-blob URL that must be signed at render time.
	// The signature depends on wall-clock time, so it is never part of the
	// cached blueprint.
	KindBlob Kind = "blob"
)

// BodyField describes one plain field of the rendered body.
type BodyField struct {
	Name   string // external name
	Source string // storage column
	Kind   Kind
	Schema *schema.Field // nil for synthesized fields
}

// LinkKind distinguishes link shapes by target temporality.
type LinkKind string

const (
	LinkPlain    LinkKind = "plain"
	LinkTemporal LinkKind = "temporal"
	LinkLoose    LinkKind = "loose"
)

// LinkShape is the reusable layout of one link object: href, optional title
// and the identifier field(s). For temporal targets the href additionally
// carries the version selector, so a later fetch resolves the same slice.
type LinkShape struct {
	Kind  LinkKind
	Table *schema.Table

	TitleSource string // storage column of the display field, "" when absent

	IDName   string // external name of the primary identifier
	IDSource string

	// Temporal targets only.
	VersionKey    string // query parameter key appended to the href
	VersionName   string // external name of the version field
	VersionSource string
}

// Through describes how a many-to-many relation renders from its
// association rows, without joining to the target table. The href and the
// temporal selectors are all read from the association row itself; only the
// title may need a single hop when the target's display field is not its
// identifier.
type Through struct {
	Table  *schema.Table // association table
	Target *schema.Table

	// SourceFK is the association column holding the owning row's key,
	// used to select the association rows of one parent object.
	SourceFK string
	// HrefSource is the association column holding the raw target key.
	HrefSource string

	// TitleSource is the column read for the title. With TitleHop set it
	// names a target-table column and requires one lookup per row.
	TitleSource string
	TitleHop    bool

	// Non-temporal targets expose the plain identifier.
	IDName   string
	IDSource string

	// Temporal targets: the identification/version pair copied onto the
	// association row, plus the validity bounds of the relationship.
	PrimaryName   string
	PrimarySource string
	VersionName   string
	VersionSource string
	VersionKey    string
	Dimensions    []BodyField
}

// LinkField is one entry of the _links section.
type LinkField struct {
	Name    string
	Field   *schema.Field
	Source  string // storage column of the raw identifier, single-valued only
	Shape   *LinkShape
	Through *Through // set for many-to-many entries
	Many    bool
	// Summary renders a count plus an href instead of inline link objects.
	Summary bool
}

// Links is the _links sub-blueprint: the self link plus one entry per
// externally visible relation.
type Links struct {
	Self      *LinkShape
	Relations []*LinkField
}

// Link returns the links-section entry with the given external name, or nil.
func (b *Blueprint) Link(name string) *LinkField {
	if b.Links == nil {
		return nil
	}
	for _, lf := range b.Links.Relations {
		if lf.Name == name {
			return lf
		}
	}
	return nil
}

// EmbeddedField references another table's Blueprint, resolved on first use.
type EmbeddedField struct {
	Name   string
	Field  *schema.Field
	Source string // raw identifier column, single-valued relations only
	Many   bool
	ref    *Ref
}

// Blueprint resolves the target blueprint of the embedded relation.
func (e *EmbeddedField) Blueprint() (*Blueprint, error) { return e.ref.Resolve() }

// NestedField is an inline list backed by a nested table.
type NestedField struct {
	Name      string
	Table     *schema.Table
	Blueprint *Blueprint
}

// Blueprint is the materialized rendering shape of one (table, depth) pair.
type Blueprint struct {
	Table *schema.Table
	Depth int

	// Links is nil for nested tables, which have no links section.
	Links    *Links
	Body     []BodyField
	Embedded []*EmbeddedField
	Nested   []*NestedField
}

// Ref defers blueprint construction until first access. Forward references
// in cyclic schema graphs would otherwise recurse eagerly during
// construction, before the factory cache is filled.
type Ref struct {
	once  sync.Once
	build func() (*Blueprint, error)
	bp    *Blueprint
	err   error
}

// Resolve evaluates the deferred construction exactly once.
func (r *Ref) Resolve() (*Blueprint, error) {
	r.once.Do(func() {
		r.bp, r.err = r.build()
	})
	return r.bp, r.err
}
