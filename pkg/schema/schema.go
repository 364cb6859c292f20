// Package schema holds the in-memory model of dataset schemas: datasets,
// tables, fields, temporal descriptors and relations. Schemas are loaded
// from declarative documents (see loader.go) and cached process-wide in a
// Set that supports bulk reloads (see cache.go).
package schema

import (
	"fmt"
)

// RelationKind classifies how a field relates to another table.
type RelationKind string

const (
	RelationNone       RelationKind = ""
	RelationForward    RelationKind = "forward"
	RelationManyToMany RelationKind = "manyToMany"
	RelationReverse    RelationKind = "reverse"
	RelationNested     RelationKind = "nested"
	RelationLoose      RelationKind = "loose"
)

// Reverse relation visibility formats.
const (
	FormatEmbedded = "embedded"
	FormatSummary  = "summary"
	// FormatBlob marks a string field whose value is a remote blob URL that
	// must be signed at render time.
	FormatBlob = "blob"
)

// Dataset is a named group of tables sharing an authorization scope.
type Dataset struct {
	ID     string   `yaml:"id" json:"id"`
	Auth   []string `yaml:"auth" json:"auth,omitempty"`
	Tables []*Table `yaml:"tables" json:"tables"`
}

// Table describes one dataset table.
type Table struct {
	ID string `yaml:"id" json:"id"`
	// DatasetID is filled in by the loader.
	DatasetID string `yaml:"-" json:"-"`
	// Identifier lists the field ids forming the primary key. Composite
	// keys list more than one component.
	Identifier []string  `yaml:"identifier" json:"identifier"`
	Temporal   *Temporal `yaml:"temporal" json:"temporal,omitempty"`
	// DisplayField names the field used as human-readable title in links.
	DisplayField string   `yaml:"display" json:"display,omitempty"`
	Auth         []string `yaml:"auth" json:"auth,omitempty"`
	Fields       []*Field `yaml:"fields" json:"fields"`
	// ParentTableID is set on nested tables that hold the rows of a
	// nested-composition field of another table.
	ParentTableID string `yaml:"parentTable" json:"parentTable,omitempty"`

	dataset *Dataset
	byID    map[string]*Field
}

// Temporal describes the versioning descriptor of a temporal table.
type Temporal struct {
	// Identifier is the field holding the version sequence number.
	Identifier string `yaml:"identifier" json:"identifier"`
	// Dimensions maps a dimension name (a virtual filter selector) to the
	// boundary fields that delimit it.
	Dimensions map[string]Dimension `yaml:"dimensions" json:"dimensions,omitempty"`
}

// Dimension holds the boundary fields of one temporal dimension.
type Dimension struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// ReverseRelation declares that the reverse side of a forward relation is
// exposed on the target table, and how.
type ReverseRelation struct {
	ID     string `yaml:"id" json:"id"`
	Format string `yaml:"format" json:"format"` // "embedded" or "summary"
}

// Field describes one table field.
type Field struct {
	ID     string   `yaml:"id" json:"id"`
	Type   string   `yaml:"type" json:"type"`
	Format string   `yaml:"format" json:"format,omitempty"`
	Auth   []string `yaml:"auth" json:"auth,omitempty"`

	Relation RelationKind `yaml:"relation" json:"relation,omitempty"`
	// RelatedTable references the target table as "tableId" (same dataset)
	// or "datasetId.tableId".
	RelatedTable string `yaml:"relatedTable" json:"relatedTable,omitempty"`
	// RelatedFieldIDs are the identifier components of the target that this
	// relation stores. Defaults to the target table's identifier.
	RelatedFieldIDs []string `yaml:"relatedFields" json:"relatedFields,omitempty"`
	// ThroughTable names the association table backing a many-to-many
	// relation. It lives in the same dataset.
	ThroughTable string `yaml:"throughTable" json:"throughTable,omitempty"`
	// ReverseRelation exposes the reverse side on the target table.
	ReverseRelation *ReverseRelation `yaml:"reverseRelation" json:"reverseRelation,omitempty"`
	// ParentFieldID marks fields of an association (through) table that
	// merely carry one side of the relation.
	ParentFieldID string `yaml:"parentField" json:"parentField,omitempty"`

	table   *Table
	related *Table
	through *Table
	// reverseOf links a synthesized reverse field back to the forward field
	// that declared it.
	reverseOf *Field
}

// ObjectNotFoundError reports an unknown table or field id.
type ObjectNotFoundError struct {
	Kind string // "table", "field" or "dataset"
	ID   string
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Key returns the cache key of the table, "dataset.table".
func (t *Table) Key() string {
	return t.DatasetID + "." + t.ID
}

// Dataset returns the dataset the table belongs to.
func (t *Table) Dataset() *Dataset { return t.dataset }

// IsTemporal reports whether rows of the table are versioned.
func (t *Table) IsTemporal() bool { return t.Temporal != nil }

// HasParentTable reports whether this is a nested table.
func (t *Table) HasParentTable() bool { return t.ParentTableID != "" }

// FieldByID looks up a field by its external id.
func (t *Table) FieldByID(id string) (*Field, error) {
	if f, ok := t.byID[id]; ok {
		return f, nil
	}
	return nil, &ObjectNotFoundError{Kind: "field", ID: t.Key() + "." + id}
}

// PrimaryID returns the first identifier component. For temporal tables this
// is the identification part of the (identification, version) pair.
func (t *Table) PrimaryID() string {
	if len(t.Identifier) == 0 {
		return ""
	}
	return t.Identifier[0]
}

// HasDisplayField reports whether a title can be derived for link sections.
func (t *Table) HasDisplayField() bool { return t.DisplayField != "" }

// Table returns the table the field belongs to.
func (f *Field) Table() *Table { return f.table }

// Related returns the resolved target table of a relation field, or nil.
func (f *Field) Related() *Table { return f.related }

// Through returns the resolved association table of a many-to-many field.
func (f *Field) Through() *Table { return f.through }

// ReverseOf returns the forward relation field that a synthesized reverse
// field mirrors, or nil for declared fields.
func (f *Field) ReverseOf() *Field { return f.reverseOf }

// IsRelation reports whether the field references another table.
func (f *Field) IsRelation() bool { return f.Relation != RelationNone }

// RelatedIdentifier returns the target identifier components checked and
// traversed when a filter path steps through this relation.
func (f *Field) RelatedIdentifier() []string {
	if len(f.RelatedFieldIDs) > 0 {
		return f.RelatedFieldIDs
	}
	if f.related != nil {
		return f.related.Identifier
	}
	return nil
}

// Column returns the storage column backing the field. Forward and loose
// relations store the raw related identifier in a "<field>_id" column.
func (f *Field) Column() string {
	switch f.Relation {
	case RelationForward, RelationLoose:
		return ToSnakeCase(f.ID) + "_id"
	default:
		return ToSnakeCase(f.ID)
	}
}
