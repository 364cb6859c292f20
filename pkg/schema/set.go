package schema

import (
	"fmt"
	"strings"
)

// Set is the resolved collection of all loaded datasets. Resolution links
// every relation field to its target (and association) table; an unresolved
// reference is a configuration error, not a request error.
type Set struct {
	datasets map[string]*Dataset
	tables   map[string]*Table // key: "dataset.table"
}

// NewSet links and resolves the given datasets into a Set.
func NewSet(datasets ...*Dataset) (*Set, error) {
	s := &Set{
		datasets: make(map[string]*Dataset, len(datasets)),
		tables:   make(map[string]*Table),
	}

	for _, ds := range datasets {
		if ds.ID == "" {
			return nil, fmt.Errorf("dataset without id")
		}
		if _, dup := s.datasets[ds.ID]; dup {
			return nil, fmt.Errorf("duplicate dataset %q", ds.ID)
		}
		s.datasets[ds.ID] = ds

		for _, t := range ds.Tables {
			t.DatasetID = ds.ID
			t.dataset = ds
			t.byID = make(map[string]*Field, len(t.Fields))
			for _, f := range t.Fields {
				if _, dup := t.byID[f.ID]; dup {
					return nil, fmt.Errorf("table %s: duplicate field %q", t.Key(), f.ID)
				}
				f.table = t
				t.byID[f.ID] = f
			}
			if _, dup := s.tables[t.Key()]; dup {
				return nil, fmt.Errorf("duplicate table %s", t.Key())
			}
			s.tables[t.Key()] = t
		}
	}

	// Second pass: resolve relation targets now that all tables are known.
	for _, t := range s.tables {
		for _, f := range t.Fields {
			if err := s.resolveField(t, f); err != nil {
				return nil, err
			}
		}
	}

	// Third pass: materialize declared reverse relations on their targets.
	for _, t := range s.tables {
		for _, f := range t.Fields {
			if err := s.synthesizeReverse(f); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// synthesizeReverse adds a reverse field on the target table when the
// forward field declares one. Undeclared reverse relations stay invisible.
func (s *Set) synthesizeReverse(f *Field) error {
	rr := f.ReverseRelation
	if rr == nil {
		return nil
	}
	if f.Relation != RelationForward && f.Relation != RelationManyToMany {
		return fmt.Errorf("table %s: field %q: reverseRelation requires a forward or many-to-many relation", f.table.Key(), f.ID)
	}
	if rr.Format != FormatEmbedded && rr.Format != FormatSummary {
		return fmt.Errorf("table %s: field %q: reverseRelation format %q not supported", f.table.Key(), f.ID, rr.Format)
	}

	target := f.related
	if _, exists := target.byID[rr.ID]; exists {
		return fmt.Errorf("table %s: reverse relation %q collides with an existing field", target.Key(), rr.ID)
	}
	rev := &Field{
		ID:           rr.ID,
		Format:       rr.Format,
		Relation:     RelationReverse,
		RelatedTable: f.table.Key(),
		table:        target,
		related:      f.table,
		reverseOf:    f,
	}
	target.Fields = append(target.Fields, rev)
	target.byID[rev.ID] = rev
	return nil
}

func (s *Set) resolveField(t *Table, f *Field) error {
	if f.Relation == RelationNone {
		return nil
	}
	if f.RelatedTable == "" {
		return fmt.Errorf("table %s: relation field %q has no relatedTable", t.Key(), f.ID)
	}

	related, err := s.resolveRef(t.DatasetID, f.RelatedTable)
	if err != nil {
		return fmt.Errorf("table %s, field %q: %w", t.Key(), f.ID, err)
	}
	f.related = related

	if f.Relation == RelationManyToMany {
		if f.ThroughTable == "" {
			return fmt.Errorf("table %s: many-to-many field %q has no throughTable", t.Key(), f.ID)
		}
		through, err := s.resolveRef(t.DatasetID, f.ThroughTable)
		if err != nil {
			return fmt.Errorf("table %s, field %q: %w", t.Key(), f.ID, err)
		}
		f.through = through
	}
	return nil
}

// resolveRef resolves a "tableId" or "datasetId.tableId" reference.
func (s *Set) resolveRef(datasetID, ref string) (*Table, error) {
	key := ref
	if !strings.Contains(ref, ".") {
		key = datasetID + "." + ref
	}
	t, ok := s.tables[key]
	if !ok {
		return nil, &ObjectNotFoundError{Kind: "table", ID: key}
	}
	return t, nil
}

// Dataset looks up a dataset by id.
func (s *Set) Dataset(id string) (*Dataset, error) {
	ds, ok := s.datasets[id]
	if !ok {
		return nil, &ObjectNotFoundError{Kind: "dataset", ID: id}
	}
	return ds, nil
}

// Table looks up a table by dataset and table id.
func (s *Set) Table(datasetID, tableID string) (*Table, error) {
	return s.TableByKey(datasetID + "." + tableID)
}

// TableByKey looks up a table by its "dataset.table" key.
func (s *Set) TableByKey(key string) (*Table, error) {
	t, ok := s.tables[key]
	if !ok {
		return nil, &ObjectNotFoundError{Kind: "table", ID: key}
	}
	return t, nil
}

// Datasets returns all datasets in the set.
func (s *Set) Datasets() map[string]*Dataset { return s.datasets }

// Tables returns all tables keyed by "dataset.table".
func (s *Set) Tables() map[string]*Table { return s.tables }
