package rest

import (
	"net/http"
	"strings"

	"github.com/tablodata/tablo/pkg/query"
	"github.com/tablodata/tablo/pkg/schema"
	"github.com/tablodata/tablo/pkg/storage"
)

// buildQuery translates the validated request parameters into a storage
// query. Validation has already established that every parameter is
// well-formed and authorized; this step only resolves names to columns.
func (s *Server) buildQuery(r *http.Request, table *schema.Table) (storage.Query, error) {
	sq := storage.Query{Table: table}
	params := r.URL.Query()

	for key, values := range params {
		if _, ok := reservedParams[key]; ok || key == query.SortParam {
			continue
		}
		if len(values) == 0 {
			continue
		}
		fieldName, op, err := query.ParseFilter(key)
		if err != nil {
			return sq, err
		}
		if op == "" {
			op = storage.OpExact
		}
		value := filterValue(values[0], op)

		// Temporal dimension selectors expand to their boundary fields:
		// start <= value and (end > value or end open).
		if table.Temporal != nil {
			if dim, ok := table.Temporal.Dimensions[fieldName]; ok {
				sq.Filters = append(sq.Filters,
					storage.Filter{Column: schema.ToSnakeCase(dim.Start), Op: storage.OpLte, Value: value},
					storage.Filter{Column: schema.ToSnakeCase(dim.End), Op: storage.OpGtOrNull, Value: value},
				)
				continue
			}
		}

		filters, err := s.resolveFilterPath(r, table, fieldName, op, value)
		if err != nil {
			return sq, err
		}
		sq.Filters = append(sq.Filters, filters...)
	}

	for _, sortValue := range params[query.SortParam] {
		for _, field := range strings.Split(sortValue, ",") {
			desc := strings.HasPrefix(field, "-")
			field = strings.TrimPrefix(field, "-")
			column, err := sortColumn(table, field)
			if err != nil {
				return sq, err
			}
			sq.Sort = append(sq.Sort, storage.Sort{Column: column, Descending: desc})
		}
	}
	return sq, nil
}

// resolveFilterPath turns a possibly dotted filter into storage filters on
// the root table. Relation hops are executed inside-out: the innermost
// condition selects related rows, whose keys then restrict the next hop.
func (s *Server) resolveFilterPath(r *http.Request, table *schema.Table, path, op string, value any) ([]storage.Filter, error) {
	head, rest, _ := strings.Cut(path, ".")

	if rest == "" {
		fld, err := table.FieldByID(head)
		if err != nil {
			// The "<relation>Id" shorthand addresses the stored key column.
			if base, ok := strings.CutSuffix(head, "Id"); ok && base != "" {
				if baseFld, baseErr := table.FieldByID(base); baseErr == nil && baseFld.Related() != nil {
					return []storage.Filter{{Column: baseFld.Column(), Op: op, Value: value}}, nil
				}
			}
			return nil, err
		}
		return []storage.Filter{{Column: fld.Column(), Op: op, Value: value}}, nil
	}

	fld, err := table.FieldByID(head)
	if err != nil {
		return nil, err
	}
	related := fld.Related()
	if related == nil {
		return nil, &query.FilterSyntaxError{Param: path, Reason: head + " is not a relation"}
	}

	subFilters, err := s.resolveFilterPath(r, related, rest, op, value)
	if err != nil {
		return nil, err
	}

	switch fld.Relation {
	case schema.RelationForward, schema.RelationLoose:
		keys, err := s.collectKeys(r, related, subFilters, schema.ToSnakeCase(related.PrimaryID()))
		if err != nil {
			return nil, err
		}
		return []storage.Filter{{Column: fld.Column(), Op: storage.OpIn, Value: keys}}, nil

	case schema.RelationReverse:
		keys, err := s.collectKeys(r, related, subFilters, fld.ReverseOf().Column())
		if err != nil {
			return nil, err
		}
		return []storage.Filter{{Column: schema.ToSnakeCase(table.PrimaryID()), Op: storage.OpIn, Value: keys}}, nil

	case schema.RelationNested:
		keys, err := s.collectKeys(r, related, subFilters, storage.ParentColumn)
		if err != nil {
			return nil, err
		}
		return []storage.Filter{{Column: schema.ToSnakeCase(table.PrimaryID()), Op: storage.OpIn, Value: keys}}, nil

	case schema.RelationManyToMany:
		bp, err := s.factory.Blueprint(table, 0)
		if err != nil {
			return nil, err
		}
		lf := bp.Link(head)
		if lf == nil || lf.Through == nil {
			return nil, &query.FilterSyntaxError{Param: path, Reason: head + " has no association layout"}
		}
		th := lf.Through
		targetKeys, err := s.collectKeys(r, related, subFilters, schema.ToSnakeCase(related.PrimaryID()))
		if err != nil {
			return nil, err
		}
		ownerKeys, err := s.collectKeys(r, th.Table,
			[]storage.Filter{{Column: th.HrefSource, Op: storage.OpIn, Value: targetKeys}}, th.SourceFK)
		if err != nil {
			return nil, err
		}
		return []storage.Filter{{Column: schema.ToSnakeCase(table.PrimaryID()), Op: storage.OpIn, Value: ownerKeys}}, nil
	}
	return nil, &query.FilterSyntaxError{Param: path, Reason: head + " cannot be traversed"}
}

// collectKeys runs a sub-query and collects the named column of every
// matching row.
func (s *Server) collectKeys(r *http.Request, table *schema.Table, filters []storage.Filter, column string) ([]any, error) {
	it, err := s.source.Rows(r.Context(), storage.Query{Table: table, Filters: filters})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	keys := make([]any, 0)
	for it.Next() {
		if v := it.Row()[column]; v != nil {
			keys = append(keys, v)
		}
	}
	return keys, it.Err()
}

// sortColumn maps a sort field to its storage column. Sorting across
// relations would need a join per entry and is not supported.
func sortColumn(table *schema.Table, field string) (string, error) {
	if strings.Contains(field, ".") {
		return "", &query.FilterSyntaxError{
			Param:  query.SortParam,
			Reason: "sorting on related fields is not supported",
		}
	}
	fld, err := table.FieldByID(field)
	if err != nil {
		if base, ok := strings.CutSuffix(field, "Id"); ok && base != "" {
			if baseFld, baseErr := table.FieldByID(base); baseErr == nil && baseFld.Related() != nil {
				return baseFld.Column(), nil
			}
		}
		return "", err
	}
	return fld.Column(), nil
}

// filterValue converts the raw parameter into the operator's value shape.
func filterValue(raw string, op string) any {
	switch op {
	case storage.OpIn:
		return strings.Split(raw, ",")
	case storage.OpIsNull:
		return raw == "true" || raw == ""
	}
	return raw
}
