// Package query validates request parameters against the table schema and
// the caller's scope principal. Every filter and sort key is resolved
// hop-by-hop through the schema, so authorization is checked at each
// relation traversal and can never be bypassed by naming only the relation.
package query

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tablodata/tablo/pkg/auth"
	"github.com/tablodata/tablo/pkg/schema"
)

// SortParam is the reserved sort parameter name.
const SortParam = "_sort"

// Validate checks the request method and every query parameter not listed
// in allowed. Parameters parse either as sort directives or as filters;
// both are field-checked against the principal.
func Validate(method string, params url.Values, principal *auth.Principal, table *schema.Table, allowed map[string]struct{}) error {
	switch method {
	case http.MethodOptions:
		return nil
	case http.MethodGet:
	default:
		return fmt.Errorf("%w: %s", ErrMethodNotAllowed, method)
	}

	// Mandatory filters of active profiles pass without an access check:
	// the profile itself guarantees the filter is applied, even when the
	// referenced field is not otherwise readable. A filter set only counts
	// when the request carries all of its filters.
	present := make(map[string]struct{})
	for key := range params {
		present[key] = struct{}{}
		if fieldName, _, err := ParseFilter(key); err == nil {
			present[fieldName] = struct{}{}
		}
	}
	for name := range principal.QueryParams() {
		present[name] = struct{}{}
	}
	mandatory := make(map[string]struct{})
	for _, grant := range principal.ActiveProfiles(table.DatasetID, table.ID) {
		for f := range grant.MatchedFilters(present) {
			mandatory[f] = struct{}{}
		}
	}

	for key, values := range params {
		if _, ok := allowed[key]; ok {
			continue
		}

		if key == SortParam {
			for _, value := range values {
				for _, field := range strings.Split(value, ",") {
					// A leading "-" means descending sort.
					field = strings.TrimPrefix(field, "-")
					if err := CheckFieldAccess(field, principal, table); err != nil {
						return err
					}
				}
			}
			continue
		}

		fieldName, op, err := ParseFilter(key)
		if err != nil {
			return err
		}
		// A bad operator is a syntax error even on a profile-mandated filter.
		if _, ok := operators[op]; !ok {
			return &FilterSyntaxError{Param: key, Reason: "unknown filter operator " + op}
		}

		// Mandatory filter sets may name the complete filter (with
		// operator) or just the field.
		if _, ok := mandatory[key]; ok {
			continue
		}
		if _, ok := mandatory[fieldName]; ok {
			continue
		}

		// Temporal dimension selectors are virtual: the check redirects to
		// the boundary fields that implement the dimension.
		if table.Temporal != nil {
			if dim, ok := table.Temporal.Dimensions[fieldName]; ok {
				for _, boundary := range []string{dim.Start, dim.End} {
					if err := CheckFieldAccess(boundary, principal, table); err != nil {
						return err
					}
				}
				continue
			}
		}

		if err := CheckFieldAccess(fieldName, principal, table); err != nil {
			return err
		}
	}
	return nil
}

// CheckFieldAccess walks a dotted field path segment by segment. Every
// resolved field must be readable, and when a segment denotes a relation,
// all identifier components of the related table are checked before the
// walk descends into it. The path must terminate on a concrete field.
func CheckFieldAccess(fullName string, principal *auth.Principal, table *schema.Table) error {
	curTable := table
	rest := fullName
	onField := false

	for rest != "" {
		part, remainder, _ := strings.Cut(rest, ".")
		rest = remainder

		fld, err := curTable.FieldByID(part)
		if err != nil {
			// Relations with single-component keys have a "<relation>Id"
			// pseudo-property. It is only legal as the final segment, and
			// authorizes exactly like "<relation>.<identifier>".
			if base, ok := strings.CutSuffix(part, "Id"); ok && base != "" {
				if remainder != "" {
					return &FilterSyntaxError{Param: fullName, Reason: "relation key shorthand must end the path"}
				}
				baseFld, baseErr := curTable.FieldByID(base)
				if baseErr != nil || baseFld.Related() == nil {
					return &schema.ObjectNotFoundError{
						Kind: "field",
						ID:   fmt.Sprintf("%s.%s (no field %sId and no relation %s)", curTable.Key(), part, base, base),
					}
				}
				idents := baseFld.RelatedIdentifier()
				if len(idents) == 0 {
					return &schema.ObjectNotFoundError{Kind: "field", ID: curTable.Key() + "." + part}
				}
				rest = base + "." + idents[0]
				continue
			}
			return err
		}

		// Check the field first, then the relation targets, so access is
		// verified both for the relation and for what it points to.
		if !principal.HasFieldAccess(fld) {
			return &AccessDeniedError{Field: fld.Table().Key() + "." + fld.ID, Scopes: principal.String()}
		}

		if rel := fld.Related(); rel != nil {
			for _, ident := range fld.RelatedIdentifier() {
				identFld, err := rel.FieldByID(ident)
				if err != nil {
					return err
				}
				// Field access implies table and dataset access.
				if !principal.HasFieldAccess(identFld) {
					return &AccessDeniedError{Field: rel.Key() + "." + identFld.ID, Scopes: principal.String()}
				}
			}
			curTable = rel
			onField = false
		} else {
			onField = true
		}
	}

	// An empty path, or a final segment naming a relation instead of one of
	// its fields, leaves the walk positioned on a table scope.
	if !onField {
		return &FilterSyntaxError{Param: fullName, Reason: "does not refer to a field"}
	}
	return nil
}
