// Package auth implements the capability object that answers access
// questions during request handling: which scopes the caller holds, which
// profiles those scopes activate, and whether a schema object may be read.
// A Principal is built per request and passed explicitly to every component
// that needs it.
package auth

import (
	"sort"
	"strings"

	"github.com/tablodata/tablo/pkg/schema"
)

// Principal holds the caller's scope tokens and granted profiles.
type Principal struct {
	scopes      map[string]struct{}
	profiles    []*Profile
	queryParams map[string]struct{}
}

// NewPrincipal builds a Principal from raw scope tokens. Only profiles whose
// scope requirements are fully covered become active.
func NewPrincipal(scopes []string, profiles []*Profile) *Principal {
	p := &Principal{
		scopes:      make(map[string]struct{}, len(scopes)),
		queryParams: make(map[string]struct{}),
	}
	for _, s := range scopes {
		if s != "" {
			p.scopes[s] = struct{}{}
		}
	}
	for _, prof := range profiles {
		if p.hasAllScopes(prof.Scopes) {
			p.profiles = append(p.profiles, prof)
		}
	}
	return p
}

// Anonymous returns a principal without any scope tokens. Schema objects
// without auth requirements remain readable.
func Anonymous(profiles []*Profile) *Principal {
	return NewPrincipal(nil, profiles)
}

// AddQueryParams registers parameter names that are considered present on
// the request. Detail views add the identifier fields here so profiles with
// mandatory filter sets match on single-object requests too.
func (p *Principal) AddQueryParams(names ...string) {
	for _, n := range names {
		p.queryParams[n] = struct{}{}
	}
}

// QueryParams returns the registered parameter names.
func (p *Principal) QueryParams() map[string]struct{} {
	return p.queryParams
}

// HasScope reports whether the given scope token is held.
func (p *Principal) HasScope(scope string) bool {
	_, ok := p.scopes[scope]
	return ok
}

func (p *Principal) hasAllScopes(scopes []string) bool {
	for _, s := range scopes {
		if !p.HasScope(s) {
			return false
		}
	}
	return true
}

// hasAuth checks an auth declaration: empty means public, otherwise any of
// the listed scopes suffices.
func (p *Principal) hasAuth(auth []string) bool {
	if len(auth) == 0 {
		return true
	}
	for _, s := range auth {
		if p.HasScope(s) {
			return true
		}
	}
	return false
}

// HasDatasetAccess reports whether the dataset may be read at all.
func (p *Principal) HasDatasetAccess(ds *schema.Dataset) bool {
	return p.hasAuth(ds.Auth)
}

// HasTableAccess reports whether the table may be read. Table access implies
// dataset access.
func (p *Principal) HasTableAccess(t *schema.Table) bool {
	return p.hasAuth(t.Dataset().Auth) && p.hasAuth(t.Auth)
}

// HasFieldAccess reports whether the field may be read. Field access implies
// table and dataset access.
func (p *Principal) HasFieldAccess(f *schema.Field) bool {
	return p.HasTableAccess(f.Table()) && p.hasAuth(f.Auth)
}

// ActiveProfiles returns the per-table grants of every active profile that
// covers the given dataset table.
func (p *Principal) ActiveProfiles(datasetID, tableID string) []*ProfileTable {
	var grants []*ProfileTable
	for _, prof := range p.profiles {
		if pt := prof.TableGrant(datasetID, tableID); pt != nil {
			grants = append(grants, pt)
		}
	}
	return grants
}

// String renders the held scopes, used in audit logs and denial messages.
func (p *Principal) String() string {
	tokens := make([]string, 0, len(p.scopes))
	for s := range p.scopes {
		tokens = append(tokens, s)
	}
	sort.Strings(tokens)
	return "scopes [" + strings.Join(tokens, " ") + "]"
}
