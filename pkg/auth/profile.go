package auth

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile grants extra capabilities to callers holding all of its scopes.
// A profile may pre-authorize a fixed set of "mandatory" filters on a table;
// those filters pass request validation even when the caller lacks field
// access, because the profile itself guarantees the filter is applied.
type Profile struct {
	Name     string                            `yaml:"name" json:"name"`
	Scopes   []string                          `yaml:"scopes" json:"scopes"`
	Datasets map[string]map[string]*ProfileTable `yaml:"datasets" json:"datasets"`
}

// ProfileTable is the grant of one profile on one dataset table.
type ProfileTable struct {
	// MandatoryFilterSets lists alternative sets of filters; entries may be
	// bare field names or "field[operator]" forms.
	MandatoryFilterSets [][]string `yaml:"mandatoryFilterSets" json:"mandatoryFilterSets"`
}

// TableGrant returns the grant for a dataset table, or nil.
func (p *Profile) TableGrant(datasetID, tableID string) *ProfileTable {
	tables, ok := p.Datasets[datasetID]
	if !ok {
		return nil
	}
	return tables[tableID]
}

// MandatoryFilters flattens the filter sets into a lookup set.
func (pt *ProfileTable) MandatoryFilters() map[string]struct{} {
	out := make(map[string]struct{})
	for _, set := range pt.MandatoryFilterSets {
		for _, f := range set {
			out[f] = struct{}{}
		}
	}
	return out
}

// MatchedFilters returns the filters of every mandatory set whose entries
// are all present on the request. A set only pre-authorizes its filters
// when the request actually carries all of them.
func (pt *ProfileTable) MatchedFilters(present map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, set := range pt.MandatoryFilterSets {
		matched := true
		for _, f := range set {
			if _, ok := present[f]; ok {
				continue
			}
			if _, ok := present[bareField(f)]; ok {
				continue
			}
			matched = false
			break
		}
		if matched {
			for _, f := range set {
				out[f] = struct{}{}
			}
		}
	}
	return out
}

// bareField strips an "[operator]" suffix from a filter name.
func bareField(f string) string {
	if i := strings.IndexByte(f, '['); i >= 0 {
		return f[:i]
	}
	return f
}

// ParseProfiles decodes a profiles document.
func ParseProfiles(doc []byte) ([]*Profile, error) {
	var wrapper struct {
		Profiles []*Profile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(doc, &wrapper); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	return wrapper.Profiles, nil
}

// LoadProfiles reads a profiles document from disk.
func LoadProfiles(path string) ([]*Profile, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return ParseProfiles(doc)
}
