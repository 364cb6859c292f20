// Package testutil provides the fixture schemas, rows and profiles shared
// by the package tests. The fixture covers one of every relation shape:
// plain forward, loose cross-dataset, many-to-many with association
// attributes, temporal targets, nested composition and declared reverse
// relations in both formats.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tablodata/tablo/pkg/auth"
	"github.com/tablodata/tablo/pkg/schema"
	"github.com/tablodata/tablo/pkg/storage"
)

const cityDoc = `
id: city
tables:
  - id: districts
    identifier: [id]
    display: name
    fields:
      - id: id
        type: string
      - id: name
        type: string
  - id: parks
    identifier: [id]
    display: name
    fields:
      - id: id
        type: string
      - id: name
        type: string
      - id: area
        type: number
        auth: ["CITY/ADMIN"]
      - id: image
        type: string
        format: blob
      - id: district
        type: string
        relation: forward
        relatedTable: districts
        reverseRelation:
          id: parks
          format: embedded
      - id: permit
        type: string
        auth: ["CITY/PERMITS"]
        relation: forward
        relatedTable: permits
      - id: facilities
        type: array
        relation: nested
        relatedTable: parkFacilities
      - id: monuments
        type: array
        relation: manyToMany
        relatedTable: monuments
        throughTable: parksMonuments
  - id: parkFacilities
    parentTable: parks
    identifier: [id]
    fields:
      - id: id
        type: string
      - id: parent
        type: string
      - id: name
        type: string
      - id: kind
        type: string
  - id: monuments
    identifier: [identification, version]
    display: name
    temporal:
      identifier: version
      dimensions:
        validOn:
          start: beginValidity
          end: endValidity
    fields:
      - id: identification
        type: string
      - id: version
        type: integer
      - id: name
        type: string
      - id: beginValidity
        type: string
        format: date
      - id: endValidity
        type: string
        format: date
      - id: district
        type: string
        relation: forward
        relatedTable: districts
        reverseRelation:
          id: monuments
          format: summary
      - id: architects
        type: array
        relation: manyToMany
        relatedTable: architects
        throughTable: monumentsArchitects
      - id: neighborhood
        type: string
        relation: loose
        relatedTable: geo.neighborhoods
  - id: architects
    identifier: [id]
    display: name
    fields:
      - id: id
        type: string
      - id: name
        type: string
  - id: monumentsArchitects
    identifier: [id]
    fields:
      - id: id
        type: string
      - id: monument
        type: string
        relation: forward
        relatedTable: monuments
        parentField: architects
      - id: architect
        type: string
        relation: forward
        relatedTable: architects
        parentField: architects
      - id: role
        type: string
  - id: parksMonuments
    identifier: [id]
    fields:
      - id: id
        type: string
      - id: park
        type: string
        relation: forward
        relatedTable: parks
        parentField: monuments
      - id: monument
        type: string
        relation: forward
        relatedTable: monuments
        parentField: monuments
      - id: monumentIdentification
        type: string
        parentField: monuments
      - id: monumentVersion
        type: integer
        parentField: monuments
      - id: beginValidity
        type: string
        parentField: monuments
      - id: endValidity
        type: string
        parentField: monuments
  - id: permits
    auth: ["CITY/PERMITS"]
    identifier: [id]
    fields:
      - id: id
        type: string
      - id: subject
        type: string
`

const geoDoc = `
id: geo
tables:
  - id: neighborhoods
    identifier: [code]
    display: code
    fields:
      - id: code
        type: string
      - id: name
        type: string
`

const profilesDoc = `
profiles:
  - name: parkKeeper
    scopes: ["CITY/KEEPER"]
    datasets:
      city:
        parks:
          mandatoryFilterSets:
            - ["district.id"]
            - ["name[contains]", "id"]
            - ["area[gte]"]
`

// Schemas parses and resolves the fixture datasets.
func Schemas(t *testing.T) *schema.Set {
	t.Helper()
	city, err := schema.Parse([]byte(cityDoc))
	require.NoError(t, err)
	geo, err := schema.Parse([]byte(geoDoc))
	require.NoError(t, err)
	set, err := schema.NewSet(city, geo)
	require.NoError(t, err)
	return set
}

// Profiles parses the fixture profiles document.
func Profiles(t *testing.T) []*auth.Profile {
	t.Helper()
	profiles, err := auth.ParseProfiles([]byte(profilesDoc))
	require.NoError(t, err)
	return profiles
}

// Table resolves a fixture table and fails the test when it is missing.
func Table(t *testing.T, set *schema.Set, datasetID, tableID string) *schema.Table {
	t.Helper()
	table, err := set.Table(datasetID, tableID)
	require.NoError(t, err)
	return table
}

// Source builds an in-memory source loaded with the fixture rows.
func Source(t *testing.T, set *schema.Set) *storage.Memory {
	t.Helper()
	src := storage.NewMemory()

	load := func(datasetID, tableID string, rows []storage.Row) {
		src.Load(Table(t, set, datasetID, tableID), rows)
	}

	load("city", "districts", []storage.Row{
		{"id": "d1", "name": "Centrum"},
		{"id": "d2", "name": "Noord"},
	})
	load("city", "parks", []storage.Row{
		{"id": "p1", "name": "Vondelpark", "area": 47.0, "image": "https://blobs.example/parks/p1.jpg", "district_id": "d1", "permit_id": "pr1"},
		{"id": "p2", "name": "Westerpark", "area": 14.0, "image": nil, "district_id": "d2", "permit_id": nil},
		{"id": "p3", "name": "Oosterpark", "area": 12.0, "image": nil, "district_id": "d1", "permit_id": nil},
	})
	load("city", "parkFacilities", []storage.Row{
		{"id": "f1", "parent_id": "p1", "name": "playground", "kind": "play"},
		{"id": "f2", "parent_id": "p1", "name": "pond", "kind": "water"},
		{"id": "f3", "parent_id": "p2", "name": "stage", "kind": "culture"},
	})
	load("city", "monuments", []storage.Row{
		{"identification": "m1", "version": 1, "name": "Old Gate", "begin_validity": "2001-01-01", "end_validity": "2010-01-01", "district_id": "d1", "neighborhood_id": "A01"},
		{"identification": "m1", "version": 2, "name": "Old Gate", "begin_validity": "2010-01-01", "end_validity": nil, "district_id": "d1", "neighborhood_id": "A01"},
		{"identification": "m2", "version": 1, "name": "Mill", "begin_validity": "2005-06-01", "end_validity": nil, "district_id": "d2", "neighborhood_id": "B02"},
	})
	load("city", "architects", []storage.Row{
		{"id": "a1", "name": "Jacoba Mulder"},
		{"id": "a2", "name": "Pieter Oud"},
	})
	load("city", "monumentsArchitects", []storage.Row{
		{"id": "ma1", "monument_id": "m1", "architect_id": "a1", "role": "lead"},
		{"id": "ma2", "monument_id": "m1", "architect_id": "a2", "role": "restoration"},
		{"id": "ma3", "monument_id": "m2", "architect_id": "a1", "role": "lead"},
	})
	load("city", "parksMonuments", []storage.Row{
		{"id": "pm1", "park_id": "p1", "monument_id": "m1", "monument_identification": "m1", "monument_version": 2, "begin_validity": "2010-01-01", "end_validity": nil},
		{"id": "pm2", "park_id": "p2", "monument_id": "m2", "monument_identification": "m2", "monument_version": 1, "begin_validity": "2005-06-01", "end_validity": nil},
	})
	load("city", "permits", []storage.Row{
		{"id": "pr1", "subject": "terrace extension"},
	})
	load("geo", "neighborhoods", []storage.Row{
		{"code": "A01", "name": "Grachtengordel"},
		{"code": "B02", "name": "Molenbuurt"},
	})
	return src
}
