package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablodata/tablo/internal/testutil"
	"github.com/tablodata/tablo/pkg/storage"
)

func collect(t *testing.T, it storage.Iterator) []storage.Row {
	t.Helper()
	var rows []storage.Row
	for it.Next() {
		rows = append(rows, it.Row())
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	return rows
}

func TestMemoryRowsFilters(t *testing.T) {
	set := testutil.Schemas(t)
	src := testutil.Source(t, set)
	parks := testutil.Table(t, set, "city", "parks")

	it, err := src.Rows(context.Background(), storage.Query{
		Table:   parks,
		Filters: []storage.Filter{{Column: "district_id", Op: storage.OpExact, Value: "d1"}},
	})
	require.NoError(t, err)
	rows := collect(t, it)
	require.Len(t, rows, 2)

	it, err = src.Rows(context.Background(), storage.Query{
		Table:   parks,
		Filters: []storage.Filter{{Column: "name", Op: storage.OpContains, Value: "OOST"}},
	})
	require.NoError(t, err)
	rows = collect(t, it)
	require.Len(t, rows, 1)
	assert.Equal(t, "p3", rows[0]["id"])

	it, err = src.Rows(context.Background(), storage.Query{
		Table:   parks,
		Filters: []storage.Filter{{Column: "id", Op: storage.OpIn, Value: "p1,p3"}},
	})
	require.NoError(t, err)
	assert.Len(t, collect(t, it), 2)

	it, err = src.Rows(context.Background(), storage.Query{
		Table:   parks,
		Filters: []storage.Filter{{Column: "image", Op: storage.OpIsNull, Value: "true"}},
	})
	require.NoError(t, err)
	assert.Len(t, collect(t, it), 2)
}

func TestMemoryRowsTemporalBoundary(t *testing.T) {
	set := testutil.Schemas(t)
	src := testutil.Source(t, set)
	monuments := testutil.Table(t, set, "city", "monuments")

	// Validity at 2005-07-01: the first Old Gate version and the Mill.
	it, err := src.Rows(context.Background(), storage.Query{
		Table: monuments,
		Filters: []storage.Filter{
			{Column: "begin_validity", Op: storage.OpLte, Value: "2005-07-01"},
			{Column: "end_validity", Op: storage.OpGtOrNull, Value: "2005-07-01"},
		},
	})
	require.NoError(t, err)
	rows := collect(t, it)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0]["version"])
	assert.Equal(t, "m2", rows[1]["identification"])
}

func TestMemoryRowsSortOffsetLimit(t *testing.T) {
	set := testutil.Schemas(t)
	src := testutil.Source(t, set)
	parks := testutil.Table(t, set, "city", "parks")

	it, err := src.Rows(context.Background(), storage.Query{
		Table:  parks,
		Sort:   []storage.Sort{{Column: "name"}},
		Offset: 1,
		Limit:  1,
	})
	require.NoError(t, err)
	rows := collect(t, it)
	require.Len(t, rows, 1)
	assert.Equal(t, "Vondelpark", rows[0]["name"])

	it, err = src.Rows(context.Background(), storage.Query{
		Table: parks,
		Sort:  []storage.Sort{{Column: "area", Descending: true}},
	})
	require.NoError(t, err)
	rows = collect(t, it)
	require.Len(t, rows, 3)
	assert.Equal(t, 47.0, rows[0]["area"])

	it, err = src.Rows(context.Background(), storage.Query{Table: parks, Offset: 99})
	require.NoError(t, err)
	assert.Empty(t, collect(t, it))
}

func TestMemoryRowsUnknownOperator(t *testing.T) {
	set := testutil.Schemas(t)
	src := testutil.Source(t, set)
	parks := testutil.Table(t, set, "city", "parks")

	_, err := src.Rows(context.Background(), storage.Query{
		Table:   parks,
		Filters: []storage.Filter{{Column: "name", Op: "regex", Value: "x"}},
	})
	assert.ErrorContains(t, err, "unsupported filter operator")
}

func TestMemoryLookup(t *testing.T) {
	set := testutil.Schemas(t)
	src := testutil.Source(t, set)

	row, err := src.Lookup(context.Background(), testutil.Table(t, set, "city", "parks"), "p2")
	require.NoError(t, err)
	assert.Equal(t, "Westerpark", row["name"])

	// Temporal tables look up by identification.
	row, err = src.Lookup(context.Background(), testutil.Table(t, set, "city", "monuments"), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", row["identification"])

	_, err = src.Lookup(context.Background(), testutil.Table(t, set, "city", "parks"), "nope")
	assert.ErrorIs(t, err, storage.ErrRowNotFound)
}
