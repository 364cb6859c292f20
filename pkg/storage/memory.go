package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tablodata/tablo/pkg/schema"
)

// Memory is an in-memory Source used by tests and local fixtures. It
// supports the same filter operators as the Postgres source, evaluated on
// the loaded rows.
type Memory struct {
	tables map[string][]Row
}

// NewMemory creates an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]Row)}
}

// Load replaces the rows of a table.
func (m *Memory) Load(t *schema.Table, rows []Row) {
	m.tables[t.Key()] = rows
}

func (m *Memory) Rows(_ context.Context, q Query) (Iterator, error) {
	var matched []Row
	for _, row := range m.tables[q.Table.Key()] {
		ok, err := matches(row, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, row)
		}
	}

	if len(q.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, s := range q.Sort {
				c := compare(matched[i][s.Column], matched[j][s.Column])
				if c == 0 {
					continue
				}
				if s.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if q.Offset >= len(matched) {
		matched = nil
	} else {
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return &sliceIterator{rows: matched}, nil
}

func (m *Memory) Lookup(_ context.Context, t *schema.Table, key any) (Row, error) {
	column := schema.ToSnakeCase(t.PrimaryID())
	for _, row := range m.tables[t.Key()] {
		if fmt.Sprint(row[column]) == fmt.Sprint(key) {
			return row, nil
		}
	}
	return nil, ErrRowNotFound
}

func matches(row Row, filters []Filter) (bool, error) {
	for _, f := range filters {
		value := row[f.Column]
		switch f.Op {
		case "", "exact":
			if fmt.Sprint(value) != fmt.Sprint(f.Value) {
				return false, nil
			}
		case "not":
			if fmt.Sprint(value) == fmt.Sprint(f.Value) {
				return false, nil
			}
		case "contains":
			if !strings.Contains(strings.ToLower(fmt.Sprint(value)), strings.ToLower(fmt.Sprint(f.Value))) {
				return false, nil
			}
		case "lt", "lte", "gt", "gte":
			c := compare(value, f.Value)
			ok := false
			switch f.Op {
			case "lt":
				ok = c < 0
			case "lte":
				ok = c <= 0
			case "gt":
				ok = c > 0
			case "gte":
				ok = c >= 0
			}
			if !ok {
				return false, nil
			}
		case "isnull":
			want := f.Value == true || f.Value == "true"
			if (value == nil) != want {
				return false, nil
			}
		case OpGtOrNull:
			if value != nil && compare(value, f.Value) <= 0 {
				return false, nil
			}
		case "in":
			values, err := inValues(f.Value)
			if err != nil {
				return false, err
			}
			found := false
			for _, v := range values {
				if fmt.Sprint(value) == fmt.Sprint(v) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported filter operator %q", f.Op)
		}
	}
	return true, nil
}

func compare(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

type sliceIterator struct {
	rows    []Row
	current Row
}

func (it *sliceIterator) Next() bool {
	if len(it.rows) == 0 {
		return false
	}
	it.current = it.rows[0]
	it.rows = it.rows[1:]
	return true
}

func (it *sliceIterator) Row() Row { return it.current }

func (it *sliceIterator) Err() error { return nil }

func (it *sliceIterator) Close() error { return nil }
