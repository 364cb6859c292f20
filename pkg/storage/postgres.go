package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tablodata/tablo/pkg/schema"
)

// Postgres is the pgx-backed row source.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps a connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// operators maps filter grammar operators to SQL. The "in" and "isnull"
// operators need special argument handling and are dispatched separately.
var operators = map[string]string{
	"exact":    "=",
	"not":      "!=",
	"lt":       "<",
	"lte":      "<=",
	"gt":       ">",
	"gte":      ">=",
	"contains": "ILIKE",
	"like":     "LIKE",
}

func (p *Postgres) Rows(ctx context.Context, q Query) (Iterator, error) {
	sql, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Table.Key(), err)
	}
	return newPgxIterator(rows), nil
}

func (p *Postgres) Lookup(ctx context.Context, t *schema.Table, key any) (Row, error) {
	pgSchema, relation := TableName(t)
	column := schema.ToSnakeCase(t.PrimaryID())
	sql := fmt.Sprintf(`SELECT * FROM %q.%q WHERE %q = $1 LIMIT 1`, pgSchema, relation, column)

	rows, err := p.pool.Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", t.Key(), err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrRowNotFound
	}
	return scanRow(rows)
}

func buildSelect(q Query) (string, []any, error) {
	var sql strings.Builder
	var args []any
	argIndex := 1

	pgSchema, relation := TableName(q.Table)
	fmt.Fprintf(&sql, `SELECT * FROM %q.%q`, pgSchema, relation)

	if len(q.Filters) > 0 {
		sql.WriteString(" WHERE ")
		clauses := make([]string, 0, len(q.Filters))
		for _, f := range q.Filters {
			clause, err := filterClause(f, &args, &argIndex)
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, clause)
		}
		sql.WriteString(strings.Join(clauses, " AND "))
	}

	if len(q.Sort) > 0 {
		sql.WriteString(" ORDER BY ")
		orders := make([]string, 0, len(q.Sort))
		for _, s := range q.Sort {
			dir := "ASC"
			if s.Descending {
				dir = "DESC"
			}
			orders = append(orders, fmt.Sprintf("%q %s", s.Column, dir))
		}
		sql.WriteString(strings.Join(orders, ", "))
	}

	if q.Limit > 0 {
		fmt.Fprintf(&sql, " LIMIT $%d", argIndex)
		args = append(args, q.Limit)
		argIndex++
	}
	if q.Offset > 0 {
		fmt.Fprintf(&sql, " OFFSET $%d", argIndex)
		args = append(args, q.Offset)
		argIndex++
	}

	return sql.String(), args, nil
}

func filterClause(f Filter, args *[]any, argIndex *int) (string, error) {
	switch f.Op {
	case "isnull":
		if f.Value == true || f.Value == "true" {
			return fmt.Sprintf("%q IS NULL", f.Column), nil
		}
		return fmt.Sprintf("%q IS NOT NULL", f.Column), nil

	case "in":
		values, err := inValues(f.Value)
		if err != nil {
			return "", err
		}
		// An empty list matches nothing, and "IN ()" is not valid SQL.
		if len(values) == 0 {
			return "FALSE", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = fmt.Sprintf("$%d", *argIndex)
			*args = append(*args, v)
			*argIndex++
		}
		return fmt.Sprintf("%q IN (%s)", f.Column, strings.Join(placeholders, ", ")), nil

	case OpGtOrNull:
		clause := fmt.Sprintf("(%q > $%d OR %q IS NULL)", f.Column, *argIndex, f.Column)
		*args = append(*args, f.Value)
		*argIndex++
		return clause, nil
	}

	op, ok := operators[f.Op]
	if !ok {
		return "", fmt.Errorf("unsupported filter operator %q", f.Op)
	}

	value := f.Value
	if f.Op == "contains" {
		value = "%" + fmt.Sprint(value) + "%"
	}

	clause := fmt.Sprintf("%q %s $%d", f.Column, op, *argIndex)
	*args = append(*args, value)
	*argIndex++
	return clause, nil
}

func inValues(v any) ([]any, error) {
	switch vv := v.(type) {
	case []any:
		return vv, nil
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out, nil
	case string:
		parts := strings.Split(vv, ",")
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value %T for in filter", v)
	}
}

// pgxIterator surfaces pgx.Rows one row at a time. Rows are scanned only
// when pulled, so I/O stays deferred until the renderer drains the page.
type pgxIterator struct {
	rows    pgx.Rows
	columns []string
	current Row
	err     error
	closed  bool
}

func newPgxIterator(rows pgx.Rows) *pgxIterator {
	fds := rows.FieldDescriptions()
	columns := make([]string, len(fds))
	for i, fd := range fds {
		columns[i] = string(fd.Name)
	}
	return &pgxIterator{rows: rows, columns: columns}
}

func (it *pgxIterator) Next() bool {
	if it.err != nil || it.closed {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}

	values := make([]any, len(it.columns))
	pointers := make([]any, len(it.columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := it.rows.Scan(pointers...); err != nil {
		it.err = err
		return false
	}

	row := make(Row, len(it.columns))
	for i, name := range it.columns {
		row[name] = values[i]
	}
	it.current = row
	return true
}

func (it *pgxIterator) Row() Row { return it.current }

func (it *pgxIterator) Err() error { return it.err }

func (it *pgxIterator) Close() error {
	if !it.closed {
		it.closed = true
		it.rows.Close()
	}
	return nil
}

func scanRow(rows pgx.Rows) (Row, error) {
	fds := rows.FieldDescriptions()
	values := make([]any, len(fds))
	pointers := make([]any, len(fds))
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := rows.Scan(pointers...); err != nil {
		return nil, err
	}

	row := make(Row, len(fds))
	for i, fd := range fds {
		row[string(fd.Name)] = values[i]
	}
	return row, nil
}
