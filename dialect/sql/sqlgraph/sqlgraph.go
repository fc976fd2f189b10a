// Package sqlgraph translates resolved schema mutations into backend
// SQL commands and executes them in foreign-key dependency order.
//
// The session hands over a changed-record set; this package guarantees
// that inserts of referenced rows run before inserts of referencing
// rows, and deletes in the reverse order. Mutations on row-versioned
// entities carry a version predicate and a zero-affected-rows check
// that raises a tagged concurrency error for the conflict classifier.
package sqlgraph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/dialect"
	stsql "github.com/strataorm/strata/dialect/sql"
	"github.com/strataorm/strata/model"
)

// Mutation is one backend command derived from a changed record.
type Mutation struct {
	// Op is one of strata.OpInsert, strata.OpUpdate, strata.OpDelete.
	Op string
	// Entity is the mutated entity.
	Entity *model.EntityInfo
	// Columns and Values are the written columns (insert and update).
	Columns []string
	Values  []any
	// KeyColumns and KeyValues form the row predicate (update, delete).
	KeyColumns []string
	KeyValues  []any
	// VersionColumn and VersionValue extend the predicate for
	// row-versioned entities. VersionColumn is empty otherwise.
	VersionColumn string
	VersionValue  any
	// Key is the record's primary key rendered for the conflict tag.
	Key string
}

// Result reports backend-assigned values of an executed mutation.
type Result struct {
	// LastInsertID carries the generated identity value of an insert
	// when HasInsertID is set.
	LastInsertID int64
	HasInsertID  bool
}

// Exec builds and runs one mutation on the given execution scope,
// which is usually the transaction of the surrounding unit of work.
func Exec(ctx context.Context, drv dialect.ExecQuerier, dialectName string, m *Mutation) (*Result, error) {
	switch m.Op {
	case strata.OpInsert:
		return execInsert(ctx, drv, dialectName, m)
	case strata.OpUpdate, strata.OpDelete:
		return execGuarded(ctx, drv, dialectName, m)
	default:
		return nil, fmt.Errorf("sqlgraph: unknown operation %q", m.Op)
	}
}

func execInsert(ctx context.Context, drv dialect.ExecQuerier, dialectName string, m *Mutation) (*Result, error) {
	p := placeholders(dialectName, len(m.Columns), 0)
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ident(dialectName, m.Entity.Table()),
		identList(dialectName, m.Columns),
		strings.Join(p, ", "),
	)
	if m.Entity.HasIdentity() && dialectName == dialect.Postgres {
		// Postgres reports generated keys through RETURNING rather
		// than LastInsertId.
		idCol := m.Entity.PrimaryKey().ExpandedKeyMembers()[0].Name()
		query += " RETURNING " + ident(dialectName, idCol)
		var rows stsql.Rows
		if err := drv.Query(ctx, query, m.Values, &rows); err != nil {
			return nil, err
		}
		defer rows.Close()
		if !rows.Next() {
			return nil, fmt.Errorf("sqlgraph: insert into %s returned no id", m.Entity.Table())
		}
		res := &Result{HasInsertID: true}
		if err := rows.Scan(&res.LastInsertID); err != nil {
			return nil, err
		}
		return res, rows.Err()
	}
	var sqlres stsql.Result
	if err := drv.Exec(ctx, query, m.Values, &sqlres); err != nil {
		return nil, err
	}
	res := &Result{}
	if m.Entity.HasIdentity() {
		id, err := sqlres.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("sqlgraph: insert into %s: read generated id: %w", m.Entity.Table(), err)
		}
		res.LastInsertID, res.HasInsertID = id, true
	}
	return res, nil
}

// execGuarded runs an UPDATE or DELETE with the row predicate and, for
// row-versioned entities, the version check. Zero affected rows under
// a version predicate is an optimistic-concurrency loss and surfaces
// as a tagged error, never as a silent no-op.
func execGuarded(ctx context.Context, drv dialect.ExecQuerier, dialectName string, m *Mutation) (*Result, error) {
	var (
		sb   strings.Builder
		args []any
	)
	switch m.Op {
	case strata.OpUpdate:
		if len(m.Columns) == 0 {
			return &Result{}, nil
		}
		fmt.Fprintf(&sb, "UPDATE %s SET ", ident(dialectName, m.Entity.Table()))
		sets := placeholders(dialectName, len(m.Columns), 0)
		for i, col := range m.Columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s = %s", ident(dialectName, col), sets[i])
		}
		args = append(args, m.Values...)
	default:
		fmt.Fprintf(&sb, "DELETE FROM %s", ident(dialectName, m.Entity.Table()))
	}
	sb.WriteString(" WHERE ")
	preds := placeholders(dialectName, len(m.KeyColumns)+1, len(args))
	for i, col := range m.KeyColumns {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		fmt.Fprintf(&sb, "%s = %s", ident(dialectName, col), preds[i])
	}
	args = append(args, m.KeyValues...)
	if m.VersionColumn != "" {
		fmt.Fprintf(&sb, " AND %s = %s", ident(dialectName, m.VersionColumn), preds[len(m.KeyColumns)])
		args = append(args, m.VersionValue)
	}
	var sqlres stsql.Result
	if err := drv.Exec(ctx, sb.String(), args, &sqlres); err != nil {
		return nil, err
	}
	if m.VersionColumn != "" {
		n, err := sqlres.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("sqlgraph: %s %s: read affected rows: %w", m.Op, m.Entity.Table(), err)
		}
		if n == 0 {
			return nil, errors.New(strata.FormatConcurrencyTag(m.Op, m.Entity.Table(), m.Key))
		}
	}
	return &Result{}, nil
}

// QueryByKey loads one row by an equality predicate over the given key
// columns, returning the values of every entity column in ordinal
// order, or strata.ErrNotFound.
func QueryByKey(ctx context.Context, drv dialect.ExecQuerier, dialectName string, e *model.EntityInfo, keyCols []string, keyVals []any) ([]any, error) {
	cols := e.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s WHERE ", identList(dialectName, names), ident(dialectName, e.Table()))
	preds := placeholders(dialectName, len(keyCols), 0)
	for i, col := range keyCols {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		fmt.Fprintf(&sb, "%s = %s", ident(dialectName, col), preds[i])
	}
	var rows stsql.Rows
	if err := drv.Query(ctx, sb.String(), keyVals, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, strata.ErrNotFound
	}
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	return values, rows.Err()
}

// QueryWhere loads every row matching an equality predicate over the
// given columns, returning per-row values of every entity column in
// ordinal order. Empty cols means no predicate; limit 0 means no limit.
func QueryWhere(ctx context.Context, drv dialect.ExecQuerier, dialectName string, e *model.EntityInfo, cols []string, vals []any, orderBy []string, limit int) ([][]any, error) {
	ecols := e.Columns()
	names := make([]string, len(ecols))
	for i, c := range ecols {
		names[i] = c.Name()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", identList(dialectName, names), ident(dialectName, e.Table()))
	if len(cols) > 0 {
		sb.WriteString(" WHERE ")
		preds := placeholders(dialectName, len(cols), 0)
		for i, col := range cols {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			fmt.Fprintf(&sb, "%s = %s", ident(dialectName, col), preds[i])
		}
	}
	if len(orderBy) > 0 {
		sb.WriteString(" ORDER BY " + identList(dialectName, orderBy))
	}
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}
	var rows stsql.Rows
	if err := drv.Query(ctx, sb.String(), vals, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]any
	for rows.Next() {
		values := make([]any, len(ecols))
		dest := make([]any, len(ecols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, values)
	}
	return out, rows.Err()
}

// QueryExists reports whether any row matches an equality predicate
// over the given columns. Used by the incoming-reference probes of
// Session.CanDelete.
func QueryExists(ctx context.Context, drv dialect.ExecQuerier, dialectName string, e *model.EntityInfo, cols []string, vals []any) (bool, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT 1 FROM %s WHERE ", ident(dialectName, e.Table()))
	preds := placeholders(dialectName, len(cols), 0)
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		fmt.Fprintf(&sb, "%s = %s", ident(dialectName, col), preds[i])
	}
	sb.WriteString(" LIMIT 1")
	var rows stsql.Rows
	if err := drv.Query(ctx, sb.String(), vals, &rows); err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

// Ranks orders entities by foreign-key dependency: an entity ranks
// strictly above every entity it references. Inserts run in ascending
// rank order, deletes descending. Self references do not affect the
// rank. The walk is bounded by the entity count, so reference cycles
// (already rejected by the model builder for required keys) cannot
// loop forever.
func Ranks(m *model.Model) map[string]int {
	ranks := make(map[string]int, len(m.Entities()))
	var rank func(e *model.EntityInfo, depth int) int
	rank = func(e *model.EntityInfo, depth int) int {
		if r, ok := ranks[e.Name()]; ok {
			return r
		}
		if depth > len(m.Entities()) {
			return 0
		}
		r := 0
		for _, ref := range e.Refs() {
			t := ref.Reference().Target()
			if t == e {
				continue
			}
			if tr := rank(t, depth+1) + 1; tr > r {
				r = tr
			}
		}
		ranks[e.Name()] = r
		return r
	}
	for _, e := range m.Entities() {
		rank(e, 0)
	}
	return ranks
}

// ident quotes an identifier for the dialect.
func ident(dialectName, name string) string {
	switch dialectName {
	case dialect.MySQL:
		return "`" + name + "`"
	default:
		return `"` + name + `"`
	}
}

func identList(dialectName string, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = ident(dialectName, n)
	}
	return strings.Join(quoted, ", ")
}

// placeholders returns n parameter markers in the dialect's style,
// offset by the count already emitted.
func placeholders(dialectName string, n, offset int) []string {
	ps := make([]string, n)
	for i := range ps {
		if dialectName == dialect.Postgres {
			ps[i] = fmt.Sprintf("$%d", offset+i+1)
		} else {
			ps[i] = "?"
		}
	}
	return ps
}
