package session

import (
	"context"
	"fmt"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/dialect/sql/sqlgraph"
	"github.com/strataorm/strata/model"
)

// EntitySet is the query surface over one entity. Every row it returns
// goes through Attach, so a row already resident in the session comes
// back as the same canonical instance regardless of the query path that
// found it.
type EntitySet struct {
	session *Session
	entity  *model.EntityInfo

	where   []string
	args    []any
	orderBy []string
	limit   int
}

// Entity returns the entity the set queries.
func (q *EntitySet) Entity() *model.EntityInfo { return q.entity }

// Where adds an equality predicate on a column member. Predicates
// combine with AND.
func (q *EntitySet) Where(column string, value any) *EntitySet {
	q.where = append(q.where, column)
	q.args = append(q.args, value)
	return q
}

// OrderBy appends result ordering columns.
func (q *EntitySet) OrderBy(columns ...string) *EntitySet {
	q.orderBy = append(q.orderBy, columns...)
	return q
}

// Limit caps the result size. Zero means unlimited.
func (q *EntitySet) Limit(n int) *EntitySet {
	q.limit = n
	return q
}

// All runs the query and returns the matching records, attached.
func (q *EntitySet) All(ctx context.Context) ([]*Record, error) {
	s := q.session
	rows, err := sqlgraph.QueryWhere(ctx, s.driver, s.driver.Dialect(), q.entity, q.where, q.args, q.orderBy, q.limit)
	if err != nil {
		return nil, err
	}
	records := make([]*Record, 0, len(rows))
	for _, values := range rows {
		r := &Record{
			session: s,
			entity:  q.entity,
			status:  Loaded,
			values:  values,
		}
		attached, err := s.Attach(r)
		if err != nil {
			return nil, err
		}
		records = append(records, attached)
	}
	return records, nil
}

// One runs the query and returns exactly one record. No match returns
// NotFoundError; more than one match is an error.
func (q *EntitySet) One(ctx context.Context) (*Record, error) {
	limited := *q
	limited.limit = 2
	records, err := limited.All(ctx)
	if err != nil {
		return nil, err
	}
	switch len(records) {
	case 0:
		return nil, &strata.NotFoundError{Entity: q.entity.Name()}
	case 1:
		return records[0], nil
	default:
		return nil, fmt.Errorf("strata: query on %s matched more than one row", q.entity.Name())
	}
}

// Exist reports whether any row matches the predicates.
func (q *EntitySet) Exist(ctx context.Context) (bool, error) {
	s := q.session
	return sqlgraph.QueryExists(ctx, s.driver, s.driver.Dialect(), q.entity, q.where, q.args)
}

// GetByKey resolves one record through a named unique key. Lookups by
// the primary key hit the identity map first; alternate-key lookups
// query and then deduplicate through Attach.
func (q *EntitySet) GetByKey(ctx context.Context, keyName string, vals ...any) (*Record, error) {
	var key *model.KeyInfo
	for _, k := range q.entity.Keys() {
		if k.Name() == keyName {
			key = k
			break
		}
	}
	if key == nil {
		return nil, fmt.Errorf("strata: %s has no key %q", q.entity.Name(), keyName)
	}
	if !key.Unique() {
		return nil, fmt.Errorf("strata: key %s is not unique", keyName)
	}
	if key == q.entity.PrimaryKey() {
		return q.session.Get(ctx, q.entity.Name(), LoadFetch, vals...)
	}
	cols := keyColumnNames(key)
	if len(vals) != len(cols) {
		return nil, fmt.Errorf("strata: key %s expects %d values, got %d", keyName, len(cols), len(vals))
	}
	lookup := &EntitySet{session: q.session, entity: q.entity, where: cols, args: vals}
	return lookup.One(ctx)
}
