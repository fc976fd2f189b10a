// Package session implements the unit of work: it tracks entity record
// lifecycle, deduplicates records per primary key through an identity
// map, validates changes, and persists them atomically with optimistic
// concurrency.
package session

import (
	"fmt"
	"reflect"
	"time"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/model"
)

// Status is the lifecycle state of a tracked record.
type Status uint8

// Record lifecycle states.
const (
	// Stub: identity known, column values not loaded.
	Stub Status = iota + 1
	// Loading: a load round-trip is in flight.
	Loading
	// Loaded: values reflect the database and carry no local changes.
	Loaded
	// New: created in this session, never persisted.
	New
	// Modified: loaded, with local changes pending.
	Modified
	// Deleting: marked for deletion on the next save.
	Deleting
	// Fantom: no longer represents a persisted or persistable row.
	Fantom
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Stub:
		return "stub"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case New:
		return "new"
	case Modified:
		return "modified"
	case Deleting:
		return "deleting"
	case Fantom:
		return "fantom"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

// changed reports whether the status places the record in the
// session's working set.
func (s Status) changed() bool {
	return s == New || s == Modified || s == Deleting
}

// pendingRef links a record to a referenced record whose identity is
// not assigned yet (a New row with a backend identity). The foreign
// key columns are filled in at submit time, after the target's insert.
type pendingRef struct {
	ref    *model.ReferenceInfo
	target *Record
}

// Record is one tracked row: the entity it belongs to, its current and
// original column values, and its lifecycle status. A record is owned
// by exactly one session while attached.
type Record struct {
	session  *Session
	entity   *model.EntityInfo
	status   Status
	values   []any // indexed by column ordinal
	original []any // snapshot backing rollback and stale-version checks
	pending  []pendingRef

	// transient records are created purely as part of one save attempt
	// (generated log rows and the like) and are discarded on abort so
	// they do not leak into a retry.
	transient bool
}

// Entity returns the entity definition of the record.
func (r *Record) Entity() *model.EntityInfo { return r.entity }

// Session returns the owning session.
func (r *Record) Session() *Session { return r.session }

// Status returns the record's lifecycle state.
func (r *Record) Status() Status { return r.status }

// MarkTransient flags the record as discardable on save abort.
func (r *Record) MarkTransient() { r.transient = true }

// Value returns the current value of a column member. Stub records
// must be hydrated with Load before their values can be read.
func (r *Record) Value(name string) (any, error) {
	m, err := r.column(name)
	if err != nil {
		return nil, err
	}
	if r.status == Stub && !m.Is(model.FlagPrimaryKey) {
		return nil, fmt.Errorf("strata: %s is a stub; Load it before reading %q", r.entity.Name(), name)
	}
	return r.values[m.Ordinal()], nil
}

// Set assigns the current value of a column member. The first change
// to a Loaded record snapshots the original values and moves the
// record to Modified.
func (r *Record) Set(name string, v any) error {
	if r.session != nil && r.session.readOnly {
		return strata.ErrReadOnly
	}
	m, err := r.column(name)
	if err != nil {
		return err
	}
	switch r.status {
	case Stub:
		return fmt.Errorf("strata: %s is a stub; Load it before writing %q", r.entity.Name(), name)
	case Fantom:
		return fmt.Errorf("strata: cannot modify deleted %s", r.entity.Name())
	case Deleting:
		return fmt.Errorf("strata: cannot modify %s while it is being deleted", r.entity.Name())
	case Loaded:
		r.snapshot()
		r.status = Modified
		if r.session != nil {
			r.session.notifyStatusChanged(r)
		}
	}
	r.values[m.Ordinal()] = v
	return nil
}

// SetRef points a reference member at the given record, copying its
// primary-key values into the synthesized foreign-key columns. A
// target whose identity is not assigned yet is linked lazily at save
// time.
func (r *Record) SetRef(name string, target *Record) error {
	m := r.entity.Member(name)
	if m == nil || m.Kind() != model.KindRef {
		return fmt.Errorf("strata: %s has no reference member %q", r.entity.Name(), name)
	}
	ri := m.Reference()
	if target == nil {
		if !m.Nullable() {
			return fmt.Errorf("strata: reference %s.%s is required", r.entity.Name(), name)
		}
		for _, km := range ri.FromKey().ExpandedKeyMembers() {
			if err := r.Set(km.Name(), nil); err != nil {
				return err
			}
		}
		return nil
	}
	if target.entity != ri.Target() {
		return fmt.Errorf("strata: reference %s.%s expects %s, got %s",
			r.entity.Name(), name, ri.Target().Name(), target.entity.Name())
	}
	if target.status == New && target.PrimaryKey().IsZero() {
		r.pending = append(r.pending, pendingRef{ref: ri, target: target})
		if r.status == Loaded {
			r.snapshot()
			r.status = Modified
			if r.session != nil {
				r.session.notifyStatusChanged(r)
			}
		}
		return nil
	}
	return r.copyRefColumns(ri, target)
}

// copyRefColumns mirrors the target key values into the foreign-key
// columns, position by position.
func (r *Record) copyRefColumns(ri *model.ReferenceInfo, target *Record) error {
	from := ri.FromKey().ExpandedKeyMembers()
	to := ri.ToKey().ExpandedKeyMembers()
	for i, km := range from {
		if err := r.Set(km.Name(), target.values[to[i].Member().Ordinal()]); err != nil {
			return err
		}
	}
	return nil
}

// Ref resolves a reference member to its target record, as a Stub if
// it is not resident in the session.
func (r *Record) Ref(name string) (*Record, error) {
	m := r.entity.Member(name)
	if m == nil || m.Kind() != model.KindRef {
		return nil, fmt.Errorf("strata: %s has no reference member %q", r.entity.Name(), name)
	}
	ri := m.Reference()
	from := ri.FromKey().ExpandedKeyMembers()
	vals := make([]any, len(from))
	allNil := true
	for i, km := range from {
		vals[i] = r.values[km.Member().Ordinal()]
		if vals[i] != nil {
			allNil = false
		}
	}
	if allNil {
		return nil, nil
	}
	if r.session == nil {
		return nil, strata.ErrDetached
	}
	return r.session.stubFor(ri.Target(), ri.ToKey(), vals)
}

// PrimaryKey returns the record's identity. The key is zero for new
// records whose backend identity has not been assigned.
func (r *Record) PrimaryKey() model.EntityKey {
	pk := r.entity.PrimaryKey()
	if pk == nil {
		return model.EntityKey{}
	}
	kms := pk.ExpandedKeyMembers()
	vals := make([]any, len(kms))
	for i, km := range kms {
		vals[i] = r.values[km.Member().Ordinal()]
	}
	key, err := model.NewEntityKey(pk, vals...)
	if err != nil {
		return model.EntityKey{}
	}
	return key
}

// Original returns the pre-change value of a column, or the current
// value when the record carries no changes.
func (r *Record) Original(name string) (any, error) {
	m, err := r.column(name)
	if err != nil {
		return nil, err
	}
	if r.original != nil {
		return r.original[m.Ordinal()], nil
	}
	return r.values[m.Ordinal()], nil
}

// snapshot captures the current values as originals, once.
func (r *Record) snapshot() {
	if r.original == nil {
		r.original = make([]any, len(r.values))
		copy(r.original, r.values)
	}
}

// clearBackendValues drops the values the backend assigned during a
// rolled-back insert; the row never existed, and the next attempt is
// assigned fresh ones.
func (r *Record) clearBackendValues() {
	for _, c := range r.entity.Columns() {
		if c.Is(model.FlagIdentity) || c.Is(model.FlagRowVersion) {
			r.values[c.Ordinal()] = nil
		}
	}
}

// commit moves current values into originals after a successful save.
func (r *Record) commit() {
	r.original = nil
}

// revert restores original values, undoing local changes.
func (r *Record) revert() {
	if r.original != nil {
		copy(r.values, r.original)
		r.original = nil
	}
}

// dirtyColumns returns the columns whose current value differs from
// the original, in ordinal order.
func (r *Record) dirtyColumns() []*model.MemberInfo {
	var dirty []*model.MemberInfo
	for _, c := range r.entity.Columns() {
		if r.original == nil || !equalValue(r.values[c.Ordinal()], r.original[c.Ordinal()]) {
			dirty = append(dirty, c)
		}
	}
	return dirty
}

func (r *Record) column(name string) (*model.MemberInfo, error) {
	m := r.entity.Member(name)
	if m == nil || m.Kind() != model.KindColumn {
		return nil, fmt.Errorf("strata: %s has no column member %q", r.entity.Name(), name)
	}
	return m, nil
}

// applyDefaults fills unset columns of a new record from their
// declared defaults. Function defaults are invoked per record;
// time-valued functions go through the session clock so tests stay
// deterministic.
func (r *Record) applyDefaults(clock func() time.Time) {
	for _, c := range r.entity.Columns() {
		if r.values[c.Ordinal()] != nil || c.Default() == nil {
			continue
		}
		r.values[c.Ordinal()] = evalDefault(c.Default(), clock)
	}
}

// evalDefault resolves a default declaration to a concrete value.
func evalDefault(def any, clock func() time.Time) any {
	if f, ok := def.(func() time.Time); ok {
		if clock != nil {
			return clock()
		}
		return f()
	}
	v := reflect.ValueOf(def)
	if v.Kind() == reflect.Func && v.Type().NumIn() == 0 && v.Type().NumOut() == 1 {
		return v.Call(nil)[0].Interface()
	}
	return def
}

// equalValue compares stored column values structurally.
func equalValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}
