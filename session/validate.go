package session

import (
	"github.com/strataorm/strata"
	"github.com/strataorm/strata/model"
	"github.com/strataorm/strata/schema/field"
)

// validateChanges checks every changed record and returns all faults
// together as a *strata.ValidationError. Nothing short-circuits: one
// pass reports every problem in the unit of work.
func (s *Session) validateChanges() error {
	var faults []*strata.Fault
	for _, r := range s.changed {
		if r.status != New && r.status != Modified {
			continue
		}
		faults = append(faults, validateRecord(r)...)
	}
	if len(faults) > 0 {
		return &strata.ValidationError{Faults: faults}
	}
	return nil
}

// validateRecord checks the writable columns and required references
// of one record.
func validateRecord(r *Record) []*strata.Fault {
	var faults []*strata.Fault
	key := r.PrimaryKey()
	fault := func(kind strata.FaultKind, member string) {
		f := &strata.Fault{Kind: kind, Entity: r.entity.Name(), Member: member}
		if !key.IsZero() {
			f.Key = key.String()
		}
		faults = append(faults, f)
	}
	for _, c := range r.entity.Columns() {
		if skipColumn(r, c) {
			continue
		}
		v := r.values[c.Ordinal()]
		if !c.Nullable() && emptyValue(v, c.Type()) {
			if c.Is(model.FlagAutoValue) {
				continue // generated on write
			}
			fault(strata.ValueMissing, c.Name())
			continue
		}
		if str, ok := v.(string); ok && c.Size() > 0 && len(str) > c.Size() {
			if c.Is(model.FlagAutoValue) {
				// Generated values are truncated silently rather than
				// failing the whole save.
				r.values[c.Ordinal()] = str[:c.Size()]
				continue
			}
			fault(strata.ValueTooLong, c.Name())
		}
	}
	for _, m := range r.entity.Refs() {
		if m.Nullable() {
			continue
		}
		if refAssigned(r, m.Reference()) {
			continue
		}
		fault(strata.ValueMissing, m.Name())
	}
	return faults
}

// skipColumn reports whether a column is outside validation scope:
// read-only for the pending operation, or a pass-through foreign-key
// column whose requiredness is judged at the reference level.
func skipColumn(r *Record, c *model.MemberInfo) bool {
	switch {
	case c.Is(model.FlagForeignKey):
		return true
	case c.Is(model.FlagRowVersion):
		return true
	case r.status == New && c.Is(model.FlagNoInsert):
		return true
	case r.status == Modified && c.Is(model.FlagNoUpdate):
		return true
	}
	return false
}

// refAssigned reports whether the reference has a target: either its
// foreign-key columns hold values or a pending link awaits an insert.
func refAssigned(r *Record, ri *model.ReferenceInfo) bool {
	for _, p := range r.pending {
		if p.ref == ri {
			return true
		}
	}
	if ri.FromKey() == nil {
		return false
	}
	for _, km := range ri.FromKey().ExpandedKeyMembers() {
		if r.values[km.Member().Ordinal()] != nil {
			return true
		}
	}
	return false
}

// emptyValue reports whether the value counts as missing for a
// non-nullable column of the given semantic type. Only types with a
// conventional "unset" shape (empty string, nil UUID) treat their zero
// value as missing; a numeric zero is a stored value like any other.
func emptyValue(v any, t field.Type) bool {
	if v == nil {
		return true
	}
	switch t {
	case field.TypeString, field.TypeText, field.TypeUUID:
		return v == t.ZeroValue()
	}
	return false
}
