package session

import (
	"context"
	"fmt"
	"sort"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/dialect/sql/sqlgraph"
	"github.com/strataorm/strata/model"
)

// maxSavingIterations bounds the "before save" fixpoint. Hook side
// effects are data too: records added by a hook are hooked, validated,
// and saved themselves, but cascades deeper than this are runaway.
const maxSavingIterations = 10

// SaveChanges persists the whole working set in one transaction:
// saving hooks run to a fixpoint, all records are validated together,
// mutations execute in foreign-key dependency order, and either every
// change commits or none does. Failures leave original values intact
// so the same unit of work can be retried after the caller resolves
// the conflict.
func (s *Session) SaveChanges(ctx context.Context) error {
	if s.readOnly {
		return strata.ErrReadOnly
	}
	if !s.HasChanges() {
		return nil
	}
	if err := s.runSavingFixpoint(); err != nil {
		return err
	}
	s.applyUpdateDefaults()
	if s.validate {
		if err := s.validateChanges(); err != nil {
			return err
		}
	}
	return s.submit(ctx)
}

// runSavingFixpoint fires "before save" hooks over every changed
// record and changed list. Newly introduced records are processed only
// after all currently known ones have run, bounding re-entrancy depth.
func (s *Session) runSavingFixpoint() error {
	seen := make(map[*Record]bool)
	seenLists := make(map[*ListChange]bool)
	for iter := 0; ; iter++ {
		var pending []*Record
		for _, r := range s.changed {
			if !seen[r] {
				pending = append(pending, r)
			}
		}
		var pendingLists []*ListChange
		for _, lc := range s.lists {
			if !seenLists[lc] {
				pendingLists = append(pendingLists, lc)
			}
		}
		if len(pending) == 0 && len(pendingLists) == 0 {
			return nil
		}
		if iter >= maxSavingIterations {
			return fmt.Errorf("strata: saving hooks did not converge after %d passes", maxSavingIterations)
		}
		for _, r := range pending {
			seen[r] = true
			if err := s.hooks.run(hookSaving, r); err != nil {
				return err
			}
		}
		for _, lc := range pendingLists {
			seenLists[lc] = true
			for _, hook := range s.hooks.lists {
				if err := hook(lc); err != nil {
					return err
				}
			}
		}
	}
}

// applyUpdateDefaults stamps update defaults (updated_at and friends)
// on modified records, through the session clock.
func (s *Session) applyUpdateDefaults() {
	for _, r := range s.changed {
		if r.status != Modified {
			continue
		}
		for _, c := range r.entity.Columns() {
			if c.UpdateDefault() == nil {
				continue
			}
			r.values[c.Ordinal()] = evalDefault(c.UpdateDefault(), s.clock)
		}
	}
}

// submit executes the ordered mutations inside a single transaction.
// At most one write transaction is outstanding per SaveChanges call.
func (s *Session) submit(ctx context.Context) error {
	plan := s.planMutations()
	tx, err := s.driver.Tx(ctx)
	if err != nil {
		return s.classify(err)
	}
	for _, r := range plan {
		if err := s.resolvePending(r); err != nil {
			_ = tx.Rollback()
			s.abortSave()
			return err
		}
		m, skip := s.buildMutation(r)
		if skip {
			continue
		}
		res, err := sqlgraph.Exec(ctx, tx, s.driver.Dialect(), m)
		if err != nil {
			_ = tx.Rollback()
			s.abortSave()
			return s.classify(err)
		}
		if r.status == New {
			s.absorbInsert(r, res)
		}
	}
	if err := tx.Commit(); err != nil {
		s.abortSave()
		return s.classify(err)
	}
	s.finalizeSave(plan)
	return nil
}

// planMutations orders the working set so foreign-key dependencies
// hold: referenced rows insert before referencing rows, and deletes
// run referencing-first. Within one stratum the discovery order is
// preserved.
func (s *Session) planMutations() []*Record {
	var inserts, updates, deletes []*Record
	for _, r := range s.changed {
		switch r.status {
		case New:
			inserts = append(inserts, r)
		case Modified:
			updates = append(updates, r)
		case Deleting:
			deletes = append(deletes, r)
		}
	}
	sort.SliceStable(inserts, func(i, j int) bool {
		return s.ranks[inserts[i].entity.Name()] < s.ranks[inserts[j].entity.Name()]
	})
	sort.SliceStable(deletes, func(i, j int) bool {
		return s.ranks[deletes[i].entity.Name()] > s.ranks[deletes[j].entity.Name()]
	})
	plan := make([]*Record, 0, len(inserts)+len(updates)+len(deletes))
	plan = append(plan, inserts...)
	plan = append(plan, updates...)
	plan = append(plan, deletes...)
	return plan
}

// resolvePending fills foreign-key columns from references whose
// target identity became known earlier in this submit. The pending
// links stay armed until commit: a rollback discards the assigned
// identities, and the retry must resolve against the fresh ones.
func (s *Session) resolvePending(r *Record) error {
	for _, p := range r.pending {
		if p.target.PrimaryKey().IsZero() {
			return fmt.Errorf("strata: %s references an unsaved %s; include it in the unit of work",
				r.entity.Name(), p.target.entity.Name())
		}
		if err := r.copyRefColumns(p.ref, p.target); err != nil {
			return err
		}
	}
	return nil
}

// buildMutation translates a record's state into one backend command.
func (s *Session) buildMutation(r *Record) (*sqlgraph.Mutation, bool) {
	e := r.entity
	m := &sqlgraph.Mutation{Entity: e}
	switch r.status {
	case New:
		m.Op = strata.OpInsert
		for _, c := range e.Columns() {
			if c.Is(model.FlagNoInsert) {
				continue
			}
			m.Columns = append(m.Columns, c.Name())
			m.Values = append(m.Values, r.values[c.Ordinal()])
		}
	case Modified:
		m.Op = strata.OpUpdate
		for _, c := range r.dirtyColumns() {
			if c.Is(model.FlagNoUpdate) || c.Is(model.FlagPrimaryKey) {
				continue
			}
			m.Columns = append(m.Columns, c.Name())
			m.Values = append(m.Values, r.values[c.Ordinal()])
		}
		if len(m.Columns) == 0 {
			return nil, true
		}
		s.addKeyPredicate(r, m)
	case Deleting:
		m.Op = strata.OpDelete
		s.addKeyPredicate(r, m)
	default:
		return nil, true
	}
	return m, false
}

// addKeyPredicate attaches the row predicate (original primary-key
// values) and, for row-versioned entities, the version check plus its
// in-place increment.
func (s *Session) addKeyPredicate(r *Record, m *sqlgraph.Mutation) {
	e := r.entity
	pkVals := make([]any, 0, len(e.PrimaryKey().ExpandedKeyMembers()))
	for _, km := range e.PrimaryKey().ExpandedKeyMembers() {
		v, _ := r.Original(km.Name())
		m.KeyColumns = append(m.KeyColumns, km.Name())
		m.KeyValues = append(m.KeyValues, v)
		pkVals = append(pkVals, v)
	}
	m.Key = formatKey(pkVals)
	if rv := e.RowVersion(); rv != nil {
		old, _ := r.Original(rv.Name())
		m.VersionColumn = rv.Name()
		m.VersionValue = old
		if m.Op == strata.OpUpdate {
			if next, ok := bumpVersion(old); ok {
				m.Columns = append(m.Columns, rv.Name())
				m.Values = append(m.Values, next)
				r.values[rv.Ordinal()] = next
			}
		}
	}
}

// absorbInsert copies backend-assigned values into a freshly inserted
// record: the generated identity and the initial row version.
func (s *Session) absorbInsert(r *Record, res *sqlgraph.Result) {
	if res.HasInsertID {
		for _, km := range r.entity.PrimaryKey().ExpandedKeyMembers() {
			if km.Member().Is(model.FlagIdentity) {
				r.values[km.Member().Ordinal()] = res.LastInsertID
			}
		}
	}
	if rv := r.entity.RowVersion(); rv != nil && r.values[rv.Ordinal()] == nil {
		r.values[rv.Ordinal()] = int64(1)
	}
}

// finalizeSave commits record state after a successful transaction:
// current values become originals, new records join the identity map,
// and deleted records fantomize and leave it.
func (s *Session) finalizeSave(plan []*Record) {
	for _, r := range plan {
		r.pending = nil
		switch r.status {
		case New:
			r.commit()
			r.status = Loaded
			if fp, err := r.PrimaryKey().Fingerprint(); err == nil {
				s.lock()
				s.loaded[fp] = r
				s.unlock()
			}
		case Modified:
			r.commit()
			r.status = Loaded
		case Deleting:
			r.commit()
			r.status = Fantom
			s.evict(r)
		}
		s.fireHooks(hookSaved, r)
	}
	s.lock()
	s.changed = nil
	s.lists = nil
	s.unlock()
}

// abortSave unwinds a failed save: abort hooks run in reverse order
// over the working set (later-added, more derived records first),
// transient records are dropped, and identities absorbed from
// rolled-back inserts are cleared again so the retry relinks against
// the values of its own attempt. Original values stay untouched; the
// unit of work remains retryable.
func (s *Session) abortSave() {
	for i := len(s.changed) - 1; i >= 0; i-- {
		s.fireHooks(hookAborted, s.changed[i])
	}
	kept := s.changed[:0]
	for _, r := range s.changed {
		if r.transient {
			r.status = Fantom
			s.evict(r)
			continue
		}
		if r.status == New {
			r.clearBackendValues()
		}
		kept = append(kept, r)
	}
	s.changed = kept
}

// classify routes a backend error through the vendor classifier so no
// known conflict shape escapes as a raw error.
func (s *Session) classify(err error) error {
	if s.classifier == nil {
		return err
	}
	return s.classifier.Classify(err)
}

// bumpVersion increments a row-version value. Versions load as int64,
// but a nil original (fresh insert path) yields no increment.
func bumpVersion(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n + 1, true
	case int:
		return int64(n) + 1, true
	case int32:
		return int64(n) + 1, true
	default:
		return 0, false
	}
}

// formatKey renders primary-key values for conflict tags.
func formatKey(vals []any) string {
	switch len(vals) {
	case 0:
		return ""
	case 1:
		return fmt.Sprint(vals[0])
	default:
		out := fmt.Sprint(vals[0])
		for _, v := range vals[1:] {
			out += "," + fmt.Sprint(v)
		}
		return out
	}
}
