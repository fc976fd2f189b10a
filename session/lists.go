package session

import (
	"fmt"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/model"
)

// AddToList links a record into a relation-list member of the owner.
// For one-to-many lists the target's back reference is pointed at the
// owner; for many-to-many lists a link record is created. The change is
// recorded for list saving hooks.
func (s *Session) AddToList(owner *Record, member string, target *Record) error {
	rel, err := s.listMember(owner, member, target)
	if err != nil {
		return err
	}
	switch rel.Type() {
	case model.OneToMany:
		if err := target.SetRef(rel.BackRef().Name(), owner); err != nil {
			return err
		}
	case model.ManyToMany:
		link, err := s.New(rel.Link().Name())
		if err != nil {
			return err
		}
		if err := link.SetRef(rel.LinkFrom().Name(), owner); err != nil {
			return err
		}
		if err := link.SetRef(rel.LinkTo().Name(), target); err != nil {
			return err
		}
	}
	s.recordListChange(owner, rel.Member(), target, nil)
	return nil
}

// RemoveFromList unlinks a record from a relation-list member. For
// one-to-many lists the back reference is cleared, which requires it
// to be nillable; for many-to-many lists the resident link record is
// deleted.
func (s *Session) RemoveFromList(owner *Record, member string, target *Record) error {
	rel, err := s.listMember(owner, member, target)
	if err != nil {
		return err
	}
	switch rel.Type() {
	case model.OneToMany:
		if err := target.SetRef(rel.BackRef().Name(), nil); err != nil {
			return err
		}
	case model.ManyToMany:
		link, err := s.findLink(rel, owner, target)
		if err != nil {
			return err
		}
		if err := s.Delete(link); err != nil {
			return err
		}
	}
	s.recordListChange(owner, rel.Member(), nil, target)
	return nil
}

// findLink locates the resident link record joining owner and target.
// Links created in this session are found in the working set; persisted
// links must be loaded (through EntitySet) before removal.
func (s *Session) findLink(rel *model.RelationInfo, owner, target *Record) (*Record, error) {
	s.rlock()
	defer s.runlock()
	for _, r := range s.loaded {
		if r.entity != rel.Link() || r.status == Fantom {
			continue
		}
		if linkMatches(r, rel.LinkFrom(), owner) && linkMatches(r, rel.LinkTo(), target) {
			return r, nil
		}
	}
	for _, r := range s.changed {
		if r.entity != rel.Link() {
			continue
		}
		if linkPending(r, rel.LinkFrom(), owner) && linkPending(r, rel.LinkTo(), target) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("strata: no resident %s link between %s and %s; load it first",
		rel.Link().Name(), owner.entity.Name(), target.entity.Name())
}

// linkMatches reports whether the link's foreign-key columns for the
// given reference member equal the record's key values.
func linkMatches(link *Record, refMember *model.MemberInfo, target *Record) bool {
	ri := refMember.Reference()
	from := ri.FromKey().ExpandedKeyMembers()
	to := ri.ToKey().ExpandedKeyMembers()
	for i, km := range from {
		if !equalValue(link.values[km.Member().Ordinal()], target.values[to[i].Member().Ordinal()]) {
			return false
		}
	}
	return true
}

// linkPending reports whether the link points at the record through an
// unresolved pending reference.
func linkPending(link *Record, refMember *model.MemberInfo, target *Record) bool {
	ri := refMember.Reference()
	for _, p := range link.pending {
		if p.ref == ri && p.target == target {
			return true
		}
	}
	return linkMatches(link, refMember, target)
}

// recordListChange accumulates membership changes per owner and member
// for the saving-hook fixpoint.
func (s *Session) recordListChange(owner *Record, member *model.MemberInfo, added, removed *Record) {
	s.lock()
	defer s.unlock()
	for _, lc := range s.lists {
		if lc.Owner == owner && lc.Member == member {
			if added != nil {
				lc.Added = append(lc.Added, added)
			}
			if removed != nil {
				lc.Removed = append(lc.Removed, removed)
			}
			return
		}
	}
	lc := &ListChange{Owner: owner, Member: member}
	if added != nil {
		lc.Added = append(lc.Added, added)
	}
	if removed != nil {
		lc.Removed = append(lc.Removed, removed)
	}
	s.lists = append(s.lists, lc)
}

func (s *Session) listMember(owner *Record, member string, target *Record) (*model.RelationInfo, error) {
	if s.readOnly {
		return nil, strata.ErrReadOnly
	}
	if owner.session != s || target == nil || target.session != s {
		return nil, strata.ErrDetached
	}
	m := owner.entity.Member(member)
	if m == nil || m.Kind() != model.KindList {
		return nil, fmt.Errorf("strata: %s has no list member %q", owner.entity.Name(), member)
	}
	rel := m.Relation()
	if target.entity != rel.Target() {
		return nil, fmt.Errorf("strata: list %s.%s expects %s, got %s",
			owner.entity.Name(), member, rel.Target().Name(), target.entity.Name())
	}
	return rel, nil
}
