package session

import (
	"github.com/strataorm/strata/model"
)

// Hook observes or augments one record at a lifecycle point. Saving
// hooks may add further changed records to the session; the save
// pipeline re-runs until the working set stops growing.
type Hook func(r *Record) error

// ListHook observes one changed relation list before save.
type ListHook func(c *ListChange) error

// ListChange tracks membership changes of one relation-list member
// within the current unit of work.
type ListChange struct {
	Owner   *Record
	Member  *model.MemberInfo
	Added   []*Record
	Removed []*Record
}

type hookKind uint8

const (
	hookCreated hookKind = iota
	hookDeleting
	hookSaving
	hookSaved
	hookAborted
	endHooks
)

// hookSet stores hooks in registration order, globally and per entity.
type hookSet struct {
	global   [endHooks][]Hook
	byEntity [endHooks]map[string][]Hook
	lists    []ListHook
}

func (h *hookSet) add(k hookKind, entity string, hook Hook) {
	if entity == "" {
		h.global[k] = append(h.global[k], hook)
		return
	}
	if h.byEntity[k] == nil {
		h.byEntity[k] = make(map[string][]Hook)
	}
	h.byEntity[k][entity] = append(h.byEntity[k][entity], hook)
}

// fire runs hooks that cannot veto the operation; failures are logged.
func (s *Session) fireHooks(k hookKind, r *Record) {
	if err := s.hooks.run(k, r); err != nil {
		s.log.Warn("strata: hook failed", "entity", r.entity.Name(), "err", err)
	}
}

// run executes hooks in stable order: global first, then per entity.
func (h *hookSet) run(k hookKind, r *Record) error {
	for _, hook := range h.global[k] {
		if err := hook(r); err != nil {
			return err
		}
	}
	if m := h.byEntity[k]; m != nil {
		for _, hook := range m[r.entity.Name()] {
			if err := hook(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// OnCreated registers a hook fired when New creates a record. An empty
// entity name applies the hook to every entity.
func (s *Session) OnCreated(entity string, h Hook) {
	s.hooks.add(hookCreated, entity, h)
}

// OnDeleting registers a hook fired when Delete marks a record.
func (s *Session) OnDeleting(entity string, h Hook) {
	s.hooks.add(hookDeleting, entity, h)
}

// OnSaving registers a "before save" hook. Saving hooks run to a
// fixpoint: records they add are themselves hooked and validated.
func (s *Session) OnSaving(entity string, h Hook) {
	s.hooks.add(hookSaving, entity, h)
}

// OnSaved registers a hook fired after a successful commit.
func (s *Session) OnSaved(entity string, h Hook) {
	s.hooks.add(hookSaved, entity, h)
}

// OnAborted registers a hook fired when a save fails. Abort hooks run
// in reverse working-set order, unwinding derived records first.
func (s *Session) OnAborted(entity string, h Hook) {
	s.hooks.add(hookAborted, entity, h)
}

// OnSavingList registers a "before save" hook over changed relation
// lists. It participates in the same fixpoint as record saving hooks.
func (s *Session) OnSavingList(h ListHook) {
	s.hooks.lists = append(s.hooks.lists, h)
}
