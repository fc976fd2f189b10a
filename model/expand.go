package model

import (
	"strings"

	"github.com/strataorm/strata/schema/field"
)

// maxExpandIterations bounds the expansion fixpoint. A well-formed
// schema converges in at most the depth of its longest foreign-key
// chain; a schema that needs more than this is circular.
const maxExpandIterations = 10

// expandKeys runs the key-expansion fixpoint: repeatedly scan keys
// that have not reached Expanded, expanding foreign keys whose target
// key is already expanded (synthesizing their columns), and flattening
// plain keys whose members are all resolvable. Keys left over when the
// loop stops are circular or reference members that do not exist.
func (b *builder) expandKeys() {
	var work []*KeyInfo
	for _, e := range b.model.entities {
		for _, k := range e.keys {
			if k.failed {
				continue
			}
			if b.trySeedExpand(k) {
				continue
			}
			work = append(work, k)
		}
	}
	for iter := 0; iter < maxExpandIterations && len(work) > 0; iter++ {
		progress := false
		// Foreign keys first: plain keys listing reference members
		// depend on those references' synthesized columns.
		for _, k := range work {
			if k.typ == KeyForeign && !k.failed && b.expandForeignKey(k) {
				progress = true
			}
		}
		for _, k := range work {
			if k.typ != KeyForeign && !k.failed && b.expandPlainKey(k) {
				progress = true
			}
		}
		next := work[:0]
		for _, k := range work {
			if k.status != Expanded && !k.failed {
				next = append(next, k)
			}
		}
		work = next
		if !progress {
			break
		}
	}
	for _, k := range work {
		b.reportStuck(k)
	}
}

// trySeedExpand expands trivially complete keys up front: a key whose
// members are already resolved plain columns needs no fixpoint.
func (b *builder) trySeedExpand(k *KeyInfo) bool {
	if k.typ == KeyForeign || len(k.members) == 0 {
		return false
	}
	for _, km := range k.members {
		if km.member == nil {
			km.member = k.entity.byName[km.name]
		}
		if km.member == nil || km.member.kind != KindColumn {
			return false
		}
	}
	k.status = Expanded
	k.expanded = k.members
	b.markKeyColumns(k)
	return true
}

// expandForeignKey synthesizes the foreign-key columns mirroring the
// target key. It requires the target key to be expanded already and
// reports progress accordingly.
func (b *builder) expandForeignKey(k *KeyInfo) bool {
	r := k.reference
	if r.toKey == nil || r.toKey.status != Expanded {
		return false
	}
	targetCols := r.toKey.expanded
	if len(r.columns) > 0 && len(r.columns) != len(targetCols) {
		b.errorf("entity %s: reference %q declares %d columns, target key %s has %d",
			k.entity.name, r.member.name, len(r.columns), r.toKey.display(), len(targetCols))
		k.failed = true
		return false
	}
	members := make([]*KeyMember, 0, len(targetCols))
	for i, tkm := range targetCols {
		tm := tkm.member
		name := r.member.name + "_" + tm.name
		if len(r.columns) > 0 {
			name = r.columns[i]
		}
		col := k.entity.byName[name]
		switch {
		case col == nil:
			col = b.addColumn(k.entity, &field.Descriptor{
				Name:      name,
				Type:      tm.typ,
				Size:      tm.size,
				Nillable:  tm.nullable || r.member.nullable,
				AutoValue: tm.Is(FlagAutoValue),
			}, true)
			col.flags |= FlagForeignKey
		case col.kind != KindColumn:
			b.errorf("entity %s: reference %q needs column %q, but a %s member has that name",
				k.entity.name, r.member.name, name, col.kind)
			k.failed = true
			return false
		case col.typ != tm.typ:
			b.errorf("entity %s: column %q is %s, but reference %q requires %s to mirror %s.%s",
				k.entity.name, name, col.typ, r.member.name, tm.typ, r.target.name, tm.name)
			k.failed = true
			return false
		default:
			col.flags |= FlagForeignKey
		}
		if tm.Is(FlagIdentity) {
			k.entity.referencesIdentity = true
		}
		members = append(members, &KeyMember{member: col, name: name})
	}
	k.members = members
	k.expanded = members
	k.status = Expanded
	r.fromKey = k
	return true
}

// expandPlainKey advances a primary or index key: resolve member names
// first (Listed to Assigned), then flatten. Column members pass
// through unchanged; reference members contribute the expanded columns
// of their own foreign key, which the fixpoint guarantees exist first.
func (b *builder) expandPlainKey(k *KeyInfo) bool {
	progress := false
	if k.status == Listed {
		resolved := true
		for _, km := range k.members {
			if km.member == nil {
				if m := k.entity.byName[km.name]; m != nil {
					km.member = m
					progress = true
				} else {
					resolved = false
				}
			}
		}
		if !resolved {
			return progress
		}
		k.status = Assigned
	}
	expanded := make([]*KeyMember, 0, len(k.members))
	for _, km := range k.members {
		switch km.member.kind {
		case KindColumn:
			expanded = append(expanded, km)
		case KindRef:
			from := km.member.reference.fromKey
			if from == nil || from.status != Expanded {
				return progress
			}
			for _, fkm := range from.expanded {
				expanded = append(expanded, &KeyMember{
					member:     fkm.member,
					name:       fkm.name,
					descending: km.descending,
				})
			}
		default:
			b.errorf("entity %s: key %s: member %q is a %s and cannot be a key member",
				k.entity.name, k.display(), km.name, km.member.kind)
			k.failed = true
			return progress
		}
	}
	k.expanded = expanded
	k.status = Expanded
	b.markKeyColumns(k)
	return true
}

// markKeyColumns flags columns that ended up in an expanded primary key.
func (b *builder) markKeyColumns(k *KeyInfo) {
	if k.typ != KeyPrimary {
		return
	}
	for _, km := range k.expanded {
		km.member.flags |= FlagPrimaryKey
	}
}

// reportStuck reports a key the fixpoint could not expand, naming the
// member names that never resolved where that is diagnosable. A key
// with fully resolved members that still failed to expand is part of a
// reference cycle.
func (b *builder) reportStuck(k *KeyInfo) {
	var unresolved []string
	for _, km := range k.members {
		if km.member == nil {
			unresolved = append(unresolved, km.name)
		}
	}
	switch {
	case len(unresolved) > 0:
		b.errorf("entity %s: key %s: unresolved members %s",
			k.entity.name, k.display(), strings.Join(unresolved, ", "))
	case k.typ == KeyForeign:
		b.errorf("entity %s: key %s: circular reference via %s.%s",
			k.entity.name, k.display(), k.reference.target.name, k.reference.toKey.display())
	default:
		b.errorf("entity %s: key %s: circular reference", k.entity.name, k.display())
	}
}

// expandIncludes resolves the include columns of index keys. It runs
// once, after the fixpoint, because include members may be references
// whose foreign-key columns only exist after expansion.
func (b *builder) expandIncludes() {
	for _, e := range b.model.entities {
		for _, k := range e.keys {
			if k.typ != KeyIndex || k.failed || len(k.includeSpec) == 0 {
				continue
			}
			for _, name := range k.includeSpec {
				m := e.byName[name]
				switch {
				case m == nil:
					b.errorf("entity %s: key %s: unknown include member %q", e.name, k.display(), name)
				case m.kind == KindColumn:
					k.include = append(k.include, m)
				case m.kind == KindRef:
					from := m.reference.fromKey
					if from == nil || from.status != Expanded {
						b.errorf("entity %s: key %s: include member %q did not expand", e.name, k.display(), name)
						continue
					}
					for _, fkm := range from.expanded {
						k.include = append(k.include, fkm.member)
					}
				default:
					b.errorf("entity %s: key %s: include member %q is a %s", e.name, k.display(), name, m.kind)
				}
			}
		}
	}
}
