package model

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/schema/field"
)

// Build resolves the given entity definitions into a Model. All schema
// defects found during the pass are collected and returned together as
// a *strata.SchemaError; a partial model is never returned.
func Build(defs ...strata.Interface) (*Model, error) {
	b := &builder{
		model: &Model{byName: make(map[string]*EntityInfo)},
		defs:  make(map[string]strata.Interface),
	}
	for _, def := range defs {
		b.addEntity(def)
	}
	b.resolveRefs()
	b.resolveLists()
	b.seedKeys()
	b.expandKeys()
	b.expandIncludes()
	b.nameKeys()
	b.finalize()
	if err := strata.NewSchemaError(b.errs...); err != nil {
		return nil, err
	}
	return b.model, nil
}

type builder struct {
	model *Model
	defs  map[string]strata.Interface
	errs  []error
}

func (b *builder) errorf(format string, args ...any) {
	b.errs = append(b.errs, fmt.Errorf(format, args...))
}

// addEntity creates the entity and its declared column members.
func (b *builder) addEntity(def strata.Interface) {
	name := definitionName(def)
	if name == "" {
		b.errorf("entity definition %T has no type name", def)
		return
	}
	if _, ok := b.model.byName[name]; ok {
		b.errorf("entity %s declared twice", name)
		return
	}
	e := &EntityInfo{
		name:   name,
		table:  tableName(def, name),
		byName: make(map[string]*MemberInfo),
	}
	if v, ok := def.(strata.Viewer); ok && v.View() {
		e.view = true
	}
	var fields []strata.Field
	for _, mx := range def.Mixin() {
		fields = append(fields, mx.Fields()...)
	}
	fields = append(fields, def.Fields()...)
	for _, f := range fields {
		d := f.Descriptor()
		if d.Err != nil {
			b.errorf("entity %s: %w", name, d.Err)
			continue
		}
		if d.Name == "" {
			b.errorf("entity %s: column with empty name", name)
			continue
		}
		if _, ok := e.byName[d.Name]; ok {
			b.errorf("entity %s: duplicate member %q", name, d.Name)
			continue
		}
		b.addColumn(e, d, false)
	}
	b.model.entities = append(b.model.entities, e)
	b.model.byName[name] = e
	b.defs[name] = def
}

// addColumn appends a concrete column member to the entity.
func (b *builder) addColumn(e *EntityInfo, d *field.Descriptor, synthetic bool) *MemberInfo {
	var flags Flags
	if d.Identity {
		flags |= FlagIdentity
	}
	if d.PrimaryKey {
		flags |= FlagPrimaryKey
	}
	if d.RowVersion {
		flags |= FlagRowVersion
	}
	if d.AutoValue {
		flags |= FlagAutoValue
	}
	if d.NoInsert {
		flags |= FlagNoInsert
	}
	if d.NoUpdate {
		flags |= FlagNoUpdate
	}
	m := &MemberInfo{
		entity:    e,
		name:      d.Name,
		kind:      KindColumn,
		ordinal:   len(e.columns),
		typ:       d.Type,
		nullable:  d.Nillable,
		size:      d.Size,
		flags:     flags,
		def:       d.Default,
		updateDef: d.UpdateDefault,
		synthetic: synthetic,
	}
	e.members = append(e.members, m)
	e.columns = append(e.columns, m)
	e.byName[d.Name] = m
	if d.Unique {
		e.keys = append(e.keys, &KeyInfo{
			entity: e,
			typ:    KeyIndex,
			unique: true,
			spec:   d.Name,
		})
	}
	return m
}

// resolveRefs creates reference members and their (unexpanded) foreign
// keys, once every entity exists to resolve targets against.
func (b *builder) resolveRefs() {
	for _, e := range b.model.entities {
		def := b.defs[e.name]
		for _, r := range def.Refs() {
			d := r.Descriptor()
			if _, ok := e.byName[d.Name]; ok {
				b.errorf("entity %s: duplicate member %q", e.name, d.Name)
				continue
			}
			target := b.model.byName[d.Target]
			if target == nil {
				b.errorf("entity %s: reference %q targets unknown entity %q", e.name, d.Name, d.Target)
				continue
			}
			m := &MemberInfo{
				entity:   e,
				name:     d.Name,
				kind:     KindRef,
				ordinal:  -1,
				nullable: d.Nillable,
			}
			ri := &ReferenceInfo{
				member:   m,
				target:   target,
				toName:   d.ToKey,
				columns:  d.Columns,
				onDelete: d.OnDelete,
				unique:   d.Unique,
			}
			m.reference = ri
			e.members = append(e.members, m)
			e.byName[d.Name] = m
			e.keys = append(e.keys, &KeyInfo{
				entity:    e,
				typ:       KeyForeign,
				unique:    d.Unique,
				reference: ri,
			})
		}
	}
}

// resolveLists creates relation-list members. Back references and link
// entities resolve against the reference members created above.
func (b *builder) resolveLists() {
	for _, e := range b.model.entities {
		def := b.defs[e.name]
		for _, l := range def.Lists() {
			d := l.ListDescriptor()
			if _, ok := e.byName[d.Name]; ok {
				b.errorf("entity %s: duplicate member %q", e.name, d.Name)
				continue
			}
			target := b.model.byName[d.Target]
			if target == nil {
				b.errorf("entity %s: list %q targets unknown entity %q", e.name, d.Name, d.Target)
				continue
			}
			m := &MemberInfo{
				entity:  e,
				name:    d.Name,
				kind:    KindList,
				ordinal: -1,
			}
			rel := &RelationInfo{member: m, target: target}
			switch {
			case d.Link != "":
				rel.typ = ManyToMany
				link := b.model.byName[d.Link]
				if link == nil {
					b.errorf("entity %s: list %q uses unknown link entity %q", e.name, d.Name, d.Link)
					continue
				}
				rel.link = link
				rel.linkFrom = b.refMember(link, d.LinkFrom, e)
				rel.linkTo = b.refMember(link, d.LinkTo, target)
				if rel.linkFrom == nil || rel.linkTo == nil {
					b.errorf("entity %s: list %q link entity %s must reference both sides", e.name, d.Name, d.Link)
					continue
				}
			default:
				rel.typ = OneToMany
				back := b.backRef(target, d.RefName, e)
				if back == nil {
					b.errorf("entity %s: list %q has no back reference on %s", e.name, d.Name, d.Target)
					continue
				}
				rel.backRef = back
			}
			m.relation = rel
			e.members = append(e.members, m)
			e.byName[d.Name] = m
		}
	}
}

// refMember resolves a named reference member on the link entity and
// verifies it points at the wanted target.
func (b *builder) refMember(link *EntityInfo, name string, target *EntityInfo) *MemberInfo {
	m := link.byName[name]
	if m == nil || m.kind != KindRef || m.reference.target != target {
		return nil
	}
	return m
}

// backRef finds the reference member on target pointing back at owner.
// With an explicit name only that member qualifies; otherwise the
// reference must be unambiguous.
func (b *builder) backRef(target *EntityInfo, name string, owner *EntityInfo) *MemberInfo {
	if name != "" {
		m := target.byName[name]
		if m == nil || m.kind != KindRef || m.reference.target != owner {
			return nil
		}
		return m
	}
	var found *MemberInfo
	for _, m := range target.members {
		if m.kind == KindRef && m.reference.target == owner {
			if found != nil {
				return nil // ambiguous, caller reports
			}
			found = m
		}
	}
	return found
}

// seedKeys builds the primary key and declared indexes of every entity
// and parses member-list specifications. Reference target keys resolve
// here as well, since all keys now exist.
func (b *builder) seedKeys() {
	for _, e := range b.model.entities {
		def := b.defs[e.name]
		b.seedPrimaryKey(e, def)
		var indexes []strata.Index
		for _, mx := range def.Mixin() {
			indexes = append(indexes, mx.Indexes()...)
		}
		indexes = append(indexes, def.Indexes()...)
		for _, ix := range indexes {
			d := ix.Descriptor()
			e.keys = append(e.keys, &KeyInfo{
				entity:       e,
				typ:          KeyIndex,
				unique:       d.Unique,
				clustered:    d.Clustered,
				spec:         d.Members,
				includeSpec:  d.Include,
				explicitName: d.StorageKey,
			})
		}
	}
	// Parse specifications and resolve reference targets.
	for _, e := range b.model.entities {
		for _, k := range e.keys {
			if k.spec != "" {
				members, err := parseMemberSpec(k.spec)
				if err != nil {
					b.errorf("entity %s: key %s: %w", e.name, k.display(), err)
					k.failed = true
					continue
				}
				k.members = members
			}
			if k.typ == KeyForeign {
				b.resolveToKey(k)
			}
		}
	}
}

// seedPrimaryKey creates the primary key from an explicit member-list
// specification or from columns flagged PrimaryKey.
func (b *builder) seedPrimaryKey(e *EntityInfo, def strata.Interface) {
	pk := &KeyInfo{entity: e, typ: KeyPrimary, unique: true}
	if p, ok := def.(strata.PrimaryKeyer); ok {
		pk.spec = p.PrimaryKey()
	}
	if pk.spec == "" {
		for _, c := range e.columns {
			if c.Is(FlagPrimaryKey) {
				pk.members = append(pk.members, &KeyMember{member: c, name: c.name})
			}
		}
	}
	if pk.spec == "" && len(pk.members) == 0 {
		if !e.view {
			b.errorf("entity %s: primary key has zero members", e.name)
		}
		return
	}
	if e.view {
		b.errorf("entity %s: views cannot declare a primary key", e.name)
		return
	}
	e.pk = pk
	e.keys = append([]*KeyInfo{pk}, e.keys...)
}

// resolveToKey binds a foreign key to the target key it references.
func (b *builder) resolveToKey(k *KeyInfo) {
	r := k.reference
	switch {
	case r.toName == "":
		if r.target.pk == nil {
			b.errorf("entity %s: reference %q targets %s, which has no primary key",
				k.entity.name, r.member.name, r.target.name)
			k.failed = true
			return
		}
		r.toKey = r.target.pk
	default:
		for _, tk := range r.target.keys {
			if tk.explicitName == r.toName && tk.Unique() {
				r.toKey = tk
				break
			}
		}
		if r.toKey == nil {
			b.errorf("entity %s: reference %q targets unknown unique key %q on %s",
				k.entity.name, r.member.name, r.toName, r.target.name)
			k.failed = true
		}
	}
}

// parseMemberSpec parses the "a,b:desc" member-list syntax into
// ordered (name, descending) pairs.
func parseMemberSpec(spec string) ([]*KeyMember, error) {
	var members []*KeyMember
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty member in specification %q", spec)
		}
		km := &KeyMember{}
		if name, order, ok := strings.Cut(part, ":"); ok {
			switch strings.ToLower(strings.TrimSpace(order)) {
			case "desc":
				km.descending = true
			case "asc":
			default:
				return nil, fmt.Errorf("invalid sort order %q in specification %q", order, spec)
			}
			part = strings.TrimSpace(name)
		}
		km.name = part
		members = append(members, km)
	}
	return members, nil
}

// finalize computes entity flags and freezes the model.
func (b *builder) finalize() {
	for _, e := range b.model.entities {
		for _, c := range e.columns {
			if c.Is(FlagRowVersion) {
				if e.rowVersion != nil {
					b.errorf("entity %s: multiple row-version columns (%s, %s)", e.name, e.rowVersion.name, c.name)
					continue
				}
				e.rowVersion = c
			}
		}
		if e.pk != nil && e.pk.status == Expanded {
			for _, km := range e.pk.expanded {
				if km.member.Is(FlagIdentity) {
					e.hasIdentity = true
				}
			}
		}
	}
}

// definitionName derives the entity name from the definition type.
func definitionName(def strata.Interface) string {
	if n, ok := def.(strata.Namer); ok {
		return n.Name()
	}
	t := reflect.TypeOf(def)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}
