// Package model resolves declared entity definitions into an immutable
// relational graph: entities, members, and fully expanded keys.
//
// Build consumes the declarative descriptors (schema subpackages) and
// runs the key-expansion pass, synthesizing foreign-key columns for
// reference members and flattening every key to concrete columns. The
// resulting Model is immutable and safe for concurrent use.
package model

import (
	"fmt"

	"github.com/strataorm/strata/schema/field"
	"github.com/strataorm/strata/schema/ref"
)

// Kind is the member kind: a concrete column, a reference to another
// entity, or a list of related entities.
type Kind uint8

// Member kinds.
const (
	KindColumn Kind = iota
	KindRef
	KindList
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindColumn:
		return "column"
	case KindRef:
		return "ref"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// RelationType is the cardinality of a list member.
type RelationType uint8

// Relation types.
const (
	OneToMany RelationType = iota
	ManyToMany
)

// String returns the relation type name.
func (r RelationType) String() string {
	if r == ManyToMany {
		return "many-to-many"
	}
	return "one-to-many"
}

// Flags carry column behavior bits.
type Flags uint16

// Column flags.
const (
	FlagIdentity Flags = 1 << iota
	FlagPrimaryKey
	FlagForeignKey
	FlagRowVersion
	FlagAutoValue
	FlagNoInsert
	FlagNoUpdate
)

// Model is the resolved, immutable schema graph.
type Model struct {
	entities []*EntityInfo
	byName   map[string]*EntityInfo
}

// Entities returns all entities in declaration order.
func (m *Model) Entities() []*EntityInfo { return m.entities }

// Entity returns the entity with the given name, or nil.
func (m *Model) Entity(name string) *EntityInfo { return m.byName[name] }

// EntityInfo describes one mapped table or view. It is created once at
// model build time and immutable afterwards.
type EntityInfo struct {
	name    string
	table   string
	view    bool
	members []*MemberInfo
	byName  map[string]*MemberInfo
	columns []*MemberInfo
	keys    []*KeyInfo
	pk      *KeyInfo

	hasIdentity        bool
	referencesIdentity bool
	rowVersion         *MemberInfo
}

// Name returns the entity name.
func (e *EntityInfo) Name() string { return e.name }

// Table returns the mapped table name.
func (e *EntityInfo) Table() string { return e.table }

// IsView reports whether the entity maps a read-only view.
func (e *EntityInfo) IsView() bool { return e.view }

// Members returns all members in declaration order, synthesized
// foreign-key columns last.
func (e *EntityInfo) Members() []*MemberInfo { return e.members }

// Member returns the member with the given name, or nil.
func (e *EntityInfo) Member(name string) *MemberInfo { return e.byName[name] }

// Columns returns the concrete column members in ordinal order. The
// ordinal is the index into a record's values array.
func (e *EntityInfo) Columns() []*MemberInfo { return e.columns }

// Keys returns all keys of the entity, the primary key first.
func (e *EntityInfo) Keys() []*KeyInfo { return e.keys }

// PrimaryKey returns the primary key, or nil for views.
func (e *EntityInfo) PrimaryKey() *KeyInfo { return e.pk }

// HasIdentity reports whether the primary key contains a
// backend-generated identity column.
func (e *EntityInfo) HasIdentity() bool { return e.hasIdentity }

// ReferencesIdentity reports whether any foreign key of the entity
// mirrors an identity column of another entity.
func (e *EntityInfo) ReferencesIdentity() bool { return e.referencesIdentity }

// HasRowVersion reports whether the entity carries a row-version
// column and therefore participates in optimistic concurrency.
func (e *EntityInfo) HasRowVersion() bool { return e.rowVersion != nil }

// RowVersion returns the row-version member, or nil.
func (e *EntityInfo) RowVersion() *MemberInfo { return e.rowVersion }

// refs returns the reference members of the entity.
func (e *EntityInfo) Refs() []*MemberInfo {
	var refs []*MemberInfo
	for _, m := range e.members {
		if m.kind == KindRef {
			refs = append(refs, m)
		}
	}
	return refs
}

// Lists returns the relation-list members of the entity.
func (e *EntityInfo) Lists() []*MemberInfo {
	var lists []*MemberInfo
	for _, m := range e.members {
		if m.kind == KindList {
			lists = append(lists, m)
		}
	}
	return lists
}

// MemberInfo describes one named slot on an entity.
type MemberInfo struct {
	entity  *EntityInfo
	name    string
	kind    Kind
	ordinal int // column ordinal; -1 for refs and lists

	// Column members.
	typ       field.Type
	nullable  bool
	size      int
	flags     Flags
	def       any
	updateDef any
	synthetic bool // created by foreign-key expansion

	// Reference and list members.
	reference *ReferenceInfo
	relation  *RelationInfo
}

// Entity returns the owning entity.
func (m *MemberInfo) Entity() *EntityInfo { return m.entity }

// Name returns the member name. For columns this is the column name.
func (m *MemberInfo) Name() string { return m.name }

// Kind returns the member kind.
func (m *MemberInfo) Kind() Kind { return m.kind }

// Ordinal returns the column ordinal, the index into a record's values
// array. It is -1 for reference and list members.
func (m *MemberInfo) Ordinal() int { return m.ordinal }

// Type returns the semantic column type (columns only).
func (m *MemberInfo) Type() field.Type { return m.typ }

// Nullable reports whether the column accepts null, or whether the
// reference is optional.
func (m *MemberInfo) Nullable() bool { return m.nullable }

// Size returns the declared size limit, 0 if unbounded.
func (m *MemberInfo) Size() int { return m.size }

// Is reports whether all given flags are set on the column.
func (m *MemberInfo) Is(f Flags) bool { return m.flags&f == f }

// Synthetic reports whether the column was synthesized by foreign-key
// expansion rather than declared explicitly.
func (m *MemberInfo) Synthetic() bool { return m.synthetic }

// Default returns the declared creation default (value or func), or nil.
func (m *MemberInfo) Default() any { return m.def }

// UpdateDefault returns the declared update default, or nil.
func (m *MemberInfo) UpdateDefault() any { return m.updateDef }

// Reference returns the reference info of a KindRef member, or nil.
func (m *MemberInfo) Reference() *ReferenceInfo { return m.reference }

// Relation returns the relation info of a KindList member, or nil.
func (m *MemberInfo) Relation() *RelationInfo { return m.relation }

// ReferenceInfo ties a reference member to its target key and to the
// foreign key synthesized on the owning entity.
type ReferenceInfo struct {
	member   *MemberInfo
	target   *EntityInfo
	toName   string // declared target-key name; empty means primary key
	toKey    *KeyInfo
	fromKey  *KeyInfo
	columns  []string // explicit synthesized-column names, if declared
	onDelete ref.Action
	unique   bool
}

// Member returns the declaring reference member.
func (r *ReferenceInfo) Member() *MemberInfo { return r.member }

// Target returns the referenced entity.
func (r *ReferenceInfo) Target() *EntityInfo { return r.target }

// ToKey returns the referenced key, usually the target's primary key.
func (r *ReferenceInfo) ToKey() *KeyInfo { return r.toKey }

// FromKey returns the foreign key synthesized on the declaring entity.
// It is nil until key expansion assigns it.
func (r *ReferenceInfo) FromKey() *KeyInfo { return r.fromKey }

// OnDelete returns the referential action of the reference.
func (r *ReferenceInfo) OnDelete() ref.Action { return r.onDelete }

// Unique reports whether the relation allows at most one referencing
// row per referenced row.
func (r *ReferenceInfo) Unique() bool { return r.unique }

// RelationInfo describes a one-to-many or many-to-many list member.
type RelationInfo struct {
	member  *MemberInfo
	target  *EntityInfo
	typ     RelationType
	backRef *MemberInfo // reference member on target (one-to-many)

	// Many-to-many link entity and its two reference members.
	link     *EntityInfo
	linkFrom *MemberInfo
	linkTo   *MemberInfo
}

// Member returns the declaring list member.
func (r *RelationInfo) Member() *MemberInfo { return r.member }

// Target returns the related entity.
func (r *RelationInfo) Target() *EntityInfo { return r.target }

// Type returns the relation cardinality.
func (r *RelationInfo) Type() RelationType { return r.typ }

// BackRef returns the reference member on the target entity pointing
// back at the declaring entity (one-to-many only).
func (r *RelationInfo) BackRef() *MemberInfo { return r.backRef }

// Link returns the many-to-many link entity, or nil.
func (r *RelationInfo) Link() *EntityInfo { return r.link }

// LinkFrom returns the link entity's reference to the declaring entity.
func (r *RelationInfo) LinkFrom() *MemberInfo { return r.linkFrom }

// LinkTo returns the link entity's reference to the target entity.
func (r *RelationInfo) LinkTo() *MemberInfo { return r.linkTo }
