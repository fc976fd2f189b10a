// Package ref provides fluent builders for declaring relations between
// entities: single references and one-to-many / many-to-many lists.
//
// A reference member contributes synthesized foreign-key columns to its
// entity, one per expanded column of the referenced key:
//
//	ref.To("customer", "Customer")           // columns customer_<pk...>
//	ref.To("parent", "Category").Nillable()  // nullable self reference
//
// A list member describes the inverse side:
//
//	ref.List("orders", "Order").Ref("customer")
//	ref.M2M("tags", "Tag").Through("ProductTag", "product", "tag")
package ref

// Action controls what happens to referencing rows when the referenced
// row is deleted.
type Action uint8

// Referential actions.
const (
	// NoAction blocks the delete while referencing rows exist.
	NoAction Action = iota
	// Cascade deletes referencing rows together with the referenced row.
	Cascade
	// SetNull clears the foreign-key columns of referencing rows.
	SetNull
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case Cascade:
		return "cascade"
	case SetNull:
		return "set null"
	default:
		return "no action"
	}
}

// A Descriptor holds the parsed declaration of one reference member.
// It is consumed by the model builder and should not be used directly.
type Descriptor struct {
	Name     string   // member name, also the prefix of synthesized columns
	Target   string   // referenced entity name
	ToKey    string   // referenced key name; empty means the primary key
	Columns  []string // explicit names for the synthesized columns
	Nillable bool     // reference may be absent; FK columns become nullable
	OnDelete Action   // referential action for incoming-delete checks
	Unique   bool     // at most one referencing row per referenced row
	Comment  string
}

// A ListDescriptor holds the parsed declaration of one relation-list
// member, the inverse side of a reference.
type ListDescriptor struct {
	Name    string // member name
	Target  string // related entity name
	RefName string // name of the reference member on the target (one-to-many)
	// Many-to-many settings. Link is the link entity; LinkFrom and
	// LinkTo are its two reference members, pointing back at the
	// declaring entity and at Target respectively.
	Link     string
	LinkFrom string
	LinkTo   string
	Comment  string
}

// Builder configures a reference member.
type Builder struct {
	desc *Descriptor
}

// To returns a builder for a reference member pointing at the target
// entity's primary key.
func To(name, target string) *Builder {
	return &Builder{desc: &Descriptor{Name: name, Target: target}}
}

// Key points the reference at a named unique key of the target instead
// of its primary key.
func (b *Builder) Key(name string) *Builder {
	b.desc.ToKey = name
	return b
}

// Columns overrides the synthesized foreign-key column names. The
// count must match the expanded column count of the referenced key;
// a mismatch is a schema build error.
func (b *Builder) Columns(names ...string) *Builder {
	b.desc.Columns = names
	return b
}

// Nillable makes the reference optional; the synthesized foreign-key
// columns become nullable.
func (b *Builder) Nillable() *Builder {
	b.desc.Nillable = true
	return b
}

// OnDelete sets the referential action applied when the referenced row
// is deleted. The default, NoAction, makes incoming references block
// deletion (see Session.CanDelete).
func (b *Builder) OnDelete(a Action) *Builder {
	b.desc.OnDelete = a
	return b
}

// Unique constrains the relation to one referencing row per referenced
// row (a one-to-one relation).
func (b *Builder) Unique() *Builder {
	b.desc.Unique = true
	return b
}

// Comment sets the member comment.
func (b *Builder) Comment(c string) *Builder {
	b.desc.Comment = c
	return b
}

// Descriptor implements the strata.Ref interface.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}

// ListBuilder configures a relation-list member.
type ListBuilder struct {
	desc *ListDescriptor
}

// List returns a builder for a one-to-many list of target rows.
func List(name, target string) *ListBuilder {
	return &ListBuilder{desc: &ListDescriptor{Name: name, Target: target}}
}

// M2M returns a builder for a many-to-many list of target rows. The
// link entity and its two reference members are set with Through.
func M2M(name, target string) *ListBuilder {
	return &ListBuilder{desc: &ListDescriptor{Name: name, Target: target}}
}

// Ref names the reference member on the target entity that points back
// at the declaring entity. Required for one-to-many lists when the
// target declares more than one reference to the declaring entity.
func (b *ListBuilder) Ref(name string) *ListBuilder {
	b.desc.RefName = name
	return b
}

// Through makes the list many-to-many via the given link entity. The
// from and to arguments name the link entity's reference members
// pointing at the declaring and the target entity respectively.
func (b *ListBuilder) Through(link, from, to string) *ListBuilder {
	b.desc.Link = link
	b.desc.LinkFrom = from
	b.desc.LinkTo = to
	return b
}

// Comment sets the member comment.
func (b *ListBuilder) Comment(c string) *ListBuilder {
	b.desc.Comment = c
	return b
}

// ListDescriptor implements the strata.List interface.
func (b *ListBuilder) ListDescriptor() *ListDescriptor {
	return b.desc
}
