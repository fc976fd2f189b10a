// Package index provides fluent builders for declaring secondary keys.
//
// Index members use the key member-list syntax: names separated by
// commas, with an optional `:desc` ordering suffix per member. Members
// may be plain columns or reference members; references expand to
// their synthesized foreign-key columns at model build time.
//
//	index.Members("customer,placed_at:desc").Unique()
//	index.Fields("email").Unique()
//	index.Fields("status").Include("total")
package index

import "strings"

// A Descriptor holds the parsed declaration of one index.
// It is consumed by the model builder and should not be used directly.
type Descriptor struct {
	Members    string   // member-list specification ("a,b:desc")
	Unique     bool     // unique index
	Clustered  bool     // clustered index
	Include    []string // non-key members carried by the index
	StorageKey string   // explicit index name; empty means synthesized
}

// Builder configures an index.
type Builder struct {
	desc *Descriptor
}

// Members returns an index builder from a member-list specification.
func Members(spec string) *Builder {
	return &Builder{desc: &Descriptor{Members: spec}}
}

// Fields returns an index builder over the given members in ascending
// order. It is shorthand for Members(strings.Join(names, ",")).
func Fields(names ...string) *Builder {
	return Members(strings.Join(names, ","))
}

// Unique makes the index a unique key.
func (b *Builder) Unique() *Builder {
	b.desc.Unique = true
	return b
}

// Clustered makes the index the clustered key of the table.
func (b *Builder) Clustered() *Builder {
	b.desc.Clustered = true
	return b
}

// Include adds non-key members to the index leaf level. Reference
// members expand to their foreign-key columns.
func (b *Builder) Include(names ...string) *Builder {
	b.desc.Include = append(b.desc.Include, names...)
	return b
}

// StorageKey sets an explicit index name, overriding the synthesized
// IX_/IXU_/IXC_ name.
func (b *Builder) StorageKey(name string) *Builder {
	b.desc.StorageKey = name
	return b
}

// Descriptor implements the strata.Index interface.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}
