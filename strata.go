// Package strata provides a declarative schema engine and a unit-of-work
// session for relational databases.
//
// A schema is declared as a set of entity definitions (see the schema
// subpackages), resolved by the model package into a flat relational
// graph with fully expanded keys, and consumed by the session package,
// which tracks and persists record changes with optimistic concurrency.
package strata

import (
	"github.com/strataorm/strata/schema/field"
	"github.com/strataorm/strata/schema/index"
	"github.com/strataorm/strata/schema/ref"
)

type (
	// Interface is implemented by all entity definitions. Use schema.Schema
	// as an embedded base and override the methods that apply:
	//
	//	type Order struct {
	//	    schema.Schema
	//	}
	//
	//	func (Order) Fields() []strata.Field {
	//	    return []strata.Field{
	//	        field.Int64("id").Identity(),
	//	        field.Float64("total"),
	//	    }
	//	}
	Interface interface {
		// Type is a marker method for identifying entity definitions.
		Type()
		// Fields returns the column members of the entity.
		Fields() []Field
		// Refs returns the entity-reference members of the entity.
		Refs() []Ref
		// Lists returns the relation-list members of the entity.
		Lists() []List
		// Indexes returns the secondary keys of the entity.
		Indexes() []Index
		// Mixin returns reusable definition fragments merged into the entity.
		Mixin() []Mixin
	}

	// Field is a column member declaration.
	Field interface {
		Descriptor() *field.Descriptor
	}

	// Ref is an entity-reference member declaration. A reference
	// contributes synthesized foreign-key columns to its entity.
	Ref interface {
		Descriptor() *ref.Descriptor
	}

	// List is a one-to-many or many-to-many relation member declaration.
	List interface {
		ListDescriptor() *ref.ListDescriptor
	}

	// Index is a secondary-key declaration.
	Index interface {
		Descriptor() *index.Descriptor
	}

	// Mixin is a reusable fragment of an entity definition.
	Mixin interface {
		Fields() []Field
		Indexes() []Index
	}
)

// Namer is implemented by entity definitions whose name does not come
// from their Go type, such as definitions loaded from documents.
type Namer interface {
	Name() string
}

// Viewer is implemented by entity definitions that map read-only views.
// Views have no primary key and cannot be created or deleted in a session.
type Viewer interface {
	View() bool
}

// Tabler is implemented by entity definitions that override the
// default (pluralized, snake-case) table name.
type Tabler interface {
	Table() string
}

// PrimaryKeyer is implemented by entity definitions with an explicit
// primary key member list. The spec uses the `"a,b:desc"` syntax, and
// members may be references as well as plain columns. Entities without
// this method use the single field flagged with Identity or PrimaryKey.
type PrimaryKeyer interface {
	PrimaryKey() string
}

// Operations reported in conflict tags and hook callbacks.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)
