// Package schema provides the base type for entity definitions.
//
// An entity definition is a struct embedding Schema that overrides the
// declaration methods it needs:
//
//	type Order struct {
//	    schema.Schema
//	}
//
//	func (Order) Fields() []strata.Field {
//	    return []strata.Field{
//	        field.Int64("id").Identity(),
//	        field.Float64("total"),
//	        field.RowVersion("row_version"),
//	    }
//	}
//
//	func (Order) Refs() []strata.Ref {
//	    return []strata.Ref{
//	        ref.To("customer", "Customer"),
//	    }
//	}
//
// The entity name is the definition's type name; the table name is its
// pluralized snake-case form unless the definition implements
// strata.Tabler.
package schema

import "github.com/strataorm/strata"

// Schema is the default implementation of strata.Interface. Embed it
// in every entity definition and override the relevant methods.
type Schema struct{}

// Type is a marker method identifying entity definitions.
func (Schema) Type() {}

// Fields of the entity. The default is no columns.
func (Schema) Fields() []strata.Field { return nil }

// Refs of the entity. The default is no references.
func (Schema) Refs() []strata.Ref { return nil }

// Lists of the entity. The default is no relation lists.
func (Schema) Lists() []strata.List { return nil }

// Indexes of the entity. The default is no secondary keys.
func (Schema) Indexes() []strata.Index { return nil }

// Mixin fragments of the entity. The default is none.
func (Schema) Mixin() []strata.Mixin { return nil }

// View is the default implementation for read-only view definitions.
// Views have no primary key and reject session mutations.
type View struct {
	Schema
}

// View reports that the definition maps a database view.
func (View) View() bool { return true }
