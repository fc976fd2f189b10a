// Package mixin provides reusable entity definition fragments.
//
// A mixin contributes fields and indexes to every entity that lists it:
//
//	func (Order) Mixin() []strata.Mixin {
//	    return []strata.Mixin{
//	        mixin.Time{},
//	    }
//	}
package mixin

import (
	"time"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/schema/field"
)

// Schema is the default implementation of strata.Mixin. Embed it in
// custom mixins and override the methods that apply.
type Schema struct{}

// Fields of the mixin. The default is none.
func (Schema) Fields() []strata.Field { return nil }

// Indexes of the mixin. The default is none.
func (Schema) Indexes() []strata.Index { return nil }

// Time adds created_at and updated_at audit columns. Both values are
// auto values maintained by the save pipeline, so oversized or missing
// input never fails validation for them.
type Time struct {
	Schema
}

// Fields of the Time mixin.
func (Time) Fields() []strata.Field {
	return []strata.Field{
		field.Time("created_at").
			Default(time.Now).
			NoUpdate(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}
