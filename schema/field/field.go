// Package field provides fluent builders for declaring entity columns.
//
// Column names follow database conventions (snake_case):
//
//	field.Int64("id").Identity()
//	field.String("email").Size(120)
//	field.Time("placed_at")
//
// Columns carry a semantic type; the mapping to vendor column types is
// owned by the dialect packages. Nullability is declared with Nillable,
// and persistence behavior with the Identity, RowVersion, AutoValue,
// NoInsert and NoUpdate flags.
package field

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// A Type represents a semantic column type.
type Type uint8

// List of semantic column types.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat64
	TypeDecimal
	TypeString
	TypeText
	TypeBytes
	TypeTime
	TypeUUID
	endTypes
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeBool:    "bool",
	TypeInt16:   "int16",
	TypeInt32:   "int32",
	TypeInt64:   "int64",
	TypeFloat64: "float64",
	TypeDecimal: "decimal",
	TypeString:  "string",
	TypeText:    "text",
	TypeBytes:   "bytes",
	TypeTime:    "time",
	TypeUUID:    "uuid",
}

// String returns the type name.
func (t Type) String() string {
	if t < endTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("invalid(%d)", t)
}

// Valid reports if the given type is a valid semantic type.
func (t Type) Valid() bool { return t > TypeInvalid && t < endTypes }

// Numeric reports if the given type is a numeric type.
func (t Type) Numeric() bool {
	switch t {
	case TypeInt16, TypeInt32, TypeInt64, TypeFloat64, TypeDecimal:
		return true
	}
	return false
}

// Sized reports if the given type carries a size limit (variable-length
// string or binary columns).
func (t Type) Sized() bool { return t == TypeString || t == TypeBytes }

// A Descriptor holds the parsed declaration of one column member.
// It is consumed by the model builder and should not be used directly.
type Descriptor struct {
	Name          string // column name
	Type          Type   // semantic type
	Nillable      bool   // nullable in the database
	Size          int    // size limit for sized types (0 = unbounded)
	Unique        bool   // single-column unique index
	Identity      bool   // backend-generated identity value
	PrimaryKey    bool   // part of the primary key
	RowVersion    bool   // optimistic-concurrency version column
	AutoValue     bool   // value generated on write (identity, versions, defaults)
	NoInsert      bool   // excluded from INSERT statements
	NoUpdate      bool   // excluded from UPDATE statements
	Default       any    // default value, or a func() T producing one
	UpdateDefault any    // value applied on every update, usually a func
	Comment       string // column comment
	Err           error  // first configuration error, reported at build time
}

// Builder is the base builder shared by all column types. Concrete
// constructors return it with the semantic type preset.
type Builder struct {
	desc *Descriptor
}

// New returns a column builder with an explicit semantic type. The
// typed constructors below are preferred; New exists for config-driven
// schema loaders that resolve types at runtime.
func New(name string, t Type) *Builder {
	b := &Builder{desc: &Descriptor{Name: name, Type: t}}
	if !t.Valid() {
		b.desc.Err = fmt.Errorf("field %s: invalid type %v", name, t)
	}
	return b
}

// Bool returns a new bool column.
func Bool(name string) *Builder { return New(name, TypeBool) }

// Int16 returns a new 16-bit integer column.
func Int16(name string) *Builder { return New(name, TypeInt16) }

// Int32 returns a new 32-bit integer column.
func Int32(name string) *Builder { return New(name, TypeInt32) }

// Int64 returns a new 64-bit integer column.
func Int64(name string) *Builder { return New(name, TypeInt64) }

// Float64 returns a new float column.
func Float64(name string) *Builder { return New(name, TypeFloat64) }

// Decimal returns a new fixed-precision decimal column.
func Decimal(name string) *Builder { return New(name, TypeDecimal) }

// String returns a new variable-length string column.
func String(name string) *Builder { return New(name, TypeString) }

// Text returns a new unbounded text column.
func Text(name string) *Builder { return New(name, TypeText) }

// Bytes returns a new binary column.
func Bytes(name string) *Builder { return New(name, TypeBytes) }

// Time returns a new timestamp column.
func Time(name string) *Builder { return New(name, TypeTime) }

// UUID returns a new UUID column. Client-assigned keys usually pair it
// with Default(uuid.New):
//
//	field.UUID("id").Default(uuid.New).PrimaryKey()
func UUID(name string) *Builder { return New(name, TypeUUID) }

// RowVersion returns the conventional row-version column: a backend
// maintained counter checked by optimistic-concurrency mutations.
func RowVersion(name string) *Builder {
	b := New(name, TypeInt64)
	b.desc.RowVersion = true
	b.desc.AutoValue = true
	b.desc.NoInsert = true
	b.desc.NoUpdate = true
	return b
}

// Nillable makes the column nullable in the database.
func (b *Builder) Nillable() *Builder {
	b.desc.Nillable = true
	return b
}

// Size limits the length of a string or bytes column.
func (b *Builder) Size(n int) *Builder {
	switch {
	case !b.desc.Type.Sized():
		b.setErr(fmt.Errorf("field %s: Size is not supported for %s columns", b.desc.Name, b.desc.Type))
	case n <= 0:
		b.setErr(fmt.Errorf("field %s: size must be positive", b.desc.Name))
	default:
		b.desc.Size = n
	}
	return b
}

// Unique adds a single-column unique index on the column.
func (b *Builder) Unique() *Builder {
	b.desc.Unique = true
	return b
}

// Identity marks the column as a backend-generated identity value and
// makes it part of the primary key. Identity values are auto values
// and are never written explicitly.
func (b *Builder) Identity() *Builder {
	if !b.desc.Type.Numeric() {
		b.setErr(fmt.Errorf("field %s: Identity requires a numeric type, got %s", b.desc.Name, b.desc.Type))
	}
	b.desc.Identity = true
	b.desc.PrimaryKey = true
	b.desc.AutoValue = true
	b.desc.NoInsert = true
	b.desc.NoUpdate = true
	return b
}

// PrimaryKey marks the column as part of the primary key.
func (b *Builder) PrimaryKey() *Builder {
	b.desc.PrimaryKey = true
	return b
}

// AutoValue marks the column value as generated on write. Oversized
// auto values are truncated silently instead of failing validation.
func (b *Builder) AutoValue() *Builder {
	b.desc.AutoValue = true
	return b
}

// NoInsert excludes the column from INSERT statements.
func (b *Builder) NoInsert() *Builder {
	b.desc.NoInsert = true
	return b
}

// NoUpdate excludes the column from UPDATE statements.
func (b *Builder) NoUpdate() *Builder {
	b.desc.NoUpdate = true
	return b
}

// Default sets the creation default of the column. The value may be a
// literal or a niladic function invoked per record:
//
//	field.Time("placed_at").Default(time.Now)
//	field.UUID("id").Default(uuid.New)
func (b *Builder) Default(v any) *Builder {
	if err := checkDefault(b.desc.Type, v); err != nil {
		b.setErr(fmt.Errorf("field %s: %w", b.desc.Name, err))
	}
	b.desc.Default = v
	return b
}

// UpdateDefault sets a value applied on every update, typically a
// function like time.Now for "updated_at" columns.
func (b *Builder) UpdateDefault(v any) *Builder {
	if err := checkDefault(b.desc.Type, v); err != nil {
		b.setErr(fmt.Errorf("field %s: %w", b.desc.Name, err))
	}
	b.desc.UpdateDefault = v
	b.desc.AutoValue = true
	return b
}

// Comment sets the column comment.
func (b *Builder) Comment(c string) *Builder {
	b.desc.Comment = c
	return b
}

// Descriptor implements the strata.Field interface.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}

func (b *Builder) setErr(err error) {
	if b.desc.Err == nil {
		b.desc.Err = err
	}
}

// ZeroValue returns the empty value for the semantic type, used when
// comparing against "missing" for validation.
func (t Type) ZeroValue() any {
	switch t {
	case TypeBool:
		return false
	case TypeInt16:
		return int16(0)
	case TypeInt32:
		return int32(0)
	case TypeInt64:
		return int64(0)
	case TypeFloat64:
		return float64(0)
	case TypeString, TypeText, TypeDecimal:
		return ""
	case TypeUUID:
		return uuid.Nil
	default:
		return nil
	}
}

// ErrInvalidDefault is wrapped by build errors for defaults whose type
// cannot be applied to the column.
var ErrInvalidDefault = errors.New("invalid default value")

// checkDefault validates a default declaration against the column's
// semantic type. Niladic single-result functions are invoked per
// record and pass unchecked; literals must fit the column.
func checkDefault(t Type, v any) error {
	if v == nil {
		return fmt.Errorf("%w: nil", ErrInvalidDefault)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Func {
		if rv.Type().NumIn() == 0 && rv.Type().NumOut() == 1 {
			return nil
		}
		return fmt.Errorf("%w: functions must take no arguments and return one value", ErrInvalidDefault)
	}
	if !literalFits(t, v, rv.Kind()) {
		return fmt.Errorf("%w: %T cannot be stored in a %s column", ErrInvalidDefault, v, t)
	}
	return nil
}

func literalFits(t Type, v any, k reflect.Kind) bool {
	switch t {
	case TypeBool:
		return k == reflect.Bool
	case TypeInt16, TypeInt32, TypeInt64:
		return numericKind(k) && k != reflect.Float32 && k != reflect.Float64
	case TypeFloat64:
		return numericKind(k)
	case TypeString, TypeText, TypeDecimal:
		return k == reflect.String
	case TypeBytes:
		_, ok := v.([]byte)
		return ok || k == reflect.String
	case TypeTime:
		_, ok := v.(time.Time)
		return ok
	case TypeUUID:
		if _, ok := v.(uuid.UUID); ok {
			return true
		}
		return k == reflect.String
	}
	return true
}

func numericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
