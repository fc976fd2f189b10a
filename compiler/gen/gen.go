// Package gen emits typed accessors over the dynamic session records:
// one Go struct per entity, with column getters and setters that fix
// the member names and value types at compile time.
package gen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dave/jennifer/jen"
	"github.com/go-openapi/inflect"

	"github.com/strataorm/strata/model"
	"github.com/strataorm/strata/schema/field"
)

const (
	sessionPkg = "github.com/strataorm/strata/session"
	uuidPkg    = "github.com/google/uuid"
)

// Config controls the output of Generate.
type Config struct {
	// Package is the generated package name.
	Package string
	// Dir is the output directory; one file per entity.
	Dir string
	// Header is prepended to every file as a comment.
	Header string
}

// Generate writes typed wrappers for every non-view entity of the
// model into cfg.Dir.
func Generate(m *model.Model, cfg Config) error {
	if cfg.Package == "" {
		cfg.Package = filepath.Base(cfg.Dir)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return err
	}
	for _, e := range m.Entities() {
		f, err := entityFile(e, cfg)
		if err != nil {
			return err
		}
		path := filepath.Join(cfg.Dir, inflect.Underscore(e.Name())+".go")
		if err := f.Save(path); err != nil {
			return fmt.Errorf("gen: write %s: %w", path, err)
		}
	}
	return nil
}

// entityFile builds the source file for one entity.
func entityFile(e *model.EntityInfo, cfg Config) (*jen.File, error) {
	f := jen.NewFile(cfg.Package)
	if cfg.Header != "" {
		f.HeaderComment(cfg.Header)
	}
	f.HeaderComment("Code generated by strata gen. DO NOT EDIT.")

	name := exported(e.Name())
	f.Commentf("%s wraps one %s record with typed member access.", name, e.Name())
	f.Type().Id(name).Struct(
		jen.Id("r").Op("*").Qual(sessionPkg, "Record"),
	)

	if !e.IsView() {
		f.Commentf("New%s creates a %s in the session.", name, e.Name())
		f.Func().Id("New"+name).Params(
			jen.Id("s").Op("*").Qual(sessionPkg, "Session"),
		).Params(jen.Op("*").Id(name), jen.Error()).Block(
			jen.List(jen.Id("r"), jen.Err()).Op(":=").Id("s").Dot("New").Call(jen.Lit(e.Name())),
			jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
			jen.Return(jen.Op("&").Id(name).Values(jen.Id("r").Op(":").Id("r")), jen.Nil()),
		)
	}

	f.Commentf("As%s wraps an existing %s record.", name, e.Name())
	f.Func().Id("As"+name).Params(
		jen.Id("r").Op("*").Qual(sessionPkg, "Record"),
	).Params(jen.Op("*").Id(name), jen.Error()).Block(
		jen.If(jen.Id("r").Dot("Entity").Call().Dot("Name").Call().Op("!=").Lit(e.Name())).Block(
			jen.Return(jen.Nil(), jen.Qual("fmt", "Errorf").Call(
				jen.Lit("expected a "+e.Name()+" record, got %s"),
				jen.Id("r").Dot("Entity").Call().Dot("Name").Call(),
			)),
		),
		jen.Return(jen.Op("&").Id(name).Values(jen.Id("r").Op(":").Id("r")), jen.Nil()),
	)

	f.Comment("Record returns the underlying session record.")
	f.Func().Params(jen.Id("e").Op("*").Id(name)).Id("Record").Params().Op("*").Qual(sessionPkg, "Record").Block(
		jen.Return(jen.Id("e").Dot("r")),
	)

	for _, c := range e.Columns() {
		if c.Synthetic() {
			continue // foreign keys are reached through their reference
		}
		if err := columnAccessors(f, name, c, e.IsView()); err != nil {
			return nil, err
		}
	}
	for _, m := range e.Refs() {
		refAccessors(f, name, m)
	}
	return f, nil
}

// columnAccessors emits the typed getter and setter of one column.
func columnAccessors(f *jen.File, entity string, c *model.MemberInfo, readOnly bool) error {
	typ, err := goType(c)
	if err != nil {
		return fmt.Errorf("gen: %s.%s: %w", entity, c.Name(), err)
	}
	getter := exported(c.Name())

	f.Commentf("%s returns the %s column.", getter, c.Name())
	f.Func().Params(jen.Id("e").Op("*").Id(entity)).Id(getter).Params().Params(typ, jen.Error()).BlockFunc(func(g *jen.Group) {
		g.List(jen.Id("v"), jen.Err()).Op(":=").Id("e").Dot("r").Dot("Value").Call(jen.Lit(c.Name()))
		g.If(jen.Err().Op("!=").Nil().Op("||").Id("v").Op("==").Nil()).Block(
			jen.Var().Id("zero").Add(typ),
			jen.Return(jen.Id("zero"), jen.Err()),
		)
		g.List(jen.Id("t"), jen.Id("ok")).Op(":=").Id("v").Assert(typ)
		g.If(jen.Op("!").Id("ok")).Block(
			jen.Var().Id("zero").Add(typ),
			jen.Return(jen.Id("zero"), jen.Qual("fmt", "Errorf").Call(
				jen.Lit(c.Name()+" holds %T, not "+typeName(c)), jen.Id("v"),
			)),
		)
		g.Return(jen.Id("t"), jen.Nil())
	})

	if readOnly || c.Is(model.FlagRowVersion) || c.Is(model.FlagAutoValue) && c.Is(model.FlagNoUpdate) {
		return nil // backend-owned columns get no setter
	}
	f.Commentf("Set%s assigns the %s column.", getter, c.Name())
	f.Func().Params(jen.Id("e").Op("*").Id(entity)).Id("Set"+getter).Params(jen.Id("v").Add(typ)).Error().Block(
		jen.Return(jen.Id("e").Dot("r").Dot("Set").Call(jen.Lit(c.Name()), jen.Id("v"))),
	)
	return nil
}

// refAccessors emits getter and setter over one reference member in
// terms of raw records; the caller wraps the result with As<Entity>.
func refAccessors(f *jen.File, entity string, m *model.MemberInfo) {
	getter := exported(m.Name())
	f.Commentf("%s resolves the %s reference.", getter, m.Name())
	f.Func().Params(jen.Id("e").Op("*").Id(entity)).Id(getter).Params().Params(
		jen.Op("*").Qual(sessionPkg, "Record"), jen.Error(),
	).Block(
		jen.Return(jen.Id("e").Dot("r").Dot("Ref").Call(jen.Lit(m.Name()))),
	)
	f.Commentf("Set%s assigns the %s reference.", getter, m.Name())
	f.Func().Params(jen.Id("e").Op("*").Id(entity)).Id("Set"+getter).Params(
		jen.Id("target").Op("*").Qual(sessionPkg, "Record"),
	).Error().Block(
		jen.Return(jen.Id("e").Dot("r").Dot("SetRef").Call(jen.Lit(m.Name()), jen.Id("target"))),
	)
}

// goType maps a column's semantic type to its Go representation.
func goType(c *model.MemberInfo) (jen.Code, error) {
	var t jen.Code
	switch c.Type() {
	case field.TypeBool:
		t = jen.Bool()
	case field.TypeInt16:
		t = jen.Int16()
	case field.TypeInt32:
		t = jen.Int32()
	case field.TypeInt64:
		t = jen.Int64()
	case field.TypeFloat64:
		t = jen.Float64()
	case field.TypeDecimal, field.TypeString, field.TypeText:
		t = jen.String()
	case field.TypeBytes:
		t = jen.Index().Byte()
	case field.TypeTime:
		t = jen.Qual("time", "Time")
	case field.TypeUUID:
		t = jen.Qual(uuidPkg, "UUID")
	default:
		return nil, fmt.Errorf("unsupported type %s", c.Type())
	}
	return t, nil
}

func typeName(c *model.MemberInfo) string {
	return c.Type().String()
}

// exported converts a member name to an exported Go identifier.
func exported(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	for i, p := range parts {
		parts[i] = inflect.Capitalize(p)
	}
	return strings.Join(parts, "")
}
