// Package load reads schema definitions from YAML documents and turns
// them into the descriptor form the model builder consumes. It exists
// for projects that keep their schema outside Go source; schemas
// declared with the builder DSL skip it entirely.
package load

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/schema/field"
	"github.com/strataorm/strata/schema/index"
	"github.com/strataorm/strata/schema/ref"
)

// Document is the YAML root: a named set of entity definitions.
type Document struct {
	Entities map[string]*Entity `yaml:"entities"`
}

// Entity is one entity definition.
type Entity struct {
	Table      string            `yaml:"table"`
	View       bool              `yaml:"view"`
	PrimaryKey string            `yaml:"primaryKey"`
	Fields     yaml.Node         `yaml:"fields"` // ordered map, decoded manually
	Refs       map[string]*Ref   `yaml:"refs"`
	Lists      map[string]*List  `yaml:"lists"`
	Indexes    map[string]*Index `yaml:"indexes"`
}

// Field is one column definition.
type Field struct {
	Type          string `yaml:"type"`
	Nillable      bool   `yaml:"nillable"`
	Size          int    `yaml:"size"`
	Unique        bool   `yaml:"unique"`
	Identity      bool   `yaml:"identity"`
	PrimaryKey    bool   `yaml:"primaryKey"`
	AutoValue     bool   `yaml:"autoValue"`
	NoInsert      bool   `yaml:"noInsert"`
	NoUpdate      bool   `yaml:"noUpdate"`
	Default       any    `yaml:"default"`
	UpdateDefault any    `yaml:"updateDefault"`
	Comment       string `yaml:"comment"`
}

// Ref is one reference definition.
type Ref struct {
	Target   string   `yaml:"target"`
	Key      string   `yaml:"key"`
	Columns  []string `yaml:"columns"`
	Nillable bool     `yaml:"nillable"`
	OnDelete string   `yaml:"onDelete"`
	Unique   bool     `yaml:"unique"`
}

// List is one relation-list definition. A link entity makes the list
// many-to-many.
type List struct {
	Target string `yaml:"target"`
	Ref    string `yaml:"ref"`
	Link   string `yaml:"link"`
	From   string `yaml:"from"`
	To     string `yaml:"to"`
}

// Index is one index definition.
type Index struct {
	Members   string   `yaml:"members"`
	Unique    bool     `yaml:"unique"`
	Clustered bool     `yaml:"clustered"`
	Include   []string `yaml:"include"`
	Name      string   `yaml:"name"`
}

// File parses the YAML schema document at path.
func File(path string) ([]strata.Interface, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	defs, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return defs, nil
}

// Read parses a YAML schema document into schema definitions, in
// stable (name-sorted) order.
func Read(r io.Reader) ([]strata.Interface, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	if len(doc.Entities) == 0 {
		return nil, fmt.Errorf("document declares no entities")
	}
	names := make([]string, 0, len(doc.Entities))
	for name := range doc.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]strata.Interface, 0, len(names))
	for _, name := range names {
		def, err := buildEntity(name, doc.Entities[name])
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// loaded adapts one YAML entity to the schema definition interface.
type loaded struct {
	name    string
	table   string
	view    bool
	pk      string
	fields  []strata.Field
	refs    []strata.Ref
	lists   []strata.List
	indexes []strata.Index
}

func (l *loaded) Type()                   {}
func (l *loaded) Name() string            { return l.name }
func (l *loaded) Table() string           { return l.table }
func (l *loaded) View() bool              { return l.view }
func (l *loaded) PrimaryKey() string      { return l.pk }
func (l *loaded) Fields() []strata.Field  { return l.fields }
func (l *loaded) Refs() []strata.Ref      { return l.refs }
func (l *loaded) Lists() []strata.List    { return l.lists }
func (l *loaded) Indexes() []strata.Index { return l.indexes }
func (l *loaded) Mixin() []strata.Mixin   { return nil }

func buildEntity(name string, e *Entity) (strata.Interface, error) {
	if e == nil {
		return nil, fmt.Errorf("entity %s: empty definition", name)
	}
	l := &loaded{name: name, table: e.Table, view: e.View, pk: e.PrimaryKey}
	fields, err := decodeFields(&e.Fields)
	if err != nil {
		return nil, fmt.Errorf("entity %s: %w", name, err)
	}
	for _, fd := range fields {
		b, err := buildField(fd.name, fd.field)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", name, err)
		}
		l.fields = append(l.fields, b)
	}
	for _, rn := range sortedKeys(e.Refs) {
		b, err := buildRef(rn, e.Refs[rn])
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", name, err)
		}
		l.refs = append(l.refs, b)
	}
	for _, ln := range sortedKeys(e.Lists) {
		b, err := buildList(ln, e.Lists[ln])
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", name, err)
		}
		l.lists = append(l.lists, b)
	}
	for _, in := range sortedKeys(e.Indexes) {
		b, err := buildIndex(in, e.Indexes[in])
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", name, err)
		}
		l.indexes = append(l.indexes, b)
	}
	return l, nil
}

type namedField struct {
	name  string
	field *Field
}

// decodeFields preserves the document order of the fields map, which
// fixes column ordinals. A plain map would scramble them.
func decodeFields(n *yaml.Node) ([]namedField, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("fields: expected a mapping")
	}
	var out []namedField
	for i := 0; i+1 < len(n.Content); i += 2 {
		var f Field
		if err := n.Content[i+1].Decode(&f); err != nil {
			return nil, fmt.Errorf("field %s: %w", n.Content[i].Value, err)
		}
		out = append(out, namedField{name: n.Content[i].Value, field: &f})
	}
	return out, nil
}

var fieldTypes = map[string]func(string) *field.Builder{
	"bool":       field.Bool,
	"int16":      field.Int16,
	"int32":      field.Int32,
	"int64":      field.Int64,
	"float64":    field.Float64,
	"decimal":    field.Decimal,
	"string":     field.String,
	"text":       field.Text,
	"bytes":      field.Bytes,
	"time":       field.Time,
	"uuid":       field.UUID,
	"rowVersion": field.RowVersion,
}

func buildField(name string, f *Field) (strata.Field, error) {
	if f == nil {
		return nil, fmt.Errorf("field %s: empty definition", name)
	}
	ctor, ok := fieldTypes[f.Type]
	if !ok {
		return nil, fmt.Errorf("field %s: unknown type %q", name, f.Type)
	}
	b := ctor(name)
	if f.Nillable {
		b.Nillable()
	}
	if f.Size > 0 {
		b.Size(f.Size)
	}
	if f.Unique {
		b.Unique()
	}
	if f.Identity {
		b.Identity()
	}
	if f.PrimaryKey {
		b.PrimaryKey()
	}
	if f.AutoValue {
		b.AutoValue()
	}
	if f.NoInsert {
		b.NoInsert()
	}
	if f.NoUpdate {
		b.NoUpdate()
	}
	if f.Default != nil {
		b.Default(yamlDefault(f.Default))
	}
	if f.UpdateDefault != nil {
		b.UpdateDefault(yamlDefault(f.UpdateDefault))
	}
	if f.Comment != "" {
		b.Comment(f.Comment)
	}
	return b, nil
}

// yamlDefault maps the document's "now" marker to a clock-driven
// default; everything else passes through as a literal.
func yamlDefault(v any) any {
	if s, ok := v.(string); ok && s == "now" {
		return time.Now
	}
	return v
}

func buildRef(name string, r *Ref) (strata.Ref, error) {
	if r == nil || r.Target == "" {
		return nil, fmt.Errorf("ref %s: target is required", name)
	}
	b := ref.To(name, r.Target)
	if r.Key != "" {
		b.Key(r.Key)
	}
	if len(r.Columns) > 0 {
		b.Columns(r.Columns...)
	}
	if r.Nillable {
		b.Nillable()
	}
	if r.Unique {
		b.Unique()
	}
	switch strings.ToLower(r.OnDelete) {
	case "", "noaction":
	case "cascade":
		b.OnDelete(ref.Cascade)
	case "setnull":
		b.OnDelete(ref.SetNull)
	default:
		return nil, fmt.Errorf("ref %s: unknown onDelete %q", name, r.OnDelete)
	}
	return b, nil
}

func buildList(name string, l *List) (strata.List, error) {
	if l == nil || l.Target == "" {
		return nil, fmt.Errorf("list %s: target is required", name)
	}
	if l.Link != "" {
		return ref.M2M(name, l.Target).Through(l.Link, l.From, l.To), nil
	}
	b := ref.List(name, l.Target)
	if l.Ref != "" {
		b.Ref(l.Ref)
	}
	return b, nil
}

func buildIndex(name string, ix *Index) (strata.Index, error) {
	if ix == nil || ix.Members == "" {
		return nil, fmt.Errorf("index %s: members are required", name)
	}
	b := index.Members(ix.Members)
	if ix.Unique {
		b.Unique()
	}
	if ix.Clustered {
		b.Clustered()
	}
	if len(ix.Include) > 0 {
		b.Include(ix.Include...)
	}
	if ix.Name != "" {
		b.StorageKey(ix.Name)
	}
	return b, nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
