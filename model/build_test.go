package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/model"
	"github.com/strataorm/strata/schema"
	"github.com/strataorm/strata/schema/field"
	"github.com/strataorm/strata/schema/index"
	"github.com/strataorm/strata/schema/ref"
)

type Customer struct{ schema.Schema }

func (Customer) Fields() []strata.Field {
	return []strata.Field{
		field.Int64("Id").Identity(),
		field.String("Name").Size(40),
		field.String("Email").Size(120).Unique(),
	}
}

func (Customer) Lists() []strata.List {
	return []strata.List{
		ref.List("Orders", "Order").Ref("Customer"),
	}
}

type Order struct{ schema.Schema }

func (Order) Fields() []strata.Field {
	return []strata.Field{
		field.Int64("Id").Identity(),
		field.Float64("Total"),
		field.RowVersion("Version"),
	}
}

func (Order) Refs() []strata.Ref {
	return []strata.Ref{
		ref.To("Customer", "Customer"),
	}
}

func (Order) Indexes() []strata.Index {
	return []strata.Index{
		index.Members("Customer,Total:desc"),
	}
}

type OrderLine struct{ schema.Schema }

func (OrderLine) Fields() []strata.Field {
	return []strata.Field{
		field.Int32("LineNo"),
		field.Int32("Quantity"),
	}
}

func (OrderLine) Refs() []strata.Ref {
	return []strata.Ref{
		ref.To("Order", "Order").OnDelete(ref.Cascade),
	}
}

func (OrderLine) PrimaryKey() string { return "Order,LineNo" }

func TestBuild(t *testing.T) {
	t.Parallel()
	m, err := model.Build(Customer{}, Order{}, OrderLine{})
	require.NoError(t, err)

	customer := m.Entity("Customer")
	require.NotNil(t, customer)
	assert.Equal(t, "customers", customer.Table())
	assert.True(t, customer.HasIdentity())

	order := m.Entity("Order")
	require.NotNil(t, order)
	assert.Equal(t, "orders", order.Table())
	assert.True(t, order.ReferencesIdentity())
	require.NotNil(t, order.RowVersion())
	assert.Equal(t, "Version", order.RowVersion().Name())
}

// A reference to a single-column key synthesizes exactly one
// foreign-key column named after the reference member and the target
// column, and mirrors the target type.
func TestForeignKeySynthesis(t *testing.T) {
	t.Parallel()
	m, err := model.Build(Customer{}, Order{}, OrderLine{})
	require.NoError(t, err)

	order := m.Entity("Order")
	fk := order.Member("Customer_Id")
	require.NotNil(t, fk)
	assert.Equal(t, model.KindColumn, fk.Kind())
	assert.Equal(t, field.TypeInt64, fk.Type())
	assert.True(t, fk.Is(model.FlagForeignKey))
	assert.True(t, fk.Synthetic())
	assert.False(t, fk.Nullable(), "required reference keeps the target's nullability")

	// The reference member itself stays a non-column member.
	cm := order.Member("Customer")
	require.NotNil(t, cm)
	assert.Equal(t, model.KindRef, cm.Kind())
	require.NotNil(t, cm.Reference().FromKey())
	assert.Equal(t, model.Expanded, cm.Reference().FromKey().Status())
}

func TestNillableReferenceSynthesizesNullableColumn(t *testing.T) {
	t.Parallel()
	m, err := model.Build(Customer{}, Shipment{})
	require.NoError(t, err)
	fk := m.Entity("Shipment").Member("Carrier_Id")
	require.NotNil(t, fk)
	assert.True(t, fk.Nullable())
}

type Shipment struct{ schema.Schema }

func (Shipment) Fields() []strata.Field {
	return []strata.Field{
		field.Int64("Id").Identity(),
	}
}

func (Shipment) Refs() []strata.Ref {
	return []strata.Ref{
		ref.To("Carrier", "Customer").Nillable(),
	}
}

// An explicit column list replaces the synthesized names position by
// position; the count must match the target key.
func TestExplicitForeignKeyColumns(t *testing.T) {
	t.Parallel()
	m, err := model.Build(Customer{}, Invoice{})
	require.NoError(t, err)
	inv := m.Entity("Invoice")
	require.NotNil(t, inv.Member("cust_id"))
	assert.Nil(t, inv.Member("Customer_Id"))

	_, err = model.Build(Customer{}, BadInvoice{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "declares 2 columns")
}

type Invoice struct{ schema.Schema }

func (Invoice) Fields() []strata.Field {
	return []strata.Field{field.Int64("Id").Identity()}
}

func (Invoice) Refs() []strata.Ref {
	return []strata.Ref{
		ref.To("Customer", "Customer").Columns("cust_id"),
	}
}

type BadInvoice struct{ schema.Schema }

func (BadInvoice) Fields() []strata.Field {
	return []strata.Field{field.Int64("Id").Identity()}
}

func (BadInvoice) Refs() []strata.Ref {
	return []strata.Ref{
		ref.To("Customer", "Customer").Columns("a", "b"),
	}
}

// A primary key listing a reference member flattens to the reference's
// synthesized columns followed by the plain columns.
func TestCompositePrimaryKeyThroughReference(t *testing.T) {
	t.Parallel()
	m, err := model.Build(Customer{}, Order{}, OrderLine{})
	require.NoError(t, err)

	line := m.Entity("OrderLine")
	pk := line.PrimaryKey()
	require.NotNil(t, pk)
	require.Equal(t, model.Expanded, pk.Status())
	kms := pk.ExpandedKeyMembers()
	require.Len(t, kms, 2)
	assert.Equal(t, "Order_Id", kms[0].Name())
	assert.Equal(t, "LineNo", kms[1].Name())
	assert.True(t, line.Member("Order_Id").Is(model.FlagPrimaryKey))
	assert.False(t, line.HasIdentity())
}

type CycleA struct{ schema.Schema }

func (CycleA) Fields() []strata.Field { return nil }
func (CycleA) Refs() []strata.Ref {
	return []strata.Ref{ref.To("Partner", "CycleB")}
}
func (CycleA) PrimaryKey() string { return "Partner" }

type CycleB struct{ schema.Schema }

func (CycleB) Fields() []strata.Field { return nil }
func (CycleB) Refs() []strata.Ref {
	return []strata.Ref{ref.To("Partner", "CycleA")}
}
func (CycleB) PrimaryKey() string { return "Partner" }

// Mutually key-dependent references cannot converge; the build fails
// and names the keys of both entities.
func TestCircularReferenceFailsBuild(t *testing.T) {
	t.Parallel()
	_, err := model.Build(CycleA{}, CycleB{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "circular reference")
	assert.ErrorContains(t, err, "CycleA")
	assert.ErrorContains(t, err, "CycleB")
}

func TestSelfReferenceConverges(t *testing.T) {
	t.Parallel()
	m, err := model.Build(Employee{})
	require.NoError(t, err)
	fk := m.Entity("Employee").Member("Manager_Id")
	require.NotNil(t, fk)
	assert.True(t, fk.Nullable())
}

type Employee struct{ schema.Schema }

func (Employee) Fields() []strata.Field {
	return []strata.Field{
		field.Int64("Id").Identity(),
		field.String("Name").Size(80),
	}
}

func (Employee) Refs() []strata.Ref {
	return []strata.Ref{
		ref.To("Manager", "Employee").Nillable().OnDelete(ref.SetNull),
	}
}

func TestKeyNaming(t *testing.T) {
	t.Parallel()
	m, err := model.Build(Customer{}, Order{}, OrderLine{})
	require.NoError(t, err)

	var names []string
	for _, k := range m.Entity("Order").Keys() {
		names = append(names, k.Name())
	}
	assert.Contains(t, names, "PK_orders")
	assert.Contains(t, names, "FK_orders_Customer")
	assert.Contains(t, names, "IX_orders_Customer_Total")

	names = names[:0]
	for _, k := range m.Entity("Customer").Keys() {
		names = append(names, k.Name())
	}
	assert.Contains(t, names, "IXU_customers_Email", "Unique fields get an implicit unique index")
}

func TestViewCannotDeclarePrimaryKey(t *testing.T) {
	t.Parallel()
	_, err := model.Build(BadReport{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "views cannot declare a primary key")

	m, err := model.Build(Report{})
	require.NoError(t, err)
	assert.True(t, m.Entity("Report").IsView())
	assert.Nil(t, m.Entity("Report").PrimaryKey())
}

type Report struct{ schema.View }

func (Report) Fields() []strata.Field {
	return []strata.Field{field.String("Title")}
}

type BadReport struct{ schema.View }

func (BadReport) Fields() []strata.Field {
	return []strata.Field{field.Int64("Id").PrimaryKey()}
}

func TestMissingPrimaryKeyFailsBuild(t *testing.T) {
	t.Parallel()
	_, err := model.Build(NoKey{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "primary key has zero members")
}

type NoKey struct{ schema.Schema }

func (NoKey) Fields() []strata.Field {
	return []strata.Field{field.String("Name")}
}

// An existing column can serve as the foreign key when its type
// mirrors the target; a mismatch is a build error.
func TestForeignKeyOverExistingColumn(t *testing.T) {
	t.Parallel()
	m, err := model.Build(Customer{}, Note{})
	require.NoError(t, err)
	fk := m.Entity("Note").Member("Author_Id")
	require.NotNil(t, fk)
	assert.True(t, fk.Is(model.FlagForeignKey))
	assert.False(t, fk.Synthetic())

	_, err = model.Build(Customer{}, BadNote{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "requires int64")
}

type Note struct{ schema.Schema }

func (Note) Fields() []strata.Field {
	return []strata.Field{
		field.Int64("Id").Identity(),
		field.Int64("Author_Id"),
	}
}

func (Note) Refs() []strata.Ref {
	return []strata.Ref{ref.To("Author", "Customer")}
}

type BadNote struct{ schema.Schema }

func (BadNote) Fields() []strata.Field {
	return []strata.Field{
		field.Int64("Id").Identity(),
		field.String("Author_Id"),
	}
}

func (BadNote) Refs() []strata.Ref {
	return []strata.Ref{ref.To("Author", "Customer")}
}

// Build collects every definition error instead of stopping at the
// first one.
func TestBuildAggregatesErrors(t *testing.T) {
	t.Parallel()
	_, err := model.Build(NoKey{}, BadInvoice{}, Customer{})
	require.Error(t, err)
	var se *strata.SchemaError
	require.ErrorAs(t, err, &se)
	assert.GreaterOrEqual(t, len(se.Unwrap()), 2)
}

func TestUnknownRefTarget(t *testing.T) {
	t.Parallel()
	_, err := model.Build(Orphan{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "Nowhere")
}

type Orphan struct{ schema.Schema }

func (Orphan) Fields() []strata.Field {
	return []strata.Field{field.Int64("Id").Identity()}
}

func (Orphan) Refs() []strata.Ref {
	return []strata.Ref{ref.To("Target", "Nowhere")}
}
