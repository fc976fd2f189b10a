package load_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataorm/strata/compiler/load"
	"github.com/strataorm/strata/model"
	"github.com/strataorm/strata/schema/field"
)

const shopSchema = `
entities:
  Customer:
    fields:
      Id: {type: int64, identity: true}
      Name: {type: string, size: 40}
      Email: {type: string, size: 120, unique: true}
    lists:
      Orders: {target: Order, ref: Customer}
  Order:
    fields:
      Id: {type: int64, identity: true}
      Total: {type: float64}
      PlacedAt: {type: time, default: now}
      Version: {type: rowVersion}
    refs:
      Customer: {target: Customer}
    indexes:
      open: {members: "Customer,PlacedAt:desc"}
`

func TestReadResolvesAgainstModel(t *testing.T) {
	t.Parallel()
	defs, err := load.Read(strings.NewReader(shopSchema))
	require.NoError(t, err)
	require.Len(t, defs, 2)

	m, err := model.Build(defs...)
	require.NoError(t, err)

	order := m.Entity("Order")
	require.NotNil(t, order)
	assert.Equal(t, "orders", order.Table())
	require.NotNil(t, order.Member("Customer_Id"))
	require.NotNil(t, order.RowVersion())

	// Document order fixes the column ordinals.
	assert.Equal(t, 0, order.Member("Id").Ordinal())
	assert.Equal(t, 1, order.Member("Total").Ordinal())

	placed := order.Member("PlacedAt")
	require.NotNil(t, placed)
	assert.Equal(t, field.TypeTime, placed.Type())
	assert.NotNil(t, placed.Default(), `"now" maps to a clock-driven default`)
}

func TestReadRejectsUnknownFieldType(t *testing.T) {
	t.Parallel()
	_, err := load.Read(strings.NewReader(`
entities:
  Thing:
    fields:
      Id: {type: varchar2}
`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown type")
}

func TestReadRejectsEmptyDocument(t *testing.T) {
	t.Parallel()
	_, err := load.Read(strings.NewReader("entities: {}\n"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "no entities")
}

func TestReadRejectsRefWithoutTarget(t *testing.T) {
	t.Parallel()
	_, err := load.Read(strings.NewReader(`
entities:
  Thing:
    fields:
      Id: {type: int64, identity: true}
    refs:
      Owner: {}
`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "target is required")
}

func TestReadRejectsEmptyListEntry(t *testing.T) {
	t.Parallel()
	_, err := load.Read(strings.NewReader(`
entities:
  Customer:
    fields:
      Id: {type: int64, identity: true}
    lists:
      Orders:
`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "list Orders: target is required")
}

func TestViewDefinition(t *testing.T) {
	t.Parallel()
	defs, err := load.Read(strings.NewReader(`
entities:
  Revenue:
    view: true
    table: v_revenue
    fields:
      Month: {type: string, size: 7}
      Total: {type: decimal}
`))
	require.NoError(t, err)
	m, err := model.Build(defs...)
	require.NoError(t, err)
	e := m.Entity("Revenue")
	assert.True(t, e.IsView())
	assert.Equal(t, "v_revenue", e.Table())
	assert.Nil(t, e.PrimaryKey())
}
