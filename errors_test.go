package strata_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataorm/strata"
)

func TestConcurrencyTagRoundTrip(t *testing.T) {
	t.Parallel()
	msg := strata.FormatConcurrencyTag(strata.OpUpdate, "orders", "7,3")
	cu, ok := strata.ParseConcurrencyTag(msg)
	require.True(t, ok)
	assert.Equal(t, strata.OpUpdate, cu.Op)
	assert.Equal(t, "orders", cu.Table)
	assert.Equal(t, "7,3", cu.Key, "composite keys keep their separators")

	// The tag survives prefixing by driver wrappers.
	cu, ok = strata.ParseConcurrencyTag("driver: bad connection: " + msg)
	require.True(t, ok)
	assert.Equal(t, "orders", cu.Table)

	_, ok = strata.ParseConcurrencyTag("some unrelated error")
	assert.False(t, ok)
}

func TestNotFoundMatchesSentinel(t *testing.T) {
	t.Parallel()
	err := &strata.NotFoundError{Entity: "Order", Key: 7}
	assert.ErrorIs(t, err, strata.ErrNotFound)
	assert.True(t, strata.IsNotFound(err))
	assert.True(t, strata.IsNotFound(fmt.Errorf("load: %w", err)))
	assert.False(t, strata.IsNotFound(errors.New("other")))
}

func TestSchemaErrorAggregation(t *testing.T) {
	t.Parallel()
	assert.NoError(t, strata.NewSchemaError())
	assert.NoError(t, strata.NewSchemaError(nil, nil))

	err := strata.NewSchemaError(errors.New("first"), nil, errors.New("second"))
	require.Error(t, err)
	assert.True(t, strata.IsSchemaError(err))
	assert.ErrorContains(t, err, "2 errors")
	assert.ErrorContains(t, err, "first")
	assert.ErrorContains(t, err, "second")
}

func TestValidationErrorMessage(t *testing.T) {
	t.Parallel()
	one := &strata.ValidationError{Faults: []*strata.Fault{
		{Kind: strata.ValueMissing, Entity: "Order", Member: "Total"},
	}}
	assert.ErrorContains(t, one, "value missing")
	assert.ErrorContains(t, one, "Order.Total")

	two := &strata.ValidationError{Faults: []*strata.Fault{
		{Kind: strata.ValueMissing, Entity: "Order", Member: "Total"},
		{Kind: strata.ValueTooLong, Entity: "Customer", Member: "Name"},
	}}
	assert.ErrorContains(t, two, "2 faults")
}

func TestConflictTaxonomy(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err      error
		conflict bool
	}{
		{strata.NewUniqueConstraintError("IXU_x", nil, errors.New("dup")), true},
		{strata.NewDeadlockError(errors.New("victim")), true},
		{strata.NewIntegrityError("FK_x", errors.New("referenced")), true},
		{&strata.ConcurrentUpdateError{Op: strata.OpDelete, Table: "orders", Key: "1"}, true},
		{errors.New("connection refused"), false},
		{&strata.ValidationError{}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.conflict, strata.IsConflict(tc.err), "%v", tc.err)
	}
}

func TestConflictErrorsUnwrap(t *testing.T) {
	t.Parallel()
	cause := errors.New("vendor detail")
	assert.ErrorIs(t, strata.NewUniqueConstraintError("", nil, cause), cause)
	assert.ErrorIs(t, strata.NewDeadlockError(cause), cause)
	assert.ErrorIs(t, strata.NewIntegrityError("", cause), cause)
}
