package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataorm/strata/model"
)

func TestEntityKey(t *testing.T) {
	t.Parallel()
	m, err := model.Build(Customer{}, Order{}, OrderLine{})
	require.NoError(t, err)

	pk := m.Entity("Customer").PrimaryKey()
	k1, err := model.NewEntityKey(pk, int64(7))
	require.NoError(t, err)
	k2, err := model.NewEntityKey(pk, int64(7))
	require.NoError(t, err)
	k3, err := model.NewEntityKey(pk, int64(8))
	require.NoError(t, err)

	assert.True(t, k1.Equal(k2))
	assert.False(t, k1.Equal(k3))
	assert.False(t, k1.IsZero())

	fp1, err := k1.Fingerprint()
	require.NoError(t, err)
	fp2, err := k2.Fingerprint()
	require.NoError(t, err)
	fp3, err := k3.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
	assert.NotEqual(t, fp1, fp3)

	// Keys of different entities never collide, even on equal values.
	opk := m.Entity("Order").PrimaryKey()
	ok1, err := model.NewEntityKey(opk, int64(7))
	require.NoError(t, err)
	ofp, err := ok1.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fp1, ofp)

	_, err = model.NewEntityKey(pk, int64(1), int64(2))
	assert.Error(t, err, "value count must match the expanded key")
}

func TestEntityKeyZero(t *testing.T) {
	t.Parallel()
	m, err := model.Build(Customer{}, Order{}, OrderLine{})
	require.NoError(t, err)
	pk := m.Entity("Customer").PrimaryKey()
	k, err := model.NewEntityKey(pk, nil)
	require.NoError(t, err)
	assert.True(t, k.IsZero())
}

func TestCompositeKeyString(t *testing.T) {
	t.Parallel()
	m, err := model.Build(Customer{}, Order{}, OrderLine{})
	require.NoError(t, err)
	pk := m.Entity("OrderLine").PrimaryKey()
	k, err := model.NewEntityKey(pk, int64(3), int32(1))
	require.NoError(t, err)
	assert.Equal(t, "3,1", k.String())
}
