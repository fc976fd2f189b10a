package field_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/strataorm/strata/schema/field"
)

func TestString(t *testing.T) {
	fd := field.String("name").
		Size(40).
		Unique().
		Comment("display name").
		Descriptor()
	assert.Equal(t, "name", fd.Name)
	assert.Equal(t, field.TypeString, fd.Type)
	assert.Equal(t, 40, fd.Size)
	assert.True(t, fd.Unique)
	assert.Equal(t, "display name", fd.Comment)
	assert.NoError(t, fd.Err)
}

func TestSizeRejectsUnsizedTypes(t *testing.T) {
	fd := field.Int64("n").Size(10).Descriptor()
	assert.Error(t, fd.Err)

	fd = field.String("s").Size(-1).Descriptor()
	assert.Error(t, fd.Err)
}

func TestIdentity(t *testing.T) {
	fd := field.Int64("id").Identity().Descriptor()
	assert.True(t, fd.Identity)
	assert.True(t, fd.PrimaryKey)
	assert.True(t, fd.AutoValue)
	assert.True(t, fd.NoInsert)
	assert.True(t, fd.NoUpdate)
	assert.NoError(t, fd.Err)

	fd = field.String("id").Identity().Descriptor()
	assert.Error(t, fd.Err, "identity requires a numeric type")
}

func TestRowVersion(t *testing.T) {
	fd := field.RowVersion("version").Descriptor()
	assert.Equal(t, field.TypeInt64, fd.Type)
	assert.True(t, fd.RowVersion)
	assert.True(t, fd.AutoValue)
	assert.True(t, fd.NoInsert)
	assert.True(t, fd.NoUpdate)
}

func TestDefaults(t *testing.T) {
	fd := field.Time("created_at").Default(time.Now).NoUpdate().Descriptor()
	assert.NotNil(t, fd.Default)
	assert.True(t, fd.NoUpdate)

	fd = field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now).Descriptor()
	assert.NotNil(t, fd.UpdateDefault)
	assert.True(t, fd.AutoValue, "update defaults are written by the engine")
}

func TestDefaultRejectsMismatchedLiterals(t *testing.T) {
	fd := field.Int64("n").Default("seven").Descriptor()
	assert.ErrorIs(t, fd.Err, field.ErrInvalidDefault)

	fd = field.Time("at").Default(42).Descriptor()
	assert.ErrorIs(t, fd.Err, field.ErrInvalidDefault)

	fd = field.Float64("rate").UpdateDefault(nil).Descriptor()
	assert.ErrorIs(t, fd.Err, field.ErrInvalidDefault)

	fd = field.UUID("id").Default(uuid.New).Descriptor()
	assert.NoError(t, fd.Err, "niladic functions are evaluated per record")

	fd = field.Int64("n").Default(7).Descriptor()
	assert.NoError(t, fd.Err)
}

func TestNillable(t *testing.T) {
	fd := field.Float64("discount").Nillable().Descriptor()
	assert.True(t, fd.Nillable)
}

func TestTypeProperties(t *testing.T) {
	assert.True(t, field.TypeInt32.Numeric())
	assert.False(t, field.TypeString.Numeric())
	assert.True(t, field.TypeString.Sized())
	assert.True(t, field.TypeBytes.Sized())
	assert.False(t, field.TypeTime.Sized())
	assert.False(t, field.Type(0).Valid())
	assert.Equal(t, "", field.TypeString.ZeroValue())
	assert.Equal(t, int64(0), field.TypeInt64.ZeroValue())
}
