package sqlite_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/dialect"
	sqlitedialect "github.com/strataorm/strata/dialect/sqlite"
)

// The driver's error type carries unexported state, so these tests
// exercise the paths that do not depend on it; the code-based paths
// run against a real database in integration setups.

func TestClassifyConcurrencyTag(t *testing.T) {
	t.Parallel()
	err := sqlitedialect.Classify(errors.New(strata.FormatConcurrencyTag(strata.OpUpdate, "orders", "3")))
	var cu *strata.ConcurrentUpdateError
	require.ErrorAs(t, err, &cu)
	assert.Equal(t, strata.OpUpdate, cu.Op)
	assert.Equal(t, "orders", cu.Table)
	assert.Equal(t, "3", cu.Key)
}

func TestClassifyPassesUnknownErrorsThrough(t *testing.T) {
	t.Parallel()
	boom := errors.New("disk I/O error")
	assert.Equal(t, boom, sqlitedialect.Classify(boom))
	assert.NoError(t, sqlitedialect.Classify(nil))
}

func TestClassifierRegistered(t *testing.T) {
	t.Parallel()
	require.NotNil(t, dialect.ClassifierFor(dialect.SQLite))
}
