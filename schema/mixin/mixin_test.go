package mixin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/model"
	"github.com/strataorm/strata/schema"
	"github.com/strataorm/strata/schema/field"
	"github.com/strataorm/strata/schema/mixin"
)

type Article struct{ schema.Schema }

func (Article) Fields() []strata.Field {
	return []strata.Field{
		field.Int64("id").Identity(),
		field.String("title").Size(120),
	}
}

func (Article) Mixin() []strata.Mixin {
	return []strata.Mixin{mixin.Time{}}
}

func TestTimeMixinContributesAuditColumns(t *testing.T) {
	t.Parallel()
	m, err := model.Build(Article{})
	require.NoError(t, err)
	e := m.Entity("Article")

	created := e.Member("created_at")
	require.NotNil(t, created)
	assert.Equal(t, field.TypeTime, created.Type())
	assert.NotNil(t, created.Default())
	assert.True(t, created.Is(model.FlagNoUpdate))

	updated := e.Member("updated_at")
	require.NotNil(t, updated)
	assert.NotNil(t, updated.UpdateDefault())
	assert.True(t, updated.Is(model.FlagAutoValue))

	// Mixin columns precede the entity's own: the mixin is shared
	// infrastructure, declared first.
	assert.Less(t, created.Ordinal(), e.Member("id").Ordinal())
}
