package session_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/dialect"
	stsql "github.com/strataorm/strata/dialect/sql"
	"github.com/strataorm/strata/model"
	"github.com/strataorm/strata/schema"
	"github.com/strataorm/strata/schema/field"
	"github.com/strataorm/strata/schema/ref"
	"github.com/strataorm/strata/session"
)

type Customer struct{ schema.Schema }

func (Customer) Fields() []strata.Field {
	return []strata.Field{
		field.Int64("Id").Identity(),
		field.String("Name").Size(40),
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

func (Order) Lists() []strata.List {
	return []strata.List{
		ref.M2M("Tags", "Tag").Through("OrderTag", "Order", "Tag"),
	}
}

type Tag struct{ schema.Schema }

func (Tag) Fields() []strata.Field {
	return []strata.Field{
		field.Int64("Id").Identity(),
		field.String("Label").Size(20),
	}
}

type OrderTag struct{ schema.Schema }

func (OrderTag) Fields() []strata.Field { return nil }

func (OrderTag) Refs() []strata.Ref {
	return []strata.Ref{
		ref.To("Order", "Order").OnDelete(ref.Cascade),
		ref.To("Tag", "Tag").OnDelete(ref.Cascade),
	}
}

func (OrderTag) PrimaryKey() string { return "Order,Tag" }

func testModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.Build(Customer{}, Order{}, Tag{}, OrderTag{})
	require.NoError(t, err)
	return m
}

// mockSession returns a session over a sqlmock-backed MySQL driver.
func mockSession(t *testing.T, opts ...session.Option) (*session.Session, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	drv := stsql.OpenDB(dialect.MySQL, db)
	return session.NewSession(testModel(t), drv, opts...), mock
}

func queryRe(q string) string { return regexp.QuoteMeta(q) }

func expectCustomerByID(mock sqlmock.Sqlmock, id int64, name string) {
	mock.ExpectQuery(queryRe("SELECT `Id`, `Name` FROM `customers` WHERE `Id` = ?")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "Name"}).AddRow(id, name))
}

func TestNewAppliesDefaultsAndTracks(t *testing.T) {
	t.Parallel()
	s, _ := mockSession(t)
	r, err := s.New("Customer")
	require.NoError(t, err)
	assert.Equal(t, session.New, r.Status())
	assert.True(t, s.HasChanges())
	assert.True(t, r.PrimaryKey().IsZero())
}

func TestNewRejectsUnknownEntity(t *testing.T) {
	t.Parallel()
	s, _ := mockSession(t)
	_, err := s.New("Nope")
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown entity")
}

func TestReadOnlySessionRejectsMutations(t *testing.T) {
	t.Parallel()
	s, _ := mockSession(t, session.ReadOnly())
	_, err := s.New("Customer")
	assert.ErrorIs(t, err, strata.ErrReadOnly)
	assert.ErrorIs(t, s.SaveChanges(context.Background()), strata.ErrReadOnly)
}

// Two fetches of the same primary key yield the same instance: the
// second call is answered from the identity map without a round-trip.
func TestGetReturnsCanonicalInstance(t *testing.T) {
	t.Parallel()
	s, mock := mockSession(t)
	ctx := context.Background()

	expectCustomerByID(mock, 7, "ada")
	r1, err := s.Get(ctx, "Customer", session.LoadFetch, int64(7))
	require.NoError(t, err)
	r2, err := s.Get(ctx, "Customer", session.LoadFetch, int64(7))
	require.NoError(t, err)
	assert.Same(t, r1, r2)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A row reached through a set query resolves to the instance already
// loaded by key, with the resident's values winning over the reload.
func TestQueryPathsShareIdentity(t *testing.T) {
	t.Parallel()
	s, mock := mockSession(t)
	ctx := context.Background()

	expectCustomerByID(mock, 7, "ada")
	byKey, err := s.Get(ctx, "Customer", session.LoadFetch, int64(7))
	require.NoError(t, err)

	mock.ExpectQuery(queryRe("SELECT `Id`, `Name` FROM `customers` WHERE `Name` = ?")).
		WithArgs("ada").
		WillReturnRows(sqlmock.NewRows([]string{"Id", "Name"}).AddRow(int64(7), "ada"))
	set, err := s.EntitySet("Customer")
	require.NoError(t, err)
	all, err := set.Where("Name", "ada").All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Same(t, byKey, all[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDefaultChecksResidencyOnly(t *testing.T) {
	t.Parallel()
	s, mock := mockSession(t)
	r, err := s.Get(context.Background(), "Customer", session.LoadDefault, int64(1))
	require.NoError(t, err)
	assert.Nil(t, r)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRequiresKey(t *testing.T) {
	t.Parallel()
	s, _ := mockSession(t)
	_, err := s.Get(context.Background(), "Customer", session.LoadFetch, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "primary key is required")
}

func TestStubLoad(t *testing.T) {
	t.Parallel()
	s, mock := mockSession(t)
	ctx := context.Background()

	r, err := s.Get(ctx, "Customer", session.LoadStub, int64(9))
	require.NoError(t, err)
	assert.Equal(t, session.Stub, r.Status())

	// Key columns are readable on a stub; the rest are not.
	id, err := r.Value("Id")
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	_, err = r.Value("Name")
	require.Error(t, err)

	expectCustomerByID(mock, 9, "grace")
	require.NoError(t, s.Load(ctx, r))
	assert.Equal(t, session.Loaded, r.Status())
	name, err := r.Value("Name")
	require.NoError(t, err)
	assert.Equal(t, "grace", name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchMissingRowReturnsNotFound(t *testing.T) {
	t.Parallel()
	s, mock := mockSession(t)
	mock.ExpectQuery(queryRe("SELECT `Id`, `Name` FROM `customers` WHERE `Id` = ?")).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "Name"}))
	_, err := s.Get(context.Background(), "Customer", session.LoadFetch, int64(404))
	require.Error(t, err)
	assert.True(t, strata.IsNotFound(err))
}

func TestSetMovesLoadedToModified(t *testing.T) {
	t.Parallel()
	s, mock := mockSession(t)
	expectCustomerByID(mock, 7, "ada")
	r, err := s.Get(context.Background(), "Customer", session.LoadFetch, int64(7))
	require.NoError(t, err)
	assert.False(t, s.HasChanges())

	require.NoError(t, r.Set("Name", "lovelace"))
	assert.Equal(t, session.Modified, r.Status())
	assert.True(t, s.HasChanges())

	orig, err := r.Original("Name")
	require.NoError(t, err)
	assert.Equal(t, "ada", orig)
}

func TestDeleteNewRecordDropsIt(t *testing.T) {
	t.Parallel()
	s, _ := mockSession(t)
	r, err := s.New("Customer")
	require.NoError(t, err)
	require.NoError(t, s.Delete(r))
	assert.Equal(t, session.Fantom, r.Status())
	assert.False(t, s.HasChanges())
}

func TestCancelChanges(t *testing.T) {
	t.Parallel()
	s, mock := mockSession(t)
	expectCustomerByID(mock, 7, "ada")
	loaded, err := s.Get(context.Background(), "Customer", session.LoadFetch, int64(7))
	require.NoError(t, err)
	require.NoError(t, loaded.Set("Name", "changed"))
	created, err := s.New("Customer")
	require.NoError(t, err)

	s.CancelChanges()
	assert.False(t, s.HasChanges())
	assert.Equal(t, session.Loaded, loaded.Status())
	name, err := loaded.Value("Name")
	require.NoError(t, err)
	assert.Equal(t, "ada", name)
	assert.Equal(t, session.Fantom, created.Status())
}

func TestCanDelete(t *testing.T) {
	t.Parallel()
	s, mock := mockSession(t)
	ctx := context.Background()
	expectCustomerByID(mock, 7, "ada")
	r, err := s.Get(ctx, "Customer", session.LoadFetch, int64(7))
	require.NoError(t, err)

	mock.ExpectQuery(queryRe("SELECT 1 FROM `orders` WHERE `Customer_Id` = ? LIMIT 1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	blocking, err := s.CanDelete(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, []string{"Order"}, blocking)
}

func TestRefResolvesToStub(t *testing.T) {
	t.Parallel()
	s, mock := mockSession(t)
	mock.ExpectQuery(queryRe("SELECT `Id`, `Total`, `Version`, `Customer_Id` FROM `orders` WHERE `Id` = ?")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "Total", "Version", "Customer_Id"}).
			AddRow(int64(1), 9.5, int64(1), int64(7)))
	order, err := s.Get(context.Background(), "Order", session.LoadFetch, int64(1))
	require.NoError(t, err)

	cust, err := order.Ref("Customer")
	require.NoError(t, err)
	require.NotNil(t, cust)
	assert.Equal(t, session.Stub, cust.Status())
	id, err := cust.Value("Id")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	// The stub is resident: loading the customer by key returns it.
	again, err := s.Get(context.Background(), "Customer", session.LoadDefault, int64(7))
	require.NoError(t, err)
	assert.Same(t, cust, again)
}
