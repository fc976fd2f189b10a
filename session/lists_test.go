package session_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataorm/strata/session"
)

func loadCustomer(t *testing.T, s *session.Session, mock sqlmock.Sqlmock, id int64) *session.Record {
	t.Helper()
	expectCustomerByID(mock, id, "ada")
	r, err := s.Get(context.Background(), "Customer", session.LoadFetch, id)
	require.NoError(t, err)
	return r
}

func loadOrder(t *testing.T, s *session.Session, mock sqlmock.Sqlmock, id, custID int64) *session.Record {
	t.Helper()
	mock.ExpectQuery(queryRe("SELECT `Id`, `Total`, `Version`, `Customer_Id` FROM `orders` WHERE `Id` = ?")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "Total", "Version", "Customer_Id"}).
			AddRow(id, 5.0, int64(1), custID))
	r, err := s.Get(context.Background(), "Order", session.LoadFetch, id)
	require.NoError(t, err)
	return r
}

func loadTag(t *testing.T, s *session.Session, mock sqlmock.Sqlmock, id int64) *session.Record {
	t.Helper()
	mock.ExpectQuery(queryRe("SELECT `Id`, `Label` FROM `tags` WHERE `Id` = ?")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "Label"}).AddRow(id, "urgent"))
	r, err := s.Get(context.Background(), "Tag", session.LoadFetch, id)
	require.NoError(t, err)
	return r
}

// Adding to a one-to-many list points the target's back reference at
// the owner.
func TestAddToOneToManyList(t *testing.T) {
	t.Parallel()
	s, mock := mockSession(t)
	cust := loadCustomer(t, s, mock, 7)
	order := loadOrder(t, s, mock, 1, 2)

	require.NoError(t, s.AddToList(cust, "Orders", order))
	assert.Equal(t, session.Modified, order.Status())
	fk, err := order.Value("Customer_Id")
	require.NoError(t, err)
	assert.Equal(t, int64(7), fk)
}

// Adding to a many-to-many list creates a link record that inserts
// with the next save.
func TestAddToManyToManyList(t *testing.T) {
	t.Parallel()
	s, mock := mockSession(t)
	order := loadOrder(t, s, mock, 1, 2)
	tag := loadTag(t, s, mock, 5)

	require.NoError(t, s.AddToList(order, "Tags", tag))
	assert.True(t, s.HasChanges())

	mock.ExpectBegin()
	mock.ExpectExec(queryRe("INSERT INTO `order_tags` (`Order_Id`, `Tag_Id`) VALUES (?, ?)")).
		WithArgs(int64(1), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveChanges(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

// Removing from a many-to-many list deletes the resident link record.
// A link created in the same session is simply withdrawn.
func TestRemoveFromManyToManyList(t *testing.T) {
	t.Parallel()
	s, mock := mockSession(t)
	order := loadOrder(t, s, mock, 1, 2)
	tag := loadTag(t, s, mock, 5)

	require.NoError(t, s.AddToList(order, "Tags", tag))
	require.NoError(t, s.RemoveFromList(order, "Tags", tag))

	// The new link became a fantom; nothing is left to persist except
	// the recorded list change.
	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, s.SaveChanges(context.Background()))
}

func TestListChangeHooksSeeMembership(t *testing.T) {
	t.Parallel()
	s, mock := mockSession(t)
	cust := loadCustomer(t, s, mock, 7)
	order := loadOrder(t, s, mock, 1, 7)

	var changes []*session.ListChange
	s.OnSavingList(func(c *session.ListChange) error {
		changes = append(changes, c)
		return nil
	})

	require.NoError(t, s.AddToList(cust, "Orders", order))

	// The add did not modify the order (the back reference already
	// matched), but the membership change is still observable.
	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, s.SaveChanges(context.Background()))
	require.Len(t, changes, 1)
	assert.Same(t, cust, changes[0].Owner)
	assert.Equal(t, "Orders", changes[0].Member.Name())
	require.Len(t, changes[0].Added, 1)
	assert.Same(t, order, changes[0].Added[0])
}

func TestAddToListRejectsWrongTarget(t *testing.T) {
	t.Parallel()
	s, mock := mockSession(t)
	cust := loadCustomer(t, s, mock, 7)
	tag := loadTag(t, s, mock, 5)
	err := s.AddToList(cust, "Orders", tag)
	require.Error(t, err)
	assert.ErrorContains(t, err, "expects Order")
}
