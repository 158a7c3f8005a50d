package records

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGStoreFind(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewPGStore(db, "users")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT record FROM users WHERE key = \\$1").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow([]byte(`{"user_id":"u-1"}`)))
	mock.ExpectQuery("SELECT record FROM users WHERE key = \\$1").
		WithArgs("u-2").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT record FROM users WHERE key = \\$1").
		WithArgs("u-3").
		WillReturnError(errors.New("connection reset"))

	rec, err := store.Find(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, `{"user_id":"u-1"}`, string(rec))

	_, err = store.Find(context.Background(), "u-2")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Find(context.Background(), "u-3")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreRejectsUnsafeTable(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewPGStore(db, "users; DROP TABLE users")
	assert.Error(t, err)
}
