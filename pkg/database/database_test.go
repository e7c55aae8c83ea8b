package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nephi-asha/kishkumen/internal/apperr"
)

func TestWithTxCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE ingredients").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), "UPDATE ingredients SET current_stock = 1")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := apperr.NotFound("ingredient not found")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err = WithTx(context.Background(), db, func(tx *sql.Tx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = WithTx(context.Background(), db, func(tx *sql.Tx) error {
			panic("bad state")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBootstrapRunsEveryStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for range globalSchema {
		mock.ExpectExec(".+").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, Bootstrap(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslateError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"no rows", sql.ErrNoRows, apperr.KindNotFound},
		{"unique", &pq.Error{Code: "23505"}, apperr.KindConflict},
		{"fk insert", &pq.Error{Code: "23503", Detail: `Key (ingredient_id)=(9) is not present in table "ingredients".`}, apperr.KindBadRequest},
		{"fk delete", &pq.Error{Code: "23503", Detail: `Key (id)=(1) is still referenced from table "products".`}, apperr.KindConflict},
		{"check", &pq.Error{Code: "23514"}, apperr.KindBadRequest},
		{"missing schema", &pq.Error{Code: "3F000"}, apperr.KindUnavailable},
		{"missing relation", &pq.Error{Code: "42P01"}, apperr.KindUnavailable},
		{"other", errors.New("broken pipe"), apperr.KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, apperr.KindOf(TranslateError(tc.err, "product")))
		})
	}

	assert.NoError(t, TranslateError(nil, "product"))
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
}
