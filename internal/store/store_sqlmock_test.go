package store

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// TestPutIdentityIOError simulates a degraded KV backend the way the rest
// of this codebase reaches for go-sqlmock to force a driver error without a
// real filesystem fault.
func TestPutIdentityIOError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := &Store{db: db, certsDir: t.TempDir()}

	mock.ExpectExec("INSERT INTO kv").
		WithArgs(kvNamespace, keyPlayerKey, "abc123").
		WillReturnError(sqlErr("disk I/O error"))

	err = s.PutIdentity(Identity{PlayerKey: "abc123", Host: "h", Port: 1})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

type sqlErr string

func (e sqlErr) Error() string { return string(e) }
