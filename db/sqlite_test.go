package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/0xPolygon/cdk-opnode/db/types"
	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
	"github.com/stretchr/testify/require"
)

const testMigration = `
-- +migrate Down
DROP TABLE IF EXISTS sample;

-- +migrate Up
CREATE TABLE sample (
	id   INTEGER PRIMARY KEY,
	hash VARCHAR NOT NULL
);
`

type sampleRow struct {
	ID   uint64      `meddler:"id"`
	Hash common.Hash `meddler:"hash,hash"`
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := NewSQLiteDB(filepath.Join(t.TempDir(), "sample.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, RunMigrationsDB(log.GetDefaultLogger(), database, []types.Migration{{ID: "0001", SQL: testMigration}}))
	return database
}

func TestHashMeddler(t *testing.T) {
	database := newTestDB(t)

	row := &sampleRow{ID: 7, Hash: common.HexToHash("0xabc")}
	require.NoError(t, meddler.Insert(database, "sample", row))

	var got sampleRow
	require.NoError(t, meddler.QueryRow(database, &got, "SELECT * FROM sample WHERE id = $1", 7))
	require.Equal(t, row.Hash, got.Hash)

	err := meddler.QueryRow(database, &got, "SELECT * FROM sample WHERE id = $1", 8)
	require.ErrorIs(t, ReturnErrNotFound(err), ErrNotFound)

	_, err = database.Exec("INSERT INTO sample (id, hash) VALUES (9, '0xabcd');")
	require.NoError(t, err)
	err = meddler.QueryRow(database, &got, "SELECT * FROM sample WHERE id = $1", 9)
	require.ErrorContains(t, err, "is 2 bytes")

	_, err = database.Exec("INSERT INTO sample (id, hash) VALUES (10, 'nothex');")
	require.NoError(t, err)
	require.Error(t, meddler.QueryRow(database, &got, "SELECT * FROM sample WHERE id = $1", 10))
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	count := func() int {
		var n int
		require.NoError(t, database.QueryRow("SELECT COUNT(*) FROM sample;").Scan(&n))
		return n
	}

	errBoom := errors.New("boom")
	err := WithTx(ctx, log.GetDefaultLogger(), database, func(tx *sql.Tx) error {
		require.NoError(t, meddler.Insert(tx, "sample", &sampleRow{ID: 1, Hash: common.Hash{1}}))
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	require.Zero(t, count())

	err = WithTx(ctx, log.GetDefaultLogger(), database, func(tx *sql.Tx) error {
		return meddler.Insert(tx, "sample", &sampleRow{ID: 1, Hash: common.Hash{1}})
	})
	require.NoError(t, err)
	require.Equal(t, 1, count())
}

func TestRunMigrationsRejectsMissingMarker(t *testing.T) {
	database, err := NewSQLiteDB(filepath.Join(t.TempDir(), "bad.sqlite"))
	require.NoError(t, err)
	defer database.Close()
	err = RunMigrationsDB(log.GetDefaultLogger(), database, []types.Migration{{ID: "0001", SQL: "CREATE TABLE x (id INTEGER);"}})
	require.Error(t, err)
}
