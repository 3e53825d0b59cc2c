package pairstore

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	factory = common.HexToAddress("0xf1")
	pool    = common.HexToAddress("0x1")
	token0  = common.HexToAddress("0xaaaa")
	token1  = common.HexToAddress("0xbbbb")
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{db: db}, mock
}

func TestKnownPairCountReturnsCount(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM pairs WHERE protocol = \$1`).
		WithArgs(factory.Hex()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := store.KnownPairCount(context.Background(), factory)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPairInsertsOnConflictDoNothing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO pairs`).
		WithArgs(factory.Hex(), pool.Hex(), token0.Hex(), token1.Hex()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.RecordPair(context.Background(), factory, pool, token0, token1)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPairToleratesUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO pairs`).
		WithArgs(factory.Hex(), pool.Hex(), token0.Hex(), token1.Hex()).
		WillReturnError(errors.New("duplicate key value violates unique constraint"))

	err := store.RecordPair(context.Background(), factory, pool, token0, token1)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPairPropagatesOtherErrors(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO pairs`).
		WithArgs(factory.Hex(), pool.Hex(), token0.Hex(), token1.Hex()).
		WillReturnError(errors.New("connection refused"))

	err := store.RecordPair(context.Background(), factory, pool, token0, token1)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsBlacklistedReflectsExistsResult(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM token_blacklist WHERE token = \$1\)`).
		WithArgs(token0.Hex()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	blacklisted, err := store.IsBlacklisted(context.Background(), token0)
	require.NoError(t, err)
	assert.True(t, blacklisted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetExcludedUpdatesRow(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE pairs SET excluded = \$3 WHERE protocol = \$1 AND address = \$2`).
		WithArgs(factory.Hex(), pool.Hex(), true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SetExcluded(context.Background(), factory, pool, true)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshBlacklistResetsThenRecomputesWithinATransaction(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE pairs SET excluded = false WHERE protocol = \$1`).
		WithArgs(factory.Hex()).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(`UPDATE pairs SET excluded = true`).
		WithArgs(factory.Hex()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := store.RefreshBlacklist(context.Background(), factory)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshBlacklistRollsBackOnFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE pairs SET excluded = false WHERE protocol = \$1`).
		WithArgs(factory.Hex()).
		WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback()

	err := store.RefreshBlacklist(context.Background(), factory)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedBlacklistInsertsEachToken(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO token_blacklist`).
		WithArgs(token0.Hex()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO token_blacklist`).
		WithArgs(token1.Hex()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.SeedBlacklist(context.Background(), []common.Address{token0, token1})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPairsForFactoryReturnsOnlyIncludedRows(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"address", "token0", "token1"}).AddRow(pool.Hex(), token0.Hex(), token1.Hex())
	mock.ExpectQuery(`SELECT address, token0, token1 FROM pairs WHERE protocol = \$1 AND excluded = false`).
		WithArgs(factory.Hex()).
		WillReturnRows(rows)

	loaded, err := store.PairsForFactory(context.Background(), factory)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, pool, loaded[0].Pool)
	assert.Equal(t, token0, loaded[0].Token0)
	assert.Equal(t, token1, loaded[0].Token1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, isUniqueViolation(nil))
	assert.True(t, isUniqueViolation(errors.New("duplicate key value violates unique constraint")))
	assert.True(t, isUniqueViolation(errors.New("ERROR: 23505 duplicate key")))
	assert.False(t, isUniqueViolation(errors.New("connection refused")))
}
