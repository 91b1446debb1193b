package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"hashbin/pkg/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) Store {
	t.Helper()
	desc := Descriptor{Dialect: DialectSQLite, DBName: filepath.Join(t.TempDir(), "hashbin.db")}
	s, err := openSQL(context.Background(), desc, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Init(context.Background()))
	require.NoError(t, s.Init(context.Background()), "Init is idempotent")
	return s
}

func plantSQL(t *testing.T, s Store, p *domain.Paste) {
	t.Helper()
	_, err := s.(*SQL).DB().Exec(
		`INSERT INTO paste (hashid, ip, mime, sunset, timestamp, data) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, nullString(p.IP), p.Mime, nullTime(p.Sunset), p.Timestamp, p.Data,
	)
	require.NoError(t, err)
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, openSQLite, plantSQL)
}

func TestSQLiteInMemory(t *testing.T) {
	s, err := openSQL(context.Background(), Descriptor{Dialect: DialectSQLite, DBName: ":memory:"}, Options{})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Init(context.Background()))
	id, err := s.Create(context.Background(), newPaste("abc", ""))
	require.NoError(t, err)
	got, err := s.Query(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestSQLiteWALMaintenanceStopsOnClose(t *testing.T) {
	desc := Descriptor{Dialect: DialectSQLite, DBName: filepath.Join(t.TempDir(), "wal.db")}
	s, err := openSQL(context.Background(), desc, Options{WALMaintenance: true})
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	_, err = s.Create(context.Background(), newPaste("abc", ""))
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", postgresDialect.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	assert.Equal(t, "x = ?", sqliteDialect.rebind("x = ?"))
}

func newMockPostgres(t *testing.T) (*SQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newSQL(db, postgresDialect, Options{}), mock
}

var pasteColumns = []string{"hashid", "ip", "mime", "sunset", "timestamp", "data"}

func TestPostgresCreate(t *testing.T) {
	s, mock := newMockPostgres(t)
	p := newPaste("abc", "")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO paste (hashid, ip, mime, sunset, timestamp, data) VALUES ($1, $2, $3, $4, $5, $6)`)).
		WithArgs(p.ID, "127.0.0.1", "text/plain", nil, p.Timestamp, p.Data).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	id, err := s.Create(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, p.ID, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectUniqueViolation(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO paste`)).
		WillReturnError(&pq.Error{Code: "23505", Message: `duplicate key value violates unique constraint "unique_hash"`})
	mock.ExpectRollback()
}

func TestPostgresCreateDuplicate(t *testing.T) {
	s, mock := newMockPostgres(t)
	p := newPaste("abc", "")

	expectUniqueViolation(mock)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT hashid, ip, mime, sunset, timestamp, data FROM paste WHERE hashid = $1`)).
		WithArgs(p.ID).
		WillReturnRows(sqlmock.NewRows(pasteColumns).AddRow(p.ID, nil, "text/plain", nil, p.Timestamp, []byte("abc")))
	mock.ExpectCommit()

	id, err := s.Create(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, p.ID, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateCollision(t *testing.T) {
	s, mock := newMockPostgres(t)
	p := newPaste("abc", "")

	expectUniqueViolation(mock)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT hashid`)).
		WithArgs(p.ID).
		WillReturnRows(sqlmock.NewRows(pasteColumns).AddRow(p.ID, nil, "application/pdf", nil, p.Timestamp, []byte("different")))
	mock.ExpectCommit()

	_, err := s.Create(context.Background(), p)
	assert.True(t, errors.Is(err, domain.ErrHashCollision))
	assert.Equal(t, 409, domain.Status(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateWinnerVanished(t *testing.T) {
	s, mock := newMockPostgres(t)
	p := newPaste("abc", "")

	expectUniqueViolation(mock)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT hashid`)).
		WithArgs(p.ID).
		WillReturnRows(sqlmock.NewRows(pasteColumns))
	mock.ExpectCommit()

	_, err := s.Create(context.Background(), p)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQuery(t *testing.T) {
	s, mock := newMockPostgres(t)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	sunset := ts.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT hashid`)).
		WithArgs("a9993e364706816aba3e25717850c26c9cd0d89d").
		WillReturnRows(sqlmock.NewRows(pasteColumns).
			AddRow("a9993e364706816aba3e25717850c26c9cd0d89d", "10.0.0.1", "text/plain", sunset, ts, []byte("abc")))
	mock.ExpectCommit()

	got, err := s.Query(context.Background(), "a9993e364706816aba3e25717850c26c9cd0d89d")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "10.0.0.1", got.IP)
	assert.Equal(t, ts, got.Timestamp)
	require.NotNil(t, got.Sunset)
	assert.Equal(t, sunset, *got.Sunset)
	assert.True(t, got.Verify())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDelete(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM paste WHERE hashid = $1`)).
		WithArgs("x").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	found, err := s.Delete(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCircuitBreakerOpens(t *testing.T) {
	s, mock := newMockPostgres(t)
	for i := 0; i < maxFailures; i++ {
		mock.ExpectBegin().WillReturnError(sql.ErrConnDone)
		_, err := s.Query(context.Background(), "x")
		require.Error(t, err)
	}
	_, err := s.Query(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
	assert.Equal(t, 503, domain.Status(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "boom", func() {
		_ = withTx(context.Background(), db, func(tx *sql.Tx) error { panic("boom") })
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
