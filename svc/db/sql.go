package db

import (
	"bytes"
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"hashbin/metrics"
	"hashbin/pkg/domain"
	"hashbin/pkg/hashid"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type dialect struct {
	name     string
	driver   string
	schema   string
	isUnique func(error) bool
	numbered bool
}

var sqliteDialect = dialect{
	name:   DialectSQLite,
	driver: "sqlite3",
	schema: `
	CREATE TABLE IF NOT EXISTS paste (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		hashid TEXT NOT NULL,
		ip TEXT,
		mime TEXT NOT NULL DEFAULT 'text/plain',
		sunset TIMESTAMP,
		timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		data BLOB,
		CONSTRAINT unique_hash UNIQUE (hashid)
	)`,
	isUnique: func(err error) bool {
		var se sqlite3.Error
		if !errors.As(err, &se) {
			return false
		}
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	},
}

var postgresDialect = dialect{
	name:   DialectPostgreSQL,
	driver: "postgres",
	schema: `
	CREATE TABLE IF NOT EXISTS paste (
		id SERIAL PRIMARY KEY,
		hashid TEXT NOT NULL,
		ip TEXT,
		mime TEXT NOT NULL DEFAULT 'text/plain',
		sunset TIMESTAMP,
		timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		data BYTEA,
		CONSTRAINT unique_hash UNIQUE (hashid)
	)`,
	isUnique: func(err error) bool {
		var pe *pq.Error
		return errors.As(err, &pe) && pe.Code == "23505"
	},
	numbered: true,
}

// rebind rewrites ? placeholders as $1, $2, ... for dialects that need it.
func (d dialect) rebind(q string) string {
	if !d.numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const (
	insertPaste = `INSERT INTO paste (hashid, ip, mime, sunset, timestamp, data) VALUES (?, ?, ?, ?, ?, ?)`
	selectPaste = `SELECT hashid, ip, mime, sunset, timestamp, data FROM paste WHERE hashid = ?`
	deletePaste = `DELETE FROM paste WHERE hashid = ?`
)

// SQL is the relational engine, shared by the sqlite and postgresql dialects.
type SQL struct {
	db           *sql.DB
	dialect      dialect
	queryTimeout time.Duration
	breaker
	walQuit chan struct{}
	walDone chan struct{}
}

func (s *SQL) DB() *sql.DB {
	return s.db
}

func (s *SQL) Dialect() string {
	return s.dialect.name
}

func openSQL(ctx context.Context, desc Descriptor, opts Options) (*SQL, error) {
	var d dialect
	switch desc.Dialect {
	case DialectSQLite:
		d = sqliteDialect
	case DialectPostgreSQL:
		d = postgresDialect
	default:
		return nil, errors.Errorf("no sql dialect %q", desc.Dialect)
	}
	if desc.Driver != "" {
		d.driver = desc.Driver
	}
	db, err := sql.Open(d.driver, desc.dsn())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	s := newSQL(db, d, opts)
	if d.name == DialectSQLite && desc.inMemory() {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping db")
	}
	if d.name == DialectSQLite && !desc.inMemory() && opts.WALMaintenance {
		s.walQuit = make(chan struct{})
		s.walDone = make(chan struct{})
		go func() {
			defer close(s.walDone)
			StartWALMaintenance(db, s.walQuit)
		}()
	}
	return s, nil
}

func newSQL(db *sql.DB, d dialect, opts Options) *SQL {
	opts = opts.withDefaults()
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
	return &SQL{db: db, dialect: d, queryTimeout: opts.QueryTimeout}
}

func (s *SQL) Init(ctx context.Context) error {
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(queryCtx, s.dialect.schema)
	return errors.Wrap(err, "create schema")
}

// Create inserts p. When the identifier is already taken the insert is rolled
// back and the stored row is compared in a separate transaction: equal bytes
// make it a duplicate, different bytes a collision.
func (s *SQL) Create(ctx context.Context, p *domain.Paste) (string, error) {
	if hashid.Digest(p.Data) != p.ID {
		return "", errors.Wrap(domain.ErrInvalidRequest, "identifier does not match data")
	}
	if err := s.checkCircuit(); err != nil {
		return "", domain.Unavailable(err)
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	err := withTx(queryCtx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(queryCtx, s.dialect.rebind(insertPaste),
			p.ID, nullString(p.IP), p.Mime, nullTime(p.Sunset), p.Timestamp, p.Data,
		)
		return err
	})
	if err == nil {
		s.recordError(nil)
		return p.ID, nil
	}
	if !s.dialect.isUnique(err) {
		s.recordError(err)
		return "", errors.Wrap(err, "db create")
	}
	var existing *domain.Paste
	err = withTx(queryCtx, s.db, func(tx *sql.Tx) error {
		var err error
		existing, err = s.query(queryCtx, tx, p.ID)
		return err
	})
	s.recordError(err)
	if err != nil {
		return "", errors.Wrap(err, "db reconcile")
	}
	return reconcile(p, existing)
}

func reconcile(p, existing *domain.Paste) (string, error) {
	if existing == nil {
		return "", errors.Wrapf(domain.ErrConflict, "paste %s removed during create", p.ID)
	}
	if !bytes.Equal(existing.Data, p.Data) {
		return "", &domain.CollisionErr{ID: p.ID}
	}
	metrics.PasteDuplicate.Inc()
	return existing.ID, nil
}

func (s *SQL) Query(ctx context.Context, id string) (*domain.Paste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, domain.Unavailable(err)
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var p *domain.Paste
	err := withTx(queryCtx, s.db, func(tx *sql.Tx) error {
		var err error
		p, err = s.query(queryCtx, tx, id)
		return err
	})
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db query")
	}
	return p, nil
}

func (s *SQL) query(ctx context.Context, tx *sql.Tx, id string) (*domain.Paste, error) {
	var (
		p      domain.Paste
		ip     sql.NullString
		sunset sql.NullTime
	)
	err := tx.QueryRowContext(ctx, s.dialect.rebind(selectPaste), id).Scan(
		&p.ID, &ip, &p.Mime, &sunset, &p.Timestamp, &p.Data,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.IP = ip.String
	if sunset.Valid {
		t := sunset.Time.UTC()
		p.Sunset = &t
	}
	p.Timestamp = p.Timestamp.UTC()
	if p.Data == nil {
		p.Data = []byte{}
	}
	return &p, nil
}

func (s *SQL) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, domain.Unavailable(err)
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var n int64
	err := withTx(queryCtx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(queryCtx, s.dialect.rebind(deletePaste), id)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "delete paste")
	}
	return n > 0, nil
}

func (s *SQL) Ping(ctx context.Context) error {
	var result int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}

func (s *SQL) Close() error {
	if s.walQuit != nil {
		close(s.walQuit)
		<-s.walDone
		s.walQuit = nil
	}
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
