package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// PoolConfig sizes the connection pool. SQLite always uses one connection.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLStore implements the catalog, order and role repositories on one SQL
// database. Calls made with a context returned by WithTx join that
// transaction.
type SQLStore struct {
	db      *sqlx.DB
	dialect Dialect
}

func NewSQLStore(db *sqlx.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// sqlitePragmas run on every new connection, so they hold after the pool
// recycles one.
var sqlitePragmas = []string{"foreign_keys(1)", "busy_timeout(5000)"}

func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(dsn)
	for _, p := range sqlitePragmas {
		b.WriteString(sep + "_pragma=" + p)
		sep = "&"
	}
	return b.String()
}

// Open connects, sizes the pool and pings the database.
func Open(ctx context.Context, dialect Dialect, dsn string, pool PoolConfig) (*SQLStore, error) {
	if dialect == SQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == SQLite {
		db.SetMaxOpenConns(1)
	} else {
		if pool.MaxOpenConns > 0 {
			db.SetMaxOpenConns(pool.MaxOpenConns)
		}
		if pool.MaxIdleConns > 0 {
			db.SetMaxIdleConns(pool.MaxIdleConns)
		}
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	return NewSQLStore(db, dialect), nil
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type txKey struct{}

// WithTx runs fn in a transaction, committing when fn returns nil. A context
// that already carries a transaction is reused.
func (s *SQLStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ext returns the transaction carried by ctx, or the pool.
func (s *SQLStore) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

func (s *SQLStore) rebind(query string) string {
	return s.db.Rebind(query)
}
