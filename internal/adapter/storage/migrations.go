package storage

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Migration is one schema version. Statements run one at a time since the
// MySQL driver rejects multi-statement Exec by default.
type Migration struct {
	Version string
	Up      map[Dialect][]string
}

// Migrations are applied in order; versions must increase.
var Migrations = []Migration{
	{
		Version: "1.0.0",
		Up: map[Dialect][]string{
			MySQL: {
				`CREATE TABLE IF NOT EXISTS roles (
					id BIGINT AUTO_INCREMENT PRIMARY KEY,
					name VARCHAR(50) NOT NULL UNIQUE
				)`,
				`CREATE TABLE IF NOT EXISTS users (
					id BIGINT AUTO_INCREMENT PRIMARY KEY,
					username VARCHAR(100) NOT NULL,
					email VARCHAR(100) NOT NULL UNIQUE,
					role_id BIGINT NOT NULL,
					FOREIGN KEY (role_id) REFERENCES roles(id)
				)`,
				`CREATE TABLE IF NOT EXISTS books (
					id BIGINT AUTO_INCREMENT PRIMARY KEY,
					title VARCHAR(255) NOT NULL,
					price DECIMAL(12,2) NOT NULL,
					stock_quantity INT NOT NULL DEFAULT 0,
					publication_date DATE NULL,
					CONSTRAINT chk_books_stock CHECK (stock_quantity >= 0)
				)`,
				`CREATE TABLE IF NOT EXISTS orders (
					id VARCHAR(36) PRIMARY KEY,
					user_id BIGINT NOT NULL,
					created_at DATETIME(6) NOT NULL,
					total_amount DECIMAL(12,2) NOT NULL,
					status VARCHAR(20) NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS order_items (
					order_id VARCHAR(36) NOT NULL,
					line_no INT NOT NULL,
					book_id BIGINT NOT NULL,
					book_title VARCHAR(255) NOT NULL,
					quantity INT NOT NULL,
					price_at_purchase DECIMAL(12,2) NOT NULL,
					PRIMARY KEY (order_id, line_no),
					FOREIGN KEY (order_id) REFERENCES orders(id),
					FOREIGN KEY (book_id) REFERENCES books(id)
				)`,
			},
			Postgres: {
				`CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(50) NOT NULL UNIQUE
				)`,
				`CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(100) NOT NULL,
					email VARCHAR(100) NOT NULL UNIQUE,
					role_id BIGINT NOT NULL REFERENCES roles(id)
				)`,
				`CREATE TABLE IF NOT EXISTS books (
					id BIGSERIAL PRIMARY KEY,
					title VARCHAR(255) NOT NULL,
					price NUMERIC(12,2) NOT NULL,
					stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
					publication_date DATE NULL
				)`,
				`CREATE TABLE IF NOT EXISTS orders (
					id VARCHAR(36) PRIMARY KEY,
					user_id BIGINT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL,
					total_amount NUMERIC(12,2) NOT NULL,
					status VARCHAR(20) NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS order_items (
					order_id VARCHAR(36) NOT NULL REFERENCES orders(id),
					line_no INTEGER NOT NULL,
					book_id BIGINT NOT NULL REFERENCES books(id),
					book_title VARCHAR(255) NOT NULL,
					quantity INTEGER NOT NULL,
					price_at_purchase NUMERIC(12,2) NOT NULL,
					PRIMARY KEY (order_id, line_no)
				)`,
			},
			SQLite: {
				`CREATE TABLE IF NOT EXISTS roles (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE
				)`,
				`CREATE TABLE IF NOT EXISTS users (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					username TEXT NOT NULL,
					email TEXT NOT NULL UNIQUE,
					role_id INTEGER NOT NULL REFERENCES roles(id)
				)`,
				`CREATE TABLE IF NOT EXISTS books (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					title TEXT NOT NULL,
					price TEXT NOT NULL,
					stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
					publication_date DATE NULL
				)`,
				`CREATE TABLE IF NOT EXISTS orders (
					id TEXT PRIMARY KEY,
					user_id INTEGER NOT NULL,
					created_at DATETIME NOT NULL,
					total_amount TEXT NOT NULL,
					status TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS order_items (
					order_id TEXT NOT NULL REFERENCES orders(id),
					line_no INTEGER NOT NULL,
					book_id INTEGER NOT NULL REFERENCES books(id),
					book_title TEXT NOT NULL,
					quantity INTEGER NOT NULL,
					price_at_purchase TEXT NOT NULL,
					PRIMARY KEY (order_id, line_no)
				)`,
			},
		},
	},
	{
		Version: "1.1.0",
		Up: map[Dialect][]string{
			MySQL:    {`CREATE INDEX idx_orders_user_created ON orders (user_id, created_at)`},
			Postgres: {`CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders (user_id, created_at)`},
			SQLite:   {`CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders (user_id, created_at)`},
		},
	},
}

const createSchemaVersion = `CREATE TABLE IF NOT EXISTS schema_version (
	version VARCHAR(32) PRIMARY KEY
)`

// Migrate applies every migration newer than the highest recorded version.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createSchemaVersion); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range Migrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", m.Version, err)
		}
		if !current.LessThan(v) {
			continue
		}

		stmts, ok := m.Up[s.dialect]
		if !ok {
			return fmt.Errorf("migration %s has no %s statements", m.Version, s.dialect)
		}
		for _, stmt := range stmts {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.Version, err)
			}
		}
		if _, err := s.db.ExecContext(ctx, s.db.Rebind("INSERT INTO schema_version (version) VALUES (?)"), m.Version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.Version, err)
		}
		current = v
	}
	return nil
}

// SchemaVersion returns the highest applied version, 0.0.0 on a fresh database.
func (s *SQLStore) SchemaVersion(ctx context.Context) (*semver.Version, error) {
	var recorded []string
	if err := s.db.SelectContext(ctx, &recorded, "SELECT version FROM schema_version"); err != nil {
		return nil, fmt.Errorf("read schema_version: %w", err)
	}

	current := semver.MustParse("0.0.0")
	for _, r := range recorded {
		v, err := semver.NewVersion(r)
		if err != nil {
			return nil, fmt.Errorf("invalid recorded schema version %s: %w", r, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, nil
}
