package storage

import (
	"fmt"
	"strings"
)

// Dialect selects the SQL driver and the few statements that differ between
// the supported databases.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case MySQL, Postgres, SQLite:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", s)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	return string(d)
}

// forUpdate is the row-lock suffix for SELECT. SQLite has no row locks; its
// write transactions are serialized on the single connection instead.
func (d Dialect) forUpdate() string {
	if d == SQLite {
		return ""
	}
	return " FOR UPDATE"
}

func (d Dialect) insertRoleIgnore() string {
	if d == MySQL {
		return "INSERT IGNORE INTO roles (name) VALUES (?)"
	}
	return "INSERT INTO roles (name) VALUES (?) ON CONFLICT (name) DO NOTHING"
}

// returningID reports whether inserts must use RETURNING to learn the new id.
func (d Dialect) returningID() bool {
	return d == Postgres
}
