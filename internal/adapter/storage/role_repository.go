package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/rl1809/bookstore-orders/internal/core/domain"
)

func (s *SQLStore) EnsureRoles(ctx context.Context, roles []domain.Role) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		for _, r := range roles {
			if _, err := s.ext(ctx).ExecContext(ctx, s.rebind(s.dialect.insertRoleIgnore()), string(r)); err != nil {
				return fmt.Errorf("ensure role %s: %w", r, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) HasRole(ctx context.Context, userID int64, role domain.Role) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, s.ext(ctx), &n, s.rebind(`
		SELECT COUNT(*)
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE u.id = ? AND r.name = ?`),
		userID, string(role),
	)
	if err != nil {
		return false, fmt.Errorf("check role: %w", err)
	}
	return n > 0, nil
}

// CreateUser registers a user with one role. Account management lives
// outside this service; seeding and tests use this.
func (s *SQLStore) CreateUser(ctx context.Context, username, email string, role domain.Role) (int64, error) {
	var id int64
	err := s.WithTx(ctx, func(ctx context.Context) error {
		q := s.ext(ctx)

		var roleID int64
		err := sqlx.GetContext(ctx, q, &roleID, s.rebind(`SELECT id FROM roles WHERE name = ?`), string(role))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("insert user: unknown role %s", role)
		}
		if err != nil {
			return fmt.Errorf("query role: %w", err)
		}

		const insert = `INSERT INTO users (username, email, role_id) VALUES (?, ?, ?)`
		if s.dialect.returningID() {
			if err := sqlx.GetContext(ctx, q, &id, s.rebind(insert+" RETURNING id"), username, email, roleID); err != nil {
				return fmt.Errorf("insert user: %w", err)
			}
			return nil
		}

		res, err := q.ExecContext(ctx, s.rebind(insert), username, email, roleID)
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}
