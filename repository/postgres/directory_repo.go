package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamtasks/backend/domain"
	"github.com/teamtasks/backend/repository"
)

const userColumns = `user_id, email, name, role, status, enabled, groups, created_at`

type directoryRepository struct {
	pool *pgxpool.Pool
}

// NewUserDirectory returns a Postgres-backed implementation of the external
// user directory interface.
func NewUserDirectory(pool *pgxpool.Pool) repository.UserDirectory {
	return &directoryRepository{pool: pool}
}

func (r *directoryRepository) GetByID(ctx context.Context, userID string) (*domain.DirectoryUser, error) {
	const query = `
	SELECT ` + userColumns + `
	FROM users
	WHERE user_id = $1
	`
	return scanUser(r.pool.QueryRow(ctx, query, userID))
}

func (r *directoryRepository) GetByEmail(ctx context.Context, email string) (*domain.DirectoryUser, error) {
	const query = `
	SELECT ` + userColumns + `
	FROM users
	WHERE lower(email) = lower($1)
	`
	return scanUser(r.pool.QueryRow(ctx, query, strings.TrimSpace(email)))
}

func (r *directoryRepository) List(ctx context.Context) ([]domain.DirectoryUser, error) {
	const query = `
	SELECT ` + userColumns + `
	FROM users
	ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnavailable, "user directory unavailable", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (r *directoryRepository) ListAdmins(ctx context.Context) ([]domain.DirectoryUser, error) {
	// Enumerates by role and by membership of either historical admin group
	// spelling. O(total users); accepted at current scale.
	const query = `
	SELECT ` + userColumns + `
	FROM users
	WHERE role = 'admin' OR groups && ARRAY['admin', 'Admins']
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnavailable, "user directory unavailable", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func scanUser(row pgx.Row) (*domain.DirectoryUser, error) {
	var user domain.DirectoryUser
	if err := row.Scan(
		&user.UserID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.Status,
		&user.Enabled,
		&user.Groups,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.WrapError(domain.ErrCodeUnavailable, "user directory unavailable", err)
	}
	return &user, nil
}

func collectUsers(rows pgx.Rows) ([]domain.DirectoryUser, error) {
	var users []domain.DirectoryUser
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnavailable, "user directory unavailable", err)
	}
	return users, nil
}
