package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores cached profiles in a shared PostgreSQL database,
// for deployments that run the client as a service.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a PostgresRepository. Call Migrate before first use.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the cache table when missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
CREATE TABLE IF NOT EXISTS cached_profiles (
	id BIGINT PRIMARY KEY,
	phone TEXT NOT NULL,
	username TEXT NOT NULL,
	name TEXT NOT NULL,
	birthday TEXT,
	city TEXT,
	avatar TEXT,
	about TEXT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate profile cache: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, id int64) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
SELECT id, phone, username, name, birthday, city, avatar, about
FROM cached_profiles
WHERE id = $1;`

	var user User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Phone,
		&user.Username,
		&user.Name,
		&user.Birthday,
		&user.City,
		&user.Avatar,
		&user.About,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotCached
		}
		return User{}, fmt.Errorf("get cached user: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) UpsertUser(ctx context.Context, user User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
INSERT INTO cached_profiles (id, phone, username, name, birthday, city, avatar, about, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
ON CONFLICT (id)
DO UPDATE SET phone = EXCLUDED.phone, username = EXCLUDED.username, name = EXCLUDED.name,
	birthday = EXCLUDED.birthday, city = EXCLUDED.city, avatar = EXCLUDED.avatar,
	about = EXCLUDED.about, updated_at = NOW();`

	if _, err := r.pool.Exec(ctx, query,
		user.ID, user.Phone, user.Username, user.Name,
		user.Birthday, user.City, user.Avatar, user.About,
	); err != nil {
		return fmt.Errorf("upsert cached user: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteUser(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if _, err := r.pool.Exec(ctx, `DELETE FROM cached_profiles WHERE id = $1;`, id); err != nil {
		return fmt.Errorf("delete cached user: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if _, err := r.pool.Exec(ctx, `DELETE FROM cached_profiles;`); err != nil {
		return fmt.Errorf("clear profile cache: %w", err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the caller.
func (r *PostgresRepository) Close() error { return nil }
