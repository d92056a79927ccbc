package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultQueryTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	phone TEXT NOT NULL CONSTRAINT users_phone_key UNIQUE,
	username TEXT NOT NULL CONSTRAINT users_username_key UNIQUE,
	name TEXT NOT NULL,
	birthday TEXT,
	city TEXT,
	vk TEXT,
	instagram TEXT,
	status TEXT,
	avatar_key TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS auth_codes (
	phone TEXT PRIMARY KEY,
	code_hash TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	verified BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	token_hash TEXT PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	expires_at TIMESTAMPTZ NOT NULL,
	revoked_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const userColumns = `id, phone, username, name, birthday, city, vk, instagram, status, avatar_key, created_at, updated_at`

// Repository provides PostgreSQL access for the backend.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a new Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Migrate creates the tables when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// CreateUser persists a new user record.
func (r *Repository) CreateUser(ctx context.Context, phone, name, username string) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
INSERT INTO users (phone, name, username)
VALUES ($1, $2, $3)
RETURNING ` + userColumns + `;`

	user, err := scanUser(r.pool.QueryRow(ctx, query, phone, name, username))
	if err != nil {
		if mapped := uniqueViolation(err); mapped != nil {
			return User{}, mapped
		}
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

// FindUserByID fetches a user by id.
func (r *Repository) FindUserByID(ctx context.Context, id int64) (User, error) {
	return r.findUser(ctx, `WHERE id = $1`, id)
}

// FindUserByPhone fetches a user by phone.
func (r *Repository) FindUserByPhone(ctx context.Context, phone string) (User, error) {
	return r.findUser(ctx, `WHERE phone = $1`, phone)
}

func (r *Repository) findUser(ctx context.Context, where string, arg any) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users `+where+`;`, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// UpdateUser replaces the editable columns of user.ID.
func (r *Repository) UpdateUser(ctx context.Context, user User) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
UPDATE users
SET username = $2, name = $3, birthday = $4, city = $5, vk = $6, instagram = $7,
	status = $8, avatar_key = $9, updated_at = NOW()
WHERE id = $1
RETURNING ` + userColumns + `;`

	updated, err := scanUser(r.pool.QueryRow(ctx, query,
		user.ID, user.Username, user.Name, user.Birthday, user.City, user.VK, user.Instagram,
		user.Status, user.AvatarKey,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		if mapped := uniqueViolation(err); mapped != nil {
			return User{}, mapped
		}
		return User{}, fmt.Errorf("update user: %w", err)
	}
	return updated, nil
}

// SaveAuthCode upserts the pending code for code.Phone.
func (r *Repository) SaveAuthCode(ctx context.Context, code AuthCode) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
INSERT INTO auth_codes (phone, code_hash, expires_at, verified)
VALUES ($1, $2, $3, $4)
ON CONFLICT (phone)
DO UPDATE SET code_hash = EXCLUDED.code_hash, expires_at = EXCLUDED.expires_at, verified = EXCLUDED.verified;`

	if _, err := r.pool.Exec(ctx, query, code.Phone, code.CodeHash, code.ExpiresAt, code.Verified); err != nil {
		return fmt.Errorf("save auth code: %w", err)
	}
	return nil
}

func (r *Repository) FindAuthCode(ctx context.Context, phone string) (AuthCode, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	var code AuthCode
	err := r.pool.QueryRow(ctx,
		`SELECT phone, code_hash, expires_at, verified FROM auth_codes WHERE phone = $1;`, phone,
	).Scan(&code.Phone, &code.CodeHash, &code.ExpiresAt, &code.Verified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AuthCode{}, ErrAuthCodeNotFound
		}
		return AuthCode{}, fmt.Errorf("find auth code: %w", err)
	}
	return code, nil
}

func (r *Repository) DeleteAuthCode(ctx context.Context, phone string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if _, err := r.pool.Exec(ctx, `DELETE FROM auth_codes WHERE phone = $1;`, phone); err != nil {
		return fmt.Errorf("delete auth code: %w", err)
	}
	return nil
}

// StoreRefreshToken saves a refresh token hash for the user.
func (r *Repository) StoreRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
INSERT INTO refresh_tokens (user_id, token_hash, expires_at, revoked_at)
VALUES ($1, $2, $3, NULL)
ON CONFLICT (token_hash)
DO UPDATE SET expires_at = EXCLUDED.expires_at, revoked_at = NULL, created_at = NOW();`

	if _, err := r.pool.Exec(ctx, query, userID, tokenHash, expiresAt); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns an unrevoked token.
func (r *Repository) FindRefreshToken(ctx context.Context, tokenHash string) (RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
SELECT user_id, token_hash, expires_at
FROM refresh_tokens
WHERE token_hash = $1 AND revoked_at IS NULL;`

	var token RefreshToken
	if err := r.pool.QueryRow(ctx, query, tokenHash).Scan(&token.UserID, &token.TokenHash, &token.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshToken{}, ErrRefreshTokenNotFound
		}
		return RefreshToken{}, fmt.Errorf("find refresh token: %w", err)
	}
	return token, nil
}

// RevokeToken marks a refresh token as revoked.
func (r *Repository) RevokeToken(ctx context.Context, tokenHash string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
UPDATE refresh_tokens
SET revoked_at = NOW()
WHERE token_hash = $1 AND revoked_at IS NULL;`

	tag, err := r.pool.Exec(ctx, query, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRefreshTokenNotFound
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Phone,
		&user.Username,
		&user.Name,
		&user.Birthday,
		&user.City,
		&user.VK,
		&user.Instagram,
		&user.Status,
		&user.AvatarKey,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	if pgErr.ConstraintName == "users_username_key" {
		return ErrUsernameTaken
	}
	return ErrPhoneAlreadyExists
}
