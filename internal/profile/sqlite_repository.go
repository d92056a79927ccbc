package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const defaultQueryTimeout = 5 * time.Second

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY,
	phone TEXT NOT NULL,
	username TEXT NOT NULL,
	name TEXT NOT NULL,
	birthday TEXT,
	city TEXT,
	avatar TEXT,
	about TEXT,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// SQLiteRepository is the on-device profile cache.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if needed) the cache database at path.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("profile cache path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open profile cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create profile cache schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
SELECT id, phone, username, name, birthday, city, avatar, about
FROM users
WHERE id = ?;`

	var (
		user                          User
		birthday, city, avatar, about sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Phone,
		&user.Username,
		&user.Name,
		&birthday,
		&city,
		&avatar,
		&about,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotCached
		}
		return User{}, fmt.Errorf("get cached user: %w", err)
	}
	user.Birthday = fromNullString(birthday)
	user.City = fromNullString(city)
	user.Avatar = fromNullString(avatar)
	user.About = fromNullString(about)
	return user, nil
}

// UpsertUser replaces the whole row for user.ID.
func (r *SQLiteRepository) UpsertUser(ctx context.Context, user User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
INSERT INTO users (id, phone, username, name, birthday, city, avatar, about, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (id) DO UPDATE SET
	phone = excluded.phone,
	username = excluded.username,
	name = excluded.name,
	birthday = excluded.birthday,
	city = excluded.city,
	avatar = excluded.avatar,
	about = excluded.about,
	updated_at = excluded.updated_at;`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Phone, user.Username, user.Name,
		toNullString(user.Birthday), toNullString(user.City), toNullString(user.Avatar), toNullString(user.About),
	)
	if err != nil {
		return fmt.Errorf("upsert cached user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteUser(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("delete cached user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM users;`); err != nil {
		return fmt.Errorf("clear profile cache: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
