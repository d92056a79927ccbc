package backend

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps backend state in process memory.
type MemoryRepository struct {
	mu      sync.Mutex
	nextID  int64
	users   map[int64]User
	codes   map[string]AuthCode
	tokens  map[string]RefreshToken
	revoked map[string]bool
	nowFunc func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:   make(map[int64]User),
		codes:   make(map[string]AuthCode),
		tokens:  make(map[string]RefreshToken),
		revoked: make(map[string]bool),
		nowFunc: time.Now,
	}
}

func (r *MemoryRepository) CreateUser(_ context.Context, phone, name, username string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Phone == phone {
			return User{}, ErrPhoneAlreadyExists
		}
		if u.Username == username {
			return User{}, ErrUsernameTaken
		}
	}
	r.nextID++
	now := r.nowFunc()
	user := User{ID: r.nextID, Phone: phone, Name: name, Username: username, CreatedAt: now, UpdatedAt: now}
	r.users[user.ID] = user
	return user, nil
}

func (r *MemoryRepository) FindUserByID(_ context.Context, id int64) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryRepository) FindUserByPhone(_ context.Context, phone string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Phone == phone {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *MemoryRepository) UpdateUser(_ context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.users[user.ID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	for id, u := range r.users {
		if id != user.ID && u.Username == user.Username {
			return User{}, ErrUsernameTaken
		}
	}
	user.Phone = current.Phone
	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = r.nowFunc()
	r.users[user.ID] = user
	return user, nil
}

func (r *MemoryRepository) SaveAuthCode(_ context.Context, code AuthCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[code.Phone] = code
	return nil
}

func (r *MemoryRepository) FindAuthCode(_ context.Context, phone string) (AuthCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[phone]
	if !ok {
		return AuthCode{}, ErrAuthCodeNotFound
	}
	return c, nil
}

func (r *MemoryRepository) DeleteAuthCode(_ context.Context, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, phone)
	return nil
}

func (r *MemoryRepository) StoreRefreshToken(_ context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[tokenHash] = RefreshToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}
	delete(r.revoked, tokenHash)
	return nil
}

func (r *MemoryRepository) FindRefreshToken(_ context.Context, tokenHash string) (RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenHash]
	if !ok || r.revoked[tokenHash] {
		return RefreshToken{}, ErrRefreshTokenNotFound
	}
	return t, nil
}

func (r *MemoryRepository) RevokeToken(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[tokenHash]; !ok || r.revoked[tokenHash] {
		return ErrRefreshTokenNotFound
	}
	r.revoked[tokenHash] = true
	return nil
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }
