package profile

import (
	"context"
	"sync"
)

// MemoryRepository keeps cached profiles in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[int64]User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[int64]User)}
}

func (r *MemoryRepository) GetUser(_ context.Context, id int64) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotCached
	}
	return u, nil
}

func (r *MemoryRepository) UpsertUser(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *MemoryRepository) DeleteUser(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

func (r *MemoryRepository) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = make(map[int64]User)
	return nil
}

func (r *MemoryRepository) Close() error { return nil }
