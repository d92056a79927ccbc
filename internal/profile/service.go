// Package profile serves the signed-in user's profile from a local cache backed
// by the messenger backend.
package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/abduss/messenger/internal/api"
	"github.com/abduss/messenger/internal/credentials"
	"github.com/abduss/messenger/internal/result"
	"go.uber.org/zap"
)

// Repository is a profile cache keyed by user id. GetUser returns ErrUserNotCached
// when no row exists.
type Repository interface {
	GetUser(ctx context.Context, id int64) (User, error)
	UpsertUser(ctx context.Context, user User) error
	DeleteUser(ctx context.Context, id int64) error
	Clear(ctx context.Context) error
	Close() error
}

type userClient interface {
	GetCurrentUser(ctx context.Context) (api.UserDTO, error)
	UpdateUser(ctx context.Context, req api.UpdateUserRequest) (api.UpdateUserResponse, error)
}

type credentialSource interface {
	Snapshot() credentials.Snapshot
	Subscribe(ctx context.Context) <-chan credentials.Snapshot
}

// Service implements the profile use cases.
type Service struct {
	client userClient
	creds  credentialSource
	cache  Repository
	logger *zap.Logger

	watchMu  sync.Mutex
	watchers map[int]chan struct{}
	nextID   int
}

// NewService creates a Service with dependencies.
func NewService(client userClient, creds credentialSource, cache Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:   client,
		creds:    creds,
		cache:    cache,
		logger:   logger,
		watchers: make(map[int]chan struct{}),
	}
}

// GetCurrentUser returns the cached profile unless forceRefresh is set or nothing is
// cached, in which case it is fetched and written to the cache.
func (s *Service) GetCurrentUser(ctx context.Context, forceRefresh bool) result.Result[User] {
	return result.Run(func() (User, error) {
		userID, err := s.currentUserID()
		if err != nil {
			return User{}, err
		}

		if !forceRefresh {
			cached, err := s.cache.GetUser(ctx, userID)
			switch {
			case err == nil:
				return cached, nil
			case !errors.Is(err, ErrUserNotCached):
				s.logger.Warn("read profile cache", zap.Int64("user_id", userID), zap.Error(err))
			}
		}

		return s.fetchAndCache(ctx)
	})
}

// UpdateUser sends the edited fields with the cached username, then re-fetches the
// profile and caches it.
func (s *Service) UpdateUser(ctx context.Context, in UpdateInput) result.Result[User] {
	return result.Run(func() (User, error) {
		if in.Name == "" {
			return User{}, &result.ValidationError{Field: "name", Reason: "must not be blank"}
		}
		userID, err := s.currentUserID()
		if err != nil {
			return User{}, err
		}
		cached, err := s.cache.GetUser(ctx, userID)
		if err != nil {
			return User{}, fmt.Errorf("update user: %w", err)
		}

		req := api.UpdateUserRequest{
			Name:     in.Name,
			Username: cached.Username,
			Birthday: in.Birthday,
			City:     in.City,
			Status:   in.About,
			Avatar:   in.avatar(),
		}
		if _, err := s.client.UpdateUser(ctx, req); err != nil {
			return User{}, fmt.Errorf("update user: %w", err)
		}

		return s.fetchAndCache(ctx)
	})
}

// ObserveCurrentUser streams the cached profile of whichever user is signed in.
// nil is sent while nobody is signed in or nothing is cached. The stream follows
// credential changes and cache writes made through s, keeps only the latest value
// for slow readers, and closes when ctx is done.
func (s *Service) ObserveCurrentUser(ctx context.Context) <-chan *User {
	out := make(chan *User, 1)
	creds := s.creds.Subscribe(ctx)
	changed, cancel := s.watch()

	go func() {
		defer close(out)
		defer cancel()

		var userID int64
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-creds:
				if !ok {
					return
				}
				userID = snap.UserID
			case <-changed:
			}
			deliverLatest(out, s.lookup(ctx, userID))
		}
	}()
	return out
}

// ClearCache drops every cached profile.
func (s *Service) ClearCache(ctx context.Context) error {
	if err := s.cache.Clear(ctx); err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *Service) fetchAndCache(ctx context.Context) (User, error) {
	dto, err := s.client.GetCurrentUser(ctx)
	if err != nil {
		return User{}, fmt.Errorf("get current user: %w", err)
	}
	user := fromDTO(dto)
	if err := s.cache.UpsertUser(ctx, user); err != nil {
		return User{}, fmt.Errorf("cache user: %w", err)
	}
	s.notify()
	return user, nil
}

func (s *Service) currentUserID() (int64, error) {
	snap := s.creds.Snapshot()
	if !snap.HasUser() {
		return 0, result.ErrNotAuthenticated
	}
	return snap.UserID, nil
}

func (s *Service) lookup(ctx context.Context, userID int64) *User {
	if userID == 0 {
		return nil
	}
	u, err := s.cache.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrUserNotCached) {
			s.logger.Warn("read profile cache", zap.Int64("user_id", userID), zap.Error(err))
		}
		return nil
	}
	return &u
}

func (s *Service) watch() (<-chan struct{}, func()) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan struct{}, 1)
	s.watchers[id] = ch
	return ch, func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		delete(s.watchers, id)
	}
}

func (s *Service) notify() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func deliverLatest(out chan *User, u *User) {
	for {
		select {
		case out <- u:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}
