// Package credentials keeps the access/refresh token pair, the signed-in user id
// and the last phone number used to start authentication.
package credentials

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// backend persists snapshots. Persist must be durable when it returns nil.
type backend interface {
	Load() (Snapshot, error)
	Persist(snap Snapshot) error
}

// Store is the process-wide credential holder. Construct one with NewFileStore or
// NewMemoryStore and pass it to every component that needs it.
type Store struct {
	// writeMu serializes mutations and reloads so disk I/O happens outside mu.
	writeMu sync.Mutex
	mu      sync.RWMutex
	current Snapshot
	backend backend
	closed  bool

	subsMu sync.Mutex
	subs   map[int]chan Snapshot
	nextID int

	done      chan struct{}
	closeOnce sync.Once
	stop      func() error
	logger    *zap.Logger
}

func newStore(b backend, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	initial, err := b.Load()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return &Store{
		current: initial,
		backend: b,
		subs:    make(map[int]chan Snapshot),
		done:    make(chan struct{}),
		logger:  logger,
	}, nil
}

// Snapshot returns the current credentials without touching the network or disk.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// IsAuthenticated reports whether an access token is stored.
func (s *Store) IsAuthenticated() bool {
	return s.Snapshot().IsAuthenticated()
}

// Subscribe streams snapshots. The current value is delivered immediately and a slow
// reader only ever sees the latest one. The channel is closed when ctx is done or the
// store is closed.
func (s *Store) Subscribe(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 1)

	s.mu.RLock()
	s.subsMu.Lock()
	if s.closed {
		s.subsMu.Unlock()
		s.mu.RUnlock()
		close(ch)
		return ch
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	ch <- s.current
	s.subsMu.Unlock()
	s.mu.RUnlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.subsMu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.subsMu.Unlock()
	}()

	return ch
}

// Save stores the token pair and user id as one unit.
func (s *Store) Save(ctx context.Context, accessToken, refreshToken string, userID int64) error {
	if accessToken == "" || refreshToken == "" {
		return ErrEmptyToken
	}
	return s.update(ctx, "save", func(snap *Snapshot) {
		snap.AccessToken = accessToken
		snap.RefreshToken = refreshToken
		snap.UserID = userID
	})
}

// UpdateTokens replaces the token pair and leaves the user id untouched.
func (s *Store) UpdateTokens(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" || refreshToken == "" {
		return ErrEmptyToken
	}
	return s.update(ctx, "update tokens", func(snap *Snapshot) {
		snap.AccessToken = accessToken
		snap.RefreshToken = refreshToken
	})
}

// UpdateAccessToken replaces only the access token.
func (s *Store) UpdateAccessToken(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return ErrEmptyToken
	}
	return s.update(ctx, "update access token", func(snap *Snapshot) {
		snap.AccessToken = accessToken
	})
}

// SavePhone remembers the phone number used to start authentication.
func (s *Store) SavePhone(ctx context.Context, phone string) error {
	return s.update(ctx, "save phone", func(snap *Snapshot) {
		snap.Phone = phone
	})
}

// Clear removes the access token, refresh token and user id together. The phone is kept.
func (s *Store) Clear(ctx context.Context) error {
	return s.update(ctx, "clear", func(snap *Snapshot) {
		snap.AccessToken = ""
		snap.RefreshToken = ""
		snap.UserID = 0
	})
}

// Close stops watching for external changes and closes all subscriptions.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.writeMu.Unlock()

		close(s.done)
		if s.stop != nil {
			err = s.stop()
		}
	})
	return err
}

func (s *Store) update(ctx context.Context, op string, mutate func(*Snapshot)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	closed, prev := s.closed, s.current
	s.mu.RUnlock()
	if closed {
		return ErrStoreClosed
	}

	next := prev
	mutate(&next)
	if next == prev {
		return nil
	}

	if err := s.backend.Persist(next); err != nil {
		return fmt.Errorf("%s credentials: %w", op, err)
	}

	s.swap(next)
	s.logger.Debug("credentials updated", zap.String("op", op), zap.Bool("authenticated", next.IsAuthenticated()))
	return nil
}

// reload re-reads the backend after an external change.
func (s *Store) reload() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	closed, prev := s.closed, s.current
	s.mu.RUnlock()
	if closed {
		return
	}

	snap, err := s.backend.Load()
	if err != nil {
		s.logger.Warn("reload credentials", zap.Error(err))
		return
	}
	if snap == prev {
		return
	}
	s.swap(snap)
	s.logger.Info("credentials changed externally", zap.Bool("authenticated", snap.IsAuthenticated()))
}

// swap installs snap and publishes it. Call with s.writeMu held.
func (s *Store) swap(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = snap
	s.publish(snap)
}

// publish must be called with s.mu held for writing.
func (s *Store) publish(snap Snapshot) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
