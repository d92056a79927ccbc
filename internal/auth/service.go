// Package auth implements phone sign-in and registration on top of the backend
// client and the credential store.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/abduss/messenger/internal/api"
	"github.com/abduss/messenger/internal/credentials"
	"github.com/abduss/messenger/internal/result"
	"go.uber.org/zap"
)

// backendClient abstracts the auth endpoints.
type backendClient interface {
	SendAuthCode(ctx context.Context, phone string) (api.SendAuthCodeResponse, error)
	CheckAuthCode(ctx context.Context, phone, code string) (api.CheckAuthCodeResponse, error)
	Register(ctx context.Context, req api.RegisterRequest) (api.RegisterResponse, error)
}

type credentialStore interface {
	Snapshot() credentials.Snapshot
	Save(ctx context.Context, accessToken, refreshToken string, userID int64) error
	SavePhone(ctx context.Context, phone string) error
	Clear(ctx context.Context) error
}

// Service encapsulates the sign-in use cases.
type Service struct {
	client backendClient
	store  credentialStore
	logger *zap.Logger
}

// NewService creates a Service with dependencies.
func NewService(client backendClient, store credentialStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, store: store, logger: logger}
}

// SendAuthCode validates phone, asks the backend to send a code and remembers the phone.
func (s *Service) SendAuthCode(ctx context.Context, phone string) result.Result[struct{}] {
	return result.Run(func() (struct{}, error) {
		if err := ValidatePhone(phone); err != nil {
			return struct{}{}, err
		}
		phone = NormalizePhone(phone)

		resp, err := s.client.SendAuthCode(ctx, phone)
		if err != nil {
			return struct{}{}, fmt.Errorf("send auth code: %w", err)
		}
		if !resp.IsSuccess {
			return struct{}{}, ErrCodeNotSent
		}
		if err := s.store.SavePhone(ctx, phone); err != nil {
			s.logger.Warn("remember phone", zap.Error(err))
		}
		return struct{}{}, nil
	})
}

// CheckAuthCode verifies code and stores the issued tokens. A phone without an account
// yields IsUserExists false and leaves the store untouched when no tokens are sent.
func (s *Service) CheckAuthCode(ctx context.Context, phone, code string) result.Result[AuthResult] {
	return result.Run(func() (AuthResult, error) {
		if err := ValidatePhone(phone); err != nil {
			return AuthResult{}, err
		}
		if err := ValidateCode(code); err != nil {
			return AuthResult{}, err
		}

		resp, err := s.client.CheckAuthCode(ctx, NormalizePhone(phone), strings.TrimSpace(code))
		if err != nil {
			return AuthResult{}, fmt.Errorf("check auth code: %w", err)
		}
		if !resp.IsUserExists && resp.AccessToken == "" && resp.RefreshToken == "" {
			return AuthResult{IsUserExists: false}, nil
		}
		if err := s.persist(ctx, resp.AccessToken, resp.RefreshToken, resp.UserID); err != nil {
			return AuthResult{}, fmt.Errorf("check auth code: %w", err)
		}
		return AuthResult{UserID: resp.UserID, IsUserExists: resp.IsUserExists}, nil
	})
}

// Register creates the account for a verified phone and stores the issued tokens.
func (s *Service) Register(ctx context.Context, phone, name, username string) result.Result[AuthResult] {
	return result.Run(func() (AuthResult, error) {
		if err := ValidatePhone(phone); err != nil {
			return AuthResult{}, err
		}
		if err := ValidateName(name); err != nil {
			return AuthResult{}, err
		}
		if err := ValidateUsername(username); err != nil {
			return AuthResult{}, err
		}

		resp, err := s.client.Register(ctx, api.RegisterRequest{
			Phone:    NormalizePhone(phone),
			Name:     strings.TrimSpace(name),
			Username: username,
		})
		if err != nil {
			return AuthResult{}, fmt.Errorf("register: %w", err)
		}
		if err := s.persist(ctx, resp.AccessToken, resp.RefreshToken, resp.UserID); err != nil {
			return AuthResult{}, fmt.Errorf("register: %w", err)
		}
		return AuthResult{UserID: resp.UserID, IsUserExists: true}, nil
	})
}

// IsAuthenticated reports whether an access token is stored.
func (s *Service) IsAuthenticated() bool {
	return s.store.Snapshot().IsAuthenticated()
}

// Logout forgets the tokens and the user id. The phone is kept for pre-fill.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.logger.Info("signed out")
	return nil
}

// Phone returns the last phone used to start sign-in, or "".
func (s *Service) Phone() string {
	return s.store.Snapshot().Phone
}

func (s *Service) SavePhone(ctx context.Context, phone string) error {
	return s.store.SavePhone(ctx, NormalizePhone(phone))
}

func (s *Service) persist(ctx context.Context, accessToken, refreshToken string, userID int64) error {
	if accessToken == "" || refreshToken == "" || userID == 0 {
		return fmt.Errorf("token response: %w", result.ErrMalformedResponse)
	}
	if err := s.store.Save(ctx, accessToken, refreshToken, userID); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	s.logger.Info("signed in", zap.Int64("user_id", userID))
	return nil
}
