// Package backend is a development implementation of the messenger backend: phone
// sign-in with one-time codes, JWT access tokens with rotating refresh tokens, and
// the signed-in user's profile with avatar storage.
package backend

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/abduss/messenger/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	refreshTokenLength = 48
	authCodeDigits     = 6
	maxAvatarSize      = 5 << 20
	issuer             = "messenger-devapi"
	audience           = "messenger"
)

// UserStore abstracts the persistence layer.
type UserStore interface {
	CreateUser(ctx context.Context, phone, name, username string) (User, error)
	FindUserByID(ctx context.Context, id int64) (User, error)
	FindUserByPhone(ctx context.Context, phone string) (User, error)
	UpdateUser(ctx context.Context, user User) (User, error)
	SaveAuthCode(ctx context.Context, code AuthCode) error
	FindAuthCode(ctx context.Context, phone string) (AuthCode, error)
	DeleteAuthCode(ctx context.Context, phone string) error
	StoreRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	FindRefreshToken(ctx context.Context, tokenHash string) (RefreshToken, error)
	// RevokeToken revokes an active token and returns ErrRefreshTokenNotFound when
	// there is none, so a token is exchanged at most once.
	RevokeToken(ctx context.Context, tokenHash string) error
}

// AvatarStore keeps avatar images by object key.
type AvatarStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Remove(ctx context.Context, key string) error
	URL(ctx context.Context, key string) (string, error)
}

// CodeSender delivers auth codes to the phone owner.
type CodeSender interface {
	Send(ctx context.Context, phone, code string) error
}

// LogCodeSender writes codes to the log instead of sending an SMS.
type LogCodeSender struct {
	Logger *zap.Logger
}

func (s LogCodeSender) Send(_ context.Context, phone, code string) error {
	s.Logger.Info("auth code issued", zap.String("phone", phone), zap.String("code", code))
	return nil
}

// Service encapsulates the backend use cases.
type Service struct {
	store    UserStore
	avatars  AvatarStore
	sender   CodeSender
	cfg      config.AuthConfig
	nowFunc  func() time.Time
	idIssuer string
}

// NewService creates a Service with dependencies.
func NewService(store UserStore, avatars AvatarStore, sender CodeSender, cfg config.AuthConfig) *Service {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 5 * time.Minute
	}
	return &Service{
		store:    store,
		avatars:  avatars,
		sender:   sender,
		cfg:      cfg,
		nowFunc:  time.Now,
		idIssuer: issuer,
	}
}

// AuthResult contains user and token information. Tokens is nil when the phone was
// verified but has no account yet.
type AuthResult struct {
	User         User
	Tokens       *TokenPair
	IsUserExists bool
}

// RegisterInput carries data for user registration.
type RegisterInput struct {
	Phone    string
	Name     string
	Username string
}

// UpdateInput replaces the editable profile fields. Avatar nil keeps the current
// avatar; an avatar with empty filename and data removes it.
type UpdateInput struct {
	Name      string
	Username  string
	Birthday  *string
	City      *string
	VK        *string
	Instagram *string
	Status    *string
	Avatar    *AvatarUpload
}

// AvatarUpload is a base64 encoded image.
type AvatarUpload struct {
	Filename string
	Base64   string
}

// UserClaims describes the validated identity extracted from an access token.
type UserClaims struct {
	UserID    int64
	Phone     string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// SendAuthCode issues a code for phone and delivers it.
func (s *Service) SendAuthCode(ctx context.Context, phone string) error {
	phone, err := normalizePhone(phone)
	if err != nil {
		return err
	}

	code := s.cfg.DevCode
	if code == "" {
		if code, err = randomCode(authCodeDigits); err != nil {
			return fmt.Errorf("generate auth code: %w", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash auth code: %w", err)
	}

	if err := s.store.SaveAuthCode(ctx, AuthCode{
		Phone:     phone,
		CodeHash:  string(hash),
		ExpiresAt: s.nowFunc().Add(s.cfg.CodeTTL),
	}); err != nil {
		return fmt.Errorf("save auth code: %w", err)
	}

	if err := s.sender.Send(ctx, phone, code); err != nil {
		return fmt.Errorf("deliver auth code: %w", err)
	}
	return nil
}

// CheckAuthCode verifies code. Existing users get a token pair; unknown phones are
// marked verified so they can register.
func (s *Service) CheckAuthCode(ctx context.Context, phone, code string) (AuthResult, error) {
	phone, err := normalizePhone(phone)
	if err != nil {
		return AuthResult{}, err
	}

	pending, err := s.store.FindAuthCode(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrAuthCodeNotFound) {
			return AuthResult{}, ErrInvalidCode
		}
		return AuthResult{}, fmt.Errorf("find auth code: %w", err)
	}
	if pending.ExpiresAt.Before(s.nowFunc()) {
		return AuthResult{}, ErrInvalidCode
	}
	if err := bcrypt.CompareHashAndPassword([]byte(pending.CodeHash), []byte(strings.TrimSpace(code))); err != nil {
		return AuthResult{}, ErrInvalidCode
	}

	user, err := s.store.FindUserByPhone(ctx, phone)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, fmt.Errorf("find user: %w", err)
		}
		pending.Verified = true
		if err := s.store.SaveAuthCode(ctx, pending); err != nil {
			return AuthResult{}, fmt.Errorf("mark phone verified: %w", err)
		}
		return AuthResult{IsUserExists: false}, nil
	}

	if err := s.store.DeleteAuthCode(ctx, phone); err != nil {
		return AuthResult{}, fmt.Errorf("delete auth code: %w", err)
	}
	result, err := s.issueTokens(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}
	result.IsUserExists = true
	return result, nil
}

// Register creates the account for a phone verified by CheckAuthCode.
func (s *Service) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	phone, err := normalizePhone(input.Phone)
	if err != nil {
		return AuthResult{}, err
	}
	name := strings.TrimSpace(input.Name)
	if err := validateProfile(name, input.Username); err != nil {
		return AuthResult{}, err
	}

	pending, err := s.store.FindAuthCode(ctx, phone)
	if err != nil || !pending.Verified || pending.ExpiresAt.Before(s.nowFunc()) {
		if err != nil && !errors.Is(err, ErrAuthCodeNotFound) {
			return AuthResult{}, fmt.Errorf("find auth code: %w", err)
		}
		return AuthResult{}, ErrPhoneNotVerified
	}

	user, err := s.store.CreateUser(ctx, phone, name, input.Username)
	if err != nil {
		if errors.Is(err, ErrPhoneAlreadyExists) || errors.Is(err, ErrUsernameTaken) {
			return AuthResult{}, err
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}
	if err := s.store.DeleteAuthCode(ctx, phone); err != nil {
		return AuthResult{}, fmt.Errorf("delete auth code: %w", err)
	}

	result, err := s.issueTokens(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}
	result.IsUserExists = true
	return result, nil
}

// Refresh exchanges a refresh token for a new pair and revokes the old one.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return AuthResult{}, ErrInvalidRefreshToken
	}
	hash := hashRefreshToken(refreshToken, s.cfg.RefreshTokenSecret)

	stored, err := s.store.FindRefreshToken(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return AuthResult{}, ErrInvalidRefreshToken
		}
		return AuthResult{}, fmt.Errorf("find refresh token: %w", err)
	}
	if stored.ExpiresAt.Before(s.nowFunc()) {
		return AuthResult{}, ErrInvalidRefreshToken
	}
	if err := s.store.RevokeToken(ctx, hash); err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return AuthResult{}, ErrInvalidRefreshToken
		}
		return AuthResult{}, fmt.Errorf("revoke refresh token: %w", err)
	}

	user, err := s.store.FindUserByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, ErrInvalidRefreshToken
		}
		return AuthResult{}, fmt.Errorf("find user: %w", err)
	}
	result, err := s.issueTokens(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}
	result.IsUserExists = true
	return result, nil
}

// ValidateAccessToken verifies the token signature and extracts user claims.
func (s *Service) ValidateAccessToken(tokenString string) (UserClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return UserClaims{}, ErrUnauthorized
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(s.nowFunc),
		jwt.WithAudience(audience),
		jwt.WithIssuer(s.idIssuer),
		jwt.WithExpirationRequired(),
	)
	parsed, err := parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.AccessTokenSecret), nil
	})
	if err != nil || !parsed.Valid {
		return UserClaims{}, ErrUnauthorized
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return UserClaims{}, ErrUnauthorized
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return UserClaims{}, ErrUnauthorized
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return UserClaims{}, ErrUnauthorized
	}

	phone, _ := claims["phone"].(string)
	out := UserClaims{UserID: userID, Phone: phone}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	return out, nil
}

// GetProfile returns the user's profile with a fresh avatar URL.
func (s *Service) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return s.resolve(ctx, user)
}

// UpdateProfile replaces the editable fields and applies the avatar change.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, input UpdateInput) (Profile, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}

	name := strings.TrimSpace(input.Name)
	username := input.Username
	if username == "" {
		username = user.Username
	}
	if err := validateProfile(name, username); err != nil {
		return Profile{}, err
	}

	user.Name = name
	user.Username = username
	user.Birthday = input.Birthday
	user.City = input.City
	user.VK = input.VK
	user.Instagram = input.Instagram
	user.Status = input.Status

	var staleKey *string
	if input.Avatar != nil {
		staleKey = user.AvatarKey
		if input.Avatar.Filename == "" && input.Avatar.Base64 == "" {
			user.AvatarKey = nil
		} else {
			key, err := s.storeAvatar(ctx, userID, *input.Avatar)
			if err != nil {
				return Profile{}, err
			}
			user.AvatarKey = &key
		}
	}

	updated, err := s.store.UpdateUser(ctx, user)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return Profile{}, err
		}
		return Profile{}, fmt.Errorf("update user: %w", err)
	}

	if staleKey != nil {
		// best effort; the profile no longer references it
		_ = s.avatars.Remove(ctx, *staleKey)
	}
	return s.resolve(ctx, updated)
}

func (s *Service) storeAvatar(ctx context.Context, userID int64, upload AvatarUpload) (string, error) {
	data, err := base64.StdEncoding.DecodeString(upload.Base64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAvatar, err)
	}
	if len(data) == 0 || len(data) > maxAvatarSize {
		return "", fmt.Errorf("%w: size %d", ErrInvalidAvatar, len(data))
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: content type %s", ErrInvalidAvatar, contentType)
	}

	key := fmt.Sprintf("avatars/%d/%s%s", userID, uuid.NewString(), strings.ToLower(path.Ext(upload.Filename)))
	if err := s.avatars.Put(ctx, key, contentType, data); err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}
	return key, nil
}

func (s *Service) resolve(ctx context.Context, user User) (Profile, error) {
	profile := Profile{User: user}
	if user.AvatarKey != nil {
		url, err := s.avatars.URL(ctx, *user.AvatarKey)
		if err != nil {
			return Profile{}, fmt.Errorf("avatar url: %w", err)
		}
		profile.AvatarURL = &url
	}
	return profile, nil
}

func (s *Service) issueTokens(ctx context.Context, user User) (AuthResult, error) {
	now := s.nowFunc()

	accessToken, accessExpiry, err := s.generateAccessToken(user, now)
	if err != nil {
		return AuthResult{}, fmt.Errorf("generate access token: %w", err)
	}

	refreshToken, refreshExpiry, err := s.generateRefreshToken(now)
	if err != nil {
		return AuthResult{}, fmt.Errorf("generate refresh token: %w", err)
	}

	refreshHash := hashRefreshToken(refreshToken, s.cfg.RefreshTokenSecret)
	if err := s.store.StoreRefreshToken(ctx, user.ID, refreshHash, refreshExpiry); err != nil {
		return AuthResult{}, fmt.Errorf("store refresh token: %w", err)
	}

	return AuthResult{
		User: user,
		Tokens: &TokenPair{
			AccessToken:        accessToken,
			AccessTokenExpiry:  accessExpiry,
			RefreshToken:       refreshToken,
			RefreshTokenExpiry: refreshExpiry,
		},
	}, nil
}

func (s *Service) generateAccessToken(user User, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.cfg.AccessTokenTTL)
	claims := jwt.MapClaims{
		"sub":   strconv.FormatInt(user.ID, 10),
		"iss":   s.idIssuer,
		"aud":   audience,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
		"jti":   uuid.NewString(),
		"phone": user.Phone,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

func (s *Service) generateRefreshToken(now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.cfg.RefreshTokenTTL)

	raw := make([]byte, refreshTokenLength)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, err
	}

	token := base64.RawURLEncoding.EncodeToString(raw)
	return token, expiresAt, nil
}

func hashRefreshToken(token, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func randomCode(digits int) (string, error) {
	var b strings.Builder
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// normalizePhone keeps a leading '+' and the digits.
func normalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	if strings.HasPrefix(phone, "+") {
		b.WriteByte('+')
	}
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			digits++
		}
	}
	if digits < 10 || digits > 15 {
		return "", ErrInvalidPhone
	}
	return b.String(), nil
}

func validateProfile(name, username string) error {
	if name == "" {
		return fmt.Errorf("%w: name must not be blank", ErrInvalidProfile)
	}
	if username == "" {
		return fmt.Errorf("%w: username must not be blank", ErrInvalidProfile)
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return fmt.Errorf("%w: username may contain only letters, digits, '-' and '_'", ErrInvalidProfile)
		}
	}
	return nil
}
