package backend

import (
	"time"
)

// User represents a registered account.
type User struct {
	ID        int64
	Phone     string
	Username  string
	Name      string
	Birthday  *string
	City      *string
	VK        *string
	Instagram *string
	Status    *string
	// AvatarKey is the object key of the current avatar, nil when none is set.
	AvatarKey *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is a user with its avatar resolved to a URL.
type Profile struct {
	User
	AvatarURL *string
}

// TokenPair bundles access and refresh tokens.
type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

// AuthCode is a pending verification for a phone. Verified is set once the code was
// checked for a phone without an account, which allows registration.
type AuthCode struct {
	Phone     string
	CodeHash  string
	ExpiresAt time.Time
	Verified  bool
}

// RefreshToken is the stored form of an issued refresh token.
type RefreshToken struct {
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
}
