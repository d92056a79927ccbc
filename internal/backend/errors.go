package backend

import "errors"

var (
	// ErrInvalidPhone rejects phone numbers that are not 10 to 15 digits.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrInvalidProfile rejects a blank name or a malformed username.
	ErrInvalidProfile = errors.New("invalid profile data")
	// ErrInvalidCode is returned when the auth code is wrong, expired or was never sent.
	ErrInvalidCode = errors.New("invalid or expired auth code")
	// ErrPhoneNotVerified is returned by registration without a prior successful code check.
	ErrPhoneNotVerified = errors.New("phone is not verified")
	// ErrPhoneAlreadyExists indicates the phone is already registered.
	ErrPhoneAlreadyExists = errors.New("phone already registered")
	// ErrUsernameTaken indicates another user owns the username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrUserNotFound signals that the user could not be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrAuthCodeNotFound signals that no code is pending for the phone.
	ErrAuthCodeNotFound = errors.New("auth code not found")
	// ErrRefreshTokenNotFound means the refresh token is unknown or already revoked.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrInvalidRefreshToken is returned when a refresh token cannot be exchanged.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrUnauthorized represents missing or invalid access tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidAvatar rejects avatar payloads that are not base64 images within the size limit.
	ErrInvalidAvatar = errors.New("invalid avatar")
)
