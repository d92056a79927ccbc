package auth

// AuthResult is the outcome of a successful code check or registration.
// IsUserExists false means the phone is verified but the caller must register.
type AuthResult struct {
	UserID       int64
	IsUserExists bool
}
