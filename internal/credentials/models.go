package credentials

// Snapshot is a point-in-time view of the stored credentials.
// Empty strings and a zero UserID mean "absent".
type Snapshot struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	UserID       int64  `json:"user_id,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

// IsAuthenticated reports whether an access token is present.
func (s Snapshot) IsAuthenticated() bool {
	return s.AccessToken != ""
}

// HasUser reports whether a user identifier is present.
func (s Snapshot) HasUser() bool {
	return s.UserID != 0
}
