package api

// SendAuthCodeRequest starts phone authentication.
type SendAuthCodeRequest struct {
	Phone string `json:"phone"`
}

type SendAuthCodeResponse struct {
	IsSuccess bool `json:"is_success"`
}

type CheckAuthCodeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// CheckAuthCodeResponse carries the issued tokens. Empty strings and a zero UserID
// mean the backend did not send the field.
type CheckAuthCodeResponse struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	UserID       int64  `json:"user_id,omitempty"`
	IsUserExists bool   `json:"is_user_exists"`
}

type RegisterRequest struct {
	Phone    string `json:"phone"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type RegisterResponse struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	UserID       int64  `json:"user_id,omitempty"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshTokenResponse may omit user_id.
type RefreshTokenResponse struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	UserID       int64  `json:"user_id,omitempty"`
}

// Avatars lists the rendered avatar URLs of a profile.
type Avatars struct {
	Avatar     *string `json:"avatar,omitempty"`
	BigAvatar  string  `json:"bigAvatar"`
	MiniAvatar string  `json:"miniAvatar"`
}

// UserDTO is the profile as the backend sends it.
type UserDTO struct {
	ID            int64    `json:"id"`
	Phone         string   `json:"phone"`
	Username      string   `json:"username"`
	Name          string   `json:"name"`
	Birthday      *string  `json:"birthday,omitempty"`
	City          *string  `json:"city,omitempty"`
	VK            *string  `json:"vk,omitempty"`
	Instagram     *string  `json:"instagram,omitempty"`
	Status        *string  `json:"status,omitempty"`
	Avatar        *string  `json:"avatar,omitempty"`
	Online        bool     `json:"online"`
	Last          *string  `json:"last,omitempty"`
	Created       *string  `json:"created,omitempty"`
	CompletedTask int      `json:"completed_task"`
	Avatars       *Avatars `json:"avatars,omitempty"`
}

// ProfileData is the envelope of GET /me.
type ProfileData struct {
	ProfileData UserDTO `json:"profile_data"`
}

// AvatarData uploads an avatar. Both fields empty removes the current avatar.
type AvatarData struct {
	Filename string `json:"filename"`
	Base64   string `json:"base_64"`
}

// RemoveAvatar is the payload that clears the avatar.
func RemoveAvatar() *AvatarData {
	return &AvatarData{}
}

// IsRemoval reports whether the payload asks to clear the avatar.
func (a AvatarData) IsRemoval() bool {
	return a.Filename == "" && a.Base64 == ""
}

type UpdateUserRequest struct {
	Name      string      `json:"name"`
	Username  string      `json:"username,omitempty"`
	Birthday  *string     `json:"birthday,omitempty"`
	City      *string     `json:"city,omitempty"`
	VK        *string     `json:"vk,omitempty"`
	Instagram *string     `json:"instagram,omitempty"`
	Status    *string     `json:"status,omitempty"`
	Avatar    *AvatarData `json:"avatar,omitempty"`
}

// UpdateUserResponse may carry only the avatars; callers re-fetch the profile.
type UpdateUserResponse struct {
	ProfileData *UserDTO `json:"profile_data,omitempty"`
	Avatars     *Avatars `json:"avatars,omitempty"`
}
