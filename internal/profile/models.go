package profile

import (
	"github.com/abduss/messenger/internal/api"
)

// User is the signed-in user's profile.
type User struct {
	ID       int64
	Phone    string
	Username string
	Name     string
	Birthday *string
	City     *string
	Avatar   *string
	// About is sent and received as "status".
	About *string
}

// Zodiac derives the sign from Birthday.
func (u User) Zodiac() ZodiacSign {
	if u.Birthday == nil {
		return ZodiacNone
	}
	return ZodiacFromDate(*u.Birthday)
}

// UpdateInput carries the editable profile fields. The username is never edited;
// UpdateUser takes it from the cached profile.
type UpdateInput struct {
	Name     string
	Birthday *string
	City     *string
	About    *string
	// AvatarFilename and AvatarBase64 upload a new avatar when both are set.
	AvatarFilename string
	AvatarBase64   string
	// RemoveAvatar clears the avatar and wins over a selected image.
	RemoveAvatar bool
}

func (in UpdateInput) avatar() *api.AvatarData {
	switch {
	case in.RemoveAvatar:
		return api.RemoveAvatar()
	case in.AvatarFilename != "" && in.AvatarBase64 != "":
		return &api.AvatarData{Filename: in.AvatarFilename, Base64: in.AvatarBase64}
	default:
		return nil
	}
}

func fromDTO(dto api.UserDTO) User {
	return User{
		ID:       dto.ID,
		Phone:    dto.Phone,
		Username: dto.Username,
		Name:     dto.Name,
		Birthday: dto.Birthday,
		City:     dto.City,
		Avatar:   dto.Avatar,
		About:    dto.Status,
	}
}
