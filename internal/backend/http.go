package backend

import (
	"errors"
	"net/http"
	"strings"

	"github.com/abduss/messenger/internal/api"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterRoutes mounts the user endpoints under /api/v1/users.
func RegisterRoutes(router gin.IRouter, service *Service) {
	handler := &httpHandler{service: service}
	users := router.Group("/api/v1/users")
	{
		users.POST("/send-auth-code/", handler.sendAuthCode)
		users.POST("/check-auth-code/", handler.checkAuthCode)
		users.POST("/register/", handler.register)
		users.POST("/refresh-token/", handler.refreshToken)

		me := users.Group("/me")
		me.Use(AuthMiddleware(service))
		me.GET("/", handler.getMe)
		me.PUT("/", handler.updateMe)
	}
}

// RegisterMediaRoutes serves avatars kept in memory under prefix.
func RegisterMediaRoutes(router gin.IRouter, prefix string, store *MemoryAvatarStore) {
	router.GET(strings.TrimRight(prefix, "/")+"/*key", func(c *gin.Context) {
		contentType, data, ok := store.Open(strings.TrimPrefix(c.Param("key"), "/"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"detail": "not found"})
			return
		}
		c.Data(http.StatusOK, contentType, data)
	})
}

type httpHandler struct {
	service *Service
}

func (h *httpHandler) sendAuthCode(c *gin.Context) {
	var req api.SendAuthCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	if err := h.service.SendAuthCode(c.Request.Context(), req.Phone); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, api.SendAuthCodeResponse{IsSuccess: true})
}

func (h *httpHandler) checkAuthCode(c *gin.Context) {
	var req api.CheckAuthCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	result, err := h.service.CheckAuthCode(c.Request.Context(), req.Phone, req.Code)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := api.CheckAuthCodeResponse{IsUserExists: result.IsUserExists}
	if result.Tokens != nil {
		resp.AccessToken = result.Tokens.AccessToken
		resp.RefreshToken = result.Tokens.RefreshToken
		resp.UserID = result.User.ID
	}
	c.JSON(http.StatusOK, resp)
}

func (h *httpHandler) register(c *gin.Context) {
	var req api.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	result, err := h.service.Register(c.Request.Context(), RegisterInput{
		Phone:    req.Phone,
		Name:     req.Name,
		Username: req.Username,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, api.RegisterResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		UserID:       result.User.ID,
	})
}

func (h *httpHandler) refreshToken(c *gin.Context) {
	var req api.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	result, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.RefreshTokenResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		UserID:       result.User.ID,
	})
}

func (h *httpHandler) getMe(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "unauthorized"})
		return
	}

	profile, err := h.service.GetProfile(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ProfileData{ProfileData: marshalProfile(profile)})
}

func (h *httpHandler) updateMe(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "unauthorized"})
		return
	}

	var req api.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	input := UpdateInput{
		Name:      req.Name,
		Username:  req.Username,
		Birthday:  req.Birthday,
		City:      req.City,
		VK:        req.VK,
		Instagram: req.Instagram,
		Status:    req.Status,
	}
	if req.Avatar != nil {
		input.Avatar = &AvatarUpload{Filename: req.Avatar.Filename, Base64: req.Avatar.Base64}
	}

	profile, err := h.service.UpdateProfile(c.Request.Context(), user.ID, input)
	if err != nil {
		writeError(c, err)
		return
	}

	dto := marshalProfile(profile)
	c.JSON(http.StatusOK, api.UpdateUserResponse{ProfileData: &dto, Avatars: dto.Avatars})
}

func marshalProfile(p Profile) api.UserDTO {
	dto := api.UserDTO{
		ID:        p.ID,
		Phone:     p.Phone,
		Username:  p.Username,
		Name:      p.Name,
		Birthday:  p.Birthday,
		City:      p.City,
		VK:        p.VK,
		Instagram: p.Instagram,
		Status:    p.Status,
		Avatar:    p.AvatarURL,
		Online:    true,
	}
	if !p.CreatedAt.IsZero() {
		created := p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")
		dto.Created = &created
	}
	if p.AvatarURL != nil {
		dto.Avatars = &api.Avatars{Avatar: p.AvatarURL, BigAvatar: *p.AvatarURL, MiniAvatar: *p.AvatarURL}
	}
	return dto
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidPhone), errors.Is(err, ErrInvalidProfile),
		errors.Is(err, ErrInvalidAvatar), errors.Is(err, ErrInvalidCode):
		status = http.StatusBadRequest
	case errors.Is(err, ErrPhoneNotVerified):
		status = http.StatusForbidden
	case errors.Is(err, ErrPhoneAlreadyExists), errors.Is(err, ErrUsernameTaken):
		status = http.StatusConflict
	case errors.Is(err, ErrInvalidRefreshToken), errors.Is(err, ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrUserNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		_ = c.Error(err)
		c.JSON(status, gin.H{"detail": "internal error"})
		return
	}
	c.JSON(status, gin.H{"detail": err.Error()})
}
