package backend

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/abduss/messenger/internal/api"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *captureSender) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service, _, avatars, sender := newTestService()
	router := gin.New()
	RegisterRoutes(router, service)
	RegisterMediaRoutes(router, "/media", avatars)
	return router, sender
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestUserEndpointsFlow(t *testing.T) {
	router, sender := newTestRouter(t)
	const phone = "+79990001122"

	rr := doJSON(t, router, http.MethodPost, api.SendAuthCodePath, "", api.SendAuthCodeRequest{Phone: phone})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.True(t, decode[api.SendAuthCodeResponse](t, rr).IsSuccess)

	rr = doJSON(t, router, http.MethodPost, api.CheckAuthCodePath, "", api.CheckAuthCodeRequest{Phone: phone, Code: sender.code(phone)})
	require.Equal(t, http.StatusOK, rr.Code)
	checked := decode[api.CheckAuthCodeResponse](t, rr)
	assert.False(t, checked.IsUserExists)
	assert.Empty(t, checked.AccessToken)

	rr = doJSON(t, router, http.MethodPost, api.RegisterPath, "", api.RegisterRequest{Phone: phone, Name: "Ann", Username: "ann"})
	require.Equal(t, http.StatusCreated, rr.Code)
	registered := decode[api.RegisterResponse](t, rr)
	require.NotEmpty(t, registered.AccessToken)
	require.NotEmpty(t, registered.RefreshToken)
	require.NotZero(t, registered.UserID)

	rr = doJSON(t, router, http.MethodGet, api.MePath, registered.AccessToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	me := decode[api.ProfileData](t, rr).ProfileData
	assert.Equal(t, registered.UserID, me.ID)
	assert.Equal(t, "ann", me.Username)
	assert.Nil(t, me.Avatars)

	birthday := "1990-03-25"
	rr = doJSON(t, router, http.MethodPut, api.MePath, registered.AccessToken, api.UpdateUserRequest{
		Name:     "Anna",
		Username: "ann",
		Birthday: &birthday,
		Avatar:   &api.AvatarData{Filename: "me.png", Base64: base64.StdEncoding.EncodeToString(pngHeader)},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[api.UpdateUserResponse](t, rr)
	require.NotNil(t, updated.Avatars)
	require.NotNil(t, updated.ProfileData)
	assert.Equal(t, "Anna", updated.ProfileData.Name)

	media := httptest.NewRecorder()
	router.ServeHTTP(media, httptest.NewRequest(http.MethodGet, updated.Avatars.BigAvatar, nil))
	assert.Equal(t, http.StatusOK, media.Code)
	assert.Equal(t, "image/png", media.Header().Get("Content-Type"))

	rr = doJSON(t, router, http.MethodPost, api.RefreshTokenPath, "", api.RefreshTokenRequest{RefreshToken: registered.RefreshToken})
	require.Equal(t, http.StatusOK, rr.Code)
	refreshed := decode[api.RefreshTokenResponse](t, rr)
	assert.NotEqual(t, registered.RefreshToken, refreshed.RefreshToken)
	assert.Equal(t, registered.UserID, refreshed.UserID)

	rr = doJSON(t, router, http.MethodPost, api.RefreshTokenPath, "", api.RefreshTokenRequest{RefreshToken: registered.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMeRequiresBearer(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodGet, api.MePath, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, router, http.MethodGet, api.MePath, "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "detail")
}

func TestErrorMapping(t *testing.T) {
	router, sender := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, api.SendAuthCodePath, "", api.SendAuthCodeRequest{Phone: "123"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodPost, api.RegisterPath, "", api.RegisterRequest{Phone: "79990001122", Name: "Ann", Username: "ann"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = doJSON(t, router, http.MethodPost, api.SendAuthCodePath, "", api.SendAuthCodeRequest{Phone: "79990001122"})
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = doJSON(t, router, http.MethodPost, api.CheckAuthCodePath, "", api.CheckAuthCodeRequest{Phone: "79990001122", Code: "x" + sender.code("79990001122")})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, api.SendAuthCodePath, bytes.NewBufferString("{"))
	bad := httptest.NewRecorder()
	router.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}
