package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawdeck/core"
	"drawdeck/stores/memory"
)

func testUser() *core.User {
	return &core.User{ID: "google:1", Email: "ada@example.com", Name: "Ada"}
}

func TestTokenPairRoundTrip(t *testing.T) {
	SetSecretForTest([]byte("test-secret"))

	access, refresh, err := CreateTokenPair(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	assert.NotEqual(t, access, refresh)

	accessClaims, err := ParseJWT(access)
	require.NoError(t, err)
	assert.Equal(t, "google:1", accessClaims.UserID)
	assert.Equal(t, "ada@example.com", accessClaims.Subject)
	assert.Equal(t, TokenTypeAccess, accessClaims.Type)
	assert.WithinDuration(t, time.Now().Add(AccessTokenTTL), accessClaims.ExpiresAt.Time, time.Minute)

	refreshClaims, err := ParseJWT(refresh)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refreshClaims.Type)
	assert.WithinDuration(t, time.Now().Add(RefreshTokenTTL), refreshClaims.ExpiresAt.Time, time.Minute)
}

func TestParseJWTRejectsWrongSecret(t *testing.T) {
	SetSecretForTest([]byte("secret-a"))
	access, _, err := CreateTokenPair(testUser())
	require.NoError(t, err)

	SetSecretForTest([]byte("secret-b"))
	_, err = ParseJWT(access)
	assert.Error(t, err)
}

func TestParseJWTRejectsExpired(t *testing.T) {
	SetSecretForTest([]byte("test-secret"))

	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ada@example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		UserID: "google:1",
		Type:   TokenTypeAccess,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = ParseJWT(token)
	assert.Error(t, err)
}

func TestHandleRefresh(t *testing.T) {
	SetSecretForTest([]byte("test-secret"))

	store := memory.NewStore()
	require.NoError(t, store.SaveUser(context.Background(), testUser()))

	_, refresh, err := CreateTokenPair(testUser())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh?refresh_token="+refresh, nil)
	rec := httptest.NewRecorder()
	HandleRefresh(store)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bearer", body.TokenType)
	assert.Equal(t, int(AccessTokenTTL.Seconds()), body.ExpiresIn)

	claims, err := ParseJWT(body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.Equal(t, "google:1", claims.UserID)
}

func TestHandleRefreshRejectsAccessToken(t *testing.T) {
	SetSecretForTest([]byte("test-secret"))

	store := memory.NewStore()
	require.NoError(t, store.SaveUser(context.Background(), testUser()))

	access, _, err := CreateTokenPair(testUser())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh?refresh_token="+access, nil)
	rec := httptest.NewRecorder()
	HandleRefresh(store)(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleRefreshRejectsUnknownUser(t *testing.T) {
	SetSecretForTest([]byte("test-secret"))

	// The account was removed after the refresh token was minted.
	_, refresh, err := CreateTokenPair(testUser())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh?refresh_token="+refresh, nil)
	rec := httptest.NewRecorder()
	HandleRefresh(memory.NewStore())(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleRefreshRequiresToken(t *testing.T) {
	SetSecretForTest([]byte("test-secret"))

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	rec := httptest.NewRecorder()
	HandleRefresh(memory.NewStore())(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleMe(t *testing.T) {
	SetSecretForTest([]byte("test-secret"))

	store := memory.NewStore()
	require.NoError(t, store.SaveUser(context.Background(), testUser()))

	access, _, err := CreateTokenPair(testUser())
	require.NoError(t, err)
	claims, err := ParseJWT(access)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(context.WithValue(req.Context(), ClaimsContextKey, claims))
	rec := httptest.NewRecorder()
	HandleMe(store)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var user core.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "Ada", user.Name)
}
