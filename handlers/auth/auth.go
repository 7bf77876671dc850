package auth

import (
	"context"
	"crypto/rand"
	"drawdeck/core"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	AccessTokenTTL  = 60 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour

	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	googleOauthConfig *oauth2.Config
	jwtSecret         []byte
	frontendURL       string
)

// AppClaims is the payload of both access and refresh tokens. Subject is
// the user's email; Type distinguishes the two token kinds so a refresh
// token can never pass as an access token.
type AppClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Type   string `json:"type"`
}

type contextKey string

// ClaimsContextKey is where the auth middleware stores verified claims.
const ClaimsContextKey = contextKey("claims")

// ClaimsFromContext returns the verified claims set by the middleware,
// or nil on unauthenticated requests.
func ClaimsFromContext(ctx context.Context) *AppClaims {
	claims, _ := ctx.Value(ClaimsContextKey).(*AppClaims)
	return claims
}

func InitAuth() {
	googleOauthConfig = &oauth2.Config{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
	if googleOauthConfig.ClientID == "" || googleOauthConfig.ClientSecret == "" {
		logrus.Warn("Google OAuth credentials are not set. Login routes will not work.")
	}

	frontendURL = os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:5173"
	}

	jwtSecret = []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		logrus.Warn("JWT_SECRET is not set. Authentication will not work.")
	}
}

// SetSecretForTest overrides the signing secret. Test helper only.
func SetSecretForTest(secret []byte) {
	jwtSecret = secret
}

func generateStateOauthCookie(w http.ResponseWriter, r *http.Request) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := hex.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     "oauthstate",
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Secure:   r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
	return state, nil
}

func HandleLogin(w http.ResponseWriter, r *http.Request) {
	if googleOauthConfig.ClientID == "" {
		http.Error(w, "Google OAuth is not configured", http.StatusInternalServerError)
		return
	}
	state, err := generateStateOauthCookie(w, r)
	if err != nil {
		http.Error(w, "Failed to generate login state", http.StatusInternalServerError)
		return
	}
	url := googleOauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func HandleCallback(store core.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if googleOauthConfig.ClientID == "" {
			http.Error(w, "Google OAuth is not configured", http.StatusInternalServerError)
			return
		}

		stateCookie, err := r.Cookie("oauthstate")
		if err != nil || r.FormValue("state") != stateCookie.Value {
			logrus.Warn("oauth callback with invalid state")
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		token, err := googleOauthConfig.Exchange(r.Context(), r.FormValue("code"))
		if err != nil {
			logrus.Errorf("failed to exchange token: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		googleUser, err := fetchGoogleUser(r.Context(), token)
		if err != nil {
			logrus.Errorf("failed to get user from google: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		user := &core.User{
			ID:        fmt.Sprintf("google:%s", googleUser.Sub),
			GoogleID:  googleUser.Sub,
			Email:     googleUser.Email,
			Name:      googleUser.Name,
			AvatarURL: googleUser.Picture,
		}
		if err := store.SaveUser(r.Context(), user); err != nil {
			logrus.Errorf("failed to save user: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		accessToken, refreshToken, err := CreateTokenPair(user)
		if err != nil {
			logrus.Errorf("failed to create tokens: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		// Hand both tokens to the frontend, which stores them locally.
		http.Redirect(w, r,
			fmt.Sprintf("%s/auth/callback?token=%s&refresh_token=%s", frontendURL, accessToken, refreshToken),
			http.StatusTemporaryRedirect)
	}
}

type googleUserInfo struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func fetchGoogleUser(ctx context.Context, token *oauth2.Token) (*googleUserInfo, error) {
	client := googleOauthConfig.Client(ctx, token)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v3/userinfo")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CreateTokenPair mints a fresh access/refresh token pair for the user.
func CreateTokenPair(user *core.User) (accessToken, refreshToken string, err error) {
	accessToken, err = createToken(user, TokenTypeAccess, AccessTokenTTL)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = createToken(user, TokenTypeRefresh, RefreshTokenTTL)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// CreateAccessToken mints an access token only, for the refresh endpoint.
func CreateAccessToken(user *core.User) (string, error) {
	return createToken(user, TokenTypeAccess, AccessTokenTTL)
}

func createToken(user *core.User, tokenType string, ttl time.Duration) (string, error) {
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: user.ID,
		Type:   tokenType,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseJWT verifies the token signature and expiry and returns its claims.
func ParseJWT(tokenString string) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*AppClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// HandleRefresh exchanges a valid refresh token for a new access token.
// POST /auth/refresh?refresh_token=...
func HandleRefresh(store core.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refreshToken := r.URL.Query().Get("refresh_token")
		if refreshToken == "" {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "refresh_token is required"})
			return
		}

		claims, err := ParseJWT(refreshToken)
		if err != nil || claims.Type != TokenTypeRefresh {
			logrus.WithError(err).Warn("Refresh rejected: invalid refresh token")
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "Could not validate refresh token"})
			return
		}

		// The account may have been removed since the token was minted.
		user, err := store.FindUserByEmail(r.Context(), claims.Subject)
		if err != nil || user == nil {
			logrus.WithField("email", claims.Subject).Warn("Refresh rejected: unknown user")
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "Could not validate refresh token"})
			return
		}

		accessToken, err := CreateAccessToken(user)
		if err != nil {
			logrus.WithError(err).Error("Failed to mint access token")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to create token"})
			return
		}

		logrus.WithField("email", user.Email).Info("Refreshed access token")
		render.JSON(w, r, map[string]any{
			"access_token": accessToken,
			"token_type":   "bearer",
			"expires_in":   int(AccessTokenTTL.Seconds()),
		})
	}
}

// HandleMe returns the canonical profile for the bearer token.
func HandleMe(store core.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		user, err := store.FindUserByEmail(r.Context(), claims.Subject)
		if err != nil || user == nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "Could not validate credentials"})
			return
		}
		render.JSON(w, r, user)
	}
}

// HandleLogout is stateless: the client clears its stored tokens.
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"message": "Logged out successfully. Clear your tokens from local storage."})
}
