package client

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Config carries the endpoints and tunables for a client session. Zero
// values fall back to the defaults below.
type Config struct {
	// BaseURL is the HTTP collaborator, e.g. "http://localhost:3002".
	BaseURL string
	// WSURL is the realtime endpoint; derived from BaseURL when empty.
	WSURL string

	HTTPClient *http.Client

	// RenewInterval is how often the proactive renewal check runs.
	RenewInterval time.Duration
	// RenewLeeway is the remaining-lifetime threshold below which the
	// access token is proactively exchanged.
	RenewLeeway time.Duration
	// SaveDebounce is the quiet period before an automatic save fires.
	SaveDebounce time.Duration
	// CursorThrottle bounds outbound cursor messages to one per period.
	CursorThrottle time.Duration
}

func (c Config) withDefaults() Config {
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.WSURL == "" {
		ws := strings.Replace(c.BaseURL, "http://", "ws://", 1)
		ws = strings.Replace(ws, "https://", "wss://", 1)
		c.WSURL = ws + "/ws"
	}
	if c.RenewInterval == 0 {
		c.RenewInterval = time.Minute
	}
	if c.RenewLeeway == 0 {
		c.RenewLeeway = 5 * time.Minute
	}
	if c.SaveDebounce == 0 {
		c.SaveDebounce = 2 * time.Second
	}
	if c.CursorThrottle == 0 {
		c.CursorThrottle = 50 * time.Millisecond
	}
	return c
}

// tokenClaims is the locally decodable token payload. Decoding is
// advisory only: the client reads expiry and identity hints from it but
// never treats a decodable token as a validated one.
type tokenClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Type   string `json:"type"`
}

func decodeClaims(token string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Profile is the session owner's identity, resolved from /auth/me when
// reachable and otherwise from locally decoded claims.
type Profile struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Session owns the credential lifecycle: login/logout, proactive token
// renewal, and the single-flight refresh used by the HTTP layer.
// Observers registered with OnTokenChange see every rotation, including
// the empty token that means "credential cleared".
type Session struct {
	cfg    Config
	tokens TokenStore

	sf singleflight.Group

	mu        sync.Mutex
	observers map[int]func(accessToken string)
	nextObs   int
	profile   *Profile

	renewStop chan struct{}
}

func NewSession(cfg Config, tokens TokenStore) *Session {
	return &Session{
		cfg:       cfg.withDefaults(),
		tokens:    tokens,
		observers: make(map[int]func(string)),
	}
}

// Config returns the session's resolved configuration.
func (s *Session) Config() Config { return s.cfg }

// AccessToken returns the stored access token, or "".
func (s *Session) AccessToken(ctx context.Context) string {
	token, err := s.tokens.Get(ctx, KeyAccessToken)
	if err != nil {
		logrus.WithError(err).Warn("Failed to read access token")
		return ""
	}
	return token
}

// Authenticated reports whether a credential is stored.
func (s *Session) Authenticated(ctx context.Context) bool {
	return s.AccessToken(ctx) != ""
}

// GuestID returns the stored guest identity, or "".
func (s *Session) GuestID(ctx context.Context) string {
	id, _ := s.tokens.Get(ctx, KeyGuestID)
	return id
}

// guestOnly reports the guest short-circuit condition: a guest session
// exists and no credential does, so authorization failures are surfaced
// directly instead of triggering refresh.
func (s *Session) guestOnly(ctx context.Context) bool {
	return s.GuestID(ctx) != "" && !s.Authenticated(ctx)
}

// SetGuest stores an anonymous identity for unauthenticated use.
func (s *Session) SetGuest(ctx context.Context, guestID string, expiresAt time.Time) error {
	if err := s.tokens.Set(ctx, KeyGuestID, guestID); err != nil {
		return err
	}
	return s.tokens.Set(ctx, KeyGuestExpiresAt, expiresAt.Format(time.RFC3339))
}

// Login stores the credential, clears guest-mode artifacts, and resolves
// the user profile. Profile resolution is best effort: when /auth/me is
// unreachable the locally decoded claims stand in.
func (s *Session) Login(ctx context.Context, accessToken, refreshToken string) error {
	if err := s.tokens.Set(ctx, KeyAccessToken, accessToken); err != nil {
		return err
	}
	if refreshToken != "" {
		if err := s.tokens.Set(ctx, KeyRefreshToken, refreshToken); err != nil {
			return err
		}
	}
	_ = s.tokens.Delete(ctx, KeyGuestID)
	_ = s.tokens.Delete(ctx, KeyGuestExpiresAt)

	profile, err := s.fetchProfile(ctx, accessToken)
	if err != nil {
		logrus.WithError(err).Debug("Profile fetch failed, falling back to token claims")
		if claims, derr := decodeClaims(accessToken); derr == nil {
			profile = &Profile{
				UserID: claims.UserID,
				Email:  claims.Subject,
				Name:   strings.SplitN(claims.Subject, "@", 2)[0],
			}
		}
	}

	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()

	logrus.WithField("email", profileEmail(profile)).Info("Logged in")
	s.notify(accessToken)
	return nil
}

func profileEmail(p *Profile) string {
	if p == nil {
		return ""
	}
	return p.Email
}

// Profile returns the resolved identity, or nil when unauthenticated.
func (s *Session) Profile() *Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Logout clears both tokens and marks the session unauthenticated. No
// server call is required to succeed.
func (s *Session) Logout(ctx context.Context) {
	s.clearCredential(ctx)
	logrus.Info("Logged out")
}

func (s *Session) clearCredential(ctx context.Context) {
	_ = s.tokens.Delete(ctx, KeyAccessToken)
	_ = s.tokens.Delete(ctx, KeyRefreshToken)
	s.mu.Lock()
	s.profile = nil
	s.mu.Unlock()
	s.notify("")
}

// OnTokenChange registers an observer for credential rotation. The
// observer is called with the new access token, or "" when the
// credential is cleared. The returned function unsubscribes.
func (s *Session) OnTokenChange(fn func(accessToken string)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Session) notify(accessToken string) {
	s.mu.Lock()
	observers := make([]func(string), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(accessToken)
	}
}

// StartRenewal begins the proactive renewal loop: every RenewInterval
// the access token's expiry is decoded, and when less than RenewLeeway
// remains the refresh token is exchanged for a fresh access token.
// Failures here are silent; the reactive path owns terminal failures.
// Stops when ctx is done or StopRenewal is called.
func (s *Session) StartRenewal(ctx context.Context) {
	s.mu.Lock()
	if s.renewStop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.renewStop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.cfg.RenewInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.maybeRenew(ctx)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()
}

// StopRenewal halts the proactive renewal loop.
func (s *Session) StopRenewal() {
	s.mu.Lock()
	if s.renewStop != nil {
		close(s.renewStop)
		s.renewStop = nil
	}
	s.mu.Unlock()
}

func (s *Session) maybeRenew(ctx context.Context) {
	token := s.AccessToken(ctx)
	if token == "" {
		return
	}
	claims, err := decodeClaims(token)
	if err != nil || claims.ExpiresAt == nil {
		return
	}
	if time.Until(claims.ExpiresAt.Time) >= s.cfg.RenewLeeway {
		return
	}

	if _, err := s.refreshOnce(ctx); err != nil {
		// The reactive path owns logout; here the failure is only logged.
		logrus.WithError(err).Debug("Proactive token renewal failed")
	}
}
