package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

// RequestRefresh is the reactive renewal entry point, used by the HTTP
// layer after an authorization failure. However many callers fail
// concurrently, exactly one refresh call goes out; all callers share its
// outcome. On success every caller receives the new access token; on
// failure the credential is cleared, observers see the empty token, and
// every caller receives ErrRefreshFailed (or ErrNoRefreshToken when no
// refresh token was stored, in which case no network call is made).
func (s *Session) RequestRefresh(ctx context.Context) (string, error) {
	token, err := s.refreshOnce(ctx)
	if err != nil {
		s.clearCredential(ctx)
		return "", err
	}
	return token, nil
}

// refreshOnce performs (or joins) the single in-flight token exchange.
// It updates the store and notifies observers on success, and leaves
// terminal handling to the caller.
func (s *Session) refreshOnce(ctx context.Context) (string, error) {
	// The flight is shared between callers; one caller canceling must
	// not fail the exchange for everyone waiting on it.
	ctx = context.WithoutCancel(ctx)
	v, err, _ := s.sf.Do("refresh", func() (any, error) {
		refreshToken, err := s.tokens.Get(ctx, KeyRefreshToken)
		if err != nil {
			return nil, err
		}
		if refreshToken == "" {
			return nil, ErrNoRefreshToken
		}

		accessToken, err := s.exchangeRefreshToken(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		if err := s.tokens.Set(ctx, KeyAccessToken, accessToken); err != nil {
			return nil, err
		}

		logrus.Debug("Access token refreshed")
		s.notify(accessToken)
		return accessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// exchangeRefreshToken calls POST /auth/refresh. A network error is
// treated the same as an explicit rejection: both map to ErrRefreshFailed.
func (s *Session) exchangeRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	endpoint := s.cfg.BaseURL + "/auth/refresh?refresh_token=" + url.QueryEscape(refreshToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token in response", ErrRefreshFailed)
	}
	return body.AccessToken, nil
}

// fetchProfile resolves the canonical profile from /auth/me.
func (s *Session) fetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/auth/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("auth/me returned status %d: %s", resp.StatusCode, body)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
