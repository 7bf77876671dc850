package client

import (
	"bytes"
	"context"
	"drawdeck/core"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// API is the HTTP collaborator surface consumed by the client core:
// project load/save, profile, and the guest routes. Authorized calls
// carry the bearer token; a 401 triggers the single-flight refresh and
// exactly one retry, except on guest-only sessions where the failure is
// surfaced unchanged.
type API struct {
	session *Session
}

func NewAPI(session *Session) *API {
	return &API{session: session}
}

// ProjectData is a loaded project together with the caller's role on it.
type ProjectData struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	CanvasState *core.CanvasState `json:"canvas_state"`
	Role        core.Role         `json:"role"`
}

// do runs one authorized request. The retried flag bounds recovery to a
// single refresh-and-retry per logical call.
func (a *API) do(ctx context.Context, method, path string, body any, out any) error {
	return a.doOnce(ctx, method, path, nil, body, out, false)
}

func (a *API) doOnce(ctx context.Context, method, path string, header http.Header, body any, out any, retried bool) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.session.cfg.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if token := a.session.AccessToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.session.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// Guest routes are expected to 401 without a login prompt: no
		// refresh is attempted when only a guest identity exists.
		if a.session.guestOnly(ctx) {
			return ErrUnauthorized
		}
		if retried {
			return ErrUnauthorized
		}
		if _, err := a.session.RequestRefresh(ctx); err != nil {
			return err
		}
		return a.doOnce(ctx, method, path, header, body, out, true)

	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound

	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, data)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Me returns the canonical profile for the current credential.
func (a *API) Me(ctx context.Context) (*Profile, error) {
	var profile Profile
	if err := a.do(ctx, http.MethodGet, "/auth/me", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetProject loads a project document and the caller's role on it.
func (a *API) GetProject(ctx context.Context, id string) (*ProjectData, error) {
	var project ProjectData
	if err := a.do(ctx, http.MethodGet, "/api/projects/"+id, nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// SaveProject persists the full canvas state of a project.
func (a *API) SaveProject(ctx context.Context, id string, state *core.CanvasState) error {
	body := map[string]any{"canvas_state": state}
	return a.do(ctx, http.MethodPut, "/api/projects/"+id, body, nil)
}

// CreateProject creates an account-owned project.
func (a *API) CreateProject(ctx context.Context, title string, state *core.CanvasState) (*ProjectData, error) {
	body := map[string]any{"title": title, "canvas_state": state}
	var project ProjectData
	if err := a.do(ctx, http.MethodPost, "/api/projects/", body, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// EnsureGuest returns the stored guest identity, requesting a fresh one
// from the server when none exists yet.
func (a *API) EnsureGuest(ctx context.Context) (string, error) {
	if id := a.session.GuestID(ctx); id != "" {
		return id, nil
	}

	var body struct {
		GuestID   string `json:"guest_id"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := a.do(ctx, http.MethodPost, "/guest/token", nil, &body); err != nil {
		return "", err
	}
	expiresAt, err := time.Parse(time.RFC3339, body.ExpiresAt)
	if err != nil {
		expiresAt = time.Now().Add(30 * 24 * time.Hour)
	}
	if err := a.session.SetGuest(ctx, body.GuestID, expiresAt); err != nil {
		return "", err
	}
	logrus.WithField("guest_id", body.GuestID).Info("Obtained guest identity")
	return body.GuestID, nil
}

func (a *API) guestHeader(ctx context.Context) http.Header {
	h := http.Header{}
	if id := a.session.GuestID(ctx); id != "" {
		h.Set("Guest-Id", id)
	}
	return h
}

// GuestGetProject loads a guest-owned project.
func (a *API) GuestGetProject(ctx context.Context, id string) (*ProjectData, error) {
	var project ProjectData
	if err := a.doOnce(ctx, http.MethodGet, "/guest/projects/"+id, a.guestHeader(ctx), nil, &project, false); err != nil {
		return nil, err
	}
	project.Role = core.RoleOwner
	return &project, nil
}

// GuestCreateProject creates a project under the guest identity and
// records the local-to-server id mapping for a later claim.
func (a *API) GuestCreateProject(ctx context.Context, localID, title string, state *core.CanvasState) (*ProjectData, error) {
	body := map[string]any{"title": title, "canvas_state": state}
	var project ProjectData
	if err := a.doOnce(ctx, http.MethodPost, "/guest/projects", a.guestHeader(ctx), body, &project, false); err != nil {
		return nil, err
	}
	if localID != "" {
		_ = a.session.tokens.Set(ctx, KeyGuestProjectPrefix+localID, project.ID)
	}
	return &project, nil
}

// GuestSaveProject persists a guest-owned project.
func (a *API) GuestSaveProject(ctx context.Context, id string, state *core.CanvasState) error {
	body := map[string]any{"canvas_state": state}
	return a.doOnce(ctx, http.MethodPut, "/guest/projects/"+id, a.guestHeader(ctx), body, nil, false)
}

// ClaimGuestProjects transfers guest projects to the authenticated
// account. With no explicit ids, everything under the guest id moves.
func (a *API) ClaimGuestProjects(ctx context.Context, projectIDs []string) ([]string, error) {
	guestID := a.session.GuestID(ctx)
	if guestID == "" {
		return nil, nil
	}
	body := map[string]any{"guest_id": guestID, "project_uuids": projectIDs}
	var out struct {
		Claimed []string `json:"claimed"`
	}
	if err := a.do(ctx, http.MethodPost, "/guest/claim", body, &out); err != nil {
		return nil, err
	}
	return out.Claimed, nil
}
