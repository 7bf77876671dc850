package filesystem

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawdeck/core"
)

func TestProjectRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()

	project := &core.Project{
		ID:      "p1",
		OwnerID: "google:1",
		Title:   "board",
		CanvasState: &core.CanvasState{Objects: []core.Object{
			{ID: "a", Type: core.ObjectText, Text: "hello", FontSize: 16},
		}},
		Shares: map[string]core.Role{"friend@example.com": core.RoleViewer},
	}
	require.NoError(t, s.Save(ctx, project))

	got, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "google:1", got.OwnerID)
	assert.Equal(t, core.RoleViewer, got.Shares["friend@example.com"])
	require.NotNil(t, got.CanvasState)
	assert.Equal(t, "hello", got.CanvasState.Objects[0].Text)

	require.NoError(t, s.Delete(ctx, "p1"))
	_, err = s.Get(ctx, "p1")
	assert.Error(t, err)

	// Deleting a missing project is not an error.
	assert.NoError(t, s.Delete(ctx, "p1"))
}

func TestRejectsPathTraversal(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()

	_, err := s.Get(ctx, "../escape")
	assert.Error(t, err)
	assert.Error(t, s.Save(ctx, &core.Project{ID: "../escape", OwnerID: "google:1"}))
	assert.Error(t, s.Save(ctx, &core.Project{ID: "", OwnerID: "google:1"}))
}

func TestHiddenFieldsPersistButStayOutOfAPIJSON(t *testing.T) {
	base := t.TempDir()
	s := NewStore(base)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &core.Project{
		ID: "p1", OwnerID: "google:1", GuestID: "",
		Shares: map[string]core.Role{"x@example.com": core.RoleEditor},
	}))

	// On disk the owner and shares are present.
	raw, err := os.ReadFile(filepath.Join(base, "projects", "p1.json"))
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, "google:1", onDisk["ownerId"])
	assert.Contains(t, onDisk, "shares")

	// Through the API shape they are hidden.
	got, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	apiJSON, err := json.Marshal(got)
	require.NoError(t, err)
	assert.NotContains(t, string(apiJSON), "google:1")
	assert.NotContains(t, string(apiJSON), "x@example.com")
}

func TestListSkipsCorruptFiles(t *testing.T) {
	base := t.TempDir()
	s := NewStore(base)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &core.Project{ID: "good", OwnerID: "google:1"}))
	require.NoError(t, os.WriteFile(filepath.Join(base, "projects", "bad.json"), []byte("{not json"), 0644))

	projects, err := s.List(ctx, "google:1", "ada@example.com")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "good", projects[0].ID)
}

func TestGuestListing(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &core.Project{ID: "g1", GuestID: "guest-1"}))
	require.NoError(t, s.Save(ctx, &core.Project{ID: "g2", GuestID: "guest-2"}))

	projects, err := s.ListGuest(ctx, "guest-1")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "g1", projects[0].ID)
}

func TestUserRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, &core.User{
		ID: "google:1", GoogleID: "1", Email: "ada@example.com", Name: "Ada",
	}))

	byID, err := s.FindUser(ctx, "google:1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "1", byID.GoogleID)

	byEmail, err := s.FindUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, "google:1", byEmail.ID)

	missing, err := s.FindUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
