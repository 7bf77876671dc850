package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawdeck/core"
)

func TestProjectCRUD(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	project := &core.Project{
		ID:      "p1",
		OwnerID: "google:1",
		Title:   "board",
		CanvasState: &core.CanvasState{Objects: []core.Object{
			{ID: "a", Type: core.ObjectRectangle, X: 1, Y: 2},
		}},
	}
	require.NoError(t, s.Save(ctx, project))
	createdAt := project.CreatedAt
	require.False(t, createdAt.IsZero())

	got, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "board", got.Title)
	require.NotNil(t, got.CanvasState)
	assert.Len(t, got.CanvasState.Objects, 1)

	// Update keeps the original creation time.
	project.Title = "renamed"
	require.NoError(t, s.Save(ctx, project))
	got, err = s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, createdAt, got.CreatedAt)

	require.NoError(t, s.Delete(ctx, "p1"))
	_, err = s.Get(ctx, "p1")
	assert.Error(t, err)
	assert.Error(t, s.Delete(ctx, "p1"))
}

func TestSaveValidation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	assert.Error(t, s.Save(ctx, &core.Project{OwnerID: "google:1"}))
	assert.Error(t, s.Save(ctx, &core.Project{ID: "p1"}))
}

func TestListByOwnerAndShare(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &core.Project{
		ID: "owned", OwnerID: "google:1", Title: "mine",
		CanvasState: &core.CanvasState{},
	}))
	require.NoError(t, s.Save(ctx, &core.Project{
		ID: "shared", OwnerID: "google:2", Title: "theirs",
		Shares: map[string]core.Role{"ada@example.com": core.RoleViewer},
	}))
	require.NoError(t, s.Save(ctx, &core.Project{
		ID: "unrelated", OwnerID: "google:3", Title: "hidden",
	}))

	projects, err := s.List(ctx, "google:1", "ada@example.com")
	require.NoError(t, err)
	require.Len(t, projects, 2)
	for _, p := range projects {
		// List views never carry the canvas payload.
		assert.Nil(t, p.CanvasState)
	}
}

func TestListGuest(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &core.Project{ID: "g1", GuestID: "guest-1"}))
	require.NoError(t, s.Save(ctx, &core.Project{ID: "g2", GuestID: "guest-2"}))

	projects, err := s.ListGuest(ctx, "guest-1")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "g1", projects[0].ID)

	// An empty guest id never matches anything.
	projects, err = s.ListGuest(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestUserLookup(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	user := &core.User{ID: "google:1", Email: "ada@example.com", Name: "Ada"}
	require.NoError(t, s.SaveUser(ctx, user))

	byID, err := s.FindUser(ctx, "google:1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "Ada", byID.Name)

	byEmail, err := s.FindUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, "google:1", byEmail.ID)

	// Missing users come back nil without an error.
	missing, err := s.FindUser(ctx, "google:404")
	require.NoError(t, err)
	assert.Nil(t, missing)
	missing, err = s.FindUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
