package core

import (
	"context"
	"time"
)

// Role is a caller's permission level on a project.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// CanEdit reports whether the role permits canvas mutations.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

type (
	// Project is one design document: metadata plus the persisted canvas
	// state. Either OwnerID (claimed, account-owned) or GuestID
	// (anonymous, expiring) is set. Shares maps collaborator emails to
	// their granted role.
	Project struct {
		ID          string          `json:"id"`
		OwnerID     string          `json:"-"`
		GuestID     string          `json:"-"`
		Title       string          `json:"title"`
		CanvasState *CanvasState    `json:"canvas_state,omitempty"`
		Shares      map[string]Role `json:"-"`
		ExpiresAt   *time.Time      `json:"expiresAt,omitempty"`
		CreatedAt   time.Time       `json:"createdAt"`
		UpdatedAt   time.Time       `json:"updatedAt"`
	}

	// ProjectStore defines the persistence layer for projects.
	ProjectStore interface {
		// List returns metadata for all projects owned by or shared with the
		// user. The returned projects should not carry CanvasState to keep
		// list responses light.
		List(ctx context.Context, userID, email string) ([]*Project, error)

		// Get returns a single project by id, including its canvas state.
		Get(ctx context.Context, id string) (*Project, error)

		// Save creates or updates a project.
		Save(ctx context.Context, project *Project) error

		// Delete removes a project.
		Delete(ctx context.Context, id string) error

		// ListGuest returns metadata for projects created under a guest id.
		ListGuest(ctx context.Context, guestID string) ([]*Project, error)
	}
)

// RoleOf resolves the caller's role on the project: owner by user id,
// otherwise any share granted to the email. Empty role means no access.
func (p *Project) RoleOf(userID, email string) Role {
	if p.OwnerID != "" && p.OwnerID == userID {
		return RoleOwner
	}
	if role, ok := p.Shares[email]; ok {
		return role
	}
	return ""
}

// WithoutState returns a copy suitable for list views: same metadata,
// no canvas payload.
func (p *Project) WithoutState() *Project {
	c := *p
	c.CanvasState = nil
	return &c
}
