package core

import (
	"context"
	"hash/fnv"
	"time"
)

type (
	User struct {
		ID        string    `json:"id"`
		GoogleID  string    `json:"-"`
		Email     string    `json:"email"`
		Name      string    `json:"name"`
		AvatarURL string    `json:"avatarUrl,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// UserStore defines the persistence layer for accounts.
	UserStore interface {
		// FindUser looks a user up by id. Returns nil without error when the
		// user does not exist.
		FindUser(ctx context.Context, id string) (*User, error)

		// FindUserByEmail looks a user up by email. Returns nil without error
		// when the user does not exist.
		FindUserByEmail(ctx context.Context, email string) (*User, error)

		// SaveUser creates or updates an account, keyed by id.
		SaveUser(ctx context.Context, user *User) error
	}
)

// cursor colors, assigned per user so a participant keeps the same color
// across sessions.
var userColors = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A", "#98D8C8",
	"#F7DC6F", "#BB8FCE", "#85C1E2", "#F8B195", "#C06C84",
}

// UserColor picks a deterministic presence color for the given user id.
func UserColor(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return userColors[h.Sum32()%uint32(len(userColors))]
}
