package sqlite

import (
	"context"
	"database/sql"
	"drawdeck/core"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	projectTableStmt := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		owner_id TEXT,
		guest_id TEXT,
		title TEXT,
		canvas_state BLOB,
		shares TEXT,
		expires_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	);`
	if _, err = db.Exec(projectTableStmt); err != nil {
		log.Fatalf("failed to create projects table: %v", err)
	}

	userTableStmt := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		google_id TEXT,
		email TEXT,
		name TEXT,
		avatar_url TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);`
	if _, err = db.Exec(userTableStmt); err != nil {
		log.Fatalf("failed to create users table: %v", err)
	}

	return &sqliteStore{db}
}

func encodeShares(shares map[string]core.Role) (string, error) {
	if len(shares) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(shares)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeShares(raw string) map[string]core.Role {
	shares := make(map[string]core.Role)
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &shares)
	}
	return shares
}

// ProjectStore implementation

func (s *sqliteStore) List(ctx context.Context, userID, email string) ([]*core.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, owner_id, guest_id, title, shares, created_at, updated_at FROM projects WHERE owner_id = ? OR shares LIKE '%' || ? || '%'",
		userID, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := make([]*core.Project, 0)
	for rows.Next() {
		var p core.Project
		var shares string
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.GuestID, &p.Title, &shares, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Shares = decodeShares(shares)
		// The LIKE clause is only a prefilter; confirm the share actually exists.
		if p.RoleOf(userID, email) == "" {
			continue
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*core.Project, error) {
	var p core.Project
	var state []byte
	var shares string
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, guest_id, title, canvas_state, shares, expires_at, created_at, updated_at FROM projects WHERE id = ?", id).
		Scan(&p.ID, &p.OwnerID, &p.GuestID, &p.Title, &state, &shares, &expiresAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("project with id %s not found", id)
		}
		return nil, err
	}
	p.Shares = decodeShares(shares)
	if expiresAt.Valid {
		t := expiresAt.Time
		p.ExpiresAt = &t
	}
	if len(state) > 0 {
		var cs core.CanvasState
		if err := json.Unmarshal(state, &cs); err != nil {
			logrus.WithField("project_id", id).WithError(err).Error("Failed to unmarshal canvas state")
			return nil, err
		}
		p.CanvasState = &cs
	}
	return &p, nil
}

func (s *sqliteStore) Save(ctx context.Context, project *core.Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // Rollback on any error

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM projects WHERE id = ?", project.ID).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	var state []byte
	if project.CanvasState != nil {
		state, err = json.Marshal(project.CanvasState)
		if err != nil {
			return err
		}
	}
	shares, err := encodeShares(project.Shares)
	if err != nil {
		return err
	}
	var expiresAt any
	if project.ExpiresAt != nil {
		expiresAt = *project.ExpiresAt
	}

	now := time.Now()
	if exists {
		_, err = tx.ExecContext(ctx,
			"UPDATE projects SET owner_id = ?, guest_id = ?, title = ?, canvas_state = ?, shares = ?, expires_at = ?, updated_at = ? WHERE id = ?",
			project.OwnerID, project.GuestID, project.Title, state, shares, expiresAt, now, project.ID)
	} else {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO projects (id, owner_id, guest_id, title, canvas_state, shares, expires_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			project.ID, project.OwnerID, project.GuestID, project.Title, state, shares, expiresAt, now, now)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	return err
}

func (s *sqliteStore) ListGuest(ctx context.Context, guestID string) ([]*core.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, owner_id, guest_id, title, shares, created_at, updated_at FROM projects WHERE guest_id = ?", guestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := make([]*core.Project, 0)
	for rows.Next() {
		var p core.Project
		var shares string
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.GuestID, &p.Title, &shares, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Shares = decodeShares(shares)
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// UserStore implementation

func (s *sqliteStore) FindUser(ctx context.Context, id string) (*core.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *sqliteStore) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return s.findUser(ctx, "email = ?", email)
}

func (s *sqliteStore) findUser(ctx context.Context, where string, arg any) (*core.User, error) {
	var u core.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, google_id, email, name, avatar_url, created_at, updated_at FROM users WHERE "+where, arg).
		Scan(&u.ID, &u.GoogleID, &u.Email, &u.Name, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (s *sqliteStore) SaveUser(ctx context.Context, user *core.User) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, google_id, email, name, avatar_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET google_id = excluded.google_id, email = excluded.email,
			name = excluded.name, avatar_url = excluded.avatar_url, updated_at = excluded.updated_at`,
		user.ID, user.GoogleID, user.Email, user.Name, user.AvatarURL, now, now)
	return err
}
