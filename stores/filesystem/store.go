package filesystem

import (
	"context"
	"drawdeck/core"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type fsStore struct {
	basePath string
}

// projectRecord is the on-disk shape of a project. Project hides owner,
// guest and share fields from API JSON, so persistence needs its own
// envelope.
type projectRecord struct {
	core.Project
	OwnerID string               `json:"ownerId"`
	GuestID string               `json:"guestId,omitempty"`
	Shares  map[string]core.Role `json:"shares,omitempty"`
}

func recordOf(p *core.Project) *projectRecord {
	return &projectRecord{Project: *p, OwnerID: p.OwnerID, GuestID: p.GuestID, Shares: p.Shares}
}

func (r *projectRecord) project() *core.Project {
	p := r.Project
	p.OwnerID = r.OwnerID
	p.GuestID = r.GuestID
	p.Shares = r.Shares
	return &p
}

// userRecord mirrors projectRecord for the account's hidden fields.
type userRecord struct {
	core.User
	GoogleID string `json:"googleId,omitempty"`
}

// NewStore creates a new filesystem-based store.
func NewStore(basePath string) *fsStore {
	for _, dir := range []string{"projects", "users"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			log.Fatalf("failed to create base directory: %v", err)
		}
	}
	return &fsStore{basePath: basePath}
}

func (s *fsStore) projectPath(id string) (string, error) {
	// Ids come from clients; keep them from escaping the data directory.
	if id == "" || filepath.Base(id) != id {
		return "", fmt.Errorf("invalid project id")
	}
	return filepath.Join(s.basePath, "projects", id+".json"), nil
}

func (s *fsStore) readProject(id string) (*core.Project, error) {
	path, err := s.projectPath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("project with id %s not found", id)
		}
		return nil, err
	}
	var rec projectRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec.project(), nil
}

func (s *fsStore) listProjects(match func(*core.Project) bool) ([]*core.Project, error) {
	dir := filepath.Join(s.basePath, "projects")
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*core.Project{}, nil
		}
		return nil, err
	}

	projects := make([]*core.Project, 0)
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		p, err := s.readProject(strings.TrimSuffix(file.Name(), ".json"))
		if err != nil {
			logrus.WithError(err).Warnf("Failed to read project file %s, skipping", file.Name())
			continue
		}
		if match(p) {
			projects = append(projects, p.WithoutState())
		}
	}
	return projects, nil
}

// ProjectStore implementation

func (s *fsStore) List(ctx context.Context, userID, email string) ([]*core.Project, error) {
	return s.listProjects(func(p *core.Project) bool {
		return p.RoleOf(userID, email) != ""
	})
}

func (s *fsStore) Get(ctx context.Context, id string) (*core.Project, error) {
	return s.readProject(id)
}

func (s *fsStore) Save(ctx context.Context, project *core.Project) error {
	path, err := s.projectPath(project.ID)
	if err != nil {
		return err
	}

	now := time.Now()
	if existing, err := s.readProject(project.ID); err == nil {
		project.CreatedAt = existing.CreatedAt
	} else {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	data, err := json.Marshal(recordOf(project))
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal project for saving")
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (s *fsStore) Delete(ctx context.Context, id string) error {
	path, err := s.projectPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil // If it doesn't exist, the goal is achieved.
		}
		return err
	}
	return nil
}

func (s *fsStore) ListGuest(ctx context.Context, guestID string) ([]*core.Project, error) {
	return s.listProjects(func(p *core.Project) bool {
		return p.GuestID != "" && p.GuestID == guestID
	})
}

// UserStore implementation

func (s *fsStore) userPath(id string) (string, error) {
	if id == "" || filepath.Base(id) != id {
		return "", fmt.Errorf("invalid user id")
	}
	return filepath.Join(s.basePath, "users", id+".json"), nil
}

func (s *fsStore) FindUser(ctx context.Context, id string) (*core.User, error) {
	path, err := s.userPath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	u := rec.User
	u.GoogleID = rec.GoogleID
	return &u, nil
}

func (s *fsStore) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	dir := filepath.Join(s.basePath, "users")
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			continue
		}
		var rec userRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if rec.Email == email {
			u := rec.User
			u.GoogleID = rec.GoogleID
			return &u, nil
		}
	}
	return nil, nil
}

func (s *fsStore) SaveUser(ctx context.Context, user *core.User) error {
	path, err := s.userPath(user.ID)
	if err != nil {
		return err
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	data, err := json.Marshal(&userRecord{User: *user, GoogleID: user.GoogleID})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
