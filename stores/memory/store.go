package memory

import (
	"context"
	"drawdeck/core"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// memStore implements ProjectStore and UserStore for in-memory storage.
// Useful for tests and single-node development setups.
type memStore struct {
	mu       sync.RWMutex
	projects map[string]*core.Project
	users    map[string]*core.User
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{
		projects: make(map[string]*core.Project),
		users:    make(map[string]*core.User),
	}
}

// List returns metadata for all projects owned by or shared with the user.
func (s *memStore) List(ctx context.Context, userID, email string) ([]*core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projects := make([]*core.Project, 0)
	for _, p := range s.projects {
		if p.RoleOf(userID, email) != "" {
			projects = append(projects, p.WithoutState())
		}
	}
	logrus.WithField("user_id", userID).Infof("Listed %d projects", len(projects))
	return projects, nil
}

// Get returns a project by id, including its canvas state.
func (s *memStore) Get(ctx context.Context, id string) (*core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		logrus.WithField("project_id", id).Warn("Project not found")
		return nil, fmt.Errorf("project with id %s not found", id)
	}
	cp := *p
	return &cp, nil
}

// Save creates or updates a project.
func (s *memStore) Save(ctx context.Context, project *core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if project.ID == "" {
		return fmt.Errorf("project ID cannot be empty for save operation")
	}
	if project.OwnerID == "" && project.GuestID == "" {
		return fmt.Errorf("project must have an owner or a guest id")
	}

	now := time.Now()
	if existing, ok := s.projects[project.ID]; ok {
		project.CreatedAt = existing.CreatedAt
	} else {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	cp := *project
	s.projects[project.ID] = &cp
	logrus.WithField("project_id", project.ID).Info("Project saved successfully")
	return nil
}

// Delete removes a project.
func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return fmt.Errorf("project with id %s not found", id)
	}
	delete(s.projects, id)
	logrus.WithField("project_id", id).Info("Project deleted successfully")
	return nil
}

// ListGuest returns metadata for projects created under a guest id.
func (s *memStore) ListGuest(ctx context.Context, guestID string) ([]*core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projects := make([]*core.Project, 0)
	for _, p := range s.projects {
		if p.GuestID != "" && p.GuestID == guestID {
			projects = append(projects, p.WithoutState())
		}
	}
	return projects, nil
}

// FindUser looks a user up by id.
func (s *memStore) FindUser(ctx context.Context, id string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// FindUserByEmail looks a user up by email.
func (s *memStore) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// SaveUser creates or updates an account.
func (s *memStore) SaveUser(ctx context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	now := time.Now()
	if existing, ok := s.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	cp := *user
	s.users[user.ID] = &cp
	return nil
}
