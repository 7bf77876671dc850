package aws

import (
	"bytes"
	"context"
	"drawdeck/core"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3Store struct {
	s3Client *s3.Client
	bucket   string
}

// projectRecord is the stored shape of a project; Project hides owner,
// guest and share fields from API JSON.
type projectRecord struct {
	core.Project
	OwnerID string               `json:"ownerId"`
	GuestID string               `json:"guestId,omitempty"`
	Shares  map[string]core.Role `json:"shares,omitempty"`
}

type userRecord struct {
	core.User
	GoogleID string `json:"googleId,omitempty"`
}

// NewStore creates a new S3-based store.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &s3Store{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}
}

func objectKey(kind, id string) (string, error) {
	// Sanitize the id to prevent path traversal: it must be a simple name.
	if id == "" || path.Base(id) != id || id == "." || id == ".." {
		return "", fmt.Errorf("invalid %s id", kind)
	}
	return path.Join(kind, id+".json"), nil
}

func (s *s3Store) getObject(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (s *s3Store) putObject(ctx context.Context, key string, data []byte) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}

// ProjectStore implementation

func (s *s3Store) listProjects(ctx context.Context, match func(*core.Project) bool) ([]*core.Project, error) {
	output, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String("projects/"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %v", err)
	}

	projects := make([]*core.Project, 0, len(output.Contents))
	for _, object := range output.Contents {
		data, err := s.getObject(ctx, *object.Key)
		if err != nil {
			log.Printf("warn: failed to get object %s: %v", *object.Key, err)
			continue
		}
		var rec projectRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			log.Printf("warn: failed to unmarshal project %s: %v", *object.Key, err)
			continue
		}
		p := rec.Project
		p.OwnerID = rec.OwnerID
		p.GuestID = rec.GuestID
		p.Shares = rec.Shares
		if match(&p) {
			projects = append(projects, p.WithoutState())
		}
	}
	return projects, nil
}

func (s *s3Store) List(ctx context.Context, userID, email string) ([]*core.Project, error) {
	return s.listProjects(ctx, func(p *core.Project) bool {
		return p.RoleOf(userID, email) != ""
	})
}

func (s *s3Store) Get(ctx context.Context, id string) (*core.Project, error) {
	key, err := objectKey("projects", id)
	if err != nil {
		return nil, err
	}
	data, err := s.getObject(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("project with id %s not found", id)
		}
		return nil, fmt.Errorf("failed to get project %s: %v", id, err)
	}
	var rec projectRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project data: %v", err)
	}
	p := rec.Project
	p.OwnerID = rec.OwnerID
	p.GuestID = rec.GuestID
	p.Shares = rec.Shares
	return &p, nil
}

func (s *s3Store) Save(ctx context.Context, project *core.Project) error {
	key, err := objectKey("projects", project.ID)
	if err != nil {
		return err
	}

	// Preserve CreatedAt on update
	if project.CreatedAt.IsZero() {
		existing, err := s.Get(ctx, project.ID)
		if err == nil && existing != nil {
			project.CreatedAt = existing.CreatedAt
		} else {
			project.CreatedAt = time.Now()
		}
	}
	project.UpdatedAt = time.Now()

	data, err := json.Marshal(&projectRecord{
		Project: *project,
		OwnerID: project.OwnerID,
		GuestID: project.GuestID,
		Shares:  project.Shares,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal project: %v", err)
	}
	if err := s.putObject(ctx, key, data); err != nil {
		return fmt.Errorf("failed to save project %s: %v", project.ID, err)
	}
	return nil
}

func (s *s3Store) Delete(ctx context.Context, id string) error {
	key, err := objectKey("projects", id)
	if err != nil {
		return err
	}
	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %v", id, err)
	}
	return nil
}

func (s *s3Store) ListGuest(ctx context.Context, guestID string) ([]*core.Project, error) {
	return s.listProjects(ctx, func(p *core.Project) bool {
		return p.GuestID != "" && p.GuestID == guestID
	})
}

// UserStore implementation

func (s *s3Store) FindUser(ctx context.Context, id string) (*core.User, error) {
	key, err := objectKey("users", id)
	if err != nil {
		return nil, err
	}
	data, err := s.getObject(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user %s: %v", id, err)
	}
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	u := rec.User
	u.GoogleID = rec.GoogleID
	return &u, nil
}

func (s *s3Store) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	output, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String("users/"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %v", err)
	}
	for _, object := range output.Contents {
		data, err := s.getObject(ctx, *object.Key)
		if err != nil {
			continue
		}
		var rec userRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if strings.EqualFold(rec.Email, email) {
			u := rec.User
			u.GoogleID = rec.GoogleID
			return &u, nil
		}
	}
	return nil, nil
}

func (s *s3Store) SaveUser(ctx context.Context, user *core.User) error {
	key, err := objectKey("users", user.ID)
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
	return s.putObject(ctx, key, data)
}
