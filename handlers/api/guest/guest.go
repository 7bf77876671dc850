package guest

import (
	"drawdeck/core"
	"drawdeck/handlers/auth"
	"drawdeck/stores"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// GuestTTL is how long an anonymous identity and its projects live
// before they may be garbage collected.
const GuestTTL = 30 * 24 * time.Hour

// GuestIDHeader carries the opaque guest identity on guest routes.
const GuestIDHeader = "Guest-Id"

type (
	projectRequest struct {
		Title       string            `json:"title"`
		CanvasState *core.CanvasState `json:"canvas_state"`
	}

	claimRequest struct {
		GuestID      string   `json:"guest_id"`
		ProjectUUIDs []string `json:"project_uuids"`
	}
)

func guestID(r *http.Request) string {
	return r.Header.Get(GuestIDHeader)
}

// HandleToken issues a fresh guest identity: an opaque uuid, not a JWT.
func HandleToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		expiresAt := time.Now().UTC().Add(GuestTTL)
		logrus.WithField("guest_id", id).Info("Issued guest token")
		render.JSON(w, r, map[string]string{
			"guest_id":   id,
			"expires_at": expiresAt.Format(time.RFC3339),
		})
	}
}

func HandleCreate(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gid := guestID(r)
		if gid == "" {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "Guest-Id header is required"})
			return
		}

		var req projectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}

		expiresAt := time.Now().UTC().Add(GuestTTL)
		project := &core.Project{
			ID:          ulid.Make().String(),
			GuestID:     gid,
			Title:       req.Title,
			CanvasState: req.CanvasState,
			ExpiresAt:   &expiresAt,
		}
		if err := store.Save(r.Context(), project); err != nil {
			logrus.WithError(err).Error("Failed to create guest project")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to create project"})
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, project)
	}
}

// getOwned loads the project and checks it belongs to the caller's guest id.
func getOwned(store stores.Store, r *http.Request) (*core.Project, int) {
	gid := guestID(r)
	if gid == "" {
		return nil, http.StatusUnauthorized
	}
	project, err := store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil || project.GuestID == "" || project.GuestID != gid {
		// Wrong guest id and missing project look the same to the caller.
		return nil, http.StatusNotFound
	}
	return project, 0
}

func HandleGet(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, code := getOwned(store, r)
		if project == nil {
			render.Status(r, code)
			render.JSON(w, r, map[string]string{"error": "Guest project not found or invalid guest token"})
			return
		}
		render.JSON(w, r, project)
	}
}

func HandleUpdate(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, code := getOwned(store, r)
		if project == nil {
			render.Status(r, code)
			render.JSON(w, r, map[string]string{"error": "Guest project not found or invalid guest token"})
			return
		}

		var req projectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}
		if req.Title != "" {
			project.Title = req.Title
		}
		if req.CanvasState != nil {
			project.CanvasState = req.CanvasState
		}

		if err := store.Save(r.Context(), project); err != nil {
			logrus.WithError(err).Error("Failed to update guest project")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to save project"})
			return
		}
		render.JSON(w, r, project)
	}
}

func HandleList(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gid := guestID(r)
		if gid == "" {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "Guest-Id header is required"})
			return
		}
		projects, err := store.ListGuest(r.Context(), gid)
		if err != nil {
			logrus.WithError(err).Error("Failed to list guest projects")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to list projects"})
			return
		}
		if projects == nil {
			projects = []*core.Project{}
		}
		render.JSON(w, r, projects)
	}
}

// HandleClaim transfers guest projects to the authenticated account.
// Runs behind the JWT middleware.
func HandleClaim(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.ClaimsFromContext(r.Context())
		if claims == nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		var req claimRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GuestID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "guest_id is required"})
			return
		}

		owned, err := store.ListGuest(r.Context(), req.GuestID)
		if err != nil {
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to list guest projects"})
			return
		}

		wanted := make(map[string]bool, len(req.ProjectUUIDs))
		for _, id := range req.ProjectUUIDs {
			wanted[id] = true
		}

		claimed := []string{}
		for _, meta := range owned {
			if len(wanted) > 0 && !wanted[meta.ID] {
				continue
			}
			project, err := store.Get(r.Context(), meta.ID)
			if err != nil {
				continue
			}
			project.OwnerID = claims.UserID
			project.GuestID = ""
			project.ExpiresAt = nil
			if err := store.Save(r.Context(), project); err != nil {
				logrus.WithError(err).WithField("project_id", project.ID).Error("Failed to claim project")
				continue
			}
			claimed = append(claimed, project.ID)
		}

		logrus.WithFields(logrus.Fields{"user_id": claims.UserID, "count": len(claimed)}).Info("Claimed guest projects")
		render.JSON(w, r, map[string]any{"claimed": claimed})
	}
}
