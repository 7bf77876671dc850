package projects

import (
	"drawdeck/core"
	"drawdeck/handlers/auth"
	"drawdeck/stores"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type (
	projectRequest struct {
		Title       string            `json:"title"`
		CanvasState *core.CanvasState `json:"canvas_state"`
	}

	// projectResponse carries the caller's resolved role next to the
	// project so the editor can decide between read-only and editable.
	projectResponse struct {
		*core.Project
		Role core.Role `json:"role"`
	}

	shareRequest struct {
		Email string    `json:"email"`
		Role  core.Role `json:"role"`
	}
)

func HandleList(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.ClaimsFromContext(r.Context())
		if claims == nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		projects, err := store.List(r.Context(), claims.UserID, claims.Subject)
		if err != nil {
			logrus.WithError(err).WithField("userID", claims.UserID).Error("Failed to list projects")
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

func HandleCreate(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.ClaimsFromContext(r.Context())
		if claims == nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		var req projectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}

		project := &core.Project{
			ID:          ulid.Make().String(),
			OwnerID:     claims.UserID,
			Title:       req.Title,
			CanvasState: req.CanvasState,
		}
		if err := store.Save(r.Context(), project); err != nil {
			logrus.WithError(err).Error("Failed to create project")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to create project"})
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, projectResponse{Project: project, Role: core.RoleOwner})
	}
}

func HandleGet(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.ClaimsFromContext(r.Context())
		if claims == nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		id := chi.URLParam(r, "id")
		project, err := store.Get(r.Context(), id)
		if err != nil {
			logrus.WithError(err).WithField("project_id", id).Warn("Failed to get project")
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Project not found"})
			return
		}

		role := project.RoleOf(claims.UserID, claims.Subject)
		if role == "" {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, map[string]string{"error": "You do not have permission to access this project"})
			return
		}
		render.JSON(w, r, projectResponse{Project: project, Role: role})
	}
}

func HandleUpdate(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.ClaimsFromContext(r.Context())
		if claims == nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		id := chi.URLParam(r, "id")
		project, err := store.Get(r.Context(), id)
		if err != nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Project not found"})
			return
		}

		role := project.RoleOf(claims.UserID, claims.Subject)
		if !role.CanEdit() {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, map[string]string{"error": "You do not have permission to edit this project"})
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
			logrus.WithError(err).WithField("project_id", id).Error("Failed to save project")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to save project"})
			return
		}
		render.JSON(w, r, projectResponse{Project: project, Role: role})
	}
}

func HandleDelete(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.ClaimsFromContext(r.Context())
		if claims == nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		id := chi.URLParam(r, "id")
		project, err := store.Get(r.Context(), id)
		if err != nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Project not found"})
			return
		}
		if project.RoleOf(claims.UserID, claims.Subject) != core.RoleOwner {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, map[string]string{"error": "Only the owner can delete a project"})
			return
		}

		if err := store.Delete(r.Context(), id); err != nil {
			logrus.WithError(err).WithField("project_id", id).Error("Failed to delete project")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to delete project"})
			return
		}
		render.Status(r, http.StatusOK)
		render.JSON(w, r, map[string]string{"status": "deleted"})
	}
}

// HandleShare grants a collaborator a role on the project, keyed by email.
func HandleShare(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.ClaimsFromContext(r.Context())
		if claims == nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		id := chi.URLParam(r, "id")
		project, err := store.Get(r.Context(), id)
		if err != nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Project not found"})
			return
		}
		if project.RoleOf(claims.UserID, claims.Subject) != core.RoleOwner {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, map[string]string{"error": "Only the owner can share a project"})
			return
		}

		var req shareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "email is required"})
			return
		}
		if req.Role != core.RoleEditor && req.Role != core.RoleViewer {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "role must be editor or viewer"})
			return
		}

		if project.Shares == nil {
			project.Shares = make(map[string]core.Role)
		}
		project.Shares[req.Email] = req.Role
		if err := store.Save(r.Context(), project); err != nil {
			logrus.WithError(err).WithField("project_id", id).Error("Failed to share project")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to share project"})
			return
		}

		logrus.WithFields(logrus.Fields{"project_id": id, "email": req.Email, "role": req.Role}).Info("Project shared")
		render.JSON(w, r, map[string]string{"status": "shared"})
	}
}
