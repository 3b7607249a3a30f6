package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Talha-Tahir2001/CollabSphere/internal/api/middleware"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

// CreateWorkspaceRequest represents the workspace creation request.
type CreateWorkspaceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AddMemberRequest represents the add member request.
type AddMemberRequest struct {
	UserID string `json:"userId"`
}

// ListWorkspaces lists the workspaces the caller belongs to.
func (h *Handler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	list, err := h.db.ListWorkspacesForUser(r.Context(), user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if list == nil {
		list = []models.Workspace{}
	}
	h.JSON(w, http.StatusOK, list)
}

// CreateWorkspace creates a workspace owned by the caller.
func (h *Handler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	description := sanitizeText(req.Description, 500)

	ws, err := h.db.CreateWorkspace(r.Context(), name, description, user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create workspace")
		return
	}
	h.JSON(w, http.StatusCreated, ws)
}

// AddMember adds a user to a workspace. Only the owner may add members.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ws := h.loadWorkspace(w, r)
	if ws == nil {
		return
	}
	if ws.OwnerID != user.ID {
		h.Error(w, http.StatusForbidden, "only the workspace owner can add members")
		return
	}

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	memberID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	member, err := h.db.GetUserByID(r.Context(), memberID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if member == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	if err := h.db.AddMember(r.Context(), ws.ID, memberID); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to add member")
		return
	}

	updated, err := h.db.GetWorkspace(r.Context(), ws.ID)
	if err != nil || updated == nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	h.JSON(w, http.StatusOK, updated)
}

// loadWorkspace resolves the {id} URL parameter. It writes the error response
// and returns nil when the workspace cannot be used.
func (h *Handler) loadWorkspace(w http.ResponseWriter, r *http.Request) *models.Workspace {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid workspace ID format")
		return nil
	}

	ws, err := h.db.GetWorkspace(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return nil
	}
	if ws == nil {
		h.Error(w, http.StatusNotFound, "workspace not found")
		return nil
	}
	return ws
}

// requireMember is loadWorkspace plus a membership check for the caller.
func (h *Handler) requireMember(w http.ResponseWriter, r *http.Request, user *models.User) *models.Workspace {
	ws := h.loadWorkspace(w, r)
	if ws == nil {
		return nil
	}
	if !ws.HasMember(user.ID) {
		h.Error(w, http.StatusForbidden, "not a member of this workspace")
		return nil
	}
	return ws
}
