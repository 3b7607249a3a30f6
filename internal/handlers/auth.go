package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/Talha-Tahir2001/CollabSphere/internal/api/middleware"
	"github.com/Talha-Tahir2001/CollabSphere/internal/crypto"
	"github.com/Talha-Tahir2001/CollabSphere/internal/metrics"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
	"github.com/Talha-Tahir2001/CollabSphere/internal/store"
)

// Username validation: alphanumeric, hyphens, underscores, 3-32 chars
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,32}$`)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string          `json:"token"`
	User  models.Identity `json:"user"`
}

// Register handles account registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if !usernameRegex.MatchString(req.Username) {
		h.Error(w, http.StatusBadRequest, "username must be 3-32 characters, alphanumeric with hyphens and underscores only")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if !isValidEmail(req.Email) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if errors.Is(err, crypto.ErrWeakPassword) {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := h.db.CreateUser(r.Context(), req.Username, req.Email, hash)
	if errors.Is(err, store.ErrConflict) {
		h.Error(w, http.StatusConflict, "username already taken")
		return
	}
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	metrics.UsersRegistered.Inc()

	h.issue(w, http.StatusCreated, user)
}

// Login exchanges a username and password for a bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.db.GetUserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil || crypto.CheckPassword(user.PasswordHash, req.Password) != nil {
		h.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.issue(w, http.StatusOK, user)
}

func (h *Handler) issue(w http.ResponseWriter, status int, user *models.User) {
	token, err := h.tokens.Issue(user)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	h.JSON(w, status, AuthResponse{Token: token, User: user.Identity()})
}

// Me returns the authenticated account.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	h.JSON(w, http.StatusOK, user)
}
