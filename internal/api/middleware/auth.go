package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Talha-Tahir2001/CollabSphere/internal/crypto"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

type contextKey string

const UserContextKey contextKey = "user"

// UserLookup resolves the account a token was issued to.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuthMiddleware verifies bearer tokens on authenticated endpoints.
type AuthMiddleware struct {
	tokens *crypto.TokenIssuer
	users  UserLookup
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(tokens *crypto.TokenIssuer, users UserLookup) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// authenticated user in the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.Authenticate(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="collabsphere"`)
			jsonError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

var (
	errMissingToken = errors.New("missing bearer token")
	errUnknownUser  = errors.New("user no longer exists")
)

// Authenticate resolves the user of the request's bearer token.
func (m *AuthMiddleware) Authenticate(r *http.Request) (*models.User, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, errMissingToken
	}

	claims, err := m.tokens.Verify(strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, crypto.ErrInvalidToken
	}

	user, err := m.users.GetUserByID(r.Context(), id)
	if err != nil || user == nil {
		return nil, errUnknownUser
	}
	return user, nil
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// WithUser returns ctx carrying user. It also tags the request log line when
// ctx came through Logger.
func WithUser(ctx context.Context, user *models.User) context.Context {
	if f, ok := ctx.Value(logFieldsKey).(*logFields); ok {
		f.user = user.ID.String()
	}
	return context.WithValue(ctx, UserContextKey, user)
}

// GetUserFromContext retrieves the authenticated user from the request context.
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
