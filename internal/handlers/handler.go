package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/Talha-Tahir2001/CollabSphere/internal/crypto"
	"github.com/Talha-Tahir2001/CollabSphere/internal/hub"
	"github.com/Talha-Tahir2001/CollabSphere/internal/store"
)

// emailRegex validates email addresses per RFC 5322 (simplified).
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db       store.DataStore
	messages store.MessageStore
	tokens   *crypto.TokenIssuer
	hub      *hub.Hub
	logger   zerolog.Logger
}

// NewHandler creates a new Handler with the given stores.
func NewHandler(db store.DataStore, messages store.MessageStore, tokens *crypto.TokenIssuer, h *hub.Hub, logger zerolog.Logger) *Handler {
	return &Handler{
		db:       db,
		messages: messages,
		tokens:   tokens,
		hub:      h,
		logger:   logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeText trims s, strips control characters and limits it to max bytes
// without splitting a rune.
func sanitizeText(s string, max int) string {
	s = strings.TrimSpace(s)

	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	if len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

// sanitizeName trims and limits name to 100 bytes, removing control characters.
func sanitizeName(name string) string {
	return sanitizeText(name, 100)
}

// isValidEmail validates email addresses using RFC 5322 pattern.
func isValidEmail(email string) bool {
	if email == "" {
		return true // optional
	}
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}
