package collabsphere

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

const sessionFile = "session.json"

// Credential is a bearer token plus the identity it was issued for.
type Credential struct {
	Token    string          `json:"token"`
	Identity models.Identity `json:"user"`
}

// ExpiresAt returns the exp claim of the token. ok is false for opaque
// tokens or tokens without an expiry.
func (c Credential) ExpiresAt() (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.Token, claims); err != nil {
		return time.Time{}, false
	}
	t, err := claims.GetExpirationTime()
	if err != nil || t == nil {
		return time.Time{}, false
	}
	return t.Time, true
}

// Validate returns ErrAuthRequired if the credential is empty or expired at now.
func (c Credential) Validate(now time.Time) error {
	if c.Token == "" {
		return ErrAuthRequired
	}
	if exp, ok := c.ExpiresAt(); ok && !now.Before(exp) {
		return fmt.Errorf("%w: token expired at %s", ErrAuthRequired, exp.Format(time.RFC3339))
	}
	return nil
}

// CredentialSource yields the credential to attach to requests.
type CredentialSource interface {
	Current() (Credential, error)
}

// StaticCredential is a CredentialSource that always returns itself.
type StaticCredential Credential

// Current implements CredentialSource.
func (s StaticCredential) Current() (Credential, error) {
	c := Credential(s)
	if err := c.Validate(time.Now()); err != nil {
		return Credential{}, err
	}
	return c, nil
}

// AuthEvent is delivered to AuthState subscribers on login and logout.
type AuthEvent struct {
	LoggedIn   bool
	Credential Credential
}

// AuthState is the single process-wide holder of the user's credential.
// Subscribers are notified on every login and logout.
type AuthState struct {
	path string
	now  func() time.Time

	mu   sync.RWMutex
	cred *Credential
	subs map[uint64]func(AuthEvent)
	next uint64
}

// NewAuthState creates an AuthState persisted under configDir and loads
// any saved credential. An empty configDir keeps the state in memory only.
func NewAuthState(configDir string) (*AuthState, error) {
	a := &AuthState{
		now:  time.Now,
		subs: make(map[uint64]func(AuthEvent)),
	}
	if configDir == "" {
		return a, nil
	}
	a.path = filepath.Join(configDir, sessionFile)

	data, err := os.ReadFile(a.path)
	if errors.Is(err, os.ErrNotExist) {
		return a, nil
	}
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("parse %s: %w", a.path, err)
	}
	if cred.Token != "" {
		a.cred = &cred
	}
	return a, nil
}

// Current returns the stored credential, or ErrAuthRequired when there is
// none or it has expired.
func (a *AuthState) Current() (Credential, error) {
	a.mu.RLock()
	cred := a.cred
	a.mu.RUnlock()

	if cred == nil {
		return Credential{}, ErrAuthRequired
	}
	if err := cred.Validate(a.now()); err != nil {
		return Credential{}, err
	}
	return *cred, nil
}

// Login stores cred, persists it and notifies subscribers.
func (a *AuthState) Login(cred Credential) error {
	if cred.Token == "" {
		return fmt.Errorf("%w: empty token", ErrAuthRequired)
	}
	if err := a.save(&cred); err != nil {
		return err
	}

	a.mu.Lock()
	a.cred = &cred
	a.mu.Unlock()

	a.notify(AuthEvent{LoggedIn: true, Credential: cred})
	return nil
}

// Logout forgets the credential and notifies subscribers.
func (a *AuthState) Logout() error {
	if err := a.save(nil); err != nil {
		return err
	}

	a.mu.Lock()
	a.cred = nil
	a.mu.Unlock()

	a.notify(AuthEvent{LoggedIn: false})
	return nil
}

// Subscribe registers fn for login/logout events. The returned function
// removes the subscription and is safe to call more than once.
func (a *AuthState) Subscribe(fn func(AuthEvent)) (dispose func()) {
	a.mu.Lock()
	id := a.next
	a.next++
	a.subs[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}
}

func (a *AuthState) notify(ev AuthEvent) {
	a.mu.RLock()
	fns := make([]func(AuthEvent), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// save writes cred to disk, or removes the file when cred is nil.
func (a *AuthState) save(cred *Credential) error {
	if a.path == "" {
		return nil
	}
	if cred == nil {
		err := os.Remove(a.path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(a.path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(a.path, data, 0600)
}
