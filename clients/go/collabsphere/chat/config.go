// Package chat implements the real-time chat session of a CollabSphere
// workspace: an ordered, deduplicated message store fed by a history fetch
// and the live channel, a session that owns one live connection and
// reconnects with backoff, and a manager that keeps one session open at a time.
package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/Talha-Tahir2001/CollabSphere/clients/go/collabsphere"
	"github.com/Talha-Tahir2001/CollabSphere/clients/go/collabsphere/live"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

const (
	defaultHistoryLimit     = 50
	defaultReconnectInitial = time.Second
	defaultReconnectMax     = 30 * time.Second
	defaultReconnectGiveUp  = 15 * time.Minute
)

// Conn is the live channel connection owned by a session.
type Conn interface {
	JoinRoom(ctx context.Context, roomID string) error
	Send(ctx context.Context, event string, payload any) error
	OnEvent(name string, h func(json.RawMessage)) (dispose func())
	Done() <-chan struct{}
	Disconnect() error
}

// DialFunc opens a live channel connection authenticated with cred.
type DialFunc func(ctx context.Context, cred collabsphere.Credential) (Conn, error)

// API is the REST surface a session needs.
type API interface {
	GetMessagesPage(ctx context.Context, roomID string, limit int, before models.Cursor) ([]models.Message, error)
	PostMessage(ctx context.Context, roomID, content, clientToken string) (*models.Message, error)
}

// APIFunc returns an API bound to cred.
type APIFunc func(cred collabsphere.Credential) API

// Config configures sessions created by a Manager.
type Config struct {
	Dial DialFunc
	API  APIFunc

	// Auth, when set, is watched for logout; logging out closes the
	// active session.
	Auth *collabsphere.AuthState

	Logger zerolog.Logger

	// OnError receives non-fatal session errors: connection loss, failed
	// history loads, rejected messages. It runs on the session event loop
	// and must not block or call Session.Close.
	OnError func(roomID string, err error)

	HistoryLimit     int
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	ReconnectGiveUp  time.Duration

	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	if c.ReconnectInitial <= 0 {
		c.ReconnectInitial = defaultReconnectInitial
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = defaultReconnectMax
	}
	if c.ReconnectGiveUp <= 0 {
		c.ReconnectGiveUp = defaultReconnectGiveUp
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// WebSocket returns a DialFunc connecting to the live channel at endpoint.
func WebSocket(endpoint string, opts live.Options) DialFunc {
	return func(ctx context.Context, cred collabsphere.Credential) (Conn, error) {
		conn, err := live.Dial(ctx, endpoint, cred.Token, opts)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// REST returns an APIFunc binding client to each session's credential.
func REST(client *collabsphere.Client) APIFunc {
	return func(cred collabsphere.Credential) API {
		return client.WithCredential(cred)
	}
}
