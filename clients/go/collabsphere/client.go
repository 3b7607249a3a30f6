// Package collabsphere provides a client for the CollabSphere workspace API.
package collabsphere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

// ClientTokenHeader carries the correlation token of a pending send.
const ClientTokenHeader = "X-Client-Token"

// Client is a CollabSphere REST API client.
type Client struct {
	BaseURL     string
	HTTPClient  *http.Client
	Credentials CredentialSource
}

// NewClient creates a new client. creds may be nil for public calls only.
func NewClient(baseURL string, creds CredentialSource) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		Credentials: creds,
	}
}

// WithCredential returns a copy of the client bound to cred.
func (c *Client) WithCredential(cred Credential) *Client {
	cp := *c
	cp.Credentials = StaticCredential(cred)
	return &cp
}

type request struct {
	op      string
	method  string
	path    string
	body    any
	authed  bool
	room    bool
	headers http.Header
}

// do performs an HTTP request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, r request, out any) error {
	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.BaseURL+r.path, body)
	if err != nil {
		return err
	}
	for k, v := range r.headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if r.authed {
		if c.Credentials == nil {
			return fmt.Errorf("%s: %w", r.op, ErrAuthRequired)
		}
		cred, err := c.Credentials.Current()
		if err != nil {
			return fmt.Errorf("%s: %w", r.op, err)
		}
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", r.op, ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", r.op, ErrRequestFailed, err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		return &RequestError{
			Op:         r.op,
			StatusCode: resp.StatusCode,
			Message:    errResp.Error,
			Room:       r.room,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: decode response: %w: %w", r.op, ErrRequestFailed, err)
	}
	return nil
}

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string          `json:"token"`
	User  models.Identity `json:"user"`
}

// Credential converts the response into a storable credential.
func (r *AuthResponse) Credential() Credential {
	return Credential{Token: r.Token, Identity: r.User}
}

// Register creates an account and returns its credential.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (Credential, error) {
	var resp AuthResponse
	err := c.do(ctx, request{op: "register", method: http.MethodPost, path: "/auth/register", body: req}, &resp)
	if err != nil {
		return Credential{}, err
	}
	return resp.Credential(), nil
}

// Login exchanges a username and password for a credential.
func (c *Client) Login(ctx context.Context, username, password string) (Credential, error) {
	var resp AuthResponse
	err := c.do(ctx, request{
		op:     "login",
		method: http.MethodPost,
		path:   "/auth/login",
		body:   LoginRequest{Username: username, Password: password},
	}, &resp)
	if err != nil {
		return Credential{}, err
	}
	return resp.Credential(), nil
}

// Me returns the account the credential belongs to.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, request{op: "me", method: http.MethodGet, path: "/auth/me", authed: true}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser gets a user's public profile.
func (c *Client) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := c.do(ctx, request{op: "get user", method: http.MethodGet, path: "/users/" + url.PathEscape(userID), authed: true}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListWorkspaces lists the workspaces the caller belongs to.
func (c *Client) ListWorkspaces(ctx context.Context) ([]models.Workspace, error) {
	var ws []models.Workspace
	if err := c.do(ctx, request{op: "list workspaces", method: http.MethodGet, path: "/workspaces", authed: true}, &ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// CreateWorkspaceRequest is the request body for creating a workspace.
type CreateWorkspaceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateWorkspace creates a workspace owned by the caller.
func (c *Client) CreateWorkspace(ctx context.Context, name, description string) (*models.Workspace, error) {
	var ws models.Workspace
	err := c.do(ctx, request{
		op:     "create workspace",
		method: http.MethodPost,
		path:   "/workspaces",
		body:   CreateWorkspaceRequest{Name: name, Description: description},
		authed: true,
	}, &ws)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// AddMemberRequest is the request body for adding a workspace member.
type AddMemberRequest struct {
	UserID string `json:"userId"`
}

// AddMember adds a user to a workspace owned by the caller.
func (c *Client) AddMember(ctx context.Context, workspaceID, userID string) (*models.Workspace, error) {
	var ws models.Workspace
	err := c.do(ctx, request{
		op:     "add member",
		method: http.MethodPost,
		path:   "/workspaces/" + url.PathEscape(workspaceID) + "/members",
		body:   AddMemberRequest{UserID: userID},
		authed: true,
		room:   true,
	}, &ws)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// GetMessages retrieves the latest page of messages of a room, oldest first.
func (c *Client) GetMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	return c.GetMessagesPage(ctx, roomID, 0, models.Cursor{})
}

// GetMessagesPage retrieves up to limit messages sorting strictly before
// before (zero means latest), oldest first. limit <= 0 uses the server default.
func (c *Client) GetMessagesPage(ctx context.Context, roomID string, limit int, before models.Cursor) ([]models.Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if !before.IsZero() {
		q.Set("before", strconv.FormatInt(before.CreatedAt.UnixMilli(), 10))
		if before.ID != "" {
			q.Set("beforeId", before.ID)
		}
	}
	path := "/workspaces/" + url.PathEscape(roomID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var msgs []models.Message
	err := c.do(ctx, request{op: "get messages", method: http.MethodGet, path: path, authed: true, room: true}, &msgs)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// PostMessageRequest is the request body for posting a message.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// PostMessage posts a message to a room. clientToken, when set, is echoed
// back on the created message.
func (c *Client) PostMessage(ctx context.Context, roomID, content, clientToken string) (*models.Message, error) {
	headers := http.Header{}
	if clientToken != "" {
		headers.Set(ClientTokenHeader, clientToken)
	}

	var msg models.Message
	err := c.do(ctx, request{
		op:      "post message",
		method:  http.MethodPost,
		path:    "/workspaces/" + url.PathEscape(roomID) + "/messages",
		body:    PostMessageRequest{Content: content},
		authed:  true,
		room:    true,
		headers: headers,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                    `json:"status"`
	Version   string                    `json:"version"`
	Checks    map[string]map[string]any `json:"checks"`
	Timestamp string                    `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, request{op: "health", method: http.MethodGet, path: "/health"}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
