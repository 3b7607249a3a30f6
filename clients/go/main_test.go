package main

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Talha-Tahir2001/CollabSphere/clients/go/collabsphere"
	"github.com/Talha-Tahir2001/CollabSphere/clients/go/collabsphere/chat"
	"github.com/Talha-Tahir2001/CollabSphere/internal/api"
	"github.com/Talha-Tahir2001/CollabSphere/internal/config"
	"github.com/Talha-Tahir2001/CollabSphere/internal/hub"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
	"github.com/Talha-Tahir2001/CollabSphere/internal/store"
)

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	db, err := store.NewSQLiteStore(ctx, ":memory:")
	require.NoError(t, err)
	memory := store.NewMemoryStore()
	h := hub.New(zerolog.Nop())

	srv := httptest.NewServer(api.NewRouter(zerolog.Nop(), &config.Config{
		JWTSecret:   "test-secret",
		TokenTTL:    time.Hour,
		CORSOrigins: []string{"*"},
	}, api.Dependencies{DB: db, Messages: memory, Limiter: memory, Hub: h}))
	t.Cleanup(func() {
		h.CloseAll()
		h.Wait()
		srv.Close()
		db.Close()
	})
	return srv
}

func TestCommands(t *testing.T) {
	srv := startServer(t)
	dir := t.TempDir()
	t.Setenv("COLLAB_URL", "")
	t.Setenv("COLLAB_WS_URL", "")
	t.Setenv("COLLAB_CONFIG", dir)
	t.Setenv("COLLAB_PASSWORD", "correct-horse")

	run := func(args ...string) error {
		root := newRootCmd(&app{})
		root.SetArgs(append([]string{"--url", srv.URL}, args...))
		return root.ExecuteContext(context.Background())
	}

	require.NoError(t, run("register", "alice"))
	require.NoError(t, run("whoami"))
	require.NoError(t, run("workspaces", "create", "Design", "Team"))

	auth, err := collabsphere.NewAuthState(dir)
	require.NoError(t, err)
	cred, err := auth.Current()
	require.NoError(t, err)
	assert.Equal(t, "alice", cred.Identity.Username)

	client := collabsphere.NewClient(srv.URL, auth)
	list, err := client.ListWorkspaces(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Design Team", list[0].Name)
	room := list[0].ID.String()

	require.NoError(t, run("post", room, "hello", "team"))
	require.NoError(t, run("read", room))

	msgs, err := client.GetMessages(context.Background(), room)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello team", msgs[0].Content)

	require.NoError(t, run("logout"))
	err = run("whoami")
	assert.Equal(t, collabsphere.KindAuthRequired, collabsphere.KindOf(err))

	require.NoError(t, run("login", "alice"))
	require.NoError(t, run("whoami"))
}

func TestRoomErrors(t *testing.T) {
	srv := startServer(t)
	t.Setenv("COLLAB_URL", "")
	t.Setenv("COLLAB_WS_URL", "")
	t.Setenv("COLLAB_CONFIG", t.TempDir())
	t.Setenv("COLLAB_PASSWORD", "correct-horse")

	run := func(args ...string) error {
		root := newRootCmd(&app{})
		root.SetArgs(append([]string{"--url", srv.URL}, args...))
		return root.ExecuteContext(context.Background())
	}

	require.NoError(t, run("register", "bob"))
	err := run("read", "00000000-0000-0000-0000-000000000001")
	assert.Equal(t, collabsphere.KindRoomUnavailable, collabsphere.KindOf(err))

	err = run("post", "00000000-0000-0000-0000-000000000001", "hi")
	assert.Equal(t, collabsphere.KindRoomUnavailable, collabsphere.KindOf(err))
}

func TestWatchStoreDropsChangesAfterReaderStops(t *testing.T) {
	st := chat.NewStore("r1")
	ctx, cancel := context.WithCancel(context.Background())
	changes, dispose := watchStore(ctx, st)
	defer dispose()

	_, err := st.Append(models.Message{ID: "m0", CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "m0", (<-changes).Message.ID)

	cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		at := time.Now()
		for i := 1; i <= 300; i++ {
			_, _ = st.Append(models.Message{ID: fmt.Sprintf("m%03d", i), CreatedAt: at})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("store writes blocked on a stopped watcher")
	}
	assert.Equal(t, 301, st.Len())
}
