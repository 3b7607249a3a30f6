package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

// testDataStore runs the DataStore contract against ds.
func testDataStore(t *testing.T, ds DataStore) {
	ctx := context.Background()
	suffix := uuid.NewString()[:8]

	require.NoError(t, ds.Ping(ctx))

	ada, err := ds.CreateUser(ctx, "ada-"+suffix, "ada@example.com", "hash")
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, ada.Role)
	assert.False(t, ada.CreatedAt.IsZero())

	_, err = ds.CreateUser(ctx, "ada-"+suffix, "", "hash")
	require.ErrorIs(t, err, ErrConflict)

	bob, err := ds.CreateUser(ctx, "bob-"+suffix, "", "hash")
	require.NoError(t, err)

	got, err := ds.GetUserByUsername(ctx, "ada-"+suffix)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ada.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	missing, err := ds.GetUserByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	n, err := ds.CountUsers(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(2))

	ws, err := ds.CreateWorkspace(ctx, "general", "team chat", ada.ID)
	require.NoError(t, err)
	assert.Equal(t, ada.ID, ws.OwnerID)
	assert.Equal(t, []uuid.UUID{ada.ID}, ws.Members)

	member, err := ds.IsMember(ctx, ws.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, member)

	require.NoError(t, ds.AddMember(ctx, ws.ID, bob.ID))
	require.NoError(t, ds.AddMember(ctx, ws.ID, bob.ID))
	member, err = ds.IsMember(ctx, ws.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, member)

	list, err := ds.ListWorkspacesForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Members, 2)

	require.NoError(t, ds.IncrementMessageCount(ctx, ws.ID))
	ws, err = ds.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ws.MessageCount)

	none, err := ds.GetWorkspace(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	ds, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer ds.Close()

	testDataStore(t, ds)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	ds, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	defer ds.Close()
	require.NoError(t, ds.RunMigrations(ctx))

	testDataStore(t, ds)
}

// testMessageStore runs the MessageStore contract against ms.
func testMessageStore(t *testing.T, ms MessageStore) {
	ctx := context.Background()
	room := "room-" + uuid.NewString()
	start := base()

	for i := 5; i >= 1; i-- {
		msg := &models.Message{
			RoomID:    room,
			Sender:    models.Sender{ID: "u-1", Username: "ada"},
			Content:   fmt.Sprintf("m%d", i),
			CreatedAt: start.Add(time.Duration(i) * time.Second).Add(123456 * time.Nanosecond),
		}
		require.NoError(t, ms.AddMessage(ctx, msg))
		require.NotEmpty(t, msg.ID)
		assert.Equal(t, time.UTC, msg.CreatedAt.Location())
		assert.Zero(t, msg.CreatedAt.Nanosecond()%int(time.Millisecond))
	}

	latest, err := ms.GetRoomMessages(ctx, room, 3, models.Cursor{})
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, []string{"m3", "m4", "m5"}, contents(latest))

	older, err := ms.GetRoomMessages(ctx, room, 3, latest[0].Cursor())
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, contents(older))

	got, err := ms.GetMessage(ctx, room, latest[2].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "m5", got.Content)

	got, err = ms.GetMessage(ctx, room, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	empty, err := ms.GetRoomMessages(ctx, "room-"+uuid.NewString(), 10, models.Cursor{})
	require.NoError(t, err)
	assert.Empty(t, empty)

	testMessageStoreTies(t, ms)
}

// testMessageStoreTies pages through messages sharing one millisecond.
func testMessageStoreTies(t *testing.T, ms MessageStore) {
	ctx := context.Background()
	room := "room-" + uuid.NewString()
	at := base().Add(time.Minute)

	for i := range 5 {
		require.NoError(t, ms.AddMessage(ctx, &models.Message{
			RoomID:    room,
			Sender:    models.Sender{ID: "u-1", Username: "ada"},
			Content:   fmt.Sprintf("t%d", i),
			CreatedAt: at,
		}))
	}
	require.NoError(t, ms.AddMessage(ctx, &models.Message{
		RoomID:    room,
		Sender:    models.Sender{ID: "u-1", Username: "ada"},
		Content:   "earlier",
		CreatedAt: at.Add(-time.Second),
	}))

	var all []models.Message
	var cursor models.Cursor
	for range 10 {
		page, err := ms.GetRoomMessages(ctx, room, 2, cursor)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		all = append(slices.Clone(page), all...)
		cursor = page[0].Cursor()
	}
	require.Len(t, all, 6)
	assert.Equal(t, "earlier", all[0].Content)
	assert.True(t, slices.IsSortedFunc(all, models.Message.Compare))

	// A cursor without an id skips the whole millisecond.
	page, err := ms.GetRoomMessages(ctx, room, 10, models.Cursor{CreatedAt: at})
	require.NoError(t, err)
	assert.Equal(t, []string{"earlier"}, contents(page))
}

func contents(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

// testRateLimiter runs the RateLimiter contract against rl.
func testRateLimiter(t *testing.T, rl RateLimiter) {
	ctx := context.Background()
	key := "test-" + uuid.NewString()
	for i := 0; i < 2; i++ {
		ok, err := rl.CheckRateLimit(ctx, key, 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		n, err := rl.IncrementRateLimit(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i+1, n)
	}
	ok, err := rl.CheckRateLimit(ctx, key, 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	testMessageStore(t, NewMemoryStore())
	testRateLimiter(t, NewMemoryStore())
}

func TestMemoryRateLimitWindowExpires(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	now := base()
	ms.now = func() time.Time { return now }

	_, err := ms.IncrementRateLimit(ctx, "k", time.Minute)
	require.NoError(t, err)
	ok, err := ms.CheckRateLimit(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, err = ms.CheckRateLimit(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func base() time.Time {
	return time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	rs, err := NewRedisStore(ctx, url)
	require.NoError(t, err)
	defer rs.Close()

	testMessageStore(t, rs)
	testRateLimiter(t, rs)
}
