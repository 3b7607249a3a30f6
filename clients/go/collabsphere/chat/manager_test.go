package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Talha-Tahir2001/CollabSphere/clients/go/collabsphere"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

func TestManagerSwitchIsolatesRooms(t *testing.T) {
	h := newHarness()
	h.api.add(msgAt("a1", "room-a", 1), msgAt("b1", "room-b", 1))
	releaseA := h.api.hold("room-a")
	defer releaseA()

	m := NewManager(h.cfg)
	defer m.Shutdown()
	ctx := context.Background()
	cred := testCred(t)

	a, err := m.Open(ctx, "room-a", cred)
	require.NoError(t, err)
	connA := h.dialer.conn(0)

	b, err := m.Open(ctx, "room-b", cred)
	require.NoError(t, err)
	assert.Same(t, b, m.Active())

	assert.Equal(t, StateClosed, a.State())
	assert.True(t, connA.closed())
	assert.Equal(t, 0, connA.handlerCount())

	// Late traffic from room A: a live event and the held history page.
	connA.emit(t, models.EventReceiveMessage, msgAt("a2", "room-a", 2))
	connA.emit(t, models.EventReceiveMessage, msgAt("b9", "room-b", 9))
	releaseA()

	require.Eventually(t, func() bool { return b.Store().Len() == 1 }, waitFor, tick)
	flush(t, b)
	assert.Equal(t, []string{"b1"}, ids(b.Store().Messages()))
	assert.Equal(t, 0, a.Store().Len())
	assert.Empty(t, h.errs.get("room-b"))
}

func TestManagerLogoutClosesSession(t *testing.T) {
	h := newHarness()
	auth, err := collabsphere.NewAuthState("")
	require.NoError(t, err)
	h.cfg.Auth = auth

	m := NewManager(h.cfg)
	defer m.Shutdown()

	_, err = m.OpenCurrent(context.Background(), "r1")
	require.ErrorIs(t, err, collabsphere.ErrAuthRequired)

	require.NoError(t, auth.Login(testCred(t)))
	s, err := m.OpenCurrent(context.Background(), "r1")
	require.NoError(t, err)

	require.NoError(t, auth.Logout())
	assert.Nil(t, m.Active())
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, h.dialer.conn(0).closed())
	assert.Equal(t, 1, h.errs.count("r1", collabsphere.ErrAuthRequired))
}

func TestManagerCloseAndShutdown(t *testing.T) {
	h := newHarness()
	m := NewManager(h.cfg)
	ctx := context.Background()

	s, err := m.Open(ctx, "r1", testCred(t))
	require.NoError(t, err)
	require.NoError(t, m.Close(s))
	assert.Nil(t, m.Active())
	assert.Equal(t, StateClosed, s.State())
	require.NoError(t, m.Close(nil))

	_, err = m.Open(ctx, "r2", testCred(t))
	require.NoError(t, err)
	require.NoError(t, m.Shutdown())
	assert.Nil(t, m.Active())

	_, err = m.Open(ctx, "r3", testCred(t))
	require.ErrorIs(t, err, collabsphere.ErrSessionClosed)
}

func TestManagerOpenFailureLeavesNoSession(t *testing.T) {
	h := newHarness()
	m := NewManager(h.cfg)
	defer m.Shutdown()
	ctx := context.Background()

	_, err := m.Open(ctx, "r1", testCred(t))
	require.NoError(t, err)

	_, err = m.Open(ctx, "", testCred(t))
	require.ErrorIs(t, err, collabsphere.ErrRoomUnavailable)
	assert.Nil(t, m.Active())
	assert.True(t, h.dialer.conn(0).closed())
}
