package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Talha-Tahir2001/CollabSphere/clients/go/collabsphere"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

// flush waits until every event queued before it has been applied.
func flush(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.call(context.Background(), func() {}))
}

func openTest(t *testing.T, h *harness, roomID string) *Session {
	t.Helper()
	s, err := open(context.Background(), h.cfg, roomID, testCred(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionLoadsHistoryAndLiveMessages(t *testing.T) {
	h := newHarness()
	h.api.add(msgAt("m1", "r1", 1), msgAt("m2", "r1", 2))

	s := openTest(t, h, "r1")
	assert.Equal(t, StateLive, s.State())
	assert.Equal(t, "u-1", s.Identity().ID)

	require.Eventually(t, func() bool { return s.Store().Len() == 2 }, waitFor, tick)

	conn := h.dialer.conn(0)
	conn.emit(t, models.EventReceiveMessage, msgAt("m3", "r1", 3))
	conn.emit(t, models.EventReceiveMessage, msgAt("m2", "r1", 2))
	flush(t, s)

	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(s.Store().Messages()))
	assert.Empty(t, h.errs.get("r1"))
}

func TestSessionReportsMalformedLiveMessageOnce(t *testing.T) {
	h := newHarness()
	s := openTest(t, h, "r1")
	conn := h.dialer.conn(0)

	conn.emitRaw(models.EventReceiveMessage, json.RawMessage(`"garbage"`))
	conn.emit(t, models.EventReceiveMessage, models.Message{Content: "no id", CreatedAt: base})
	conn.emit(t, models.EventReceiveMessage, msgAt("m1", "r1", 1))
	flush(t, s)

	assert.Equal(t, 2, h.errs.count("r1", collabsphere.ErrValidation))
	assert.Equal(t, []string{"m1"}, ids(s.Store().Messages()))
}

func TestSessionSendReconcilesAndRelays(t *testing.T) {
	h := newHarness()
	s := openTest(t, h, "r1")

	var mu sync.Mutex
	var changes []ChangeType
	dispose := s.Store().Subscribe(func(c Change) {
		mu.Lock()
		changes = append(changes, c.Type)
		mu.Unlock()
	})
	defer dispose()

	msg, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", msg.ID)
	assert.Empty(t, msg.ClientToken)

	assert.True(t, s.Store().Contains("srv-1"))
	assert.Empty(t, s.Store().Pending())

	mu.Lock()
	require.NotEmpty(t, changes)
	assert.Equal(t, ChangePendingAdded, changes[0])
	assert.Contains(t, changes, ChangePendingResolved)
	mu.Unlock()

	events := h.dialer.conn(0).sentEvents()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventSendMessage, events[0].Event)

	var p models.SendMessagePayload
	require.NoError(t, json.Unmarshal(events[0].Data, &p))
	assert.Equal(t, "r1", p.RoomID)
	assert.Equal(t, "u-1", p.SenderID)
	assert.Equal(t, "srv-1", p.Message.ID)
	assert.Empty(t, p.Message.ClientToken)
}

func TestSessionSendFailureDropsPending(t *testing.T) {
	h := newHarness()
	h.api.postErr = &collabsphere.RequestError{Op: "post message", StatusCode: 500, Room: true}
	s := openTest(t, h, "r1")

	var mu sync.Mutex
	var changes []ChangeType
	dispose := s.Store().Subscribe(func(c Change) {
		mu.Lock()
		changes = append(changes, c.Type)
		mu.Unlock()
	})
	defer dispose()

	_, err := s.Send(context.Background(), "hello")
	require.ErrorIs(t, err, collabsphere.ErrRequestFailed)
	assert.Empty(t, s.Store().Pending())
	assert.Equal(t, 0, s.Store().Len())

	mu.Lock()
	assert.Equal(t, []ChangeType{ChangePendingAdded, ChangePendingDropped}, changes)
	mu.Unlock()

	_, err = s.Send(context.Background(), "   ")
	require.ErrorIs(t, err, collabsphere.ErrValidation)
	assert.Empty(t, h.dialer.conn(0).sentEvents())
}

func TestSessionReconnectRefetchesHistory(t *testing.T) {
	h := newHarness()
	h.api.add(msgAt("m1", "r1", 1))
	s := openTest(t, h, "r1")
	require.Eventually(t, func() bool { return s.Store().Len() == 1 }, waitFor, tick)

	// m2 is posted by someone else while this client is disconnected.
	h.api.add(msgAt("m2", "r1", 2))
	first := h.dialer.conn(0)
	first.drop()

	require.Eventually(t, func() bool {
		return h.dialer.attempts() == 2 && s.State() == StateLive && s.Store().Contains("m2")
	}, waitFor, tick)
	assert.GreaterOrEqual(t, h.api.fetches.Load(), int32(2))
	assert.Equal(t, 1, h.errs.count("r1", collabsphere.ErrConnection))

	first.emit(t, models.EventReceiveMessage, msgAt("m9", "r1", 9))
	second := h.dialer.conn(1)
	second.emit(t, models.EventReceiveMessage, msgAt("m3", "r1", 3))
	flush(t, s)

	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(s.Store().Messages()))
	assert.Equal(t, 0, first.handlerCount())
}

func TestSessionReconnectFillsGapLongerThanPage(t *testing.T) {
	h := newHarness()
	h.cfg.HistoryLimit = 5
	h.api.add(msgAt("m00", "r1", 0), msgAt("m01", "r1", 1))
	s := openTest(t, h, "r1")
	require.Eventually(t, func() bool { return s.Store().Len() == 2 }, waitFor, tick)

	// Two pages' worth is posted while the connection is down.
	var want []string
	for i := 0; i < 12; i++ {
		want = append(want, fmt.Sprintf("m%02d", i))
		if i >= 2 {
			h.api.add(msgAt(want[i], "r1", i))
		}
	}
	h.dialer.conn(0).drop()

	require.Eventually(t, func() bool {
		return s.State() == StateLive && s.Store().Len() == 12
	}, waitFor, tick)
	flush(t, s)
	assert.Equal(t, want, ids(s.Store().Messages()))
}

func TestSessionReconnectRetriesTransientFailures(t *testing.T) {
	h := newHarness()
	h.dialer.fail = func(n int) error {
		if n == 1 || n == 2 {
			return &collabsphere.ConnectionError{Endpoint: "ws://test", Err: fmt.Errorf("refused")}
		}
		return nil
	}
	s := openTest(t, h, "r1")
	h.dialer.conn(0).drop()

	require.Eventually(t, func() bool {
		return h.dialer.attempts() == 4 && s.State() == StateLive
	}, waitFor, tick)
}

func TestSessionReconnectStopsOnAuthFailure(t *testing.T) {
	h := newHarness()
	h.dialer.fail = func(n int) error {
		if n > 0 {
			return fmt.Errorf("dial: %w", collabsphere.ErrAuthRequired)
		}
		return nil
	}
	s := openTest(t, h, "r1")
	h.dialer.conn(0).drop()

	require.Eventually(t, func() bool { return s.State() == StateOffline }, waitFor, tick)
	assert.Equal(t, 2, h.dialer.attempts())
	assert.Equal(t, 1, h.errs.count("r1", collabsphere.ErrAuthRequired))
}

func TestSessionReconnectGivesUp(t *testing.T) {
	h := newHarness()
	h.cfg.ReconnectGiveUp = 50 * time.Millisecond
	h.dialer.fail = func(n int) error {
		if n > 0 {
			return &collabsphere.ConnectionError{Endpoint: "ws://test", Err: fmt.Errorf("refused")}
		}
		return nil
	}
	s := openTest(t, h, "r1")
	h.dialer.conn(0).drop()

	require.Eventually(t, func() bool { return s.State() == StateOffline }, waitFor, tick)
	assert.Greater(t, h.dialer.attempts(), 2)
}

func TestOpenFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("empty room", func(t *testing.T) {
		h := newHarness()
		_, err := open(ctx, h.cfg, "  ", testCred(t))
		require.ErrorIs(t, err, collabsphere.ErrRoomUnavailable)
		assert.Equal(t, 0, h.dialer.attempts())
	})

	t.Run("expired credential", func(t *testing.T) {
		h := newHarness()
		cred := testCred(t)
		cred.Token = token(t, time.Now().Add(-time.Minute))
		_, err := open(ctx, h.cfg, "r1", cred)
		require.ErrorIs(t, err, collabsphere.ErrAuthRequired)
		assert.Equal(t, 0, h.dialer.attempts())
	})

	t.Run("dial rejected", func(t *testing.T) {
		h := newHarness()
		h.dialer.fail = func(int) error { return collabsphere.ErrAuthRequired }
		_, err := open(ctx, h.cfg, "r1", testCred(t))
		require.ErrorIs(t, err, collabsphere.ErrAuthRequired)
	})

	t.Run("join rejected", func(t *testing.T) {
		h := newHarness()
		h.dialer.join = func(int) error {
			return fmt.Errorf("%w: not a member", collabsphere.ErrRoomUnavailable)
		}
		_, err := open(ctx, h.cfg, "r1", testCred(t))
		require.ErrorIs(t, err, collabsphere.ErrRoomUnavailable)
		assert.True(t, h.dialer.conn(0).closed())
	})
}

func TestSessionCloseDiscardsLateResults(t *testing.T) {
	h := newHarness()
	h.api.add(msgAt("m1", "r1", 1))
	release := h.api.hold("r1")
	defer release()

	s, err := open(context.Background(), h.cfg, "r1", testCred(t))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.api.fetches.Load() == 1 }, waitFor, tick)

	conn := h.dialer.conn(0)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	release()

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 0, s.Store().Len())
	assert.True(t, conn.closed())
	assert.Equal(t, 0, conn.handlerCount())

	conn.emit(t, models.EventReceiveMessage, msgAt("m2", "r1", 2))
	assert.Equal(t, 0, s.Store().Len())

	_, err = s.Send(context.Background(), "too late")
	require.ErrorIs(t, err, collabsphere.ErrSessionClosed)
}

func TestSessionLoadOlder(t *testing.T) {
	h := newHarness()
	h.cfg.HistoryLimit = 2
	for i := 1; i <= 5; i++ {
		h.api.add(msgAt(fmt.Sprintf("m%d", i), "r1", i))
	}
	s := openTest(t, h, "r1")
	require.Eventually(t, func() bool { return s.Store().Len() == 2 }, waitFor, tick)
	assert.Equal(t, []string{"m4", "m5"}, ids(s.Store().Messages()))

	ctx := context.Background()
	for _, want := range []int{2, 1, 0} {
		n, err := s.LoadOlder(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, ids(s.Store().Messages()))
}

func TestSessionLoadOlderWithinOneTimestamp(t *testing.T) {
	h := newHarness()
	h.cfg.HistoryLimit = 3
	for i := 0; i < 5; i++ {
		h.api.add(msgAt(fmt.Sprintf("m%d", i), "r1", 1))
	}
	s := openTest(t, h, "r1")
	require.Eventually(t, func() bool { return s.Store().Len() == 3 }, waitFor, tick)
	assert.Equal(t, []string{"m2", "m3", "m4"}, ids(s.Store().Messages()))

	n, err := s.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4"}, ids(s.Store().Messages()))
}

func TestSessionSendRejectedReplyDropsPending(t *testing.T) {
	h := newHarness()
	h.api.mangle = func(m *models.Message) { m.ID = "" }
	s := openTest(t, h, "r1")

	_, err := s.Send(context.Background(), "hello")
	require.ErrorIs(t, err, collabsphere.ErrValidation)
	assert.Empty(t, s.Store().Pending())
	assert.Equal(t, 0, s.Store().Len())
	assert.Empty(t, h.dialer.conn(0).sentEvents())
}

func TestSessionSendCancelledDropsPending(t *testing.T) {
	h := newHarness()
	s := openTest(t, h, "r1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Send(ctx, "hello")
	require.ErrorIs(t, err, context.Canceled)

	flush(t, s)
	assert.Empty(t, s.Store().Pending())
	assert.Empty(t, h.api.posted)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "live", StateLive.String())
	assert.Equal(t, "offline", StateOffline.String())
	assert.Equal(t, "State(42)", State(42).String())
}
