package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Talha-Tahir2001/CollabSphere/clients/go/collabsphere"
	"github.com/Talha-Tahir2001/CollabSphere/internal/metrics"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

const eventQueueSize = 256

var errConnectionLost = errors.New("live connection lost")

// State is the connection state of a session.
type State int32

const (
	StateConnecting State = iota
	StateLive
	StateReconnecting
	StateOffline
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateReconnecting:
		return "reconnecting"
	case StateOffline:
		return "offline"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Session binds one identity, one room, one live connection and one
// message store.
//
// Every state transition runs on the session's event loop goroutine, one at
// a time: live events, history results, sends and reconnects are queued and
// applied in arrival order.
type Session struct {
	roomID string
	cred   collabsphere.Credential
	store  *Store
	api    API
	cfg    Config
	logger zerolog.Logger

	events    chan func()
	ctx       context.Context
	cancel    context.CancelFunc
	loopDone  chan struct{}
	wg        sync.WaitGroup
	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error

	// Owned by the event loop.
	conn      Conn
	gen       uint64
	disposers []func()
}

func newSession(cfg Config, roomID string, cred collabsphere.Credential) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		roomID:   roomID,
		cred:     cred,
		store:    NewStore(roomID),
		api:      cfg.API(cred),
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("room", roomID).Str("user", cred.Identity.ID).Logger(),
		events:   make(chan func(), eventQueueSize),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
	s.setState(StateConnecting)
	metrics.ChatSessionsActive.Inc()
	go s.run()
	return s
}

// open validates its arguments, connects, joins roomID and starts the
// initial history load.
func open(ctx context.Context, cfg Config, roomID string, cred collabsphere.Credential) (*Session, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(roomID) == "" {
		return nil, fmt.Errorf("open: %w: empty room id", collabsphere.ErrRoomUnavailable)
	}
	if err := cred.Validate(cfg.Now()); err != nil {
		return nil, fmt.Errorf("open %s: %w", roomID, err)
	}

	s := newSession(cfg, roomID, cred)

	conn, err := s.connect(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := s.adopt(ctx, conn); err != nil {
		s.Close()
		return nil, err
	}

	s.logger.Info().Msg("chat session opened")
	return s, nil
}

// RoomID returns the room the session is bound to.
func (s *Session) RoomID() string {
	return s.roomID
}

// Identity returns the identity the session acts as.
func (s *Session) Identity() models.Identity {
	return s.cred.Identity
}

// Store returns the session's message store.
func (s *Session) Store() *Store {
	return s.store
}

// State returns the current connection state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Send posts content to the room. A PendingSend placeholder is shown until
// the server acknowledges the message; the stored message then replaces it
// and is relayed to the room over the live channel.
func (s *Session) Send(ctx context.Context, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &collabsphere.ValidationError{Reason: "empty message"}
	}

	p := PendingSend{
		Token:     uuid.NewString(),
		RoomID:    s.roomID,
		Sender:    models.Sender{ID: s.cred.Identity.ID, Username: s.cred.Identity.Username},
		Content:   content,
		CreatedAt: s.cfg.Now(),
	}
	if err := s.call(ctx, func() { _ = s.store.AddPending(p) }); err != nil {
		// The placeholder may still be added after ctx ended.
		s.post(func() { s.store.DropPending(p.Token) })
		return nil, err
	}

	msg, err := s.api.PostMessage(ctx, s.roomID, content, p.Token)
	if err != nil {
		_ = s.call(context.Background(), func() { s.store.DropPending(p.Token) })
		return nil, fmt.Errorf("send: %w", err)
	}
	msg.ClientToken = ""

	var conn Conn
	var rerr error
	err = s.call(ctx, func() {
		if rerr = s.store.ReconcilePending(p.Token, *msg); rerr != nil {
			s.store.DropPending(p.Token)
		}
		conn = s.conn
	})
	if err != nil {
		return msg, err
	}
	if rerr != nil {
		return nil, rerr
	}

	if conn == nil {
		s.logger.Warn().Str("message", msg.ID).Msg("live channel down, message not relayed")
		return msg, nil
	}
	payload := models.SendMessagePayload{RoomID: s.roomID, SenderID: msg.Sender.ID, Message: *msg}
	if err := conn.Send(ctx, models.EventSendMessage, payload); err != nil {
		s.logger.Warn().Err(err).Str("message", msg.ID).Msg("relay failed")
		s.post(func() { s.report(err) })
	}
	return msg, nil
}

// LoadOlder fetches the page of messages preceding the oldest stored one
// and merges it. It returns the number of newly stored messages.
func (s *Session) LoadOlder(ctx context.Context) (int, error) {
	var before models.Cursor
	if oldest, ok := s.store.Oldest(); ok {
		before = oldest.Cursor()
	}

	msgs, err := s.api.GetMessagesPage(ctx, s.roomID, s.cfg.HistoryLimit, before)
	if err != nil {
		return 0, fmt.Errorf("load older: %w", err)
	}

	var added int
	var lerr error
	err = s.call(ctx, func() {
		n := s.store.Len()
		lerr = s.store.LoadHistory(msgs)
		added = s.store.Len() - n
	})
	if err != nil {
		return 0, err
	}
	return added, lerr
}

// Close tears the session down: pending callbacks are discarded, live
// handlers are removed and the connection is closed. Results that arrive
// afterwards never reach the store. Close is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.loopDone

		s.dispose()
		if s.conn != nil {
			s.closeErr = s.conn.Disconnect()
			s.conn = nil
		}
		s.wg.Wait()

		s.setState(StateClosed)
		metrics.ChatSessionsActive.Dec()
		s.logger.Info().Msg("chat session closed")
	})
	return s.closeErr
}

func (s *Session) run() {
	defer close(s.loopDone)

	for {
		select {
		case fn := <-s.events:
			if s.ctx.Err() != nil {
				return
			}
			fn()
		case <-s.ctx.Done():
			return
		}
	}
}

// post queues fn on the event loop. It reports false once the session is
// closing.
func (s *Session) post(fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// call runs fn on the event loop and waits for it to finish.
func (s *Session) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !s.post(func() {
		defer close(done)
		fn()
	}) {
		return collabsphere.ErrSessionClosed
	}

	select {
	case <-done:
		return nil
	case <-s.ctx.Done():
		return collabsphere.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// connect dials the live channel and joins the room.
func (s *Session) connect(ctx context.Context) (Conn, error) {
	conn, err := s.cfg.Dial(ctx, s.cred)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.roomID, err)
	}
	if err := conn.JoinRoom(ctx, s.roomID); err != nil {
		_ = conn.Disconnect()
		return nil, fmt.Errorf("open %s: %w", s.roomID, err)
	}
	return conn, nil
}

// adopt hands conn to the event loop. If the session closes before the loop
// takes ownership, conn is disconnected here.
func (s *Session) adopt(ctx context.Context, conn Conn) error {
	installed := make(chan struct{})
	if !s.post(func() {
		s.install(conn)
		close(installed)
	}) {
		_ = conn.Disconnect()
		return collabsphere.ErrSessionClosed
	}

	select {
	case <-installed:
		return nil
	case <-ctx.Done():
		s.cancel()
	case <-s.ctx.Done():
	}

	<-s.loopDone
	select {
	case <-installed:
	default:
		_ = conn.Disconnect()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return collabsphere.ErrSessionClosed
}

// install makes conn the session's connection, subscribes to its events and
// loads history to close any gap.
func (s *Session) install(conn Conn) {
	s.dispose()
	s.gen++
	gen := s.gen
	s.conn = conn

	s.disposers = []func(){
		conn.OnEvent(models.EventReceiveMessage, func(raw json.RawMessage) {
			s.post(func() { s.receive(gen, raw) })
		}),
		conn.OnEvent(models.EventError, func(raw json.RawMessage) {
			var p models.ErrorPayload
			_ = json.Unmarshal(raw, &p)
			s.logger.Warn().Str("event", p.Event).Str("reason", p.Reason).Msg("server rejected event")
		}),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-conn.Done():
			s.post(func() { s.disconnected(gen) })
		case <-s.ctx.Done():
		}
	}()

	s.setState(StateLive)
	s.logger.Debug().Uint64("generation", gen).Msg("live connection installed")
	s.loadHistory()
}

func (s *Session) receive(gen uint64, raw json.RawMessage) {
	if gen != s.gen {
		return
	}

	var msg models.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		metrics.ChatValidationFailures.Inc()
		s.report(&collabsphere.ValidationError{Reason: "malformed payload: " + err.Error()})
		return
	}
	if _, err := s.store.Append(msg); err != nil {
		s.report(err)
	}
}

func (s *Session) disconnected(gen uint64) {
	if gen != s.gen || s.conn == nil {
		return
	}

	s.dispose()
	_ = s.conn.Disconnect()
	s.conn = nil

	s.setState(StateReconnecting)
	s.report(&collabsphere.ConnectionError{Endpoint: "live", Err: errConnectionLost})
	s.reconnect()
}

// reconnect retries connect with exponential backoff until it succeeds,
// fails permanently, gives up or the session closes.
func (s *Session) reconnect() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = s.cfg.ReconnectInitial
		b.MaxInterval = s.cfg.ReconnectMax

		conn, err := backoff.Retry(s.ctx, func() (Conn, error) {
			conn, err := s.connect(s.ctx)
			if err == nil {
				return conn, nil
			}
			if errors.Is(err, collabsphere.ErrAuthRequired) || errors.Is(err, collabsphere.ErrRoomUnavailable) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		},
			backoff.WithBackOff(b),
			backoff.WithMaxElapsedTime(s.cfg.ReconnectGiveUp),
			backoff.WithNotify(func(err error, next time.Duration) {
				metrics.ChatReconnectAttempts.Inc()
				s.logger.Warn().Err(err).Dur("retry_in", next).Msg("reconnect failed")
			}),
		)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.post(func() {
				s.setState(StateOffline)
				s.report(fmt.Errorf("reconnect gave up: %w", err))
			})
			return
		}

		if err := s.adopt(s.ctx, conn); err == nil {
			s.logger.Info().Msg("live connection restored")
		}
	}()
}

// loadHistory fetches the latest page and merges it into the store on the
// event loop. When the store already holds messages, as after a reconnect,
// it keeps paging back until it reaches the newest message held before, so
// messages posted while disconnected leave no gap. Results arriving after
// Close are dropped.
func (s *Session) loadHistory() {
	anchor, resync := s.store.Newest()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		var before models.Cursor
		for {
			msgs, err := s.api.GetMessagesPage(s.ctx, s.roomID, s.cfg.HistoryLimit, before)

			var merged bool
			if cerr := s.call(s.ctx, func() { merged = s.mergeHistory(msgs, err) }); cerr != nil || !merged {
				return
			}
			if !resync || len(msgs) < s.cfg.HistoryLimit || msgs[0].Compare(anchor) <= 0 {
				return
			}
			if !before.IsZero() && !before.Follows(msgs[0]) {
				return
			}
			before = msgs[0].Cursor()
		}
	}()
}

// mergeHistory merges one fetched page. It reports false if the fetch failed.
func (s *Session) mergeHistory(msgs []models.Message, err error) bool {
	if err != nil {
		s.report(fmt.Errorf("load history: %w", err))
		return false
	}
	n := s.store.Len()
	if err := s.store.LoadHistory(msgs); err != nil {
		s.reportEach(err)
	}
	s.logger.Debug().Int("fetched", len(msgs)).Int("added", s.store.Len()-n).Msg("history merged")
	return true
}

// report delivers err to the configured error callback.
func (s *Session) report(err error) {
	s.logger.Warn().Err(err).Str("kind", string(collabsphere.KindOf(err))).Msg("chat session error")
	if s.cfg.OnError != nil {
		s.cfg.OnError(s.roomID, err)
	}
}

// reportEach reports every rejection joined into err separately.
func (s *Session) reportEach(err error) {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			s.report(e)
		}
		return
	}
	s.report(err)
}

func (s *Session) dispose() {
	for _, d := range s.disposers {
		d()
	}
	s.disposers = nil
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}
