package chat

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Talha-Tahir2001/CollabSphere/clients/go/collabsphere"
	"github.com/Talha-Tahir2001/CollabSphere/internal/metrics"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

// PendingSend is an outgoing message awaiting server acknowledgment.
type PendingSend struct {
	Token     string
	RoomID    string
	Sender    models.Sender
	Content   string
	CreatedAt time.Time
}

// ChangeType identifies a store mutation.
type ChangeType int

const (
	ChangeInserted ChangeType = iota
	ChangePendingAdded
	ChangePendingResolved
	ChangePendingDropped
)

// Change describes one store mutation. Index is the display position of an
// inserted message.
type Change struct {
	Type    ChangeType
	Index   int
	Message models.Message
	Pending PendingSend
}

// Store is the ordered, deduplicated view of one room's messages.
//
// Messages are kept sorted by (CreatedAt, ID). An identifier is stored at
// most once: the first writer wins and later copies are ignored.
type Store struct {
	roomID string

	mu       sync.RWMutex
	messages []models.Message
	ids      map[string]struct{}
	pending  map[string]PendingSend
	watchers map[uint64]func(Change)
	nextID   uint64
}

// NewStore creates an empty store for roomID.
func NewStore(roomID string) *Store {
	return &Store{
		roomID:   roomID,
		ids:      make(map[string]struct{}),
		pending:  make(map[string]PendingSend),
		watchers: make(map[uint64]func(Change)),
	}
}

// RoomID returns the room the store belongs to.
func (s *Store) RoomID() string {
	return s.roomID
}

// LoadHistory merges a batch of messages. Valid messages are inserted even
// when others in the batch are rejected; the rejections are returned joined.
func (s *Store) LoadHistory(batch []models.Message) error {
	var errs []error
	var changes []Change

	s.mu.Lock()
	for _, msg := range batch {
		if err := s.validate(msg); err != nil {
			errs = append(errs, err)
			continue
		}
		if idx, ok := s.insert(msg); ok {
			changes = append(changes, Change{Type: ChangeInserted, Index: idx, Message: msg})
		}
	}
	s.mu.Unlock()

	s.emit(changes...)
	return errors.Join(errs...)
}

// Append inserts one message. A message whose identifier is already stored
// is ignored and inserted is false.
func (s *Store) Append(msg models.Message) (inserted bool, err error) {
	s.mu.Lock()
	if err := s.validate(msg); err != nil {
		s.mu.Unlock()
		return false, err
	}
	idx, ok := s.insert(msg)
	s.mu.Unlock()

	if ok {
		s.emit(Change{Type: ChangeInserted, Index: idx, Message: msg})
	}
	return ok, nil
}

// AddPending records a placeholder for an outgoing message.
func (s *Store) AddPending(p PendingSend) error {
	if p.Token == "" {
		return &collabsphere.ValidationError{Reason: "pending send without token"}
	}
	s.mu.Lock()
	s.pending[p.Token] = p
	s.mu.Unlock()

	s.emit(Change{Type: ChangePendingAdded, Pending: p})
	return nil
}

// DropPending removes a placeholder whose send failed.
func (s *Store) DropPending(token string) bool {
	s.mu.Lock()
	p, ok := s.pending[token]
	delete(s.pending, token)
	s.mu.Unlock()

	if ok {
		s.emit(Change{Type: ChangePendingDropped, Pending: p})
	}
	return ok
}

// ReconcilePending replaces the placeholder for token with the
// authoritative message. If the live stream already delivered the message,
// only the placeholder is removed.
func (s *Store) ReconcilePending(token string, msg models.Message) error {
	s.mu.Lock()
	if err := s.validate(msg); err != nil {
		s.mu.Unlock()
		return err
	}
	p, hadPending := s.pending[token]
	delete(s.pending, token)
	idx, inserted := s.insert(msg)
	s.mu.Unlock()

	var changes []Change
	if hadPending {
		changes = append(changes, Change{Type: ChangePendingResolved, Pending: p, Message: msg})
	}
	if inserted {
		changes = append(changes, Change{Type: ChangeInserted, Index: idx, Message: msg})
	}
	s.emit(changes...)
	return nil
}

// Messages returns a copy of the stored messages in display order.
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// Pending returns the outstanding placeholders, oldest first.
func (s *Store) Pending() []PendingSend {
	s.mu.RLock()
	out := make([]PendingSend, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Token < out[j].Token
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Contains reports whether a message with id is stored.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Oldest returns the first message in display order.
func (s *Store) Oldest() (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return models.Message{}, false
	}
	return s.messages[0], true
}

// Newest returns the last message in display order.
func (s *Store) Newest() (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return models.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Subscribe registers fn for store changes. fn runs synchronously on the
// goroutine that mutated the store, after the store lock is released.
func (s *Store) Subscribe(fn func(Change)) (dispose func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// validate must be called with s.mu held.
func (s *Store) validate(msg models.Message) error {
	var reason string
	switch {
	case msg.ID == "":
		reason = "missing id"
	case msg.CreatedAt.IsZero():
		reason = "missing timestamp"
	case msg.RoomID != "" && msg.RoomID != s.roomID:
		reason = "belongs to room " + msg.RoomID
	default:
		return nil
	}
	metrics.ChatValidationFailures.Inc()
	return &collabsphere.ValidationError{MessageID: msg.ID, Reason: reason}
}

// insert must be called with s.mu held.
func (s *Store) insert(msg models.Message) (int, bool) {
	if _, dup := s.ids[msg.ID]; dup {
		metrics.ChatDuplicatesCollapsed.Inc()
		return -1, false
	}
	if msg.RoomID == "" {
		msg.RoomID = s.roomID
	}
	msg.ClientToken = ""

	idx, _ := slices.BinarySearchFunc(s.messages, msg, models.Message.Compare)
	s.messages = slices.Insert(s.messages, idx, msg)
	s.ids[msg.ID] = struct{}{}
	metrics.ChatMessagesStored.Inc()
	return idx, true
}

func (s *Store) emit(changes ...Change) {
	if len(changes) == 0 {
		return
	}
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.watchers))
	ids := make([]uint64, 0, len(s.watchers))
	for id := range s.watchers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.watchers[id])
	}
	s.mu.RUnlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}
