package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

// MemoryStore is a MessageStore and RateLimiter kept in process memory. It
// is used when no Redis is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string][]models.Message
	ids   map[string]map[string]models.Message

	limitMu sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:   make(map[string][]models.Message),
		ids:     make(map[string]map[string]models.Message),
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// AddMessage stores msg, keeping each room ordered by (CreatedAt, ID).
func (s *MemoryStore) AddMessage(_ context.Context, msg *models.Message) error {
	prepareMessage(msg)

	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.rooms[msg.RoomID]
	idx, _ := slices.BinarySearchFunc(room, *msg, models.Message.Compare)
	room = slices.Insert(room, idx, *msg)
	s.rooms[msg.RoomID] = room

	if s.ids[msg.RoomID] == nil {
		s.ids[msg.RoomID] = make(map[string]models.Message)
	}
	s.ids[msg.RoomID][msg.ID] = *msg
	return nil
}

// GetRoomMessages retrieves messages from a room, oldest first.
func (s *MemoryStore) GetRoomMessages(_ context.Context, roomID string, limit int, before models.Cursor) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room := s.rooms[roomID]
	end := len(room)
	if !before.IsZero() {
		end, _ = slices.BinarySearchFunc(room, models.Message{CreatedAt: before.CreatedAt, ID: before.ID}, models.Message.Compare)
	}
	start := max(0, end-limit)
	return slices.Clone(room[start:end]), nil
}

// GetMessage retrieves a specific message by ID.
func (s *MemoryStore) GetMessage(_ context.Context, roomID, msgID string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.ids[roomID][msgID]
	if !ok {
		return nil, nil
	}
	return &msg, nil
}

// CheckRateLimit reports whether key is still below limit in the current window.
func (s *MemoryStore) CheckRateLimit(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	s.limitMu.Lock()
	defer s.limitMu.Unlock()

	w := s.windows[key]
	if w == nil || !s.now().Before(w.resetAt) {
		return limit > 0, nil
	}
	return w.count < limit, nil
}

// IncrementRateLimit counts one event for key and returns the new count,
// opening a new window when the previous one has expired.
func (s *MemoryStore) IncrementRateLimit(_ context.Context, key string, d time.Duration) (int, error) {
	s.limitMu.Lock()
	defer s.limitMu.Unlock()

	now := s.now()
	w := s.windows[key]
	if w == nil || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(d)}
		s.windows[key] = w
	}
	w.count++
	return w.count, nil
}
