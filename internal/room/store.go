package room

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/Rajkoli143/server/pkg/models"
)

var (
	ErrRoomNotFound  = models.ErrRoomNotFound
	ErrSongNotFound  = errors.New("song not found in queue")
	ErrNotAuthorized = errors.New("only host can skip")
)

// Store is the durable record of room documents. Implementations do
// not need to lock: the engine serializes all commands per room code.
// Load must return a copy that the caller owns; Save must appear
// atomic to subsequent Loads of the same room.
type Store interface {
	Load(ctx context.Context, code string) (*models.Room, error)
	Save(ctx context.Context, room *models.Room) error
	ExistsByCode(ctx context.Context, code string) (bool, error)
}

// MemoryStore keeps room documents in a process-local map. It backs
// tests and the no-database dev mode.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*models.Room
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*models.Room)}
}

func (s *MemoryStore) Load(ctx context.Context, code string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[strings.ToUpper(code)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rooms[strings.ToUpper(room.Code)] = room.Clone()
	return nil
}

func (s *MemoryStore) ExistsByCode(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.rooms[strings.ToUpper(code)]
	return ok, nil
}
