package room

import (
	"context"
	"log"
	"strings"

	"github.com/Rajkoli143/server/pkg/models"
	redisx "github.com/Rajkoli143/server/pkg/redis"
)

// CachedStore layers a Redis read-through cache over another Store.
// Cache failures degrade to the inner store; a save that succeeds
// durably but fails to cache only logs, since the next Load repopulates.
type CachedStore struct {
	inner Store
	cache *redisx.RoomCache
}

func NewCachedStore(inner Store, cache *redisx.RoomCache) *CachedStore {
	return &CachedStore{inner: inner, cache: cache}
}

func (s *CachedStore) Load(ctx context.Context, code string) (*models.Room, error) {
	code = strings.ToUpper(code)
	if r, err := s.cache.Get(ctx, code); err == nil {
		return r, nil
	}

	r, err := s.inner.Load(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, r); err != nil {
		log.Printf("Warning: failed to cache room %s: %v", code, err)
	}
	return r, nil
}

func (s *CachedStore) Save(ctx context.Context, room *models.Room) error {
	if err := s.inner.Save(ctx, room); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, room); err != nil {
		log.Printf("Warning: failed to cache room %s: %v", room.Code, err)
	}
	return nil
}

func (s *CachedStore) ExistsByCode(ctx context.Context, code string) (bool, error) {
	return s.inner.ExistsByCode(ctx, code)
}
