package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Rajkoli143/server/pkg/models"
)

const (
	roomKeyPrefix = "room:"
	roomCacheTTL  = 24 * time.Hour
)

// RoomCache keeps serialized room documents in Redis, keyed by room
// code, as a read-through cache in front of the durable store.
type RoomCache struct {
	client *redis.Client
}

func NewRoomCache(client *redis.Client) *RoomCache {
	return &RoomCache{client: client}
}

// Get retrieves the cached room. A cache miss is returned as an error;
// callers fall back to the durable store.
func (c *RoomCache) Get(ctx context.Context, code string) (*models.Room, error) {
	roomJSON, err := c.client.Get(ctx, roomKey(code)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to get cached room: %w", err)
	}

	var room models.Room
	if err := json.Unmarshal(roomJSON, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached room: %w", err)
	}
	return &room, nil
}

// Set stores the room under its code with the cache TTL.
func (c *RoomCache) Set(ctx context.Context, room *models.Room) error {
	roomJSON, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	if err := c.client.Set(ctx, roomKey(room.Code), roomJSON, roomCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache room: %w", err)
	}
	return nil
}

// Delete evicts the room from the cache.
func (c *RoomCache) Delete(ctx context.Context, code string) error {
	return c.client.Del(ctx, roomKey(code)).Err()
}

func roomKey(code string) string {
	return roomKeyPrefix + strings.ToUpper(code)
}
