package room

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"github.com/Rajkoli143/server/pkg/models"
)

const (
	codeLength           = 6
	codeCharset          = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	defaultSkipThreshold = 0.5
)

// CreateRoom generates a fresh unique code, seeds the host as the sole
// member and persists the new room. The code is retried until the
// store confirms it is unused.
func (e *Engine) CreateRoom(ctx context.Context, name, hostName string) (*models.Room, string, error) {
	var code string
	for {
		code = generateRoomCode()
		exists, err := e.store.ExistsByCode(ctx, code)
		if err != nil {
			return nil, "", fmt.Errorf("failed to check room code: %w", err)
		}
		if !exists {
			break
		}
	}

	hostID := uuid.New().String()
	now := e.now()
	r := &models.Room{
		Name:  name,
		Code:  code,
		Host:  hostID,
		Queue: []models.Song{},
		Users: []models.Member{{
			ID:       hostID,
			Name:     hostName,
			JoinedAt: now,
		}},
		Settings:  models.RoomSettings{SkipThreshold: defaultSkipThreshold},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.Save(ctx, r); err != nil {
		return nil, "", fmt.Errorf("failed to create room: %w", err)
	}
	return r, hostID, nil
}

// Resolve looks up a room by its code, case-insensitively.
func (e *Engine) Resolve(ctx context.Context, code string) (*models.Room, error) {
	return e.store.Load(ctx, strings.ToUpper(code))
}

func generateRoomCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = codeCharset[rand.Intn(len(codeCharset))]
	}
	return string(code)
}
