package room

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Rajkoli143/server/pkg/models"
)

// Handler exposes the room commands over REST. Mutations made here are
// mirrored to Kafka by the engine like any other command; websocket
// fan-out happens only on the websocket path.
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	rooms := r.Group("/rooms")
	{
		rooms.POST("", h.createRoom)
		rooms.POST("/:code/join", h.joinRoom)
		rooms.GET("/:code", h.getRoom)
		rooms.POST("/:code/add-song", h.addSong)
		rooms.POST("/:code/vote", h.vote)
		rooms.POST("/:code/skip", h.skip)
		rooms.GET("/:code/queue", h.getQueue)
		rooms.GET("/:code/active-users", h.getActiveUsers)
	}
}

type CreateRoomRequest struct {
	Name     string `json:"name" binding:"required"`
	HostName string `json:"hostName" binding:"required"`
}

func (h *Handler) createRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room name and host name are required"})
		return
	}

	room, hostID, err := h.engine.CreateRoom(c.Request.Context(), req.Name, req.HostName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"room": gin.H{
			"name": room.Name,
			"code": room.Code,
			"host": room.Host,
		},
		"userId": hostID,
	})
}

type JoinRoomRequest struct {
	UserName string `json:"userName" binding:"required"`
}

func (h *Handler) joinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User name is required"})
		return
	}

	room, userID, _, err := h.engine.Join(c.Request.Context(), c.Param("code"), req.UserName)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"room": gin.H{
			"name": room.Name,
			"code": room.Code,
			"host": room.Host,
		},
		"userId": userID,
	})
}

func (h *Handler) getRoom(c *gin.Context) {
	room, _, err := h.engine.Snapshot(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "room": room})
}

type AddSongRequest struct {
	Song   models.Song `json:"song" binding:"required"`
	UserID string      `json:"userId" binding:"required"`
}

func (h *Handler) addSong(c *gin.Context) {
	var req AddSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Song and userId are required"})
		return
	}

	evs, err := h.engine.AddSong(c.Request.Context(), c.Param("code"), req.Song, req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	state := findState(evs)
	c.JSON(http.StatusCreated, gin.H{
		"success":             true,
		"queue":               state.Queue,
		"currentTrack":        state.CurrentTrack,
		"currentTrackStartTs": state.CurrentTrackStartTs,
	})
}

type VoteRequest struct {
	SongID string `json:"songId" binding:"required"`
	UserID string `json:"userId" binding:"required"`
	// Pointer so an explicit 0 (vote removal) passes required-binding.
	Vote *int `json:"vote" binding:"required"`
}

func (h *Handler) vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "songId, userId and numeric vote are required"})
		return
	}

	evs, err := h.engine.Vote(c.Request.Context(), c.Param("code"), req.SongID, req.UserID, *req.Vote)
	if err != nil {
		h.fail(c, err)
		return
	}

	var queue []models.Song
	for _, ev := range evs {
		if p, ok := ev.Payload.(VoteUpdatePayload); ok {
			queue = p.Queue
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "queue": queue})
}

type SkipRequest struct {
	UserID string `json:"userId" binding:"required"`
}

func (h *Handler) skip(c *gin.Context) {
	var req SkipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	evs, err := h.engine.HostSkip(c.Request.Context(), c.Param("code"), req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	var changed TrackChangedPayload
	for _, ev := range evs {
		if p, ok := ev.Payload.(TrackChangedPayload); ok {
			changed = p
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"currentTrack":        changed.CurrentTrack,
		"currentTrackStartTs": changed.CurrentTrackStartTs,
		"queue":               changed.Queue,
	})
}

func (h *Handler) getQueue(c *gin.Context) {
	room, _, err := h.engine.Snapshot(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"queue":               room.Queue,
		"currentTrack":        room.CurrentTrack,
		"currentTrackStartTs": room.CurrentTrackStartTs,
	})
}

func (h *Handler) getActiveUsers(c *gin.Context) {
	room, _, err := h.engine.Snapshot(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "users": room.Users, "host": room.Host})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
	case errors.Is(err, ErrSongNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Song not found in queue"})
	case errors.Is(err, ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "Only host can skip"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func findState(evs []Event) StatePayload {
	for _, ev := range evs {
		if p, ok := ev.Payload.(StatePayload); ok {
			return p
		}
	}
	return StatePayload{}
}
