package ws

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Rajkoli143/server/internal/room"
	"github.com/Rajkoli143/server/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, implement proper origin checking
	},
}

// eventAliases maps canonical engine event names to the extra names
// they are also delivered under, for clients listening on either.
var eventAliases = map[string][]string{
	room.EventQueueUpdated:     {"update_queue"},
	room.EventNowPlaying:       {"now_playing"},
	room.EventActiveUsers:      {"active_users_update"},
	room.EventSongVotesUpdated: {"vote_update"},
}

// Message is the inbound client frame. Fields beyond Type are set
// depending on the message type.
type Message struct {
	Type      string       `json:"type"`
	RoomCode  string       `json:"roomCode"`
	UserID    string       `json:"userId"`
	Song      *models.Song `json:"song"`
	SongID    string       `json:"songId"`
	Vote      int          `json:"vote"`
	Timestamp int64        `json:"timestamp"`
}

// Frame is the outbound envelope for every delivery.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	roomCode string
	userID   string
}

// writeFrame serializes one delivery. Sessions are written one frame
// at a time; a failed write is logged and never propagated, so one
// dead connection cannot block the rest of the room.
func (s *session) writeFrame(f Frame) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.WriteJSON(f); err != nil {
		log.Printf("Failed to send %s frame: %v", f.Type, err)
	}
}

// Handler is the broadcast gateway: it tracks which room each session
// has joined, routes inbound commands to the engine and fans the
// produced events out to every session in the room. A session belongs
// to at most one room; re-joining switches the association.
type Handler struct {
	engine *room.Engine

	mu    sync.RWMutex
	rooms map[string]map[*session]struct{}
}

func NewHandler(engine *room.Engine) *Handler {
	return &Handler{
		engine: engine,
		rooms:  make(map[string]map[*session]struct{}),
	}
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	sess := &session{conn: conn}
	defer h.disconnect(sess)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
		h.dispatch(c.Request.Context(), sess, msg)
	}
}

func (h *Handler) dispatch(ctx context.Context, sess *session, msg Message) {
	switch msg.Type {
	case "joinRoom", "join_room":
		h.handleJoin(ctx, sess, msg)
	case "addSong":
		if msg.Song == nil {
			h.sendError(sess, "Song is required")
			return
		}
		evs, err := h.engine.AddSong(ctx, msg.RoomCode, *msg.Song, msg.UserID)
		h.deliver(sess, msg.RoomCode, evs, err)
	case "voteSong":
		evs, err := h.engine.Vote(ctx, msg.RoomCode, msg.SongID, msg.UserID, msg.Vote)
		h.deliver(sess, msg.RoomCode, evs, err)
	case "hostSkip", "host_skip":
		evs, err := h.engine.HostSkip(ctx, msg.RoomCode, msg.UserID)
		h.deliver(sess, msg.RoomCode, evs, err)
	case "requestSkip":
		evs, err := h.engine.RequestSkip(ctx, msg.RoomCode, msg.UserID)
		h.deliver(sess, msg.RoomCode, evs, err)
	case "playerSyncPing":
		sess.writeFrame(Frame{Type: "playerSyncPong", Payload: map[string]int64{
			"clientTimestamp": msg.Timestamp,
			"serverTimestamp": time.Now().UnixMilli(),
		}})
	default:
		log.Printf("Unknown message type: %q", msg.Type)
	}
}

// handleJoin subscribes the session to the room and broadcasts a fresh
// state snapshot. Membership itself is established by the REST join;
// here the session only announces which room it listens to.
func (h *Handler) handleJoin(ctx context.Context, sess *session, msg Message) {
	_, evs, err := h.engine.Snapshot(ctx, msg.RoomCode)
	if err != nil {
		h.sendError(sess, "Room not found")
		return
	}

	code := strings.ToUpper(msg.RoomCode)
	h.mu.Lock()
	if sess.roomCode != "" && sess.roomCode != code {
		h.removeLocked(sess)
	}
	sess.roomCode = code
	sess.userID = msg.UserID
	if h.rooms[code] == nil {
		h.rooms[code] = make(map[*session]struct{})
	}
	h.rooms[code][sess] = struct{}{}
	h.mu.Unlock()

	h.broadcast(code, evs)
	log.Printf("User %s joined room %s", msg.UserID, code)
}

// deliver broadcasts the events of a successful command, or reports
// the failure only to the session that issued it.
func (h *Handler) deliver(sess *session, roomCode string, evs []room.Event, err error) {
	if err != nil {
		h.sendError(sess, err.Error())
		return
	}
	h.broadcast(strings.ToUpper(roomCode), evs)
}

// broadcast fans each event out to every session in the room, under
// its canonical name and any aliases. State changes are already
// persisted: delivery failures are per-session and never undone.
func (h *Handler) broadcast(code string, evs []room.Event) {
	h.mu.RLock()
	sessions := make([]*session, 0, len(h.rooms[code]))
	for s := range h.rooms[code] {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, ev := range evs {
		names := append([]string{ev.Name}, eventAliases[ev.Name]...)
		for _, name := range names {
			frame := Frame{Type: name, Payload: ev.Payload}
			for _, s := range sessions {
				s.writeFrame(frame)
			}
		}
	}
}

func (h *Handler) sendError(sess *session, message string) {
	sess.writeFrame(Frame{Type: room.EventError, Payload: map[string]string{"message": message}})
}

// disconnect drops the session and, if it had joined a room as a user,
// synthesizes a leave command and broadcasts the result.
func (h *Handler) disconnect(sess *session) {
	sess.conn.Close()

	h.mu.Lock()
	code, userID := sess.roomCode, sess.userID
	h.removeLocked(sess)
	h.mu.Unlock()

	if code == "" || userID == "" {
		return
	}

	evs, err := h.engine.Leave(context.Background(), code, userID)
	if err != nil {
		log.Printf("Disconnect cleanup error for room %s: %v", code, err)
		return
	}
	h.broadcast(code, evs)
}

// removeLocked unregisters the session from its room. Callers hold h.mu.
func (h *Handler) removeLocked(sess *session) {
	if sess.roomCode == "" {
		return
	}
	if set, ok := h.rooms[sess.roomCode]; ok {
		delete(set, sess)
		if len(set) == 0 {
			delete(h.rooms, sess.roomCode)
		}
	}
	sess.roomCode = ""
}
