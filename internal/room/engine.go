package room

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Rajkoli143/server/pkg/events"
	"github.com/Rajkoli143/server/pkg/models"
)

// Canonical event names. The WS gateway maps these to their external
// aliases; the engine never emits an alias itself.
const (
	EventRoomState        = "roomState"
	EventSongAdded        = "songAdded"
	EventQueueUpdated     = "queueUpdated"
	EventNowPlaying       = "nowPlaying"
	EventActiveUsers      = "activeUsers"
	EventSongVotesUpdated = "songVotesUpdated"
	EventTrackChanged     = "trackChanged"
	EventSkipResult       = "skipResult"
	EventSkipVoteUpdate   = "skipVoteUpdate"
	EventError            = "error"
)

// Event is one outbound notification produced by a command. Events are
// ordered; the gateway delivers them to every session in the room.
type Event struct {
	Name    string
	Payload any
}

type StatePayload struct {
	Queue               []models.Song       `json:"queue"`
	CurrentTrack        *models.Song        `json:"currentTrack"`
	CurrentTrackStartTs *int64              `json:"currentTrackStartTs"`
	Users               []models.Member     `json:"users"`
	Host                string              `json:"host"`
	Settings            models.RoomSettings `json:"settings"`
}

type SongAddedPayload struct {
	Song models.Song `json:"song"`
}

type QueuePayload struct {
	Queue []models.Song `json:"queue"`
}

type NowPlayingPayload struct {
	CurrentTrack        *models.Song `json:"currentTrack"`
	CurrentTrackStartTs *int64       `json:"currentTrackStartTs"`
}

type ActiveUsersPayload struct {
	Users []models.Member `json:"users"`
	Host  string          `json:"host"`
}

type VoteUpdatePayload struct {
	SongID    string        `json:"songId"`
	VoteCount int           `json:"voteCount"`
	Queue     []models.Song `json:"queue"`
}

type TrackChangedPayload struct {
	CurrentTrack        *models.Song  `json:"currentTrack"`
	CurrentTrackStartTs *int64        `json:"currentTrackStartTs"`
	Queue               []models.Song `json:"queue"`
}

type SkipResultPayload struct {
	Success bool `json:"success"`
}

type SkipVotePayload struct {
	Votes    int `json:"votes"`
	Required int `json:"required"`
}

// Engine applies room commands as load-mutate-save cycles against the
// Store. All commands for the same room code run under one mutex, so a
// command never observes another command's partial effect; commands on
// different rooms run concurrently. Mutations happen on a clone of the
// stored document, so a failed save leaves no trace.
//
// Skip votes are deliberately ephemeral: they live in engine memory,
// keyed by room code, and reset on restart.
type Engine struct {
	store  Store
	events *events.KafkaClient // optional, nil disables mirroring

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	skipVotes map[string]map[string]struct{}

	now func() time.Time
}

func NewEngine(store Store, events *events.KafkaClient) *Engine {
	return &Engine{
		store:     store,
		events:    events,
		locks:     make(map[string]*sync.Mutex),
		skipVotes: make(map[string]map[string]struct{}),
		now:       time.Now,
	}
}

func (e *Engine) lockRoom(code string) func() {
	code = strings.ToUpper(code)
	e.mu.Lock()
	l, ok := e.locks[code]
	if !ok {
		l = &sync.Mutex{}
		e.locks[code] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Snapshot returns the current roomState event for the room without
// mutating anything. Used by WS joins and REST fetches.
func (e *Engine) Snapshot(ctx context.Context, code string) (*models.Room, []Event, error) {
	unlock := e.lockRoom(code)
	defer unlock()

	r, err := e.store.Load(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	return r, []Event{stateEvent(r)}, nil
}

// Join appends a new member with a fresh id and returns it along with
// the refreshed room state.
func (e *Engine) Join(ctx context.Context, code, displayName string) (*models.Room, string, []Event, error) {
	unlock := e.lockRoom(code)
	defer unlock()

	r, err := e.store.Load(ctx, code)
	if err != nil {
		return nil, "", nil, err
	}

	userID := uuid.New().String()
	r.Users = append(r.Users, models.Member{
		ID:       userID,
		Name:     displayName,
		JoinedAt: e.now(),
	})
	if err := e.save(ctx, r); err != nil {
		return nil, "", nil, err
	}

	evs := []Event{stateEvent(r)}
	e.mirror(ctx, r.Code, evs)
	return r, userID, evs, nil
}

// AddSong appends the song to the queue with an empty vote map. If
// nothing is playing the queue head is promoted immediately.
func (e *Engine) AddSong(ctx context.Context, code string, song models.Song, userID string) ([]Event, error) {
	unlock := e.lockRoom(code)
	defer unlock()

	r, err := e.store.Load(ctx, code)
	if err != nil {
		return nil, err
	}

	song.AddedBy = userID
	song.Votes = make(map[string]int)
	song.VoteCount = 0
	r.Queue = append(r.Queue, song)

	if r.CurrentTrack == nil {
		e.advanceTrack(r)
	}
	if err := e.save(ctx, r); err != nil {
		return nil, err
	}

	evs := []Event{
		{Name: EventSongAdded, Payload: SongAddedPayload{Song: song}},
		stateEvent(r),
		{Name: EventQueueUpdated, Payload: QueuePayload{Queue: r.Queue}},
		{Name: EventNowPlaying, Payload: NowPlayingPayload{CurrentTrack: r.CurrentTrack, CurrentTrackStartTs: r.CurrentTrackStartTs}},
		{Name: EventActiveUsers, Payload: ActiveUsersPayload{Users: r.Users, Host: r.Host}},
	}
	e.mirror(ctx, r.Code, evs)
	return evs, nil
}

// Vote applies the user's vote to a pending queue entry and re-sorts
// the queue. The current track cannot be voted on.
func (e *Engine) Vote(ctx context.Context, code, songID, userID string, vote int) ([]Event, error) {
	unlock := e.lockRoom(code)
	defer unlock()

	r, err := e.store.Load(ctx, code)
	if err != nil {
		return nil, err
	}

	song := findSong(r.Queue, songID)
	if song == nil {
		return nil, ErrSongNotFound
	}

	applyVote(song, userID, vote)
	voteCount := song.VoteCount
	reorder(r.Queue)

	if err := e.save(ctx, r); err != nil {
		return nil, err
	}

	evs := []Event{{Name: EventSongVotesUpdated, Payload: VoteUpdatePayload{
		SongID:    songID,
		VoteCount: voteCount,
		Queue:     r.Queue,
	}}}
	e.mirror(ctx, r.Code, evs)
	return evs, nil
}

// HostSkip promotes the queue head (host only).
func (e *Engine) HostSkip(ctx context.Context, code, userID string) ([]Event, error) {
	unlock := e.lockRoom(code)
	defer unlock()

	r, err := e.store.Load(ctx, code)
	if err != nil {
		return nil, err
	}
	if r.Host != userID {
		return nil, ErrNotAuthorized
	}
	return e.skipTrack(ctx, r)
}

// RequestSkip records the user's skip vote. When the votes, including
// this one, reach ceil(memberCount * skipThreshold) the track is
// skipped at once and the votes are cleared; otherwise only a progress
// event is emitted.
func (e *Engine) RequestSkip(ctx context.Context, code, userID string) ([]Event, error) {
	unlock := e.lockRoom(code)
	defer unlock()

	r, err := e.store.Load(ctx, code)
	if err != nil {
		return nil, err
	}

	key := strings.ToUpper(r.Code)
	votes := e.skipVotes[key]
	if votes == nil {
		votes = make(map[string]struct{})
		e.skipVotes[key] = votes
	}

	pending := len(votes)
	if _, already := votes[userID]; !already {
		pending++
	}
	required := int(math.Ceil(float64(len(r.Users)) * r.Settings.SkipThreshold))

	if pending >= required {
		evs, err := e.skipTrack(ctx, r)
		if err != nil {
			return nil, err
		}
		return evs, nil
	}

	votes[userID] = struct{}{}
	evs := []Event{{Name: EventSkipVoteUpdate, Payload: SkipVotePayload{
		Votes:    len(votes),
		Required: required,
	}}}
	e.mirror(ctx, r.Code, evs)
	return evs, nil
}

// Leave removes the member and reassigns the host to the earliest
// joined remaining member if the host left. Unknown users are a no-op.
func (e *Engine) Leave(ctx context.Context, code, userID string) ([]Event, error) {
	unlock := e.lockRoom(code)
	defer unlock()

	r, err := e.store.Load(ctx, code)
	if err != nil {
		return nil, err
	}

	kept := r.Users[:0]
	removed := false
	for _, u := range r.Users {
		if u.ID == userID {
			removed = true
			continue
		}
		kept = append(kept, u)
	}
	if !removed {
		return nil, nil
	}
	r.Users = kept

	if r.Host == userID && len(r.Users) > 0 {
		r.Host = r.Users[0].ID
	}
	if err := e.save(ctx, r); err != nil {
		return nil, err
	}
	delete(e.skipVotes[strings.ToUpper(r.Code)], userID)

	evs := []Event{stateEvent(r)}
	e.mirror(ctx, r.Code, evs)
	return evs, nil
}

// skipTrack promotes the queue head, persists the room and clears the
// skip votes. Callers hold the room lock.
func (e *Engine) skipTrack(ctx context.Context, r *models.Room) ([]Event, error) {
	e.advanceTrack(r)
	if err := e.save(ctx, r); err != nil {
		return nil, err
	}
	delete(e.skipVotes, strings.ToUpper(r.Code))

	evs := []Event{
		{Name: EventTrackChanged, Payload: TrackChangedPayload{
			CurrentTrack:        r.CurrentTrack,
			CurrentTrackStartTs: r.CurrentTrackStartTs,
			Queue:               r.Queue,
		}},
		{Name: EventSkipResult, Payload: SkipResultPayload{Success: true}},
	}
	e.mirror(ctx, r.Code, evs)
	return evs, nil
}

// advanceTrack moves the queue front to CurrentTrack, or clears the
// current track if the queue is empty.
func (e *Engine) advanceTrack(r *models.Room) {
	if len(r.Queue) > 0 {
		next := r.Queue[0]
		r.Queue = r.Queue[1:]
		r.CurrentTrack = &next
		ts := e.now().UnixMilli()
		r.CurrentTrackStartTs = &ts
	} else {
		r.CurrentTrack = nil
		r.CurrentTrackStartTs = nil
	}
}

func (e *Engine) save(ctx context.Context, r *models.Room) error {
	r.UpdatedAt = e.now()
	if err := e.store.Save(ctx, r); err != nil {
		return fmt.Errorf("failed to save room: %w", err)
	}
	return nil
}

// mirror publishes the events to Kafka. Delivery is best effort and
// never fails the command that produced the events.
func (e *Engine) mirror(ctx context.Context, code string, evs []Event) {
	if e.events == nil {
		return
	}
	for _, ev := range evs {
		if err := e.events.PublishRoomEvent(ctx, code, ev.Name, ev.Payload); err != nil {
			log.Printf("Warning: failed to publish %s event for room %s: %v", ev.Name, code, err)
		}
	}
}

func stateEvent(r *models.Room) Event {
	return Event{Name: EventRoomState, Payload: StatePayload{
		Queue:               r.Queue,
		CurrentTrack:        r.CurrentTrack,
		CurrentTrackStartTs: r.CurrentTrackStartTs,
		Users:               r.Users,
		Host:                r.Host,
		Settings:            r.Settings,
	}}
}

func findSong(queue []models.Song, songID string) *models.Song {
	for i := range queue {
		if queue[i].ID == songID {
			return &queue[i]
		}
	}
	return nil
}
