package models

import (
	"errors"
	"time"
)

// ErrRoomNotFound is returned by room stores when a code does not
// resolve to a room.
var ErrRoomNotFound = errors.New("room not found")

// Member is a connected participant of a room. Insertion order in
// Room.Users defines host-succession priority.
type Member struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Song is a queue entry or the current track. Identity fields are
// supplied by the caller and never mutated after the song is added.
type Song struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Artist   string         `json:"artist"`
	Duration int            `json:"duration"`
	AddedBy  string         `json:"addedBy"`
	Votes    map[string]int `json:"votes"`
	// VoteCount is always recomputed from Votes, never stored independently.
	VoteCount int `json:"voteCount"`
}

type RoomSettings struct {
	// SkipThreshold is the fraction in (0,1] of current members whose
	// skip requests force a track change.
	SkipThreshold float64 `json:"skipThreshold"`
}

// Room is the full per-room document. The queue is kept sorted by
// VoteCount descending; CurrentTrack is nil when nothing is playing.
type Room struct {
	Name                string       `json:"name"`
	Code                string       `json:"code"`
	Host                string       `json:"host"`
	Queue               []Song       `json:"queue"`
	CurrentTrack        *Song        `json:"currentTrack"`
	CurrentTrackStartTs *int64       `json:"currentTrackStartTs"`
	Users               []Member     `json:"users"`
	Settings            RoomSettings `json:"settings"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// Clone returns a deep copy of the song, including its vote map.
func (s Song) Clone() Song {
	out := s
	if s.Votes != nil {
		out.Votes = make(map[string]int, len(s.Votes))
		for k, v := range s.Votes {
			out.Votes[k] = v
		}
	}
	return out
}

// Clone returns a deep copy of the room so callers can mutate freely
// and discard the copy if persisting it fails.
func (r *Room) Clone() *Room {
	out := *r
	out.Queue = make([]Song, len(r.Queue))
	for i, s := range r.Queue {
		out.Queue[i] = s.Clone()
	}
	if r.CurrentTrack != nil {
		ct := r.CurrentTrack.Clone()
		out.CurrentTrack = &ct
	}
	if r.CurrentTrackStartTs != nil {
		ts := *r.CurrentTrackStartTs
		out.CurrentTrackStartTs = &ts
	}
	out.Users = make([]Member, len(r.Users))
	copy(out.Users, r.Users)
	return &out
}
