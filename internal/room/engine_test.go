package room

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Rajkoli143/server/pkg/models"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	e := NewEngine(NewMemoryStore(), nil)
	e.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return e
}

// newTestRoom creates a room with the given number of extra members
// beyond the host and returns the code plus all member ids in join order.
func newTestRoom(t *testing.T, e *Engine, extraMembers int) (string, []string) {
	t.Helper()

	ctx := context.Background()
	r, hostID, err := e.CreateRoom(ctx, "Party", "Alice")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	ids := []string{hostID}
	for i := 0; i < extraMembers; i++ {
		_, userID, _, err := e.Join(ctx, r.Code, "Guest")
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		ids = append(ids, userID)
	}
	return r.Code, ids
}

func song(id string) models.Song {
	return models.Song{ID: id, Title: "Track " + id, Artist: "Artist", Duration: 180}
}

func mustSnapshot(t *testing.T, e *Engine, code string) *models.Room {
	t.Helper()

	r, _, err := e.Snapshot(context.Background(), code)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return r
}

func TestCreateRoom(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	r, hostID, err := e.CreateRoom(context.Background(), "Party", "Alice")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	if len(r.Code) != 6 {
		t.Fatalf("code length: got=%d want=6 (%q)", len(r.Code), r.Code)
	}
	for _, ch := range r.Code {
		if !strings.ContainsRune(codeCharset, ch) {
			t.Fatalf("code %q contains %q outside charset", r.Code, ch)
		}
	}
	if len(r.Users) != 1 || r.Users[0].Name != "Alice" {
		t.Fatalf("users: got=%v want single Alice", r.Users)
	}
	if r.Host != hostID || r.Users[0].ID != hostID {
		t.Fatalf("host: got=%q want=%q", r.Host, hostID)
	}
	if len(r.Queue) != 0 || r.CurrentTrack != nil || r.CurrentTrackStartTs != nil {
		t.Fatalf("new room should have empty queue and no current track: %+v", r)
	}
	if r.Settings.SkipThreshold != 0.5 {
		t.Fatalf("skip threshold: got=%v want=0.5", r.Settings.SkipThreshold)
	}
}

// collideStore reports the first n generated codes as taken.
type collideStore struct {
	Store
	left int
	seen int
}

func (s *collideStore) ExistsByCode(ctx context.Context, code string) (bool, error) {
	s.seen++
	if s.left > 0 {
		s.left--
		return true, nil
	}
	return s.Store.ExistsByCode(ctx, code)
}

func TestCreateRoomRetriesOnCodeCollision(t *testing.T) {
	t.Parallel()

	cs := &collideStore{Store: NewMemoryStore(), left: 3}
	e := NewEngine(cs, nil)

	r, _, err := e.CreateRoom(context.Background(), "Party", "Alice")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if cs.seen != 4 {
		t.Fatalf("existence checks: got=%d want=4", cs.seen)
	}
	if len(r.Code) != 6 {
		t.Fatalf("code length: got=%d", len(r.Code))
	}
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	code, _ := newTestRoom(t, e, 0)

	r, err := e.Resolve(context.Background(), strings.ToLower(code))
	if err != nil {
		t.Fatalf("resolve lowercase: %v", err)
	}
	if r.Code != code {
		t.Fatalf("resolved code: got=%q want=%q", r.Code, code)
	}

	if _, err := e.Resolve(context.Background(), "NOPE42"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("unknown code: got=%v want=ErrRoomNotFound", err)
	}
}

func TestJoinAppendsMemberAndEmitsState(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	code, ids := newTestRoom(t, e, 0)

	r, userID, evs, err := e.Join(context.Background(), code, "Bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(r.Users) != 2 || r.Users[1].ID != userID || r.Users[1].Name != "Bob" {
		t.Fatalf("users after join: %v", r.Users)
	}
	if r.Host != ids[0] {
		t.Fatalf("host changed on join: got=%q want=%q", r.Host, ids[0])
	}
	if len(evs) != 1 || evs[0].Name != EventRoomState {
		t.Fatalf("events: got=%v want single roomState", evs)
	}
}

func TestAddSongToIdleRoomStartsPlayback(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	code, ids := newTestRoom(t, e, 0)

	evs, err := e.AddSong(context.Background(), code, song("s1"), ids[0])
	if err != nil {
		t.Fatalf("add song: %v", err)
	}

	r := mustSnapshot(t, e, code)
	if r.CurrentTrack == nil || r.CurrentTrack.ID != "s1" {
		t.Fatalf("current track: got=%+v want s1", r.CurrentTrack)
	}
	if len(r.Queue) != 0 {
		t.Fatalf("queue should be empty after auto-start: %v", ids2(r.Queue))
	}
	if r.CurrentTrackStartTs == nil || *r.CurrentTrackStartTs != 1700000000000 {
		t.Fatalf("start ts: got=%v", r.CurrentTrackStartTs)
	}
	if r.CurrentTrack.AddedBy != ids[0] {
		t.Fatalf("addedBy: got=%q want=%q", r.CurrentTrack.AddedBy, ids[0])
	}

	wantEvents := []string{EventSongAdded, EventRoomState, EventQueueUpdated, EventNowPlaying, EventActiveUsers}
	if len(evs) != len(wantEvents) {
		t.Fatalf("event count: got=%d want=%d", len(evs), len(wantEvents))
	}
	for i, name := range wantEvents {
		if evs[i].Name != name {
			t.Fatalf("event idx=%d got=%q want=%q", i, evs[i].Name, name)
		}
	}
}

func TestVoteReordersQueue(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	code, ids := newTestRoom(t, e, 1)
	ctx := context.Background()

	// s1 starts playing; s2 and s3 stay queued.
	for _, id := range []string{"s1", "s2", "s3"} {
		if _, err := e.AddSong(ctx, code, song(id), ids[0]); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}

	if _, err := e.Vote(ctx, code, "s3", ids[1], 3); err != nil {
		t.Fatalf("vote s3: %v", err)
	}
	evs, err := e.Vote(ctx, code, "s2", ids[0], 5)
	if err != nil {
		t.Fatalf("vote s2: %v", err)
	}

	r := mustSnapshot(t, e, code)
	if got := ids2(r.Queue); got[0] != "s2" || got[1] != "s3" {
		t.Fatalf("queue order: got=%v want=[s2 s3]", got)
	}
	if r.Queue[0].VoteCount != 5 || r.Queue[1].VoteCount != 3 {
		t.Fatalf("vote counts: got=%d,%d want=5,3", r.Queue[0].VoteCount, r.Queue[1].VoteCount)
	}

	if len(evs) != 1 || evs[0].Name != EventSongVotesUpdated {
		t.Fatalf("events: %v", evs)
	}
	p := evs[0].Payload.(VoteUpdatePayload)
	if p.SongID != "s2" || p.VoteCount != 5 || len(p.Queue) != 2 {
		t.Fatalf("vote payload: %+v", p)
	}
}

func TestVoteRejectsUnknownAndCurrentTrack(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	code, ids := newTestRoom(t, e, 0)
	ctx := context.Background()

	if _, err := e.AddSong(ctx, code, song("s1"), ids[0]); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := e.Vote(ctx, code, "missing", ids[0], 1); !errors.Is(err, ErrSongNotFound) {
		t.Fatalf("unknown song: got=%v want=ErrSongNotFound", err)
	}
	// s1 was promoted to current track, so it is not votable.
	if _, err := e.Vote(ctx, code, "s1", ids[0], 1); !errors.Is(err, ErrSongNotFound) {
		t.Fatalf("current track vote: got=%v want=ErrSongNotFound", err)
	}
	if _, err := e.Vote(ctx, "NOPE42", "s1", ids[0], 1); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("unknown room: got=%v want=ErrRoomNotFound", err)
	}
}

func TestHostSkipPromotesHighestVoted(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	code, ids := newTestRoom(t, e, 1)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		if _, err := e.AddSong(ctx, code, song(id), ids[0]); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	if _, err := e.Vote(ctx, code, "s3", ids[1], 2); err != nil {
		t.Fatalf("vote: %v", err)
	}

	evs, err := e.HostSkip(ctx, code, ids[0])
	if err != nil {
		t.Fatalf("host skip: %v", err)
	}

	r := mustSnapshot(t, e, code)
	if r.CurrentTrack == nil || r.CurrentTrack.ID != "s3" {
		t.Fatalf("promotion must take the queue front: got=%+v", r.CurrentTrack)
	}
	if got := ids2(r.Queue); len(got) != 1 || got[0] != "s2" {
		t.Fatalf("queue after skip: got=%v want=[s2]", got)
	}
	if evs[0].Name != EventTrackChanged || evs[1].Name != EventSkipResult {
		t.Fatalf("events: %v", evs)
	}
	if !evs[1].Payload.(SkipResultPayload).Success {
		t.Fatalf("skipResult should be success")
	}
}

func TestHostSkipOnEmptyQueueClearsCurrentTrack(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	code, ids := newTestRoom(t, e, 0)
	ctx := context.Background()

	if _, err := e.AddSong(ctx, code, song("s1"), ids[0]); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := e.HostSkip(ctx, code, ids[0]); err != nil {
		t.Fatalf("skip: %v", err)
	}

	r := mustSnapshot(t, e, code)
	if r.CurrentTrack != nil || r.CurrentTrackStartTs != nil {
		t.Fatalf("expected idle room, got track=%+v ts=%v", r.CurrentTrack, r.CurrentTrackStartTs)
	}
}

func TestHostSkipRejectsNonHost(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	code, ids := newTestRoom(t, e, 1)
	ctx := context.Background()

	if _, err := e.AddSong(ctx, code, song("s1"), ids[0]); err != nil {
		t.Fatalf("add: %v", err)
	}
	before := mustSnapshot(t, e, code)

	evs, err := e.HostSkip(ctx, code, ids[1])
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("got=%v want=ErrNotAuthorized", err)
	}
	if evs != nil {
		t.Fatalf("no events expected on rejection, got=%v", evs)
	}

	after := mustSnapshot(t, e, code)
	if after.CurrentTrack.ID != before.CurrentTrack.ID || *after.CurrentTrackStartTs != *before.CurrentTrackStartTs {
		t.Fatalf("state changed on rejected command")
	}
}

func TestRequestSkipThreshold(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	code, ids := newTestRoom(t, e, 3) // 4 members, threshold 0.5 => 2 required
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		if _, err := e.AddSong(ctx, code, song(id), ids[0]); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}

	evs, err := e.RequestSkip(ctx, code, ids[1])
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	if len(evs) != 1 || evs[0].Name != EventSkipVoteUpdate {
		t.Fatalf("first request events: %v", evs)
	}
	p := evs[0].Payload.(SkipVotePayload)
	if p.Votes != 1 || p.Required != 2 {
		t.Fatalf("progress: got=%+v want votes=1 required=2", p)
	}

	// Same user again does not add a second vote.
	evs, err = e.RequestSkip(ctx, code, ids[1])
	if err != nil {
		t.Fatalf("repeat request: %v", err)
	}
	if p := evs[0].Payload.(SkipVotePayload); p.Votes != 1 {
		t.Fatalf("duplicate voter counted: %+v", p)
	}

	evs, err = e.RequestSkip(ctx, code, ids[2])
	if err != nil {
		t.Fatalf("second voter: %v", err)
	}
	if evs[0].Name != EventTrackChanged {
		t.Fatalf("threshold met should skip, got events %v", evs)
	}

	r := mustSnapshot(t, e, code)
	if r.CurrentTrack == nil || r.CurrentTrack.ID != "s2" {
		t.Fatalf("current after vote-skip: %+v", r.CurrentTrack)
	}
	if len(e.skipVotes[code]) != 0 {
		t.Fatalf("skip votes not cleared: %v", e.skipVotes[code])
	}
}

func TestRequestSkipRequiredVotesMath(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	code, ids := newTestRoom(t, e, 4) // 5 members, ceil(5*0.5) = 3
	ctx := context.Background()

	evs, err := e.RequestSkip(ctx, code, ids[1])
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if p := evs[0].Payload.(SkipVotePayload); p.Required != 3 {
		t.Fatalf("required: got=%d want=3", p.Required)
	}
}

func TestLeaveReassignsHostToEarliestJoined(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	code, ids := newTestRoom(t, e, 2)
	ctx := context.Background()

	evs, err := e.Leave(ctx, code, ids[0])
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if len(evs) != 1 || evs[0].Name != EventRoomState {
		t.Fatalf("events: %v", evs)
	}

	r := mustSnapshot(t, e, code)
	if len(r.Users) != 2 {
		t.Fatalf("users after leave: %v", r.Users)
	}
	if r.Host != ids[1] {
		t.Fatalf("host succession: got=%q want earliest-joined %q", r.Host, ids[1])
	}
}

func TestLeavePurgesSkipVote(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	code, ids := newTestRoom(t, e, 3)
	ctx := context.Background()

	if _, err := e.RequestSkip(ctx, code, ids[1]); err != nil {
		t.Fatalf("request skip: %v", err)
	}
	if _, err := e.Leave(ctx, code, ids[1]); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, ok := e.skipVotes[code][ids[1]]; ok {
		t.Fatalf("departed user's skip vote not purged")
	}
}

func TestLeaveUnknownUserIsNoop(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	code, _ := newTestRoom(t, e, 1)

	evs, err := e.Leave(context.Background(), code, "not-a-member")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if evs != nil {
		t.Fatalf("no events expected, got=%v", evs)
	}

	r := mustSnapshot(t, e, code)
	if len(r.Users) != 2 {
		t.Fatalf("membership changed: %v", r.Users)
	}
}

// failStore fails every save after arming, to exercise rollback.
type failStore struct {
	Store
	failSaves bool
}

var errSaveFailed = errors.New("save failed")

func (s *failStore) Save(ctx context.Context, r *models.Room) error {
	if s.failSaves {
		return errSaveFailed
	}
	return s.Store.Save(ctx, r)
}

func TestFailedSaveLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	fs := &failStore{Store: NewMemoryStore()}
	e := NewEngine(fs, nil)
	e.now = func() time.Time { return time.UnixMilli(1700000000000) }

	ctx := context.Background()
	r, hostID, err := e.CreateRoom(ctx, "Party", "Alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.AddSong(ctx, r.Code, song("s1"), hostID); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := e.AddSong(ctx, r.Code, song("s2"), hostID); err != nil {
		t.Fatalf("add: %v", err)
	}
	before := mustSnapshot(t, e, r.Code)

	fs.failSaves = true
	if _, err := e.HostSkip(ctx, r.Code, hostID); !errors.Is(err, errSaveFailed) {
		t.Fatalf("got=%v want save failure", err)
	}
	if _, err := e.Vote(ctx, r.Code, "s2", hostID, 4); !errors.Is(err, errSaveFailed) {
		t.Fatalf("got=%v want save failure", err)
	}

	fs.failSaves = false
	after := mustSnapshot(t, e, r.Code)
	if after.CurrentTrack.ID != before.CurrentTrack.ID {
		t.Fatalf("current track changed by failed command")
	}
	if len(after.Queue) != len(before.Queue) || after.Queue[0].VoteCount != 0 {
		t.Fatalf("queue changed by failed command: %+v", after.Queue)
	}
}

func TestConcurrentVotesAreNotLost(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	code, ids := newTestRoom(t, e, 0)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		if _, err := e.AddSong(ctx, code, song(id), ids[0]); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}

	const voters = 20
	done := make(chan error, voters)
	for i := 0; i < voters; i++ {
		go func(i int) {
			_, err := e.Vote(ctx, code, "s2", string(rune('a'+i)), 1)
			done <- err
		}(i)
	}
	for i := 0; i < voters; i++ {
		if err := <-done; err != nil {
			t.Fatalf("vote: %v", err)
		}
	}

	r := mustSnapshot(t, e, code)
	if r.Queue[0].VoteCount != voters {
		t.Fatalf("lost updates: got=%d want=%d", r.Queue[0].VoteCount, voters)
	}
}

func ids2(queue []models.Song) []string {
	out := make([]string, len(queue))
	for i, s := range queue {
		out[i] = s.ID
	}
	return out
}
