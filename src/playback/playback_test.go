package playback

import (
	"testing"
	"time"

	"github.com/orchestra-mcp/chatsync/src/rooms"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roomCall struct {
	room   string
	except string
	msg    types.Message
}

type recordingRoom struct {
	calls []roomCall
}

func (r *recordingRoom) BroadcastRoom(room, except string, msg types.Message) {
	r.calls = append(r.calls, roomCall{room: room, except: except, msg: msg})
}

// stepClock starts at a fixed instant and moves forward by step on every
// read.
type stepClock struct {
	at   time.Time
	step time.Duration
}

func (c *stepClock) now() time.Time {
	t := c.at
	c.at = c.at.Add(c.step)
	return t
}

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestSync(t *testing.T) (*Synchronizer, *rooms.Manager, *recordingRoom) {
	t.Helper()
	clock := &stepClock{at: epoch, step: time.Millisecond}
	return newTestSyncWithClock(t, clock.now)
}

func newTestSyncWithClock(t *testing.T, now func() time.Time) (*Synchronizer, *rooms.Manager, *recordingRoom) {
	t.Helper()
	members := rooms.NewManager()
	out := &recordingRoom{}
	return NewSynchronizer(members, out, now, zerolog.Nop()), members, out
}

var trackX = Track{URL: "https://cdn.example.com/x.mp3", Name: "Track X"}

func TestStateTransitions(t *testing.T) {
	trackY := Track{URL: "https://cdn.example.com/y.mp3", Name: "Track Y"}

	tests := []struct {
		name       string
		events     []Event
		wantStatus Status
		wantTrack  Track
		wantOffset float64
	}{
		{
			name:       "idle to playing",
			events:     []Event{{Action: types.ActionPlay, Track: trackX}},
			wantStatus: Playing, wantTrack: trackX, wantOffset: 0,
		},
		{
			name: "playing to paused",
			events: []Event{
				{Action: types.ActionPlay, Track: trackX},
				{Action: types.ActionPause, Track: trackX, Offset: 12.5},
			},
			wantStatus: Paused, wantTrack: trackX, wantOffset: 12.5,
		},
		{
			name: "paused to playing resumes at offset",
			events: []Event{
				{Action: types.ActionPlay, Track: trackX},
				{Action: types.ActionPause, Track: trackX, Offset: 12.5},
				{Action: types.ActionPlay, Track: Track{URL: trackX.URL}, Offset: 12.5},
			},
			wantStatus: Playing, wantTrack: trackX, wantOffset: 12.5,
		},
		{
			name: "track change resets offset",
			events: []Event{
				{Action: types.ActionPlay, Track: trackX},
				{Action: types.ActionPause, Track: trackX, Offset: 40},
				{Action: types.ActionPlay, Track: trackY, Offset: 40},
			},
			wantStatus: Playing, wantTrack: trackY, wantOffset: 0,
		},
		{
			name: "track change from idle starts at zero",
			events: []Event{
				{Action: types.ActionPlay, Track: trackY, Offset: 33},
			},
			wantStatus: Playing, wantTrack: trackY, wantOffset: 0,
		},
		{
			name: "track change while playing starts at zero",
			events: []Event{
				{Action: types.ActionPlay, Track: trackX},
				{Action: types.ActionPlay, Track: trackY, Offset: 33},
			},
			wantStatus: Playing, wantTrack: trackY, wantOffset: 0,
		},
		{
			name: "seek while playing",
			events: []Event{
				{Action: types.ActionPlay, Track: trackX},
				{Action: types.ActionPlay, Track: trackX, Offset: 90},
			},
			wantStatus: Playing, wantTrack: trackX, wantOffset: 90,
		},
		{
			name: "seek while paused",
			events: []Event{
				{Action: types.ActionPlay, Track: trackX},
				{Action: types.ActionPause, Track: trackX, Offset: 5},
				{Action: types.ActionPause, Track: trackX, Offset: 60},
			},
			wantStatus: Paused, wantTrack: trackX, wantOffset: 60,
		},
		{
			name: "pause without url keeps track",
			events: []Event{
				{Action: types.ActionPlay, Track: trackX},
				{Action: types.ActionPause, Offset: 3},
			},
			wantStatus: Paused, wantTrack: trackX, wantOffset: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s State
			for _, ev := range tt.events {
				require.NoError(t, s.Apply(ev))
			}
			assert.Equal(t, tt.wantStatus, s.Status)
			assert.Equal(t, tt.wantTrack, s.Track)
			assert.InDelta(t, tt.wantOffset, s.Offset, 1e-9)
		})
	}
}

func TestStateRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
	}{
		{"pause while idle", Event{Action: types.ActionPause, Offset: 3}},
		{"play without track while idle", Event{Action: types.ActionPlay}},
		{"unknown action", Event{Action: "rewind", Track: trackX}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s State
			err := s.Apply(tt.ev)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, Idle, s.Status)
		})
	}
}

func TestStateDropsStaleSeq(t *testing.T) {
	var s State
	require.NoError(t, s.Apply(Event{Action: types.ActionPlay, Track: trackX, Seq: 2}))

	err := s.Apply(Event{Action: types.ActionPause, Track: trackX, Offset: 1, Seq: 1})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, Playing, s.Status)

	require.NoError(t, s.Apply(Event{Action: types.ActionPause, Track: trackX, Offset: 4, Seq: 3}))
	assert.Equal(t, Paused, s.Status)
}

func TestStateReset(t *testing.T) {
	var s State
	require.NoError(t, s.Apply(Event{Action: types.ActionPlay, Track: trackX, Seq: 50}))

	s.Reset()
	assert.Equal(t, State{}, s)

	require.NoError(t, s.Apply(Event{Action: types.ActionPlay, Track: trackX, Seq: 1}))
	assert.Equal(t, Playing, s.Status)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "playing", Playing.String())
	assert.Equal(t, "paused", Paused.String())
	assert.Equal(t, "status(9)", Status(9).String())
}

func TestHandleRelaysToRoom(t *testing.T) {
	s, members, out := newTestSync(t)
	room := rooms.Key("B", "A")
	members.Join("connA", room)
	members.Join("connB", room)

	sent, err := s.Handle("connA", types.PlaybackAction{
		RoomID:   room,
		Action:   types.ActionPlay,
		SongURL:  trackX.URL,
		SongName: trackX.Name,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(epoch.UnixMicro()), sent.Seq)

	require.Len(t, out.calls, 1)
	call := out.calls[0]
	assert.Equal(t, "A-B", call.room)
	assert.Equal(t, "connA", call.except)
	assert.Equal(t, types.EventMusicSync, call.msg.Event)

	// B applies what it received.
	var got types.PlaybackBroadcast
	require.NoError(t, call.msg.Decode(&got))
	var b State
	require.NoError(t, b.Apply(FromBroadcast(got)))
	assert.Equal(t, Playing, b.Status)
	assert.Equal(t, trackX, b.Track)
	assert.Zero(t, b.Offset)
}

func TestHandleSequenceFollowsClock(t *testing.T) {
	s, members, _ := newTestSync(t)
	members.Join("c1", "A-B")
	members.Join("c1", "A-C")

	play := func(room string) uint64 {
		out, err := s.Handle("c1", types.PlaybackAction{RoomID: room, Action: types.ActionPlay, SongURL: trackX.URL})
		require.NoError(t, err)
		return out.Seq
	}

	first := play("A-B")
	second := play("A-B")
	other := play("A-C")
	assert.Equal(t, uint64(epoch.UnixMicro()), first)
	assert.Equal(t, first+1000, second)
	assert.Equal(t, second+1000, other)
	assert.Less(t, other, uint64(1)<<53, "must stay exact as a JSON number")
}

func TestHandleSequenceWithStalledClock(t *testing.T) {
	frozen := func() time.Time { return epoch }
	s, members, _ := newTestSyncWithClock(t, frozen)
	members.Join("c1", "A-B")
	members.Join("c1", "A-C")

	play := func(room string) uint64 {
		out, err := s.Handle("c1", types.PlaybackAction{RoomID: room, Action: types.ActionPlay, SongURL: trackX.URL})
		require.NoError(t, err)
		return out.Seq
	}

	base := uint64(epoch.UnixMicro())
	assert.Equal(t, base, play("A-B"))
	assert.Equal(t, base+1, play("A-B"))
	assert.Equal(t, base+2, play("A-B"))
	assert.Equal(t, base, play("A-C"))
}

// A receiver that kept its state while the room emptied must still accept
// actions sent after the room is reopened.
func TestStateAcceptsActionsAfterForget(t *testing.T) {
	s, members, out := newTestSync(t)
	room := "A-B"
	members.Join("connA", room)

	var receiver State
	applyLast := func() error {
		var bc types.PlaybackBroadcast
		require.NoError(t, out.calls[len(out.calls)-1].msg.Decode(&bc))
		return receiver.Apply(FromBroadcast(bc))
	}

	for _, action := range []string{types.ActionPlay, types.ActionPause, types.ActionPlay} {
		_, err := s.Handle("connA", types.PlaybackAction{RoomID: room, Action: action, SongURL: trackX.URL, CurrentTime: 7})
		require.NoError(t, err)
		require.NoError(t, applyLast())
	}

	members.Leave("connA", room)
	s.Forget(room)
	members.Join("connA", room)

	_, err := s.Handle("connA", types.PlaybackAction{RoomID: room, Action: types.ActionPause, SongURL: trackX.URL, CurrentTime: 9})
	require.NoError(t, err)
	require.NoError(t, applyLast())
	assert.Equal(t, Paused, receiver.Status)
	assert.InDelta(t, 9, receiver.Offset, 1e-9)
}

func TestHandleValidation(t *testing.T) {
	tests := []struct {
		name   string
		action types.PlaybackAction
	}{
		{"missing room", types.PlaybackAction{Action: types.ActionPlay}},
		{"unknown action", types.PlaybackAction{RoomID: "A-B", Action: "stop"}},
		{"negative offset", types.PlaybackAction{RoomID: "A-B", Action: types.ActionPause, CurrentTime: -1}},
		{"not a member", types.PlaybackAction{RoomID: "A-C", Action: types.ActionPlay}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, members, out := newTestSync(t)
			members.Join("c1", "A-B")

			_, err := s.Handle("c1", tt.action)
			assert.ErrorIs(t, err, types.ErrValidation)
			assert.Empty(t, out.calls)
		})
	}
}
