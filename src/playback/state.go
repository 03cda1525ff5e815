package playback

import (
	"errors"
	"fmt"

	"github.com/orchestra-mcp/chatsync/src/types"
)

// ErrInvalidTransition is returned when a playback event cannot apply to
// the current state. Receivers treat it as a no-op.
var ErrInvalidTransition = errors.New("invalid playback transition")

// Status is the play/pause state of a participant.
type Status int

const (
	Idle Status = iota
	Playing
	Paused
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Track references a song by URL with its display name.
type Track struct {
	URL  string
	Name string
}

// State is one participant's local view of the shared player. The server
// never holds it; it exists so every receiver converges the same way. A
// participant calls Reset when it joins a room.
type State struct {
	Status  Status
	Track   Track
	Offset  float64
	lastSeq uint64
}

// FromBroadcast converts a received broadcast into the event to apply.
func FromBroadcast(b types.PlaybackBroadcast) Event {
	return Event{
		Action: b.Action,
		Track:  Track{URL: b.SongURL, Name: b.SongName},
		Offset: b.CurrentTime,
		Seq:    b.Seq,
	}
}

// Event is a play or pause carrying the track and offset it applies to. A
// zero Seq is never treated as stale.
type Event struct {
	Action string
	Track  Track
	Offset float64
	Seq    uint64
}

// Reset returns the state to Idle and forgets the last applied sequence
// number.
func (s *State) Reset() {
	*s = State{}
}

// Apply transitions the state. Seeks arrive as play or pause events at the
// current track with a new offset. A play naming a different track switches
// to it from the start, whatever the previous status.
func (s *State) Apply(ev Event) error {
	if ev.Seq != 0 && ev.Seq <= s.lastSeq {
		return fmt.Errorf("%w: stale seq %d after %d", ErrInvalidTransition, ev.Seq, s.lastSeq)
	}

	switch ev.Action {
	case types.ActionPlay:
		switch {
		case ev.Track.URL == "" && s.Status == Idle:
			return fmt.Errorf("%w: play without a track", ErrInvalidTransition)
		case ev.Track.URL == "" || ev.Track.URL == s.Track.URL:
			if ev.Track.Name != "" {
				s.Track.Name = ev.Track.Name
			}
			s.Offset = ev.Offset
		default:
			s.Track = ev.Track
			s.Offset = 0
		}
		s.Status = Playing

	case types.ActionPause:
		if s.Status == Idle {
			return fmt.Errorf("%w: pause while idle", ErrInvalidTransition)
		}
		if ev.Track.URL != "" && ev.Track.URL != s.Track.URL {
			return fmt.Errorf("%w: pause for another track", ErrInvalidTransition)
		}
		s.Offset = ev.Offset
		s.Status = Paused

	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, ev.Action)
	}

	if ev.Seq != 0 {
		s.lastSeq = ev.Seq
	}
	return nil
}
