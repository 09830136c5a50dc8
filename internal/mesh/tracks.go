package mesh

import (
	"slices"

	"github.com/dkeye/Huddle/internal/domain"
)

// Stream is the media currently received from one participant.
type Stream struct {
	ID     string
	Tracks []Track
}

func (s *Stream) clone() *Stream {
	return &Stream{ID: s.ID, Tracks: slices.Clone(s.Tracks)}
}

// TrackAggregator groups inbound tracks into one stream per participant.
// OnChange receives a copy of the current stream after every change, or
// nil when the participant's stream is dropped.
type TrackAggregator struct {
	streams  map[domain.UserID]*Stream
	OnChange func(remote domain.UserID, s *Stream)
}

func NewTrackAggregator() *TrackAggregator {
	return &TrackAggregator{streams: make(map[domain.UserID]*Stream)}
}

// OnTrack merges t into the participant's stream. A track from a
// different origin stream replaces the stream.
func (a *TrackAggregator) OnTrack(remote domain.UserID, t Track, origin string) {
	cur, ok := a.streams[remote]
	switch {
	case !ok || cur.ID != origin:
		cur = &Stream{ID: origin, Tracks: []Track{t}}
		a.streams[remote] = cur
	case slices.ContainsFunc(cur.Tracks, func(x Track) bool { return x.ID() == t.ID() }):
		return
	default:
		cur.Tracks = append(cur.Tracks, t)
	}
	a.emit(remote, cur)
}

func (a *TrackAggregator) Stream(remote domain.UserID) (*Stream, bool) {
	s, ok := a.streams[remote]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

func (a *TrackAggregator) Forget(remote domain.UserID) {
	if _, ok := a.streams[remote]; !ok {
		return
	}
	delete(a.streams, remote)
	a.emit(remote, nil)
}

func (a *TrackAggregator) Reset() {
	for remote := range a.streams {
		a.Forget(remote)
	}
}

func (a *TrackAggregator) emit(remote domain.UserID, s *Stream) {
	if a.OnChange == nil {
		return
	}
	if s != nil {
		s = s.clone()
	}
	a.OnChange(remote, s)
}
