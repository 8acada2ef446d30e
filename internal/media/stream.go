// Package media owns local device acquisition and the stream handles shared
// with the peer connection and the view layer. The local handle is the single
// mutable shared resource of a session: only the Source mutates its tracks,
// everyone else subscribes to change notifications instead of holding stale
// references.
package media

import (
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
)

// TrackChange notifies subscribers that a track was toggled or replaced.
// Track is the current track for the kind; consumers that forward media
// should send nothing while Enabled is false.
type TrackChange struct {
	Kind    webrtc.RTPCodecType
	Enabled bool
	Track   mediadevices.Track
}

// Stream is the local stream handle. It is created at most once per session;
// muting, unmuting and camera switches mutate the track list but never
// replace the Stream itself, so consumers never re-bind the handle.
type Stream struct {
	id string

	mu           sync.RWMutex
	video        mediadevices.Track
	audio        mediadevices.Track
	videoEnabled bool
	audioEnabled bool

	subs    map[int]func(TrackChange)
	nextSub int
}

func NewStream(id string) *Stream {
	return &Stream{
		id:           id,
		videoEnabled: true,
		audioEnabled: true,
		subs:         make(map[int]func(TrackChange)),
	}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) VideoTrack() mediadevices.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.video
}

func (s *Stream) AudioTrack() mediadevices.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audio
}

func (s *Stream) VideoEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.videoEnabled
}

func (s *Stream) AudioEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audioEnabled
}

// Subscribe registers a change listener and returns its unsubscribe func.
// Registration is per-session; unsubscribing is the caller's teardown duty.
func (s *Stream) Subscribe(fn func(TrackChange)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Stream) setTracks(video, audio mediadevices.Track) {
	s.mu.Lock()
	s.video = video
	s.audio = audio
	s.mu.Unlock()
}

func (s *Stream) setAudioEnabled(enabled bool) {
	s.mu.Lock()
	s.audioEnabled = enabled
	track := s.audio
	s.mu.Unlock()
	s.notify(TrackChange{Kind: webrtc.RTPCodecTypeAudio, Enabled: enabled, Track: track})
}

func (s *Stream) setVideoEnabled(enabled bool) {
	s.mu.Lock()
	s.videoEnabled = enabled
	track := s.video
	s.mu.Unlock()
	s.notify(TrackChange{Kind: webrtc.RTPCodecTypeVideo, Enabled: enabled, Track: track})
}

// replaceVideo swaps the camera track in place and returns the old track so
// the source can close it. The handle identity is unchanged.
func (s *Stream) replaceVideo(track mediadevices.Track) mediadevices.Track {
	s.mu.Lock()
	old := s.video
	s.video = track
	enabled := s.videoEnabled
	s.mu.Unlock()
	s.notify(TrackChange{Kind: webrtc.RTPCodecTypeVideo, Enabled: enabled, Track: track})
	return old
}

func (s *Stream) notify(ch TrackChange) {
	s.mu.RLock()
	fns := make([]func(TrackChange), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(ch)
	}
}
