package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// RemoteStream accumulates inbound tracks, which arrive asynchronously and
// possibly out of order. Accumulation is idempotent: a duplicate track id is
// ignored.
type RemoteStream struct {
	mu     sync.RWMutex
	tracks map[string]*webrtc.TrackRemote
}

func NewRemoteStream() *RemoteStream {
	return &RemoteStream{tracks: make(map[string]*webrtc.TrackRemote)}
}

// AddTrack stores the track and reports whether it was new.
func (r *RemoteStream) AddTrack(track *webrtc.TrackRemote) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return insertTrack(r.tracks, track.ID(), track)
}

func insertTrack(m map[string]*webrtc.TrackRemote, id string, track *webrtc.TrackRemote) bool {
	if _, ok := m[id]; ok {
		return false
	}
	m[id] = track
	return true
}

func (r *RemoteStream) AudioTrack() *webrtc.TrackRemote {
	return r.firstOfKind(webrtc.RTPCodecTypeAudio)
}

func (r *RemoteStream) VideoTrack() *webrtc.TrackRemote {
	return r.firstOfKind(webrtc.RTPCodecTypeVideo)
}

func (r *RemoteStream) firstOfKind(kind webrtc.RTPCodecType) *webrtc.TrackRemote {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

func (r *RemoteStream) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tracks)
}
