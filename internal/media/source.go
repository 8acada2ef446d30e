package media

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"     // registers the camera driver
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // registers the microphone driver
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/rs/zerolog/log"

	"github.com/hirelink/interviewcore/internal/domain"
)

// Source acquires and owns the local camera+microphone tracks for one
// session. Acquire hands out a single Stream for the whole session lifetime;
// repeated calls return the same handle.
type Source struct {
	selector *mediadevices.CodecSelector
	warn     func(msg string)

	mu       sync.Mutex
	stream   *Stream
	released bool
}

// NewSource builds a source with VP8+Opus encoders. warn receives non-fatal
// setup notices (e.g. preferred device unavailable, fell back to default) and
// may be nil.
func NewSource(warn func(msg string)) (*Source, error) {
	vp8Params, err := vpx.NewVP8Params()
	if err != nil {
		return nil, domain.DeviceError("vp8 params", err)
	}
	vp8Params.BitRate = 500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, domain.DeviceError("opus params", err)
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vp8Params),
		mediadevices.WithAudioEncoders(&opusParams),
	)
	return &Source{selector: selector, warn: warn}, nil
}

// CodecSelector exposes the selector so the peer connection can populate its
// MediaEngine with the same codecs.
func (s *Source) CodecSelector() *mediadevices.CodecSelector { return s.selector }

// Acquire opens the selected camera and microphone. Device-id constrained
// acquisition is attempted first; on failure it retries with default devices
// and surfaces a non-fatal warning. Both failing is a DeviceError.
func (s *Source) Acquire(ctx context.Context, sel domain.MediaDeviceSelection) (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return s.stream, nil
	}
	if s.released {
		return nil, domain.DeviceError("acquire", domain.ErrSessionClosed)
	}

	md, err := mediadevices.GetUserMedia(s.constraints(sel, true))
	if err != nil && (sel.VideoDeviceID != "" || sel.AudioDeviceID != "") {
		log.Warn().Err(err).Str("module", "media").Msg("preferred devices unavailable, retrying with defaults")
		if s.warn != nil {
			s.warn("preferred camera/microphone unavailable, using default devices")
		}
		md, err = mediadevices.GetUserMedia(s.constraints(domain.MediaDeviceSelection{}, false))
	}
	if err != nil {
		return nil, domain.DeviceError("acquire", err)
	}

	stream := NewStream(uuid.NewString())
	var video, audio mediadevices.Track
	if tracks := md.GetVideoTracks(); len(tracks) > 0 {
		video = tracks[0]
	}
	if tracks := md.GetAudioTracks(); len(tracks) > 0 {
		audio = tracks[0]
	}
	stream.setTracks(video, audio)

	s.stream = stream
	log.Info().Str("module", "media").Str("stream_id", stream.ID()).Msg("local media acquired")
	return stream, nil
}

func (s *Source) constraints(sel domain.MediaDeviceSelection, exact bool) mediadevices.MediaStreamConstraints {
	return mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			if exact && sel.VideoDeviceID != "" {
				c.DeviceID = prop.StringExact(sel.VideoDeviceID)
			}
			c.Width = prop.Int(1280)
			c.Height = prop.Int(720)
			c.FrameFormat = prop.FrameFormat(frame.FormatI420)
		},
		Audio: func(c *mediadevices.MediaTrackConstraints) {
			if exact && sel.AudioDeviceID != "" {
				c.DeviceID = prop.StringExact(sel.AudioDeviceID)
			}
		},
		Codec: s.selector,
	}
}

// ToggleAudio flips the mute flag on the existing handle. The stream object
// and the underlying connection are untouched.
func (s *Source) ToggleAudio(enabled bool) error {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return domain.DeviceError("toggle audio", domain.ErrNoLocalStream)
	}
	stream.setAudioEnabled(enabled)
	return nil
}

// ToggleVideo flips the camera flag on the existing handle.
func (s *Source) ToggleVideo(enabled bool) error {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return domain.DeviceError("toggle video", domain.ErrNoLocalStream)
	}
	stream.setVideoEnabled(enabled)
	return nil
}

// SwitchCamera re-acquires only the video track from the given device and
// swaps it into the existing handle. Consumers are notified through the
// handle so the negotiated session survives the swap.
func (s *Source) SwitchCamera(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return domain.DeviceError("switch camera", domain.ErrNoLocalStream)
	}

	md, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			if deviceID != "" {
				c.DeviceID = prop.StringExact(deviceID)
			}
			c.Width = prop.Int(1280)
			c.Height = prop.Int(720)
			c.FrameFormat = prop.FrameFormat(frame.FormatI420)
		},
		Codec: s.selector,
	})
	if err != nil {
		return domain.DeviceError("switch camera", err)
	}

	tracks := md.GetVideoTracks()
	if len(tracks) == 0 {
		return domain.DeviceError("switch camera", domain.ErrNoLocalStream)
	}
	old := s.stream.replaceVideo(tracks[0])
	if old != nil {
		if err := old.Close(); err != nil {
			log.Warn().Err(err).Str("module", "media").Msg("closing replaced camera track")
		}
	}
	log.Info().Str("module", "media").Str("device", deviceID).Msg("camera switched")
	return nil
}

// Release stops all tracks. Idempotent; safe to call from both the explicit
// end-call path and teardown.
func (s *Source) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true

	// Close the tracks currently held by the handle; after a camera switch
	// the live video track is no longer the one GetUserMedia returned.
	if s.stream != nil {
		if v := s.stream.VideoTrack(); v != nil {
			if err := v.Close(); err != nil {
				log.Warn().Err(err).Str("module", "media").Msg("closing video track")
			}
		}
		if a := s.stream.AudioTrack(); a != nil {
			if err := a.Close(); err != nil {
				log.Warn().Err(err).Str("module", "media").Msg("closing audio track")
			}
		}
	}
	s.stream = nil
	log.Info().Str("module", "media").Msg("local media released")
}
