package orch

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hirelink/interviewcore/internal/core"
	"github.com/hirelink/interviewcore/internal/domain"
	"github.com/hirelink/interviewcore/internal/media"
)

// AvatarTransport is the slice of the avatar adapter the session drives.
type AvatarTransport interface {
	OnRemoteStream(fn func(stream *media.RemoteStream))
	Connect(ctx context.Context, local *media.Stream) (*media.RemoteStream, error)
	Speak(ctx context.Context, text string) (domain.AvatarUtterance, error)
	Transcribe(ctx context.Context, audio []byte) (string, error)
	Close()
}

// AvatarSession runs the AI-interviewer variant: one fixed remote peer over
// REST-mediated negotiation, same lifecycle and observer surface as the
// human session.
type AvatarSession struct {
	media     core.MediaAcquirer
	transport AvatarTransport
	observer  core.SessionObserver
	selection domain.MediaDeviceSelection

	mu      sync.Mutex
	session *domain.Session
	local   *media.Stream
	closed  bool
}

func NewAvatarSession(m core.MediaAcquirer, t AvatarTransport, obs core.SessionObserver, sel domain.MediaDeviceSelection) *AvatarSession {
	return &AvatarSession{media: m, transport: t, observer: obs, selection: sel}
}

// Start acquires local media, then performs the REST offer/answer exchange.
// There is no waiting-room phase: the avatar is always present.
func (s *AvatarSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.session != nil {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	s.session = domain.NewSession("avatar")
	s.mu.Unlock()

	local, err := s.media.Acquire(ctx, s.selection)
	if err != nil {
		s.Close()
		return err
	}
	s.mu.Lock()
	s.local = local
	s.transition(domain.StateAwaitingPeer)
	s.transition(domain.StateNegotiating)
	s.mu.Unlock()
	s.observer.OnLocalStream(local)

	s.transport.OnRemoteStream(func(stream *media.RemoteStream) {
		s.observer.OnRemoteStream(stream)
	})
	if _, err := s.transport.Connect(ctx, local); err != nil {
		s.mu.Lock()
		s.transition(domain.StateFailed)
		s.mu.Unlock()
		s.observer.OnNotice(core.Notice{
			Level: core.NoticeError,
			ID:    "avatar-connect-failed",
			Text:  "Could not connect to the interviewer",
		})
		s.Close()
		return err
	}

	s.mu.Lock()
	s.transition(domain.StateConnected)
	s.mu.Unlock()
	return nil
}

// Ask has the avatar speak the next question. The caption callback fires
// from inside the transport once audio is audible.
func (s *AvatarSession) Ask(ctx context.Context, text string) (domain.AvatarUtterance, error) {
	return s.transport.Speak(ctx, text)
}

// Transcribe converts the candidate's recorded answer to text. Failures are
// reported but never end the session; the caller re-prompts.
func (s *AvatarSession) Transcribe(ctx context.Context, audio []byte) (string, error) {
	text, err := s.transport.Transcribe(ctx, audio)
	if err != nil {
		s.observer.OnNotice(core.Notice{
			Level: core.NoticeWarn,
			ID:    "transcription-failed",
			Text:  "Could not hear that. Please answer again.",
		})
		return "", err
	}
	return text, nil
}

func (s *AvatarSession) ToggleAudio(enabled bool) error { return s.media.ToggleAudio(enabled) }
func (s *AvatarSession) ToggleVideo(enabled bool) error { return s.media.ToggleVideo(enabled) }

func (s *AvatarSession) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{PeerPresent: true}
	if s.session != nil {
		st.SessionID = s.session.ID
		st.RoomID = s.session.RoomID
		st.State = s.session.State.String()
	} else {
		st.State = domain.StateIdle.String()
	}
	if s.local != nil {
		st.Local = &mediaStatus{
			AudioEnabled: s.local.AudioEnabled(),
			VideoEnabled: s.local.VideoEnabled(),
		}
	}
	return st
}

func (s *AvatarSession) transition(to domain.ConnectionState) {
	if s.session == nil || s.session.State == to || !s.session.State.CanTransition(to) {
		return
	}
	log.Info().
		Str("module", "orch").
		Str("from", s.session.State.String()).
		Str("to", to.String()).
		Msg("state")
	s.session.State = to
	s.observer.OnStateChanged(to)
}

// Close releases the provider stream and local media. Idempotent.
func (s *AvatarSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.session != nil && !s.session.State.Terminal() {
		s.transition(domain.StateEnded)
	}
	s.mu.Unlock()

	s.transport.Close()
	s.media.Release()
	log.Info().Str("module", "orch").Msg("avatar session closed")
}
