package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/hirelink/interviewcore/internal/core"
	"github.com/hirelink/interviewcore/internal/domain"
	"github.com/hirelink/interviewcore/internal/media"
)

// bindPeer wires the peer link's callbacks into the session. Called once per
// link, under o.mu, before Start.
func (o *Orchestrator) bindPeer(peer core.PeerLink) {
	roomID := o.session.RoomID

	peer.OnLocalSignal(func(env domain.SignalEnvelope) {
		if err := o.channel.SendSignal(roomID, env); err != nil {
			log.Warn().Err(err).
				Str("module", "orch").
				Str("type", string(env.Type)).
				Msg("send signal")
		}
	})

	peer.OnRemoteStream(func(stream *media.RemoteStream) {
		o.observer.OnRemoteStream(stream)
	})

	peer.OnConnected(func() {
		o.mu.Lock()
		o.transition(domain.StateConnected)
		o.mu.Unlock()
	})

	peer.OnQualityUpdate(func(report domain.QualityReport) {
		o.mu.Lock()
		o.lastQuality = report
		o.mu.Unlock()
		o.observer.OnQuality(report)
		// WarnID is set once per degradation episode; it doubles as the
		// notice dedupe key.
		if report.WarnID != "" {
			o.notify(core.NoticeWarn, report.WarnID, "Connection quality is poor")
		}
	})

	peer.OnConnectionFailed(func(err error) {
		o.failSession("transport", domain.NegotiationError("ice", err))
	})
}

// ToggleAudio flips the microphone without touching the stream handle or the
// negotiated connection.
func (o *Orchestrator) ToggleAudio(enabled bool) error {
	if err := o.media.ToggleAudio(enabled); err != nil {
		return err
	}
	log.Info().Str("module", "orch").Bool("enabled", enabled).Msg("audio toggled")
	return nil
}

func (o *Orchestrator) ToggleVideo(enabled bool) error {
	if err := o.media.ToggleVideo(enabled); err != nil {
		return err
	}
	log.Info().Str("module", "orch").Bool("enabled", enabled).Msg("video toggled")
	return nil
}

// SwitchCamera replaces the outgoing video track in place; the stream handle
// and the peer connection survive.
func (o *Orchestrator) SwitchCamera(deviceID string) error {
	return o.media.SwitchCamera(deviceID)
}

// Reconnect re-dials the signaling channel after an outage, on explicit user
// action only.
func (o *Orchestrator) Reconnect(ctx context.Context) error {
	o.mu.Lock()
	token := o.token
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return domain.ErrSessionClosed
	}
	return o.channel.Reconnect(ctx, token)
}
