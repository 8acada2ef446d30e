package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/hirelink/interviewcore/internal/core"
	"github.com/hirelink/interviewcore/internal/domain"
)

var _ core.RoomHandler = (*Orchestrator)(nil)

// OnSignal dispatches an inbound envelope. The self-echo guard runs before
// anything else: the relay broadcasts to the whole room, so our own offers
// and candidates come back to us.
func (o *Orchestrator) OnSignal(env domain.SignalEnvelope) {
	if env.From == o.channel.LocalID() {
		return
	}

	o.mu.Lock()
	if o.closed || o.session == nil || o.session.State.Terminal() {
		o.mu.Unlock()
		return
	}

	if o.peer == nil {
		// The candidate side never initiates. The first inbound offer
		// materializes the single peer link; anything earlier is a stray.
		if env.Type != domain.SignalOffer {
			o.mu.Unlock()
			log.Debug().
				Str("module", "orch").
				Str("type", string(env.Type)).
				Msg("signal before offer dropped")
			return
		}
		o.peerID = env.From
		o.peerPresent = true
		o.transition(domain.StateNegotiating)
		peer, err := o.peers(o.local, o.iceServers)
		if err != nil {
			o.mu.Unlock()
			o.failSession("create peer", err)
			return
		}
		o.peer = peer
		o.bindPeer(peer)
		ctx := o.ctx
		o.mu.Unlock()

		if err := peer.Start(ctx); err != nil {
			o.failSession("start peer", err)
			return
		}
		if err := peer.HandleSignal(env); err != nil {
			o.failSession("apply offer", err)
		}
		return
	}

	// Later envelopes, including a renegotiation offer, route to the
	// existing link rather than creating a second one.
	peer := o.peer
	o.mu.Unlock()
	if err := peer.HandleSignal(env); err != nil {
		log.Warn().Err(err).
			Str("module", "orch").
			Str("type", string(env.Type)).
			Msg("signal rejected by peer link")
	}
}

func (o *Orchestrator) OnParticipantJoined(p domain.Participant) {
	o.mu.Lock()
	o.peerPresent = true
	o.mu.Unlock()
	log.Info().Str("module", "orch").Str("participant", string(p.ID)).Msg("participant joined")
	o.notify(core.NoticeInfo, "peer-joined", "Interviewer joined the room")
}

// OnParticipantLeft is the graceful departure; OnPeerDisconnected the abrupt
// one. Both tear down only the peer link; local media stays live so the
// candidate is never dropped to a blank screen while waiting for rejoin.
func (o *Orchestrator) OnParticipantLeft(id domain.ParticipantID) {
	o.peerGone(id, "participant left")
}

func (o *Orchestrator) OnPeerDisconnected(id domain.ParticipantID) {
	o.peerGone(id, "peer disconnected")
}

func (o *Orchestrator) peerGone(id domain.ParticipantID, reason string) {
	o.mu.Lock()
	if o.closed || o.session == nil || (o.peerID != "" && id != o.peerID) {
		o.mu.Unlock()
		return
	}
	peer := o.peer
	o.peer = nil
	o.peerID = ""
	o.peerPresent = false
	o.lastQuality = domain.QualityReport{}
	if st := o.session.State; st == domain.StateNegotiating || st == domain.StateConnected {
		o.transition(domain.StateDisconnected)
		o.transition(domain.StateAwaitingPeer)
	}
	o.mu.Unlock()

	if peer != nil {
		peer.Close()
	}
	o.observer.OnRemoteStreamCleared()
	log.Info().Str("module", "orch").Str("participant", string(id)).Msg(reason)
	o.notify(core.NoticeInfo, "peer-left", "Interviewer left the room")
}

func (o *Orchestrator) OnChatMessage(msg domain.ChatMessage) {
	o.observer.OnChatMessage(msg)
}

func (o *Orchestrator) OnRecordingStateChanged(active bool) {
	o.observer.OnRecordingStateChanged(active)
}

func (o *Orchestrator) OnInterviewEnded(reason string) {
	log.Info().Str("module", "orch").Str("reason", reason).Msg("interview ended by remote")
	o.notify(core.NoticeInfo, "interview-ended", "The interview has ended")
	o.Close()
}

// OnChannelDown reports the outage; nothing here retries. Reconnection is a
// user-initiated action.
func (o *Orchestrator) OnChannelDown(err error) {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return
	}
	log.Warn().Err(err).Str("module", "orch").Msg("signaling channel down")
	o.notify(core.NoticeError, "channel-down", "Connection to the interview server was lost")
}

func (o *Orchestrator) OnChannelRestored() {
	log.Info().Str("module", "orch").Msg("signaling channel restored")
	o.notify(core.NoticeInfo, "channel-restored", "Reconnected to the interview server")
}

// failSession moves the session to Failed. Terminal: recovery requires an
// explicit end and a fresh session.
func (o *Orchestrator) failSession(op string, err error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	peer := o.peer
	o.peer = nil
	o.peerID = ""
	o.transition(domain.StateFailed)
	o.mu.Unlock()

	if peer != nil {
		peer.Close()
	}
	log.Error().Err(err).Str("module", "orch").Str("op", op).Msg("session failed")
	o.notify(core.NoticeError, "negotiation-failed", "Connection failed. Please end the call and rejoin.")
}
