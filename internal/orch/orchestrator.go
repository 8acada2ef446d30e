// Package orch composes media, signaling and peer transport into the
// interview session flow. All connection-state transitions happen here and
// nowhere else.
package orch

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/hirelink/interviewcore/internal/core"
	"github.com/hirelink/interviewcore/internal/domain"
	"github.com/hirelink/interviewcore/internal/media"
)

// Deps are the session-scoped collaborators. Everything is constructed fresh
// per interview so handlers cannot leak across sessions.
type Deps struct {
	Channel    core.ChannelFactory
	Media      core.MediaAcquirer
	Peers      core.PeerFactory
	Observer   core.SessionObserver
	ICEServers []webrtc.ICEServer
	Selection  domain.MediaDeviceSelection
}

// Orchestrator is the human-to-human session state machine. It is the room
// handler for the signaling channel and the sole owner of the peer link.
type Orchestrator struct {
	channel    core.SignalChannel
	media      core.MediaAcquirer
	peers      core.PeerFactory
	observer   core.SessionObserver
	iceServers []webrtc.ICEServer
	selection  domain.MediaDeviceSelection

	mu          sync.Mutex
	token       string
	session     *domain.Session
	local       *media.Stream
	peer        core.PeerLink
	peerID      domain.ParticipantID
	peerPresent bool
	lastQuality domain.QualityReport
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc
}

func New(deps Deps) *Orchestrator {
	o := &Orchestrator{
		media:      deps.Media,
		peers:      deps.Peers,
		observer:   deps.Observer,
		iceServers: deps.ICEServers,
		selection:  deps.Selection,
	}
	o.channel = deps.Channel(o)
	return o
}

// Start runs session setup: authenticate, acquire local media before joining
// so the first inbound offer can be answered immediately, then join the room.
// Any failure aborts setup and tears down whatever was already acquired.
func (o *Orchestrator) Start(ctx context.Context, token string, roomID domain.RoomID) error {
	o.mu.Lock()
	if o.session != nil {
		o.mu.Unlock()
		return domain.ErrSessionClosed
	}
	o.session = domain.NewSession(roomID)
	o.token = token
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()

	if err := o.channel.Connect(ctx, token); err != nil {
		o.Close()
		return err
	}
	log.Info().
		Str("module", "orch").
		Str("participant", string(o.channel.LocalID())).
		Msg("channel connected")

	local, err := o.media.Acquire(ctx, o.selection)
	if err != nil {
		o.Close()
		return err
	}
	o.mu.Lock()
	o.local = local
	o.transition(domain.StateAwaitingPeer)
	o.mu.Unlock()
	o.observer.OnLocalStream(local)

	ack, err := o.channel.Join(roomID, domain.RoleCandidate)
	if err != nil {
		o.Close()
		return err
	}
	if len(ack.ExistingParticipants) > 0 {
		// Presence is optimistic: negotiation still waits for their offer.
		o.mu.Lock()
		o.peerPresent = true
		o.mu.Unlock()
		log.Info().
			Str("module", "orch").
			Int("existing", len(ack.ExistingParticipants)).
			Msg("joined room with peer present")
	}
	return nil
}

// Status is the embedding-layer snapshot served over the local HTTP surface.
type Status struct {
	SessionID   string               `json:"session_id"`
	RoomID      domain.RoomID        `json:"room_id"`
	State       string               `json:"state"`
	PeerPresent bool                 `json:"peer_present"`
	Quality     domain.QualityReport `json:"quality"`
	Local       *mediaStatus         `json:"local,omitempty"`
}

type mediaStatus struct {
	AudioEnabled bool `json:"audio_enabled"`
	VideoEnabled bool `json:"video_enabled"`
}

func (o *Orchestrator) Snapshot() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{PeerPresent: o.peerPresent, Quality: o.lastQuality}
	if o.session != nil {
		st.SessionID = o.session.ID
		st.RoomID = o.session.RoomID
		st.State = o.session.State.String()
	} else {
		st.State = domain.StateIdle.String()
	}
	if o.local != nil {
		st.Local = &mediaStatus{
			AudioEnabled: o.local.AudioEnabled(),
			VideoEnabled: o.local.VideoEnabled(),
		}
	}
	return st
}

// transition applies a validated state change. Callers hold o.mu.
func (o *Orchestrator) transition(to domain.ConnectionState) bool {
	if o.session == nil || o.session.State == to {
		return false
	}
	if !o.session.State.CanTransition(to) {
		log.Warn().
			Str("module", "orch").
			Str("from", o.session.State.String()).
			Str("to", to.String()).
			Msg("illegal state transition dropped")
		return false
	}
	log.Info().
		Str("module", "orch").
		Str("from", o.session.State.String()).
		Str("to", to.String()).
		Msg("state")
	o.session.State = to
	o.observer.OnStateChanged(to)
	return true
}

// Close is the single teardown routine, shared by the explicit end-call
// action and process shutdown. Safe to invoke any number of times and
// concurrently with in-flight negotiation.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	peer := o.peer
	o.peer = nil
	o.peerID = ""
	o.peerPresent = false
	var roomID domain.RoomID
	if o.session != nil {
		roomID = o.session.RoomID
		if !o.session.State.Terminal() {
			o.transition(domain.StateEnded)
		}
	}
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()

	if peer != nil {
		peer.Close()
	}
	if roomID != "" {
		if err := o.channel.Leave(roomID); err != nil {
			log.Warn().Err(err).Str("module", "orch").Msg("leave room")
		}
	}
	o.channel.Close()
	o.media.Release()
	log.Info().Str("module", "orch").Msg("session closed")
}

func (o *Orchestrator) notify(level core.NoticeLevel, id, text string) {
	o.observer.OnNotice(core.Notice{Level: level, ID: id, Text: text})
}
