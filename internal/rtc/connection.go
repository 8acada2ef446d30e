// Package rtc owns the WebRTC peer connection for one session: answerer-side
// negotiation, remote track accumulation, track toggling without
// renegotiation, and quality sampling.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/hirelink/interviewcore/internal/core"
	"github.com/hirelink/interviewcore/internal/domain"
	"github.com/hirelink/interviewcore/internal/media"
)

const (
	defaultGatherTimeout = 4 * time.Second
	gatherPollInterval   = 100 * time.Millisecond
)

// Conn implements core.PeerLink over pion.
type Conn struct {
	pc     *webrtc.PeerConnection
	local  *media.Stream
	remote *media.RemoteStream

	gatherTimeout time.Duration

	mu          sync.Mutex
	closed      bool
	remoteSet   bool
	connectedOK bool
	pending     []webrtc.ICECandidateInit
	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender

	cancel      context.CancelFunc
	unsubscribe func()
	monitor     *QualityMonitor

	onLocalSignal func(domain.SignalEnvelope)
	onRemote      func(*media.RemoteStream)
	onConnected   func()
	onQuality     func(domain.QualityReport)
	onFailed      func(error)
}

// NewFactory returns a session-scoped peer factory. The codec selector must
// be the one that produced the local tracks so the media engine negotiates
// matching codecs.
func NewFactory(selector *mediadevices.CodecSelector, gatherTimeout time.Duration) core.PeerFactory {
	return func(localStream *media.Stream, iceServers []webrtc.ICEServer) (core.PeerLink, error) {
		return New(localStream, iceServers, selector, gatherTimeout)
	}
}

func New(localStream *media.Stream, iceServers []webrtc.ICEServer, selector *mediadevices.CodecSelector, gatherTimeout time.Duration) (*Conn, error) {
	if gatherTimeout <= 0 {
		gatherTimeout = defaultGatherTimeout
	}

	engine := &webrtc.MediaEngine{}
	if selector != nil {
		selector.Populate(engine)
	} else if err := engine.RegisterDefaultCodecs(); err != nil {
		return nil, domain.NegotiationError("register codecs", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(engine, registry); err != nil {
		return nil, domain.NegotiationError("register interceptors", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(engine),
		webrtc.WithInterceptorRegistry(registry),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, domain.NegotiationError("new peer connection", err)
	}

	c := &Conn{
		pc:            pc,
		local:         localStream,
		remote:        media.NewRemoteStream(),
		gatherTimeout: gatherTimeout,
	}
	if err := c.attachLocalTracks(); err != nil {
		_ = pc.Close()
		return nil, err
	}
	return c, nil
}

// DefaultICEServers is the fallback STUN configuration.
func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}

func (c *Conn) attachLocalTracks() error {
	if c.local == nil {
		return nil
	}
	if track := c.local.VideoTrack(); track != nil {
		tr, err := c.pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendrecv,
		})
		if err != nil {
			return domain.NegotiationError("add video track", err)
		}
		c.videoSender = tr.Sender()
	}
	if track := c.local.AudioTrack(); track != nil {
		tr, err := c.pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendrecv,
		})
		if err != nil {
			return domain.NegotiationError("add audio track", err)
		}
		c.audioSender = tr.Sender()
	}
	return nil
}

// Start wires the pion callbacks and binds the connection lifetime to ctx.
func (c *Conn) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		env, err := candidateEnvelope(cand.ToJSON())
		if err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("marshal local candidate")
			return
		}
		c.emitLocalSignal(env)
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		if c.remote.AddTrack(track) {
			if fn := c.onRemote; fn != nil {
				fn(c.remote)
			}
		}
	})

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("ice_state", s.String()).Msg("ICE state")
		switch s {
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			c.markConnected()
		case webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateFailed:
			if fn := c.onFailed; fn != nil {
				fn(errors.New("ice " + s.String()))
			}
			cancel()
		}
	})

	if c.local != nil {
		unsub := c.local.Subscribe(c.applyTrackChange)
		c.mu.Lock()
		c.unsubscribe = unsub
		c.mu.Unlock()
	}

	c.monitor = NewQualityMonitor(c.pc, 0)
	go c.monitor.Run(ctx, func(r domain.QualityReport) {
		if fn := c.onQuality; fn != nil {
			fn(r)
		}
	})

	return nil
}

func (c *Conn) markConnected() {
	c.mu.Lock()
	already := c.connectedOK
	c.connectedOK = true
	c.mu.Unlock()
	if !already {
		if fn := c.onConnected; fn != nil {
			fn()
		}
	}
}

// HandleSignal applies one inbound envelope. Offers produce an answer; ICE
// candidates arriving before the remote description are buffered.
func (c *Conn) HandleSignal(env domain.SignalEnvelope) error {
	if c.IsClosed() {
		return domain.NegotiationError("handle signal", domain.ErrSessionClosed)
	}

	switch env.Type {
	case domain.SignalOffer:
		return c.applyOffer(env)
	case domain.SignalAnswer:
		return c.applyAnswer(env)
	case domain.SignalCandidate:
		return c.addCandidate(env)
	default:
		return domain.NegotiationError("handle signal", errors.New("unknown signal type "+string(env.Type)))
	}
}

func (c *Conn) applyOffer(env domain.SignalEnvelope) error {
	var sdp domain.SDPPayload
	if err := json.Unmarshal(env.Payload, &sdp); err != nil {
		return domain.NegotiationError("decode offer", err)
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp.SDP}
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return domain.NegotiationError("set remote description", err)
	}
	c.flushPending()

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return domain.NegotiationError("create answer", err)
	}

	local, err := c.settleLocalDescription(answer)
	if err != nil {
		return err
	}

	out, err := sdpEnvelope(domain.SignalAnswer, local)
	if err != nil {
		return domain.NegotiationError("encode answer", err)
	}
	c.emitLocalSignal(out)
	return nil
}

// settleLocalDescription sets the local description and waits for either ICE
// gathering completion or the bounded timeout, whichever fires first. The
// completion event is unreliable in some environments; the timeout keeps
// negotiation latency bounded.
func (c *Conn) settleLocalDescription(desc webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	gathered := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(desc); err != nil {
		return nil, domain.NegotiationError("set local description", err)
	}

	res := waitForGathering(context.Background(), gathered, gatherPollInterval, c.gatherTimeout)
	log.Info().
		Str("module", "rtc").
		Str("resolved_by", string(res.ResolvedBy)).
		Msg("ICE gathering settled")

	local := c.pc.LocalDescription()
	if local == nil {
		return nil, domain.NegotiationError("local description", errors.New("missing after gathering"))
	}
	return local, nil
}

func (c *Conn) applyAnswer(env domain.SignalEnvelope) error {
	var sdp domain.SDPPayload
	if err := json.Unmarshal(env.Payload, &sdp); err != nil {
		return domain.NegotiationError("decode answer", err)
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp.SDP}
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return domain.NegotiationError("set remote description", err)
	}
	c.flushPending()
	return nil
}

func (c *Conn) addCandidate(env domain.SignalEnvelope) error {
	var p domain.CandidatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return domain.NegotiationError("decode candidate", err)
	}
	init := webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}

	c.mu.Lock()
	if !c.remoteSet {
		c.pending = append(c.pending, init)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.pc.AddICECandidate(init); err != nil {
		return domain.NegotiationError("add candidate", err)
	}
	return nil
}

// flushPending applies candidates buffered before the remote description.
func (c *Conn) flushPending() {
	c.mu.Lock()
	c.remoteSet = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, init := range pending {
		if err := c.pc.AddICECandidate(init); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("buffered candidate rejected")
		}
	}
}

// applyTrackChange reacts to local mute/unmute and camera swaps by flipping
// the outgoing sender track. The negotiated session is preserved; no
// renegotiation happens here.
func (c *Conn) applyTrackChange(ch media.TrackChange) {
	c.mu.Lock()
	var sender *webrtc.RTPSender
	switch ch.Kind {
	case webrtc.RTPCodecTypeAudio:
		sender = c.audioSender
	case webrtc.RTPCodecTypeVideo:
		sender = c.videoSender
	}
	closed := c.closed
	c.mu.Unlock()

	if sender == nil || closed {
		return
	}

	var err error
	if !ch.Enabled || ch.Track == nil {
		err = sender.ReplaceTrack(nil)
	} else {
		err = sender.ReplaceTrack(ch.Track)
	}
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("kind", ch.Kind.String()).Msg("replace track")
	}
}

func (c *Conn) emitLocalSignal(env domain.SignalEnvelope) {
	if fn := c.onLocalSignal; fn != nil {
		fn(env)
	}
}

func (c *Conn) OnLocalSignal(fn func(domain.SignalEnvelope))  { c.onLocalSignal = fn }
func (c *Conn) OnRemoteStream(fn func(*media.RemoteStream))   { c.onRemote = fn }
func (c *Conn) OnConnected(fn func())                         { c.onConnected = fn }
func (c *Conn) OnQualityUpdate(fn func(domain.QualityReport)) { c.onQuality = fn }
func (c *Conn) OnConnectionFailed(fn func(error))             { c.onFailed = fn }

func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close tears the connection down. Idempotent and safe concurrently with a
// still-in-flight negotiation.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	unsub := c.unsubscribe
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Msg("peer connection closed")
	}
}

func sdpEnvelope(t domain.SignalType, desc *webrtc.SessionDescription) (domain.SignalEnvelope, error) {
	payload, err := json.Marshal(domain.SDPPayload{Type: desc.Type.String(), SDP: desc.SDP})
	if err != nil {
		return domain.SignalEnvelope{}, err
	}
	return domain.SignalEnvelope{Type: t, Payload: payload}, nil
}

func candidateEnvelope(init webrtc.ICECandidateInit) (domain.SignalEnvelope, error) {
	payload, err := json.Marshal(domain.CandidatePayload{
		Candidate:     init.Candidate,
		SDPMid:        init.SDPMid,
		SDPMLineIndex: init.SDPMLineIndex,
	})
	if err != nil {
		return domain.SignalEnvelope{}, err
	}
	return domain.SignalEnvelope{Type: domain.SignalCandidate, Payload: payload}, nil
}
