package avatar

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hirelink/interviewcore/internal/core"
	"github.com/hirelink/interviewcore/internal/domain"
	"github.com/hirelink/interviewcore/internal/media"
	"github.com/hirelink/interviewcore/internal/poll"
)

const (
	// speechThreshold is the normalized amplitude above which the avatar
	// counts as audibly speaking.
	speechThreshold = 0.05
	onsetInterval   = 50 * time.Millisecond
	onsetMaxTicks   = 100
	answerWait      = 10 * time.Second
)

// Adapter drives the avatar variant: REST-mediated SDP exchange with a
// single remote peer, then caption pacing synchronized to actual audible
// speech. The adapter is always the answerer; there is no glare and no
// self-echo to filter.
type Adapter struct {
	api       *Client
	factory   core.PeerFactory
	onCaption func(text string)
	onRemote  func(stream *media.RemoteStream)

	// Onset polling knobs, overridable in tests.
	pollInterval time.Duration
	pollMaxTicks int
	now          func() time.Time

	mu         sync.Mutex
	peer       core.PeerLink
	creds      *Credentials
	meter      LevelSource
	remote     *media.RemoteStream
	turnActive bool
	turnEndsAt time.Time
	closed     bool
}

func NewAdapter(api *Client, factory core.PeerFactory, onCaption func(string)) *Adapter {
	return &Adapter{
		api:          api,
		factory:      factory,
		onCaption:    onCaption,
		pollInterval: onsetInterval,
		pollMaxTicks: onsetMaxTicks,
		now:          time.Now,
	}
}

// OnRemoteStream registers the observer for the avatar's inbound stream,
// which may land after Connect returns. Must be called before Connect.
func (a *Adapter) OnRemoteStream(fn func(stream *media.RemoteStream)) {
	a.onRemote = fn
}

// Connect fetches the provider offer, answers it through the shared peer
// machinery and submits the local description over REST. Any step failing
// aborts setup; there is no automatic retry.
func (a *Adapter) Connect(ctx context.Context, local *media.Stream) (*media.RemoteStream, error) {
	creds, err := a.api.FetchCredentials(ctx)
	if err != nil {
		return nil, err
	}

	peer, err := a.factory(local, creds.ICEServers())
	if err != nil {
		return nil, domain.NegotiationError("create peer", err)
	}

	answerCh := make(chan domain.SignalEnvelope, 1)
	peer.OnLocalSignal(func(env domain.SignalEnvelope) {
		if env.Type == domain.SignalAnswer {
			select {
			case answerCh <- env:
			default:
			}
		}
		// Candidates are bundled into the answer by the gathering wait;
		// the REST exchange has no trickle path.
	})

	meter := NewLevelMeter()
	peer.OnRemoteStream(func(rs *media.RemoteStream) {
		a.mu.Lock()
		a.remote = rs
		if a.meter == nil {
			if track := rs.AudioTrack(); track != nil {
				a.meter = meter
				meter.Start(ctx, track)
			}
		}
		a.mu.Unlock()
		if a.onRemote != nil {
			a.onRemote(rs)
		}
	})

	if err := peer.Start(ctx); err != nil {
		peer.Close()
		return nil, domain.NegotiationError("start peer", err)
	}

	offerPayload, err := json.Marshal(creds.Offer)
	if err != nil {
		peer.Close()
		return nil, domain.NegotiationError("encode offer", err)
	}
	env := domain.SignalEnvelope{Type: domain.SignalOffer, From: "avatar", Payload: offerPayload}
	if err := peer.HandleSignal(env); err != nil {
		peer.Close()
		return nil, err
	}

	var answer domain.SignalEnvelope
	select {
	case answer = <-answerCh:
	case <-time.After(answerWait):
		peer.Close()
		return nil, domain.NegotiationError("await answer", errors.New("timeout"))
	case <-ctx.Done():
		peer.Close()
		return nil, domain.NegotiationError("await answer", ctx.Err())
	}

	var sdp domain.SDPPayload
	if err := json.Unmarshal(answer.Payload, &sdp); err != nil {
		peer.Close()
		return nil, domain.NegotiationError("decode answer", err)
	}
	if err := a.api.SubmitAnswer(ctx, creds.StreamID, creds.SessionID, sdp); err != nil {
		peer.Close()
		return nil, err
	}

	a.mu.Lock()
	a.peer = peer
	a.creds = creds
	remote := a.remote
	a.mu.Unlock()

	log.Info().Str("module", "avatar").Str("stream", creds.StreamID).Msg("avatar stream connected")
	return remote, nil
}

// Speak requests an utterance and resolves when the avatar is audibly
// speaking (or after the fail-safe timeout), then fires the caption callback.
// A new turn is not accepted until the estimated speech duration has elapsed,
// since the provider sends no completion signal.
func (a *Adapter) Speak(ctx context.Context, text string) (domain.AvatarUtterance, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return domain.AvatarUtterance{}, domain.ErrSessionClosed
	}
	if a.creds == nil {
		a.mu.Unlock()
		return domain.AvatarUtterance{}, domain.NegotiationError("speak", errors.New("not connected"))
	}
	if a.turnActive || a.now().Before(a.turnEndsAt) {
		a.mu.Unlock()
		return domain.AvatarUtterance{}, domain.ErrTurnInProgress
	}
	a.turnActive = true
	creds := a.creds
	a.mu.Unlock()

	utt := domain.NewAvatarUtterance(text)

	if err := a.api.RequestUtterance(ctx, creds.StreamID, creds.SessionID, text); err != nil {
		a.mu.Lock()
		a.turnActive = false
		a.mu.Unlock()
		return domain.AvatarUtterance{}, err
	}

	res := a.awaitSpeechOnset(ctx)
	log.Info().
		Str("module", "avatar").
		Str("resolved_by", string(res.ResolvedBy)).
		Int("ticks", res.Ticks).
		Msg("speech onset")

	if a.onCaption != nil {
		a.onCaption(text)
	}

	a.mu.Lock()
	a.turnActive = false
	a.turnEndsAt = a.now().Add(utt.EstimatedDuration)
	a.mu.Unlock()
	return utt, nil
}

// awaitSpeechOnset polls the inbound audio energy until it crosses the
// threshold, resolving unconditionally after pollMaxTicks as a fail-safe so
// captions are never held back forever. The meter is re-read every tick: when
// the avatar's audio track has not arrived yet, the poll waits the full
// window for it rather than giving up immediately.
func (a *Adapter) awaitSpeechOnset(ctx context.Context) poll.Result {
	return poll.Until(ctx, a.pollInterval, a.pollMaxTicks, func() bool {
		a.mu.Lock()
		meter := a.meter
		a.mu.Unlock()
		return meter != nil && meter.Level() > speechThreshold
	})
}

// Transcribe forwards recorded candidate audio to the recognition endpoint.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return a.api.Transcribe(ctx, audio)
}

// Close releases the provider stream and the peer connection. Idempotent.
func (a *Adapter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	peer := a.peer
	creds := a.creds
	a.peer = nil
	a.mu.Unlock()

	if creds != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.api.CloseStream(ctx, creds.StreamID, creds.SessionID); err != nil {
			log.Warn().Err(err).Str("module", "avatar").Msg("close stream")
		}
	}
	if peer != nil {
		peer.Close()
	}
	log.Info().Str("module", "avatar").Msg("avatar adapter closed")
}
