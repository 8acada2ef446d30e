package avatar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirelink/interviewcore/internal/core"
	"github.com/hirelink/interviewcore/internal/domain"
	"github.com/hirelink/interviewcore/internal/media"
	"github.com/hirelink/interviewcore/internal/poll"
)

// fakePeer answers any offer immediately through the local-signal callback.
type fakePeer struct {
	mu        sync.Mutex
	onLocal   func(domain.SignalEnvelope)
	handled   []domain.SignalEnvelope
	iceUsed   []webrtc.ICEServer
	closed    bool
	startErr  error
	handleErr error
}

func (p *fakePeer) Start(ctx context.Context) error { return p.startErr }

func (p *fakePeer) HandleSignal(env domain.SignalEnvelope) error {
	p.mu.Lock()
	p.handled = append(p.handled, env)
	onLocal := p.onLocal
	p.mu.Unlock()
	if p.handleErr != nil {
		return p.handleErr
	}
	if env.Type == domain.SignalOffer && onLocal != nil {
		payload, _ := json.Marshal(domain.SDPPayload{Type: "answer", SDP: "v=0 answer"})
		onLocal(domain.SignalEnvelope{Type: domain.SignalAnswer, Payload: payload})
	}
	return nil
}

func (p *fakePeer) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *fakePeer) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) OnLocalSignal(fn func(domain.SignalEnvelope)) {
	p.mu.Lock()
	p.onLocal = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnRemoteStream(func(*media.RemoteStream))   {}
func (p *fakePeer) OnConnected(func())                         {}
func (p *fakePeer) OnQualityUpdate(func(domain.QualityReport)) {}
func (p *fakePeer) OnConnectionFailed(func(error))             {}

var _ core.PeerLink = (*fakePeer)(nil)

type fakeLevel struct {
	mu    sync.Mutex
	value float64
}

func (f *fakeLevel) Level() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *fakeLevel) set(v float64) {
	f.mu.Lock()
	f.value = v
	f.mu.Unlock()
}

// providerServer is a minimal avatar REST backend for adapter tests.
func providerServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if r.Method == http.MethodPost && r.URL.Path == "/streams" {
			json.NewEncoder(w).Encode(Credentials{
				StreamID:  "st-1",
				SessionID: "se-1",
				Offer:     domain.SDPPayload{Type: "offer", SDP: "v=0 offer"},
				ICE:       []iceServerPayload{{URLs: []string{"stun:stun.example.com"}}},
			})
			return
		}
		w.Write([]byte("{}"))
	}))
	t.Cleanup(srv.Close)
	return srv, &paths
}

func newTestAdapter(t *testing.T, peer *fakePeer) (*Adapter, *[]string, *[]string) {
	t.Helper()
	srv, paths := providerServer(t)
	var captions []string
	factory := func(local *media.Stream, ice []webrtc.ICEServer) (core.PeerLink, error) {
		peer.iceUsed = ice
		return peer, nil
	}
	a := NewAdapter(NewClient(srv.URL, "key-1"), factory, func(text string) {
		captions = append(captions, text)
	})
	return a, paths, &captions
}

func TestAdapterConnectAnswersOffer(t *testing.T) {
	peer := &fakePeer{}
	a, paths, _ := newTestAdapter(t, peer)

	_, err := a.Connect(context.Background(), nil)
	require.NoError(t, err)

	// The provider's ICE servers, not the configured ones, reach the peer.
	require.Len(t, peer.iceUsed, 1)
	assert.Equal(t, []string{"stun:stun.example.com"}, peer.iceUsed[0].URLs)

	require.Len(t, peer.handled, 1)
	assert.Equal(t, domain.SignalOffer, peer.handled[0].Type)

	assert.Equal(t, []string{"POST /streams", "POST /streams/st-1/sdp"}, *paths)
}

func TestAdapterConnectClosesPeerOnFailure(t *testing.T) {
	peer := &fakePeer{handleErr: errors.New("bad sdp")}
	a, _, _ := newTestAdapter(t, peer)

	_, err := a.Connect(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, peer.IsClosed())
}

func TestAdapterSpeakResolvesOnSpeechOnset(t *testing.T) {
	peer := &fakePeer{}
	a, paths, captions := newTestAdapter(t, peer)
	a.pollInterval = time.Millisecond

	_, err := a.Connect(context.Background(), nil)
	require.NoError(t, err)

	level := &fakeLevel{}
	a.meter = level
	go func() {
		time.Sleep(5 * time.Millisecond)
		level.set(0.3)
	}()

	utt, err := a.Speak(context.Background(), "Tell me about yourself")
	require.NoError(t, err)
	assert.Equal(t, "Tell me about yourself", utt.Text)
	assert.Equal(t, 2*time.Second, utt.EstimatedDuration)
	assert.Equal(t, []string{"Tell me about yourself"}, *captions)
	assert.Contains(t, *paths, "POST /streams/st-1/speak")
}

func TestAdapterSpeakTimesOutWhenAudioNeverArrives(t *testing.T) {
	peer := &fakePeer{}
	a, _, captions := newTestAdapter(t, peer)
	a.pollInterval = time.Millisecond
	a.pollMaxTicks = 3

	_, err := a.Connect(context.Background(), nil)
	require.NoError(t, err)
	a.meter = &fakeLevel{}

	// The caption still fires: the timeout is a fail-safe, not a failure.
	_, err = a.Speak(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, *captions, 1)
}

func TestAdapterSpeakRejectsOverlappingTurns(t *testing.T) {
	peer := &fakePeer{}
	a, _, _ := newTestAdapter(t, peer)
	a.pollInterval = time.Millisecond
	a.pollMaxTicks = 1

	_, err := a.Connect(context.Background(), nil)
	require.NoError(t, err)
	level := &fakeLevel{value: 0.5}
	a.meter = level

	clock := time.Now()
	a.now = func() time.Time { return clock }

	_, err = a.Speak(context.Background(), "first question")
	require.NoError(t, err)

	// Estimated duration has not elapsed yet.
	_, err = a.Speak(context.Background(), "second question")
	assert.ErrorIs(t, err, domain.ErrTurnInProgress)

	// Once it has, the next turn is accepted.
	clock = clock.Add(domain.EstimateSpeechDuration("first question") + time.Millisecond)
	_, err = a.Speak(context.Background(), "second question")
	assert.NoError(t, err)
}

func TestAdapterSpeakBeforeConnect(t *testing.T) {
	peer := &fakePeer{}
	a, _, _ := newTestAdapter(t, peer)

	_, err := a.Speak(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, domain.CategoryNegotiation, domain.CategoryOf(err))
}

func TestAdapterCloseIsIdempotent(t *testing.T) {
	peer := &fakePeer{}
	a, paths, _ := newTestAdapter(t, peer)

	_, err := a.Connect(context.Background(), nil)
	require.NoError(t, err)

	a.Close()
	a.Close()

	assert.True(t, peer.IsClosed())
	deletes := 0
	for _, p := range *paths {
		if p == "DELETE /streams/st-1" {
			deletes++
		}
	}
	assert.Equal(t, 1, deletes)

	_, err = a.Speak(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestAwaitSpeechOnsetWithoutMeterWaitsFullWindow(t *testing.T) {
	a := NewAdapter(nil, nil, nil)
	a.pollInterval = time.Millisecond
	a.pollMaxTicks = 3

	// No audio track yet: the fail-safe window is still honored in full.
	res := a.awaitSpeechOnset(context.Background())
	assert.Equal(t, poll.ByTimeout, res.ResolvedBy)
	assert.Equal(t, 3, res.Ticks)
}

func TestAwaitSpeechOnsetSeesLateMeter(t *testing.T) {
	a := NewAdapter(nil, nil, nil)
	a.pollInterval = time.Millisecond

	// The meter materializes mid-wait, once the avatar's track arrives.
	go func() {
		time.Sleep(5 * time.Millisecond)
		a.mu.Lock()
		a.meter = &fakeLevel{value: 0.5}
		a.mu.Unlock()
	}()

	res := a.awaitSpeechOnset(context.Background())
	assert.Equal(t, poll.ByPredicate, res.ResolvedBy)
}
