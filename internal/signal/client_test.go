package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirelink/interviewcore/internal/core"
	"github.com/hirelink/interviewcore/internal/domain"
)

type recordingHandler struct {
	mu            sync.Mutex
	joined        []domain.Participant
	left          []domain.ParticipantID
	disconnected  []domain.ParticipantID
	signals       []domain.SignalEnvelope
	chats         []domain.ChatMessage
	recording     []bool
	endedReasons  []string
	channelDowns  int
	channelUps    int
}

func (h *recordingHandler) OnParticipantJoined(p domain.Participant) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joined = append(h.joined, p)
}

func (h *recordingHandler) OnParticipantLeft(id domain.ParticipantID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.left = append(h.left, id)
}

func (h *recordingHandler) OnPeerDisconnected(id domain.ParticipantID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = append(h.disconnected, id)
}

func (h *recordingHandler) OnSignal(env domain.SignalEnvelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signals = append(h.signals, env)
}

func (h *recordingHandler) OnChatMessage(msg domain.ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chats = append(h.chats, msg)
}

func (h *recordingHandler) OnRecordingStateChanged(active bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recording = append(h.recording, active)
}

func (h *recordingHandler) OnInterviewEnded(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.endedReasons = append(h.endedReasons, reason)
}

func (h *recordingHandler) OnChannelDown(error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channelDowns++
}

func (h *recordingHandler) OnChannelRestored() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channelUps++
}

func (h *recordingHandler) signalCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.signals)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// testServer upgrades one connection, sends the welcome frame and hands the
// socket to fn.
func testServer(t *testing.T, fn func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(wireMessage{Type: msgWelcome, ParticipantID: "cand-1"}))
		fn(conn)
	}))
}

// hold keeps the server side open until the client hangs up.
func hold(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestConnectResolvesLocalIdentity(t *testing.T) {
	srv := testServer(t, hold)
	defer srv.Close()

	h := &recordingHandler{}
	c := NewClient(wsURL(srv), h)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background(), "tok-1"))
	assert.Equal(t, domain.ParticipantID("cand-1"), c.LocalID())
}

func TestJoinReturnsExistingParticipants(t *testing.T) {
	srv := testServer(t, func(conn *websocket.Conn) {
		var msg wireMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, msgJoin, msg.Type)
		assert.Equal(t, domain.RoomID("room-1"), msg.RoomID)
		assert.Equal(t, domain.RoleCandidate, msg.Role)

		require.NoError(t, conn.WriteJSON(wireMessage{
			Type:         msgJoined,
			Participants: []domain.Participant{{ID: "rec-1", Role: "recruiter"}},
		}))
		hold(conn)
	})
	defer srv.Close()

	c := NewClient(wsURL(srv), &recordingHandler{})
	defer c.Close()
	require.NoError(t, c.Connect(context.Background(), "tok-1"))

	ack, err := c.Join("room-1", domain.RoleCandidate)
	require.NoError(t, err)
	require.Len(t, ack.ExistingParticipants, 1)
	assert.Equal(t, domain.ParticipantID("rec-1"), ack.ExistingParticipants[0].ID)
}

func TestInboundEventsDispatchToHandler(t *testing.T) {
	payload, _ := json.Marshal(domain.SDPPayload{Type: "offer", SDP: "v=0"})
	srv := testServer(t, func(conn *websocket.Conn) {
		frames := []wireMessage{
			{Type: msgUserJoined, Participant: &domain.Participant{ID: "rec-1", Role: "recruiter"}},
			{Type: msgSignal, Signal: &domain.SignalEnvelope{Type: domain.SignalOffer, From: "rec-1", Payload: payload}},
			{Type: msgChat, Chat: &domain.ChatMessage{From: "rec-1", Body: "hello"}},
			{Type: msgRecording, Recording: true},
			{Type: msgPeerDisconnected, ParticipantID: "rec-1"},
			{Type: msgEnded, Reason: "recruiter ended"},
		}
		for _, f := range frames {
			require.NoError(t, conn.WriteJSON(f))
		}
		hold(conn)
	})
	defer srv.Close()

	h := &recordingHandler{}
	c := NewClient(wsURL(srv), h)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background(), "tok-1"))

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.endedReasons) == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.joined, 1)
	assert.Equal(t, domain.ParticipantID("rec-1"), h.joined[0].ID)
	require.Len(t, h.signals, 1)
	assert.Equal(t, domain.SignalOffer, h.signals[0].Type)
	require.Len(t, h.chats, 1)
	assert.Equal(t, "hello", h.chats[0].Body)
	assert.Equal(t, []bool{true}, h.recording)
	assert.Equal(t, []domain.ParticipantID{"rec-1"}, h.disconnected)
	assert.Equal(t, []string{"recruiter ended"}, h.endedReasons)
}

func TestSendSignalFillsFrom(t *testing.T) {
	got := make(chan wireMessage, 1)
	srv := testServer(t, func(conn *websocket.Conn) {
		var msg wireMessage
		require.NoError(t, conn.ReadJSON(&msg))
		got <- msg
		hold(conn)
	})
	defer srv.Close()

	c := NewClient(wsURL(srv), &recordingHandler{})
	defer c.Close()
	require.NoError(t, c.Connect(context.Background(), "tok-1"))

	err := c.SendSignal("room-1", domain.SignalEnvelope{Type: domain.SignalAnswer})
	require.NoError(t, err)

	select {
	case msg := <-got:
		require.NotNil(t, msg.Signal)
		assert.Equal(t, domain.ParticipantID("cand-1"), msg.Signal.From)
	case <-time.After(2 * time.Second):
		t.Fatal("signal never reached server")
	}
}

func TestAbruptCloseReportsChannelDown(t *testing.T) {
	srv := testServer(t, func(conn *websocket.Conn) {
		_ = conn.Close()
	})
	defer srv.Close()

	h := &recordingHandler{}
	c := NewClient(wsURL(srv), h)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background(), "tok-1"))

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.channelDowns == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReconnectIsNotReportedAsOutage(t *testing.T) {
	srv := testServer(t, hold)
	defer srv.Close()

	h := &recordingHandler{}
	c := NewClient(wsURL(srv), h)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background(), "tok-1"))

	require.NoError(t, c.Reconnect(context.Background(), "tok-1"))

	// The retired connection's reader sees its socket close; that must not
	// surface as a channel loss.
	time.Sleep(100 * time.Millisecond)
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, 0, h.channelDowns)
	assert.Equal(t, 1, h.channelUps)
}

func TestReconnectDeliversAllSubsequentSignals(t *testing.T) {
	var mu sync.Mutex
	conns := 0
	received := 0
	srv := testServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		conns++
		nth := conns
		mu.Unlock()
		for {
			var msg wireMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if nth == 2 && msg.Type == msgSignal {
				mu.Lock()
				received++
				mu.Unlock()
			}
		}
	})
	defer srv.Close()

	c := NewClient(wsURL(srv), &recordingHandler{})
	defer c.Close()
	require.NoError(t, c.Connect(context.Background(), "tok-1"))
	require.NoError(t, c.Reconnect(context.Background(), "tok-1"))

	// Every envelope queued after the reconnect must land on the replacement
	// socket; a leftover writer on the dead one would drop frames silently.
	const n = 50
	for i := 0; i < n; i++ {
		for {
			err := c.SendSignal("room-1", domain.SignalEnvelope{Type: domain.SignalCandidate})
			if err == nil {
				break
			}
			require.ErrorIs(t, err, ErrBackpressure)
			time.Sleep(time.Millisecond)
		}
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseIdempotent(t *testing.T) {
	srv := testServer(t, hold)
	defer srv.Close()

	c := NewClient(wsURL(srv), &recordingHandler{})
	require.NoError(t, c.Connect(context.Background(), "tok-1"))

	c.Close()
	assert.NotPanics(t, c.Close)
}

var _ core.SignalChannel = (*Client)(nil)
