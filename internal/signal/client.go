// Package signal implements the room-scoped signaling channel client used by
// the human-to-human interview variant.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hirelink/interviewcore/internal/core"
	"github.com/hirelink/interviewcore/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const (
	writeWait   = 5 * time.Second
	pingPeriod  = 30 * time.Second
	ackTimeout  = 10 * time.Second
	sendBacklog = 32
)

// Client is a session-scoped signaling channel over a websocket. It is
// constructed fresh per interview; handler registration dies with it.
type Client struct {
	url     string
	handler core.RoomHandler

	mu       sync.RWMutex
	conn     *websocket.Conn
	connDone chan struct{}
	connWG   *sync.WaitGroup
	localID  domain.ParticipantID
	closed   bool

	send    chan []byte
	joinAck chan core.JoinAck
	done    chan struct{}
}

func NewClient(url string, handler core.RoomHandler) *Client {
	return &Client{
		url:     url,
		handler: handler,
		send:    make(chan []byte, sendBacklog),
		joinAck: make(chan core.JoinAck, 1),
		done:    make(chan struct{}),
	}
}

// Connect dials the signaling server, authenticates with the bearer token and
// blocks until the server resolves the local participant identity.
func (c *Client) Connect(ctx context.Context, token string) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return domain.SignalingError("dial", err)
	}

	// The first frame is the welcome carrying our participant id.
	_ = conn.SetReadDeadline(time.Now().Add(ackTimeout))
	var welcome wireMessage
	if err := conn.ReadJSON(&welcome); err != nil {
		_ = conn.Close()
		return domain.SignalingError("welcome", err)
	}
	if welcome.Type != msgWelcome || welcome.ParticipantID == "" {
		_ = conn.Close()
		return domain.SignalingError("welcome", errors.New("unexpected first frame: "+welcome.Type))
	}
	_ = conn.SetReadDeadline(time.Time{})

	// The pumps belong to this connection, not to the client: each dial gets
	// its own done channel so a superseded connection can be retired without
	// tearing down its replacement.
	connDone := make(chan struct{})
	wg := &sync.WaitGroup{}

	c.mu.Lock()
	c.conn = conn
	c.connDone = connDone
	c.connWG = wg
	c.localID = welcome.ParticipantID
	c.mu.Unlock()

	log.Info().Str("module", "signal").Str("participant", string(welcome.ParticipantID)).Msg("channel connected")

	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writePump(conn, connDone)
	}()
	go func() {
		defer wg.Done()
		c.readPump(conn, connDone)
	}()
	return nil
}

func (c *Client) LocalID() domain.ParticipantID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.localID
}

// Join enters the room and waits for the acknowledgement listing any
// participants already present.
func (c *Client) Join(roomID domain.RoomID, role string) (core.JoinAck, error) {
	if err := c.trySend(wireMessage{Type: msgJoin, RoomID: roomID, Role: role}); err != nil {
		return core.JoinAck{}, domain.SignalingError("join", err)
	}
	select {
	case ack := <-c.joinAck:
		return ack, nil
	case <-c.done:
		return core.JoinAck{}, domain.SignalingError("join", domain.ErrSessionClosed)
	case <-time.After(ackTimeout):
		return core.JoinAck{}, domain.SignalingError("join", errors.New("ack timeout"))
	}
}

// SendSignal relays a negotiation envelope to the room. The relay broadcasts,
// so the envelope comes back to us too; receivers filter by From.
func (c *Client) SendSignal(roomID domain.RoomID, env domain.SignalEnvelope) error {
	if env.From == "" {
		env.From = c.LocalID()
	}
	if err := c.trySend(wireMessage{Type: msgSignal, RoomID: roomID, Signal: &env}); err != nil {
		return domain.SignalingError("send signal", err)
	}
	return nil
}

func (c *Client) Leave(roomID domain.RoomID) error {
	if err := c.trySend(wireMessage{Type: msgLeave, RoomID: roomID}); err != nil {
		return domain.SignalingError("leave", err)
	}
	return nil
}

func (c *Client) trySend(msg wireMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.conn == nil {
		return domain.ErrSessionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Reconnect re-dials after a channel loss. Never called automatically; the
// user asks for it. Fires OnChannelRestored on success.
func (c *Client) Reconnect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.SignalingError("reconnect", domain.ErrSessionClosed)
	}
	old, oldDone, oldWG := c.conn, c.connDone, c.connWG
	c.conn, c.connDone, c.connWG = nil, nil, nil
	c.mu.Unlock()

	// Retire the old connection's pumps before dialing: a live writePump on
	// the dead socket would keep claiming frames from the shared send queue,
	// and its readPump would report the deliberate close as an outage.
	if oldDone != nil {
		close(oldDone)
	}
	if old != nil {
		_ = old.Close()
	}
	if oldWG != nil {
		oldWG.Wait()
	}
	if err := c.Connect(ctx, token); err != nil {
		return err
	}
	c.handler.OnChannelRestored()
	return nil
}

// Close tears the channel down. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	conn, connDone := c.conn, c.connDone
	c.conn, c.connDone = nil, nil
	c.mu.Unlock()

	if connDone != nil {
		close(connDone)
	}
	if conn != nil {
		_ = conn.Close()
	}
	log.Info().Str("module", "signal").Msg("channel closed")
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
