package signal

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hirelink/interviewcore/internal/core"
)

func (c *Client) writePump(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case data := <-c.send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

func (c *Client) readPump(conn *websocket.Conn, done <-chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// This connection was retired on purpose.
				return
			default:
			}
			if c.isClosed() {
				return
			}
			log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
			// Abrupt channel loss is reported, never silently retried;
			// reconnecting is the user's call.
			c.handler.OnChannelDown(err)
			return
		}
		c.dispatch(data)
	}
}

// dispatch routes one inbound frame. Envelopes are handled in arrival order
// on this single goroutine.
func (c *Client) dispatch(data []byte) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch msg.Type {
	case msgJoined:
		select {
		case c.joinAck <- core.JoinAck{ExistingParticipants: msg.Participants}:
		default:
		}
	case msgUserJoined:
		if msg.Participant != nil {
			c.handler.OnParticipantJoined(*msg.Participant)
		}
	case msgUserLeft:
		c.handler.OnParticipantLeft(msg.ParticipantID)
	case msgPeerDisconnected:
		c.handler.OnPeerDisconnected(msg.ParticipantID)
	case msgSignal:
		if msg.Signal != nil {
			c.handler.OnSignal(*msg.Signal)
		}
	case msgChat:
		if msg.Chat != nil {
			c.handler.OnChatMessage(*msg.Chat)
		}
	case msgRecording:
		c.handler.OnRecordingStateChanged(msg.Recording)
	case msgEnded:
		c.handler.OnInterviewEnded(msg.Reason)
	default:
		log.Warn().Str("module", "signal").Str("type", msg.Type).Msg("unknown message")
	}
}
