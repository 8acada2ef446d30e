package domain

import (
	"encoding/json"
	"time"
)

type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
)

// SignalEnvelope carries one negotiation payload through the relay. The relay
// broadcasts to the whole room rather than unicasting, so From must be
// compared against the local participant id to discard self-echoes before any
// other processing. Envelopes are ephemeral and never persisted.
type SignalEnvelope struct {
	Type    SignalType      `json:"type"`
	From    ParticipantID   `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// SDPPayload is the offer/answer body inside a SignalEnvelope.
type SDPPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// CandidatePayload mirrors webrtc.ICECandidateInit on the wire.
type CandidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type Participant struct {
	ID   ParticipantID `json:"id"`
	Role string        `json:"role"`
}

// ChatMessage is consumed from the channel and forwarded to the embedding
// layer verbatim; rendering is not this core's concern.
type ChatMessage struct {
	From   ParticipantID `json:"from"`
	Body   string        `json:"body"`
	SentAt time.Time     `json:"sent_at"`
}
