package signal

import (
	"github.com/hirelink/interviewcore/internal/domain"
)

// wireMessage is the generic envelope on the signaling socket. Type selects
// which of the optional fields are meaningful.
type wireMessage struct {
	Type string `json:"type"`

	RoomID        domain.RoomID          `json:"room_id,omitempty"`
	Role          string                 `json:"role,omitempty"`
	ParticipantID domain.ParticipantID   `json:"participant_id,omitempty"`
	Participant   *domain.Participant    `json:"participant,omitempty"`
	Participants  []domain.Participant   `json:"participants,omitempty"`
	Signal        *domain.SignalEnvelope `json:"signal,omitempty"`
	Chat          *domain.ChatMessage    `json:"chat,omitempty"`
	Recording     bool                   `json:"recording,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// Message types, outbound then inbound.
const (
	msgJoin   = "join"
	msgLeave  = "leave"
	msgSignal = "signal"

	msgWelcome          = "welcome"
	msgJoined           = "joined"
	msgUserJoined       = "user-joined"
	msgUserLeft         = "user-left"
	msgPeerDisconnected = "peer-disconnected"
	msgChat             = "chat"
	msgRecording        = "recording"
	msgEnded            = "ended"
)
