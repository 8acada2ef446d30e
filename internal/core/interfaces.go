// Package core defines the ports between the session orchestrator and its
// adapters. Adapters own their transport resources and must Close() them;
// every implementation is session-scoped and constructed fresh per interview.
package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/hirelink/interviewcore/internal/domain"
	"github.com/hirelink/interviewcore/internal/media"
)

// JoinAck is the room join acknowledgement. ExistingParticipants lets the
// orchestrator mark peer presence optimistically before any offer arrives.
type JoinAck struct {
	ExistingParticipants []domain.Participant
}

// SignalChannel is the persistent room-scoped message bus used by the
// human-to-human variant.
type SignalChannel interface {
	Connect(ctx context.Context, token string) error
	// LocalID is the participant identity resolved during Connect; inbound
	// envelopes carrying it are self-echoes.
	LocalID() domain.ParticipantID
	Join(roomID domain.RoomID, role string) (JoinAck, error)
	SendSignal(roomID domain.RoomID, env domain.SignalEnvelope) error
	// Reconnect re-dials after an outage. Never called automatically.
	Reconnect(ctx context.Context, token string) error
	Leave(roomID domain.RoomID) error
	Close()
}

// RoomHandler receives channel events. The orchestrator implements it;
// registration is per-session so handlers cannot accumulate across sessions.
type RoomHandler interface {
	OnParticipantJoined(p domain.Participant)
	// OnParticipantLeft is a graceful leave, OnPeerDisconnected an abrupt
	// one. Both tear down the peer connection but never local media.
	OnParticipantLeft(id domain.ParticipantID)
	OnPeerDisconnected(id domain.ParticipantID)
	OnSignal(env domain.SignalEnvelope)
	OnChatMessage(msg domain.ChatMessage)
	OnRecordingStateChanged(active bool)
	OnInterviewEnded(reason string)
	OnChannelDown(err error)
	OnChannelRestored()
}

// ChannelFactory constructs the signaling client bound to a session's
// handler. The orchestrator is the handler, so construction is deferred
// until it exists.
type ChannelFactory func(handler RoomHandler) SignalChannel

// PeerLink owns exactly one WebRTC connection. The orchestrator creates at
// most one per session, and only after the first inbound offer.
type PeerLink interface {
	Start(ctx context.Context) error
	// HandleSignal applies an inbound envelope: an offer produces an answer
	// (emitted through OnLocalSignal), candidates are buffered until the
	// remote description is set.
	HandleSignal(env domain.SignalEnvelope) error
	Close()
	IsClosed() bool

	OnLocalSignal(func(env domain.SignalEnvelope))
	OnRemoteStream(func(stream *media.RemoteStream))
	OnConnected(func())
	OnQualityUpdate(func(report domain.QualityReport))
	OnConnectionFailed(func(err error))
}

// PeerFactory constructs a session-scoped PeerLink. Avatar sessions pass the
// ICE servers returned by the provider; human sessions use the configured
// ones.
type PeerFactory func(localStream *media.Stream, iceServers []webrtc.ICEServer) (PeerLink, error)

// MediaAcquirer owns local camera+microphone acquisition and track toggling.
type MediaAcquirer interface {
	Acquire(ctx context.Context, sel domain.MediaDeviceSelection) (*media.Stream, error)
	ToggleAudio(enabled bool) error
	ToggleVideo(enabled bool) error
	SwitchCamera(deviceID string) error
	Release()
}

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// Notice is a user-facing toast/alert payload. ID is stable per episode so
// the embedding layer can dedupe.
type Notice struct {
	Level NoticeLevel `json:"level"`
	ID    string      `json:"id"`
	Text  string      `json:"text"`
}

// SessionObserver is the view-layer port. Rendering is out of scope; the
// core only emits payloads.
type SessionObserver interface {
	OnStateChanged(state domain.ConnectionState)
	OnLocalStream(stream *media.Stream)
	OnRemoteStream(stream *media.RemoteStream)
	OnRemoteStreamCleared()
	OnQuality(report domain.QualityReport)
	OnNotice(n Notice)
	OnChatMessage(msg domain.ChatMessage)
	OnRecordingStateChanged(active bool)
	OnCaption(text string)
}
