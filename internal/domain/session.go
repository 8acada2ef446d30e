// Package domain contains entities without logic, just meta-data
// and the invariants the orchestrator enforces over them.
package domain

import "github.com/google/uuid"

type (
	RoomID        string
	ParticipantID string
)

const RoleCandidate = "candidate"

// ConnectionState is the lifecycle of an interview session. Only the
// orchestrator may transition it; every transition goes through CanTransition.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateAwaitingPeer
	StateNegotiating
	StateConnected
	StateDisconnected
	StateEnded
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPeer:
		return "awaiting_peer"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// transitions encodes the legal edges. Disconnected may return to
// AwaitingPeer (remote left, local stays ready); Ended and Failed are
// terminal until explicit cleanup and a fresh session.
var transitions = map[ConnectionState][]ConnectionState{
	StateIdle:         {StateAwaitingPeer, StateEnded},
	StateAwaitingPeer: {StateNegotiating, StateEnded},
	StateNegotiating:  {StateConnected, StateDisconnected, StateFailed, StateEnded},
	StateConnected:    {StateDisconnected, StateFailed, StateEnded},
	StateDisconnected: {StateAwaitingPeer, StateEnded},
	StateEnded:        {},
	StateFailed:       {},
}

func (s ConnectionState) CanTransition(to ConnectionState) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s ConnectionState) Terminal() bool {
	return s == StateEnded || s == StateFailed
}

// Session is the interview session record owned by the orchestrator.
// Created on room entry, destroyed on leave/end.
type Session struct {
	ID     string
	Role   string
	RoomID RoomID
	State  ConnectionState
}

func NewSession(roomID RoomID) *Session {
	return &Session{
		ID:     uuid.NewString(),
		Role:   RoleCandidate,
		RoomID: roomID,
		State:  StateIdle,
	}
}
