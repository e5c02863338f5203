package models

import "encoding/json"

// SignalType represents the kind of a signaling envelope
type SignalType string

// Client to server.
const (
	SignalTypeJoinRoom       SignalType = "join-room"
	SignalTypeReadyToConnect SignalType = "ready-to-connect"
	SignalTypeSignal         SignalType = "signal"
	SignalTypeLeaveRoom      SignalType = "leave-room"
	SignalTypeChatMessage    SignalType = "chat-message"
)

// Server to client. SignalTypeSignal and SignalTypeChatMessage travel in both directions.
const (
	SignalTypeConnected               SignalType = "connected"
	SignalTypeExistingUsers           SignalType = "existing-users"
	SignalTypeParticipantJoined       SignalType = "participant-joined"
	SignalTypePeerReady               SignalType = "peer-ready"
	SignalTypeParticipantDisconnected SignalType = "participant-disconnected"
)

// SignalMessage is the JSON envelope exchanged over a signaling session.
//
// Inbound, From is always overwritten with the sender's participant ID; clients
// cannot spoof it. Payload is never parsed by the server.
type SignalMessage struct {
	Type          SignalType      `json:"type"`
	RoomID        string          `json:"roomId,omitempty"`
	From          string          `json:"from,omitempty"`
	To            string          `json:"to,omitempty"`
	ParticipantID string          `json:"participantId,omitempty"`
	Participants  []string        `json:"participants,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON always writes the participants list of an existing-users
// message, as an empty array when the room was empty.
func (m SignalMessage) MarshalJSON() ([]byte, error) {
	type wire SignalMessage
	if m.Type != SignalTypeExistingUsers {
		return json.Marshal(wire(m))
	}

	roster := m.Participants
	if roster == nil {
		roster = []string{}
	}
	return json.Marshal(struct {
		wire
		Participants []string `json:"participants"`
	}{wire: wire(m), Participants: roster})
}
