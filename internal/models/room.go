package models

// Phase is the derived negotiation phase of a participant within one room.
type Phase string

const (
	PhaseUnjoined    Phase = "unjoined"
	PhaseJoined      Phase = "joined"
	PhaseReady       Phase = "ready"
	PhaseNegotiating Phase = "negotiating"
)

// ParticipantInfo describes one member of a room roster.
type ParticipantInfo struct {
	ID    string `json:"id"`
	Phase Phase  `json:"phase"`
}

// RoomInfo is the response body of GET /api/rooms/:roomId
type RoomInfo struct {
	ID           string            `json:"id"`
	Participants []ParticipantInfo `json:"participants"`

	// ClusterCount is the participant count seen by the presence mirror, when enabled.
	ClusterCount *int64 `json:"clusterCount,omitempty"`
}
