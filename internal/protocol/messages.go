package protocol

import "time"

// StateChanged is broadcast whenever the kiosk switches between idle and interaction.
type StateChanged struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// InteractionCompleted summarizes one button-triggered fortune.
type InteractionCompleted struct {
	InteractionID string    `json:"interaction_id"`
	Topic         string    `json:"topic"`
	Text          string    `json:"text,omitempty"`
	Spoken        bool      `json:"spoken"`
	Printed       bool      `json:"printed"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	DurationMS    int64     `json:"duration_ms"`
}

// ButtonPress lets a remote node trigger an interaction.
type ButtonPress struct {
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Capability is one feature a kiosk node advertises.
type Capability struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NodeHeartbeat is published periodically by every kiosk sharing the bus.
type NodeHeartbeat struct {
	NodeID       string       `json:"node_id"`
	State        string       `json:"state"`
	Interactions int64        `json:"interactions_completed"`
	Capabilities []Capability `json:"capabilities,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

const (
	SubjectStateChanged         = "bird.state.changed"
	SubjectInteractionCompleted = "bird.interaction.completed"
	SubjectButtonPress          = "bird.button.press"
	SubjectNodeHeartbeatPrefix  = "bird.node.heartbeat"

	// StreamInteractions retains completed interactions when JetStream is available.
	StreamInteractions = "BIRD_INTERACTIONS"
)
