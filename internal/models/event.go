package models

const (
	EventTunnelStatus  = "tunnel.status"
	EventTunnelDeleted = "tunnel.deleted"
	EventNodeStatus    = "node.status"
)

// Event is pushed to websocket subscribers
type Event struct {
	Type     string      `json:"type"`
	TunnelID string      `json:"tunnelId,omitempty"`
	Payload  interface{} `json:"payload"`
}
