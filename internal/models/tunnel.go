package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	CoreXray      = "xray"
	CoreRathole   = "rathole"
	CoreHysteria2 = "hysteria2"
	CoreWireGuard = "wireguard"
)

/**
 * Tunnel record as stored by the panel and returned to the admin UI
 * @property {string} id - UUID assigned on creation
 * @property {string} core - Engine implementing the tunnel (xray, rathole, hysteria2, wireguard or extension)
 * @property {string} type - Protocol sub-mode within the core
 * @property {*string} node_id - Owning node, only used by rathole
 * @property {JSONMap} spec - Core specific settings
 * @property {RunStatus} status - Backend computed state
 * @property {*string} error_message - Last failure reported by the backend
 * @property {int64} revision - Incremented on every accepted update
 */
type Tunnel struct {
	ID           string            `json:"id" gorm:"primaryKey;size:36"`
	Name         string            `json:"name" gorm:"size:128;not null"`
	Core         string            `json:"core" gorm:"size:32;index;not null"`
	Type         string            `json:"type" gorm:"size:32"`
	NodeID       *string           `json:"node_id" gorm:"size:36;index"`
	Spec         datatypes.JSONMap `json:"spec"`
	Status       RunStatus         `json:"status" gorm:"size:16"`
	ErrorMessage *string           `json:"error_message"`
	Revision     int64             `json:"revision" gorm:"not null;default:1"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (t *Tunnel) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Revision == 0 {
		t.Revision = 1
	}
	return nil
}

// Title is used for logging
func (t *Tunnel) Title() string {
	return t.Core + "/" + t.Name + "(" + t.ID + ")"
}

// CreateTunnelRequest is the body of POST /api/tunnels
type CreateTunnelRequest struct {
	Name   string                 `json:"name" binding:"required"`
	Core   string                 `json:"core" binding:"required"`
	Type   string                 `json:"type"`
	NodeID *string                `json:"node_id"`
	Spec   map[string]interface{} `json:"spec"`
}

// UpdateTunnelRequest is the body of PUT /api/tunnels/:id.
// Revision is optional; when present it must match the stored one.
type UpdateTunnelRequest struct {
	Name     *string                `json:"name"`
	Spec     map[string]interface{} `json:"spec"`
	Revision *int64                 `json:"revision"`
}

// StringPtr returns nil for empty strings
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
