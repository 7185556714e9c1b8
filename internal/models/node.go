package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NodeStatus string

const (
	NodeOnline  NodeStatus = "online"
	NodeOffline NodeStatus = "offline"
)

// Node is a remote host running the client side of rathole tunnels
type Node struct {
	ID        string     `json:"id" gorm:"primaryKey;size:36"`
	Name      string     `json:"name" gorm:"size:128;uniqueIndex;not null"`
	Address   string     `json:"address" gorm:"size:255"`
	Status    NodeStatus `json:"status" gorm:"-"`
	LastSeen  *time.Time `json:"last_seen"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (n *Node) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// CreateNodeRequest is the body of POST /api/nodes
type CreateNodeRequest struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
}
