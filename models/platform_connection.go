package models

import (
	"time"

	"gorm.io/datatypes"
)

type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "CONNECTED"
	ConnectionDisconnected ConnectionStatus = "DISCONNECTED"
	ConnectionError        ConnectionStatus = "ERROR"
)

// PlatformConnection binds a user to one remote platform account. There is
// at most one row per (user, platform); connecting again updates it.
type PlatformConnection struct {
	ID          uint              `json:"id" gorm:"primarykey"`
	UserID      uint              `json:"user_id" gorm:"not null;uniqueIndex:ux_connection_user_platform,priority:1"`
	Platform    Platform          `json:"platform" gorm:"type:varchar(16);not null;uniqueIndex:ux_connection_user_platform,priority:2"`
	Credentials []byte            `json:"-" gorm:"not null"`
	Status      ConnectionStatus  `json:"status" gorm:"type:varchar(16);not null;default:'CONNECTED'"`
	Metadata    datatypes.JSONMap `json:"metadata"`
	LastSyncAt  *time.Time        `json:"last_sync_at"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// MetadataString reads a string attribute from Metadata.
func (c *PlatformConnection) MetadataString(key string) string {
	if c.Metadata == nil {
		return ""
	}
	if v, ok := c.Metadata[key].(string); ok {
		return v
	}
	return ""
}
