package models

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionStatus represents the status of a destination store connection
type ConnectionStatus string

const (
	ConnectionPending      ConnectionStatus = "PENDING"
	ConnectionConnected    ConnectionStatus = "CONNECTED"
	ConnectionDisconnected ConnectionStatus = "DISCONNECTED"
	ConnectionError        ConnectionStatus = "ERROR"
)

// DestinationConnection represents a validated connection to the operator's
// own store. Credentials live in Secret Manager; only the reference is kept.
type DestinationConnection struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID string    `gorm:"type:varchar(255);not null;index:idx_dest_connections_tenant" json:"tenantId"`

	ShopDomain  string `gorm:"type:varchar(255);not null" json:"shopDomain"`
	DisplayName string `gorm:"type:varchar(255)" json:"displayName,omitempty"`

	// Store metadata captured from the validation probe
	StoreName  string `gorm:"type:varchar(255)" json:"storeName,omitempty"`
	StoreEmail string `gorm:"type:varchar(255)" json:"storeEmail,omitempty"`

	Status    ConnectionStatus `gorm:"type:varchar(50);not null;default:'PENDING';index:idx_dest_connections_status" json:"status"`
	IsEnabled bool             `gorm:"default:true" json:"isEnabled"`

	// Secret Manager reference for apiKey/apiSecret/accessToken
	SecretReference string `gorm:"type:varchar(500)" json:"-"`

	// Metadata
	LastValidatedAt *time.Time `json:"lastValidatedAt,omitempty"`
	LastError       string     `gorm:"type:text" json:"lastError,omitempty"`
	ErrorCount      int        `gorm:"default:0" json:"errorCount"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
	CreatedBy string    `gorm:"type:varchar(255)" json:"createdBy,omitempty"`

	Batches []MigrationBatch `gorm:"foreignKey:ConnectionID" json:"batches,omitempty"`
}

// TableName specifies the table name for DestinationConnection
func (DestinationConnection) TableName() string {
	return "destination_connections"
}

// Connected reports whether the connection passed its last validation probe.
func (c *DestinationConnection) Connected() bool {
	return c.Status == ConnectionConnected
}
