package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessMethod is the discovery strategy used against the source storefront
type AccessMethod string

const (
	AccessMethodAPI      AccessMethod = "API"
	AccessMethodScraping AccessMethod = "SCRAPING"
	AccessMethodUnknown  AccessMethod = "UNKNOWN"
)

// BatchStatus represents the status of a migration batch
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "PENDING"
	BatchStatusScanning  BatchStatus = "SCANNING"
	BatchStatusReady     BatchStatus = "READY"
	BatchStatusCloning   BatchStatus = "CLONING"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusAborted   BatchStatus = "ABORTED"
	BatchStatusFailed    BatchStatus = "FAILED"
)

// Terminal reports whether the batch has reached a final state.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusAborted || s == BatchStatusFailed
}

// ItemStatus represents the per-product status within a batch.
// The integration track (CLONED onward) is orthogonal to cloning.
type ItemStatus string

const (
	ItemStatusPending           ItemStatus = "PENDING"
	ItemStatusCloning           ItemStatus = "CLONING"
	ItemStatusCloned            ItemStatus = "CLONED"
	ItemStatusError             ItemStatus = "ERROR"
	ItemStatusIntegrating       ItemStatus = "INTEGRATING"
	ItemStatusIntegrated        ItemStatus = "INTEGRATED"
	ItemStatusIntegrationFailed ItemStatus = "INTEGRATION_FAILED"
)

// Terminal reports whether the item has reached a terminal clone-track state.
func (s ItemStatus) Terminal() bool {
	switch s {
	case ItemStatusCloned, ItemStatusError, ItemStatusIntegrated, ItemStatusIntegrationFailed:
		return true
	}
	return false
}

// TriggerType represents what triggered the batch
type TriggerType string

const (
	TriggerManual    TriggerType = "MANUAL"
	TriggerScheduled TriggerType = "SCHEDULED"
)

// BatchProgress tracks the aggregate counters of a migration batch
type BatchProgress struct {
	TotalProducts     int     `json:"totalProducts"`
	ProcessedProducts int     `json:"processedProducts"`
	SuccessCount      int     `json:"successCount"`
	ErrorCount        int     `json:"errorCount"`
	Percentage        float64 `json:"percentage"`
}

// MigrationBatch represents one orchestrated pass over a set of products
type MigrationBatch struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ConnectionID uuid.UUID `gorm:"type:uuid;not null;index:idx_migration_batches_connection" json:"connectionId"`
	TenantID     string    `gorm:"type:varchar(255);not null;index:idx_migration_batches_tenant" json:"tenantId"`

	// Source
	SourceURL    string       `gorm:"type:varchar(1000)" json:"sourceUrl,omitempty"`
	AccessMethod AccessMethod `gorm:"type:varchar(50);default:'UNKNOWN'" json:"accessMethod"`

	// Batch-level overrides applied to every cloned item
	Overrides JSONB `gorm:"type:jsonb" json:"overrides,omitempty"`

	// Whether each cloned item is bound to checkout as part of the run
	AutoIntegrate bool `gorm:"default:false" json:"autoIntegrate"`

	Status BatchStatus `gorm:"type:varchar(50);not null;default:'PENDING';index:idx_migration_batches_status" json:"status"`

	// Progress counters mirrored as JSONB
	Progress JSONB `gorm:"type:jsonb;default:'{\"totalProducts\":0,\"processedProducts\":0,\"successCount\":0,\"errorCount\":0,\"percentage\":0}'" json:"progress"`

	// Idempotency
	IdempotencyKey string `gorm:"type:varchar(255);index:idx_migration_batches_idempotency" json:"idempotencyKey,omitempty"`

	// Timing
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// Error tracking
	ErrorMessage string `gorm:"type:text" json:"errorMessage,omitempty"`

	// Audit
	TriggeredBy TriggerType `gorm:"type:varchar(50)" json:"triggeredBy,omitempty"`
	CreatedBy   string      `gorm:"type:varchar(255)" json:"createdBy,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`

	// Relationships
	Connection *DestinationConnection `gorm:"foreignKey:ConnectionID" json:"connection,omitempty"`
	Items      []MigrationItem        `gorm:"foreignKey:BatchID" json:"items,omitempty"`
	Logs       []MigrationLog         `gorm:"foreignKey:BatchID" json:"logs,omitempty"`
}

// TableName specifies the table name for MigrationBatch
func (MigrationBatch) TableName() string {
	return "migration_batches"
}

// jsonbNumber reads a numeric JSONB value. Values loaded from the database
// come back as float64; values set in-process may still be ints.
func jsonbNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// GetProgress returns the batch progress as a structured object
func (b *MigrationBatch) GetProgress() *BatchProgress {
	progress := &BatchProgress{}
	if b.Progress != nil {
		if v, ok := jsonbNumber(b.Progress["totalProducts"]); ok {
			progress.TotalProducts = int(v)
		}
		if v, ok := jsonbNumber(b.Progress["processedProducts"]); ok {
			progress.ProcessedProducts = int(v)
		}
		if v, ok := jsonbNumber(b.Progress["successCount"]); ok {
			progress.SuccessCount = int(v)
		}
		if v, ok := jsonbNumber(b.Progress["errorCount"]); ok {
			progress.ErrorCount = int(v)
		}
		if v, ok := jsonbNumber(b.Progress["percentage"]); ok {
			progress.Percentage = v
		}
	}
	return progress
}

// SetProgress sets the batch progress from a structured object
func (b *MigrationBatch) SetProgress(progress *BatchProgress) {
	b.Progress = JSONB{
		"totalProducts":     progress.TotalProducts,
		"processedProducts": progress.ProcessedProducts,
		"successCount":      progress.SuccessCount,
		"errorCount":        progress.ErrorCount,
		"percentage":        progress.Percentage,
	}
}

// MigrationItem is the per-product record of a batch. The discovered payload
// is kept as JSONB so a failed item can be re-submitted without re-discovery.
type MigrationItem struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	BatchID  uuid.UUID `gorm:"type:uuid;not null;index:idx_migration_items_batch" json:"batchId"`
	TenantID string    `gorm:"type:varchar(255);not null;index:idx_migration_items_tenant" json:"tenantId"`

	// Ordering within the batch
	Position int `gorm:"not null;default:0" json:"position"`

	// Source product
	SourceURL  string `gorm:"type:varchar(1000)" json:"sourceUrl,omitempty"`
	ExternalID string `gorm:"type:varchar(255);index:idx_migration_items_external" json:"externalId,omitempty"`
	Title      string `gorm:"type:varchar(500)" json:"title,omitempty"`
	Handle     string `gorm:"type:varchar(255)" json:"handle,omitempty"`
	Payload    JSONB  `gorm:"type:jsonb" json:"payload,omitempty"`

	// Destination product, set once the clone succeeds
	DestinationProductID  string `gorm:"type:varchar(255)" json:"destinationProductId,omitempty"`
	DestinationProductURL string `gorm:"type:varchar(1000)" json:"destinationProductUrl,omitempty"`

	// Checkout binding
	CheckoutURL  string     `gorm:"type:varchar(1000)" json:"checkoutUrl,omitempty"`
	IntegratedAt *time.Time `json:"integratedAt,omitempty"`

	Status       ItemStatus `gorm:"type:varchar(50);not null;default:'PENDING';index:idx_migration_items_status" json:"status"`
	ErrorMessage string     `gorm:"type:text" json:"errorMessage,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for MigrationItem
func (MigrationItem) TableName() string {
	return "migration_items"
}

// Integrated reports whether the item already holds a checkout URL.
func (i *MigrationItem) Integrated() bool {
	return i.Status == ItemStatusIntegrated
}

// LogLevel represents the severity level of a migration log
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// MigrationLog represents a log entry for a migration batch
type MigrationLog struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	BatchID uuid.UUID `gorm:"type:uuid;not null;index:idx_migration_logs_batch" json:"batchId"`

	Level   LogLevel `gorm:"type:varchar(20);not null;default:'info';index:idx_migration_logs_level" json:"level"`
	Message string   `gorm:"type:text;not null" json:"message"`
	Data    JSONB    `gorm:"type:jsonb;default:'{}'" json:"data,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
}

// TableName specifies the table name for MigrationLog
func (MigrationLog) TableName() string {
	return "migration_logs"
}
