package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"store-migration-service/internal/models"
)

// ConnectionRepositoryInterface defines database operations for destination connections
type ConnectionRepositoryInterface interface {
	Create(ctx context.Context, connection *models.DestinationConnection) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DestinationConnection, error)
	GetByTenant(ctx context.Context, tenantID string) ([]models.DestinationConnection, error)
	Update(ctx context.Context, connection *models.DestinationConnection) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ConnectionStatus, lastError string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ConnectionListOptions) ([]models.DestinationConnection, int64, error)
}

// ConnectionRepository handles database operations for destination connections
type ConnectionRepository struct {
	db *gorm.DB
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Create creates a new destination connection
func (r *ConnectionRepository) Create(ctx context.Context, connection *models.DestinationConnection) error {
	return r.db.WithContext(ctx).Create(connection).Error
}

// GetByID retrieves a connection by ID
func (r *ConnectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DestinationConnection, error) {
	var connection models.DestinationConnection
	err := r.db.WithContext(ctx).
		First(&connection, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &connection, nil
}

// GetByTenant retrieves all connections for a tenant
func (r *ConnectionRepository) GetByTenant(ctx context.Context, tenantID string) ([]models.DestinationConnection, error) {
	var connections []models.DestinationConnection
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&connections).Error
	return connections, err
}

// Update updates an existing connection
func (r *ConnectionRepository) Update(ctx context.Context, connection *models.DestinationConnection) error {
	return r.db.WithContext(ctx).Save(connection).Error
}

// UpdateStatus updates the connection status
func (r *ConnectionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ConnectionStatus, lastError string) error {
	updates := map[string]interface{}{
		"status":     status,
		"last_error": lastError,
	}
	if status == models.ConnectionError {
		updates["error_count"] = gorm.Expr("error_count + 1")
	}
	return r.db.WithContext(ctx).
		Model(&models.DestinationConnection{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Delete soft-deletes a connection
func (r *ConnectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.DestinationConnection{}, "id = ?", id).Error
}

// List retrieves connections with pagination and filtering
func (r *ConnectionRepository) List(ctx context.Context, opts ConnectionListOptions) ([]models.DestinationConnection, int64, error) {
	var connections []models.DestinationConnection
	var total int64

	query := r.db.WithContext(ctx).Model(&models.DestinationConnection{})

	if opts.TenantID != "" {
		query = query.Where("tenant_id = ?", opts.TenantID)
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}
	query = query.Order("created_at DESC")

	if err := query.Find(&connections).Error; err != nil {
		return nil, 0, err
	}

	return connections, total, nil
}

// ConnectionListOptions contains options for listing connections
type ConnectionListOptions struct {
	TenantID string
	Status   string
	Limit    int
	Offset   int
}
