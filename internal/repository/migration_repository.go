package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"store-migration-service/internal/models"
)

// MigrationRepositoryInterface defines database operations for migration batches
type MigrationRepositoryInterface interface {
	CreateBatch(ctx context.Context, batch *models.MigrationBatch) error
	GetBatchByID(ctx context.Context, id uuid.UUID) (*models.MigrationBatch, error)
	GetBatchByIdempotencyKey(ctx context.Context, idempotencyKey string) (*models.MigrationBatch, error)
	UpdateBatch(ctx context.Context, batch *models.MigrationBatch) error
	UpdateBatchStatus(ctx context.Context, id uuid.UUID, status models.BatchStatus, errorMessage string) error
	UpdateBatchProgress(ctx context.Context, id uuid.UUID, progress *models.BatchProgress) error
	ListBatches(ctx context.Context, opts BatchListOptions) ([]models.MigrationBatch, int64, error)
	GetActiveBatches(ctx context.Context, connectionID uuid.UUID) ([]models.MigrationBatch, error)

	CreateItems(ctx context.Context, items []models.MigrationItem) error
	GetItemByID(ctx context.Context, id uuid.UUID) (*models.MigrationItem, error)
	GetBatchItems(ctx context.Context, batchID uuid.UUID, opts ItemListOptions) ([]models.MigrationItem, int64, error)
	GetItemsByIDs(ctx context.Context, batchID uuid.UUID, ids []uuid.UUID) ([]models.MigrationItem, error)
	UpdateItem(ctx context.Context, item *models.MigrationItem) error
	UpdateItemStatus(ctx context.Context, id uuid.UUID, status models.ItemStatus, errorMessage string) error

	CreateLog(ctx context.Context, log *models.MigrationLog) error
	GetBatchLogs(ctx context.Context, batchID uuid.UUID, opts LogListOptions) ([]models.MigrationLog, error)
}

// MigrationRepository handles database operations for migration batches
type MigrationRepository struct {
	db *gorm.DB
}

// NewMigrationRepository creates a new migration repository
func NewMigrationRepository(db *gorm.DB) *MigrationRepository {
	return &MigrationRepository{db: db}
}

// CreateBatch creates a new migration batch
func (r *MigrationRepository) CreateBatch(ctx context.Context, batch *models.MigrationBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

// GetBatchByID retrieves a migration batch by ID
func (r *MigrationRepository) GetBatchByID(ctx context.Context, id uuid.UUID) (*models.MigrationBatch, error) {
	var batch models.MigrationBatch
	err := r.db.WithContext(ctx).
		Preload("Connection").
		First(&batch, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// GetBatchByIdempotencyKey retrieves a migration batch by idempotency key
func (r *MigrationRepository) GetBatchByIdempotencyKey(ctx context.Context, idempotencyKey string) (*models.MigrationBatch, error) {
	var batch models.MigrationBatch
	err := r.db.WithContext(ctx).
		Preload("Connection").
		Where("idempotency_key = ?", idempotencyKey).
		First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// UpdateBatch updates an existing migration batch
func (r *MigrationRepository) UpdateBatch(ctx context.Context, batch *models.MigrationBatch) error {
	return r.db.WithContext(ctx).Save(batch).Error
}

// UpdateBatchStatus updates the batch status
func (r *MigrationRepository) UpdateBatchStatus(ctx context.Context, id uuid.UUID, status models.BatchStatus, errorMessage string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
		"updated_at":    time.Now(),
	}
	if status.Terminal() {
		now := time.Now()
		updates["completed_at"] = &now
	}
	return r.db.WithContext(ctx).
		Model(&models.MigrationBatch{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateBatchProgress updates the batch progress counters
func (r *MigrationRepository) UpdateBatchProgress(ctx context.Context, id uuid.UUID, progress *models.BatchProgress) error {
	progressJSON := models.JSONB{
		"totalProducts":     progress.TotalProducts,
		"processedProducts": progress.ProcessedProducts,
		"successCount":      progress.SuccessCount,
		"errorCount":        progress.ErrorCount,
		"percentage":        progress.Percentage,
	}
	return r.db.WithContext(ctx).
		Model(&models.MigrationBatch{}).
		Where("id = ?", id).
		Update("progress", progressJSON).Error
}

// ListBatches retrieves migration batches with pagination and filtering
func (r *MigrationRepository) ListBatches(ctx context.Context, opts BatchListOptions) ([]models.MigrationBatch, int64, error) {
	var batches []models.MigrationBatch
	var total int64

	query := r.db.WithContext(ctx).Model(&models.MigrationBatch{})

	if opts.TenantID != "" {
		query = query.Where("tenant_id = ?", opts.TenantID)
	}
	if opts.ConnectionID != uuid.Nil {
		query = query.Where("connection_id = ?", opts.ConnectionID)
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
	query = query.Preload("Connection")

	if err := query.Find(&batches).Error; err != nil {
		return nil, 0, err
	}

	return batches, total, nil
}

// GetActiveBatches retrieves non-terminal batches for a connection
func (r *MigrationRepository) GetActiveBatches(ctx context.Context, connectionID uuid.UUID) ([]models.MigrationBatch, error) {
	var batches []models.MigrationBatch
	err := r.db.WithContext(ctx).
		Where("connection_id = ? AND status IN ?", connectionID, []models.BatchStatus{
			models.BatchStatusPending,
			models.BatchStatusScanning,
			models.BatchStatusReady,
			models.BatchStatusCloning,
		}).
		Find(&batches).Error
	return batches, err
}

// CreateItems inserts the items of a batch
func (r *MigrationRepository) CreateItems(ctx context.Context, items []models.MigrationItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(items, 100).Error
}

// GetItemByID retrieves a migration item by ID
func (r *MigrationRepository) GetItemByID(ctx context.Context, id uuid.UUID) (*models.MigrationItem, error) {
	var item models.MigrationItem
	err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetBatchItems retrieves items for a migration batch
func (r *MigrationRepository) GetBatchItems(ctx context.Context, batchID uuid.UUID, opts ItemListOptions) ([]models.MigrationItem, int64, error) {
	var items []models.MigrationItem
	var total int64

	query := r.db.WithContext(ctx).Model(&models.MigrationItem{}).
		Where("batch_id = ?", batchID)

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

	if err := query.Order("position ASC").Find(&items).Error; err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

// GetItemsByIDs retrieves specific items of a batch, preserving batch scoping
func (r *MigrationRepository) GetItemsByIDs(ctx context.Context, batchID uuid.UUID, ids []uuid.UUID) ([]models.MigrationItem, error) {
	var items []models.MigrationItem
	err := r.db.WithContext(ctx).
		Where("batch_id = ? AND id IN ?", batchID, ids).
		Order("position ASC").
		Find(&items).Error
	return items, err
}

// UpdateItem updates an existing migration item
func (r *MigrationRepository) UpdateItem(ctx context.Context, item *models.MigrationItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// UpdateItemStatus updates the item status
func (r *MigrationRepository) UpdateItemStatus(ctx context.Context, id uuid.UUID, status models.ItemStatus, errorMessage string) error {
	return r.db.WithContext(ctx).
		Model(&models.MigrationItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errorMessage,
			"updated_at":    time.Now(),
		}).Error
}

// CreateLog creates a migration log entry
func (r *MigrationRepository) CreateLog(ctx context.Context, log *models.MigrationLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// GetBatchLogs retrieves logs for a migration batch
func (r *MigrationRepository) GetBatchLogs(ctx context.Context, batchID uuid.UUID, opts LogListOptions) ([]models.MigrationLog, error) {
	var logs []models.MigrationLog
	query := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID)

	if opts.Level != "" {
		query = query.Where("level = ?", opts.Level)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	err := query.Order("created_at DESC").Find(&logs).Error
	return logs, err
}

// BatchListOptions contains options for listing migration batches
type BatchListOptions struct {
	TenantID     string
	ConnectionID uuid.UUID
	Status       string
	Limit        int
	Offset       int
}

// ItemListOptions contains options for listing batch items
type ItemListOptions struct {
	Status string
	Limit  int
	Offset int
}

// LogListOptions contains options for listing logs
type LogListOptions struct {
	Level  string
	Limit  int
	Offset int
}
