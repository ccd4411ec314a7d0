package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"store-migration-service/internal/config"
	"store-migration-service/internal/destination"
	"store-migration-service/internal/models"
	"store-migration-service/internal/platform"
	"store-migration-service/internal/repository"
)

// batchCounters holds the live counters of one running batch. All updates go
// through the mutex so processed always equals success+errors and none of
// the counters ever exceeds total.
type batchCounters struct {
	mu        sync.Mutex
	total     int
	processed int
	success   int
	errors    int
}

func (c *batchCounters) setTotal(total int) {
	c.mu.Lock()
	c.total = total
	c.mu.Unlock()
}

func (c *batchCounters) recordSuccess() {
	c.mu.Lock()
	c.processed++
	c.success++
	c.mu.Unlock()
}

func (c *batchCounters) recordError() {
	c.mu.Lock()
	c.processed++
	c.errors++
	c.mu.Unlock()
}

func (c *batchCounters) snapshot() models.BatchProgress {
	c.mu.Lock()
	defer c.mu.Unlock()

	progress := models.BatchProgress{
		TotalProducts:     c.total,
		ProcessedProducts: c.processed,
		SuccessCount:      c.success,
		ErrorCount:        c.errors,
	}
	if c.total > 0 {
		progress.Percentage = float64(c.processed) / float64(c.total) * 100
	}
	return progress
}

// MigrationService orchestrates migration batches: scanning the source
// storefront, cloning each discovered product independently, and optionally
// binding the clones to checkout. One batch runs per connection at a time.
type MigrationService struct {
	migrationRepo  repository.MigrationRepositoryInterface
	connectionRepo repository.ConnectionRepositoryInterface
	credentials    *CredentialService
	discovery      *DiscoveryService
	cloner         *CloneService
	integrator     *IntegrationService
	config         *config.Config
	logger         *zap.Logger

	activeBatches map[uuid.UUID]context.CancelFunc
	counters      map[uuid.UUID]*batchCounters
	watchers      map[uuid.UUID][]chan models.BatchProgress
	mu            sync.RWMutex
	concurrency   *TenantSemaphore
}

// NewMigrationService creates a new migration service
func NewMigrationService(
	migrationRepo repository.MigrationRepositoryInterface,
	connectionRepo repository.ConnectionRepositoryInterface,
	credentials *CredentialService,
	discovery *DiscoveryService,
	cloner *CloneService,
	integrator *IntegrationService,
	cfg *config.Config,
	logger *zap.Logger,
) *MigrationService {
	return &MigrationService{
		migrationRepo:  migrationRepo,
		connectionRepo: connectionRepo,
		credentials:    credentials,
		discovery:      discovery,
		cloner:         cloner,
		integrator:     integrator,
		config:         cfg,
		logger:         logger,
		activeBatches:  make(map[uuid.UUID]context.CancelFunc),
		counters:       make(map[uuid.UUID]*batchCounters),
		watchers:       make(map[uuid.UUID][]chan models.BatchProgress),
		concurrency:    NewTenantSemaphore(DefaultConcurrencyConfig()),
	}
}

// SetConcurrencyLimiter sets the concurrency limiter
func (s *MigrationService) SetConcurrencyLimiter(concurrency *TenantSemaphore) {
	s.concurrency = concurrency
}

// ConcurrencyStats reports the limiter's live occupancy
func (s *MigrationService) ConcurrencyStats() map[string]interface{} {
	if s.concurrency == nil {
		return map[string]interface{}{}
	}
	return s.concurrency.GetStats()
}

// CreateBatchRequest contains the data for starting a migration batch.
// Either SourceURL (scan the whole storefront) or ProductURLs (clone an
// explicit selection) must be set.
type CreateBatchRequest struct {
	ConnectionID   uuid.UUID              `json:"connectionId"`
	SourceURL      string                 `json:"sourceUrl,omitempty"`
	ProductURLs    []string               `json:"productUrls,omitempty"`
	Overrides      map[string]interface{} `json:"overrides,omitempty"`
	AutoIntegrate  bool                   `json:"autoIntegrate,omitempty"`
	IdempotencyKey string                 `json:"idempotencyKey,omitempty"`
	TriggeredBy    models.TriggerType     `json:"triggeredBy,omitempty"`
	CreatedBy      string                 `json:"createdBy,omitempty"`
}

// CreateBatch creates a migration batch and starts it in the background
func (s *MigrationService) CreateBatch(ctx context.Context, tenantID string, req *CreateBatchRequest) (*models.MigrationBatch, error) {
	connection, err := s.connectionRepo.GetByID(ctx, req.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("connection not found: %w", err)
	}
	if connection.TenantID != tenantID {
		return nil, fmt.Errorf("connection does not belong to tenant")
	}
	if !connection.Connected() {
		return nil, fmt.Errorf("destination store is not validated")
	}
	if !connection.IsEnabled {
		return nil, fmt.Errorf("connection is disabled")
	}

	sourceURL := req.SourceURL
	if sourceURL == "" && len(req.ProductURLs) > 0 {
		sourceURL = req.ProductURLs[0]
	}
	if sourceURL == "" {
		return nil, fmt.Errorf("a source URL or product selection is required")
	}
	classification := s.discovery.Classify(sourceURL)
	if !classification.PlatformDetected {
		return nil, platform.NewUnsupportedError(sourceURL)
	}

	// Check idempotency key if provided
	if req.IdempotencyKey != "" {
		existing, err := s.migrationRepo.GetBatchByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil && existing != nil {
			return existing, nil
		}
	}

	active, err := s.migrationRepo.GetActiveBatches(ctx, req.ConnectionID)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return nil, fmt.Errorf("a migration batch is already running for this connection")
	}

	if s.concurrency != nil {
		if !s.concurrency.CanAcceptBatch(tenantID, req.ConnectionID.String()) {
			return nil, fmt.Errorf("concurrency limit reached for tenant or connection")
		}
	}

	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = models.TriggerManual
	}
	idempotencyKey := req.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = fmt.Sprintf("%s-%s-%d", tenantID, req.ConnectionID, time.Now().Unix())
	}

	now := time.Now()
	batch := &models.MigrationBatch{
		ID:             uuid.New(),
		ConnectionID:   req.ConnectionID,
		TenantID:       tenantID,
		SourceURL:      sourceURL,
		AccessMethod:   classification.Method,
		AutoIntegrate:  req.AutoIntegrate,
		Status:         models.BatchStatusPending,
		IdempotencyKey: idempotencyKey,
		TriggeredBy:    triggeredBy,
		CreatedBy:      req.CreatedBy,
		StartedAt:      &now,
	}
	if req.Overrides != nil {
		batch.Overrides = models.JSONB(req.Overrides)
	}
	batch.SetProgress(&models.BatchProgress{})

	if err := s.migrationRepo.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	batchCtx, cancel := context.WithTimeout(context.Background(), s.config.MigrationTimeout)
	s.mu.Lock()
	s.activeBatches[batch.ID] = cancel
	s.counters[batch.ID] = &batchCounters{}
	s.mu.Unlock()

	go s.runBatch(batchCtx, batch, connection, req.ProductURLs)

	return batch, nil
}

// GetBatch retrieves a batch with its live progress overlaid
func (s *MigrationService) GetBatch(ctx context.Context, id uuid.UUID) (*models.MigrationBatch, error) {
	batch, err := s.migrationRepo.GetBatchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	counters, running := s.counters[id]
	s.mu.RUnlock()
	if running {
		progress := counters.snapshot()
		batch.SetProgress(&progress)
	}

	return batch, nil
}

// ListBatches lists migration batches for a tenant
func (s *MigrationService) ListBatches(ctx context.Context, tenantID string, opts *repository.BatchListOptions) ([]models.MigrationBatch, int64, error) {
	if opts == nil {
		opts = &repository.BatchListOptions{}
	}
	opts.TenantID = tenantID
	return s.migrationRepo.ListBatches(ctx, *opts)
}

// WatchProgress subscribes to the live snapshots of a running batch. The
// channel closes when the batch leaves the orchestrator; a batch that is not
// running yields an already-closed channel. Slow receivers drop snapshots
// rather than stalling the batch.
func (s *MigrationService) WatchProgress(batchID uuid.UUID) (<-chan models.BatchProgress, func()) {
	ch := make(chan models.BatchProgress, 16)

	s.mu.Lock()
	if _, running := s.counters[batchID]; !running {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.watchers[batchID] = append(s.watchers[batchID], ch)
	s.mu.Unlock()

	detach := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.watchers[batchID]
		for i, w := range list {
			if w == ch {
				s.watchers[batchID] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
	return ch, detach
}

// CancelBatch requests cooperative cancellation of a running batch. The item
// in flight finishes; everything still pending stays untouched.
func (s *MigrationService) CancelBatch(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	cancel, exists := s.activeBatches[id]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("batch not found or not running")
	}

	cancel()
	return nil
}

// GetBatchItems retrieves the items of a batch
func (s *MigrationService) GetBatchItems(ctx context.Context, batchID uuid.UUID, opts *repository.ItemListOptions) ([]models.MigrationItem, int64, error) {
	if opts == nil {
		opts = &repository.ItemListOptions{}
	}
	return s.migrationRepo.GetBatchItems(ctx, batchID, *opts)
}

// GetBatchLogs retrieves logs for a batch
func (s *MigrationService) GetBatchLogs(ctx context.Context, batchID uuid.UUID, opts *repository.LogListOptions) ([]models.MigrationLog, error) {
	if opts == nil {
		opts = &repository.LogListOptions{Limit: 100}
	}
	return s.migrationRepo.GetBatchLogs(ctx, batchID, *opts)
}

// IntegrateBatch binds the selected items of a completed batch to checkout.
// An empty selection means every eligible item.
func (s *MigrationService) IntegrateBatch(ctx context.Context, batchID uuid.UUID, itemIDs []uuid.UUID) ([]IntegrationResult, error) {
	batch, err := s.migrationRepo.GetBatchByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.Status.Terminal() {
		return nil, fmt.Errorf("batch is still running")
	}

	if len(itemIDs) == 0 {
		eligible, err := s.integrator.SelectForIntegration(ctx, batchID)
		if err != nil {
			return nil, err
		}
		for _, item := range eligible {
			itemIDs = append(itemIDs, item.ID)
		}
	}

	return s.integrator.IntegrateSelected(ctx, batchID, itemIDs)
}

// ResubmitItem re-clones a failed item from its stored payload without
// re-discovering the source. The clone call is a fresh attempt; a product
// that was partially created before still counts as a separate clone.
func (s *MigrationService) ResubmitItem(ctx context.Context, batchID, itemID uuid.UUID) (*models.MigrationItem, error) {
	batch, err := s.migrationRepo.GetBatchByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.Status.Terminal() {
		return nil, fmt.Errorf("batch is still running")
	}

	item, err := s.migrationRepo.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.BatchID != batchID {
		return nil, fmt.Errorf("item does not belong to batch")
	}
	if item.Status != models.ItemStatusError {
		return nil, fmt.Errorf("only failed items can be resubmitted")
	}

	product, err := productFromPayload(item.Payload)
	if err != nil {
		return nil, fmt.Errorf("stored payload is unusable: %w", err)
	}

	connection, err := s.connectionRepo.GetByID(ctx, batch.ConnectionID)
	if err != nil {
		return nil, err
	}
	creds, err := s.credentials.GetCredentials(ctx, connection)
	if err != nil {
		return nil, err
	}
	overrides, err := OverridesFromJSONB(batch.Overrides)
	if err != nil {
		return nil, err
	}

	created, err := s.cloner.Clone(ctx, *creds, product, overrides)
	if err != nil {
		item.Status = models.ItemStatusError
		item.ErrorMessage = err.Error()
		_ = s.migrationRepo.UpdateItem(ctx, item)
		return item, err
	}

	item.Status = models.ItemStatusCloned
	item.ErrorMessage = ""
	item.DestinationProductID = created.ProductID
	item.DestinationProductURL = created.ProductURL
	if err := s.migrationRepo.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// runBatch executes the scan and clone phases of a batch
func (s *MigrationService) runBatch(ctx context.Context, batch *models.MigrationBatch, connection *models.DestinationConnection, productURLs []string) {
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.activeBatches[batch.ID]; ok {
			cancel()
		}
		delete(s.activeBatches, batch.ID)
		delete(s.counters, batch.ID)
		for _, ch := range s.watchers[batch.ID] {
			close(ch)
		}
		delete(s.watchers, batch.ID)
		s.mu.Unlock()
	}()

	var release func()
	if s.concurrency != nil {
		_, rel, ok := s.concurrency.TryAcquire(batch.TenantID, batch.ConnectionID.String())
		if !ok {
			s.failBatch(batch.ID, "concurrency limit reached")
			return
		}
		release = rel
		defer release()
	}

	s.logEvent(batch.ID, models.LogLevelInfo, "Migration started", models.JSONB{
		"sourceUrl":    batch.SourceURL,
		"accessMethod": string(batch.AccessMethod),
	})

	creds, err := s.credentials.GetCredentials(ctx, connection)
	if err != nil {
		s.failBatch(batch.ID, fmt.Sprintf("failed to load destination credentials: %v", err))
		return
	}

	items, err := s.scanSource(ctx, batch, productURLs)
	if err != nil {
		if ctx.Err() != nil {
			s.abortBatch(batch.ID)
			return
		}
		s.failBatch(batch.ID, fmt.Sprintf("source scan failed: %v", err))
		return
	}

	counters := s.countersFor(batch.ID)
	counters.setTotal(len(items))
	_ = s.migrationRepo.UpdateBatchStatus(context.Background(), batch.ID, models.BatchStatusReady, "")
	s.persistProgress(batch.ID, counters)

	s.logEvent(batch.ID, models.LogLevelInfo, "Source scan completed", models.JSONB{
		"totalProducts": len(items),
	})

	overrides, err := OverridesFromJSONB(batch.Overrides)
	if err != nil {
		s.failBatch(batch.ID, fmt.Sprintf("unusable overrides: %v", err))
		return
	}

	_ = s.migrationRepo.UpdateBatchStatus(context.Background(), batch.ID, models.BatchStatusCloning, "")

	aborted := s.cloneItems(ctx, batch, items, *creds, overrides, counters)

	s.persistProgress(batch.ID, counters)

	if aborted {
		s.abortBatch(batch.ID)
		return
	}

	_ = s.migrationRepo.UpdateBatchStatus(context.Background(), batch.ID, models.BatchStatusCompleted, "")
	progress := counters.snapshot()
	s.logEvent(batch.ID, models.LogLevelInfo, "Migration completed", models.JSONB{
		"total":     progress.TotalProducts,
		"processed": progress.ProcessedProducts,
		"succeeded": progress.SuccessCount,
		"failed":    progress.ErrorCount,
	})

	if batch.AutoIntegrate {
		s.autoIntegrate(batch.ID)
	}
}

// scanSource persists one item per product to migrate: the explicit product
// selection when one was given, otherwise every product the storefront
// exposes.
func (s *MigrationService) scanSource(ctx context.Context, batch *models.MigrationBatch, productURLs []string) ([]models.MigrationItem, error) {
	_ = s.migrationRepo.UpdateBatchStatus(context.Background(), batch.ID, models.BatchStatusScanning, "")

	if len(productURLs) > 0 {
		return s.scanSelection(ctx, batch, productURLs)
	}

	var items []models.MigrationItem
	opts := platform.ListOptions{Limit: s.config.MigrationBatchSize, Page: 1}
	position := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page, _, err := s.discovery.ListProducts(ctx, batch.SourceURL, opts)
		if err != nil {
			return nil, err
		}

		for _, product := range page.Products {
			item := models.MigrationItem{
				ID:         uuid.New(),
				BatchID:    batch.ID,
				TenantID:   batch.TenantID,
				Position:   position,
				SourceURL:  product.SourceURL,
				ExternalID: product.ExternalID,
				Title:      product.Title,
				Handle:     product.Handle,
				Status:     models.ItemStatusPending,
			}
			if payload, err := payloadFromProduct(&product); err == nil {
				item.Payload = payload
			}
			items = append(items, item)
			position++
		}

		if !page.HasMore {
			break
		}
		opts.Page = page.NextPage
	}

	if err := s.migrationRepo.CreateItems(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// scanSelection fetches each explicitly selected product. A product that
// cannot be fetched still becomes an item; its clone attempt records the
// failure without sinking the rest of the batch.
func (s *MigrationService) scanSelection(ctx context.Context, batch *models.MigrationBatch, productURLs []string) ([]models.MigrationItem, error) {
	items := make([]models.MigrationItem, 0, len(productURLs))
	for position, productURL := range productURLs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		item := models.MigrationItem{
			ID:        uuid.New(),
			BatchID:   batch.ID,
			TenantID:  batch.TenantID,
			Position:  position,
			SourceURL: productURL,
			Status:    models.ItemStatusPending,
		}

		product, _, err := s.discovery.FetchProduct(ctx, productURL)
		if err != nil {
			s.logger.Warn("selected product could not be fetched",
				zap.String("url", productURL),
				zap.Error(err))
		} else {
			item.ExternalID = product.ExternalID
			item.Title = product.Title
			item.Handle = product.Handle
			if payload, err := payloadFromProduct(product); err == nil {
				item.Payload = payload
			}
		}
		items = append(items, item)
	}

	if err := s.migrationRepo.CreateItems(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// cloneItems processes the batch items sequentially. Each item is one
// independent clone attempt; a failure is recorded and the loop moves on.
// Returns true when the context was cancelled mid-batch.
func (s *MigrationService) cloneItems(
	ctx context.Context,
	batch *models.MigrationBatch,
	items []models.MigrationItem,
	creds destination.Credentials,
	overrides *CloneOverrides,
	counters *batchCounters,
) bool {
	for i := range items {
		select {
		case <-ctx.Done():
			return true
		default:
		}

		item := &items[i]
		item.Status = models.ItemStatusCloning
		_ = s.migrationRepo.UpdateItemStatus(context.Background(), item.ID, models.ItemStatusCloning, "")

		product, err := productFromPayload(item.Payload)
		if err == nil && len(product.Images) == 0 {
			err = fmt.Errorf("the product record is missing images")
		}
		if err != nil {
			s.recordItemError(batch.ID, item, counters, err)
			continue
		}

		created, err := s.cloner.Clone(ctx, creds, product, overrides)
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled mid-item: the attempt did not complete, leave it
				// pending rather than counting a phantom error.
				_ = s.migrationRepo.UpdateItemStatus(context.Background(), item.ID, models.ItemStatusPending, "")
				return true
			}
			s.recordItemError(batch.ID, item, counters, err)
			continue
		}

		item.Status = models.ItemStatusCloned
		item.DestinationProductID = created.ProductID
		item.DestinationProductURL = created.ProductURL
		_ = s.migrationRepo.UpdateItem(context.Background(), item)
		counters.recordSuccess()
		s.persistProgress(batch.ID, counters)
	}

	return false
}

func (s *MigrationService) recordItemError(batchID uuid.UUID, item *models.MigrationItem, counters *batchCounters, err error) {
	item.Status = models.ItemStatusError
	item.ErrorMessage = err.Error()
	_ = s.migrationRepo.UpdateItemStatus(context.Background(), item.ID, models.ItemStatusError, err.Error())
	counters.recordError()
	s.persistProgress(batchID, counters)
	s.logEvent(batchID, models.LogLevelError, "Failed to clone product", models.JSONB{
		"externalId": item.ExternalID,
		"title":      item.Title,
		"error":      err.Error(),
	})
}

// autoIntegrate binds every cloned item of the batch after a completed run
func (s *MigrationService) autoIntegrate(batchID uuid.UUID) {
	ctx := context.Background()
	results, err := s.IntegrateBatch(ctx, batchID, nil)
	if err != nil {
		s.logEvent(batchID, models.LogLevelError, "Auto-integration failed", models.JSONB{
			"error": err.Error(),
		})
		return
	}

	integrated := 0
	for _, r := range results {
		if r.Error == "" {
			integrated++
		}
	}
	s.logEvent(batchID, models.LogLevelInfo, "Auto-integration finished", models.JSONB{
		"selected":   len(results),
		"integrated": integrated,
	})
}

func (s *MigrationService) countersFor(batchID uuid.UUID) *batchCounters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.counters[batchID]; ok {
		return c
	}
	return &batchCounters{}
}

func (s *MigrationService) persistProgress(batchID uuid.UUID, counters *batchCounters) {
	progress := counters.snapshot()
	_ = s.migrationRepo.UpdateBatchProgress(context.Background(), batchID, &progress)

	s.mu.RLock()
	for _, ch := range s.watchers[batchID] {
		select {
		case ch <- progress:
		default:
		}
	}
	s.mu.RUnlock()
}

// abortBatch marks a cancelled batch. Already processed items keep their
// outcome; pending items stay pending.
func (s *MigrationService) abortBatch(batchID uuid.UUID) {
	_ = s.migrationRepo.UpdateBatchStatus(context.Background(), batchID, models.BatchStatusAborted, "Cancelled by user")
	s.logEvent(batchID, models.LogLevelWarn, "Migration aborted", nil)
}

// failBatch marks a batch as failed
func (s *MigrationService) failBatch(batchID uuid.UUID, message string) {
	_ = s.migrationRepo.UpdateBatchStatus(context.Background(), batchID, models.BatchStatusFailed, message)
	s.logEvent(batchID, models.LogLevelError, message, nil)
}

// logEvent creates a migration log entry
func (s *MigrationService) logEvent(batchID uuid.UUID, level models.LogLevel, message string, data models.JSONB) {
	log := &models.MigrationLog{
		ID:      uuid.New(),
		BatchID: batchID,
		Level:   level,
		Message: message,
		Data:    data,
	}
	_ = s.migrationRepo.CreateLog(context.Background(), log)
}

// payloadFromProduct serializes a discovered product for item storage
func payloadFromProduct(product *platform.SourceProduct) (models.JSONB, error) {
	raw, err := json.Marshal(product)
	if err != nil {
		return nil, err
	}
	var payload models.JSONB
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// productFromPayload restores a discovered product from item storage
func productFromPayload(payload models.JSONB) (*platform.SourceProduct, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var product platform.SourceProduct
	if err := json.Unmarshal(raw, &product); err != nil {
		return nil, err
	}
	return &product, nil
}
