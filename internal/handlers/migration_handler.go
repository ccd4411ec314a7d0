package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"store-migration-service/internal/checkout"
	"store-migration-service/internal/middleware"
	"store-migration-service/internal/models"
	"store-migration-service/internal/platform"
	"store-migration-service/internal/repository"
	"store-migration-service/internal/services"
)

// MigrationHandler handles migration batch endpoints
type MigrationHandler struct {
	service *services.MigrationService
}

// NewMigrationHandler creates a new migration handler
func NewMigrationHandler(service *services.MigrationService) *MigrationHandler {
	return &MigrationHandler{service: service}
}

// ListBatches returns all migration batches for a tenant
func (h *MigrationHandler) ListBatches(c *gin.Context) {
	tenantID := c.GetString("tenantId")

	opts := &repository.BatchListOptions{
		Status: c.Query("status"),
	}

	if connectionID := c.Query("connectionId"); connectionID != "" {
		if id, err := uuid.Parse(connectionID); err == nil {
			opts.ConnectionID = id
		}
	}

	batches, total, err := h.service.ListBatches(c.Request.Context(), tenantID, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  batches,
		"total": total,
	})
}

// CreateBatch starts a new migration batch
func (h *MigrationHandler) CreateBatch(c *gin.Context) {
	tenantID := c.GetString("tenantId")

	var req services.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.CreatedBy == "" {
		req.CreatedBy = middleware.GetUserID(c)
	}

	batch, err := h.service.CreateBatch(c.Request.Context(), tenantID, &req)
	if err != nil {
		c.JSON(createBatchErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": batch})
}

// Stats reports concurrency limiter occupancy
func (h *MigrationHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.service.ConcurrencyStats()})
}

// createBatchErrorStatus maps a batch-creation failure to an HTTP status
func createBatchErrorStatus(err error) int {
	var fetchErr *platform.FetchError
	if errors.As(err, &fetchErr) && fetchErr.Kind == platform.FetchUnsupportedPlatform {
		return http.StatusUnprocessableEntity
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "not found"), strings.Contains(msg, "does not belong"):
		return http.StatusNotFound
	case strings.Contains(msg, "is required"):
		return http.StatusBadRequest
	case strings.Contains(msg, "not validated"), strings.Contains(msg, "disabled"):
		return http.StatusUnprocessableEntity
	case strings.Contains(msg, "already running"), strings.Contains(msg, "concurrency limit"):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// batchForTenant parses the :id param, loads the batch, and verifies it
// belongs to the request's tenant. A foreign batch reads as not found.
func (h *MigrationHandler) batchForTenant(c *gin.Context) (*models.MigrationBatch, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return nil, false
	}

	batch, err := h.service.GetBatch(c.Request.Context(), id)
	if err != nil || batch.TenantID != c.GetString("tenantId") {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return nil, false
	}
	return batch, true
}

// GetBatch returns a single migration batch with live progress
func (h *MigrationHandler) GetBatch(c *gin.Context) {
	batch, ok := h.batchForTenant(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": batch})
}

// CancelBatch requests cancellation of a running batch
func (h *MigrationHandler) CancelBatch(c *gin.Context) {
	batch, ok := h.batchForTenant(c)
	if !ok {
		return
	}

	if err := h.service.CancelBatch(c.Request.Context(), batch.ID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "batch cancellation requested"})
}

// GetBatchItems returns the items of a batch
func (h *MigrationHandler) GetBatchItems(c *gin.Context) {
	batch, ok := h.batchForTenant(c)
	if !ok {
		return
	}

	opts := &repository.ItemListOptions{
		Status: c.Query("status"),
	}
	if limit := c.Query("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			opts.Limit = l
		}
	}
	if offset := c.Query("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			opts.Offset = o
		}
	}

	items, total, err := h.service.GetBatchItems(c.Request.Context(), batch.ID, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  items,
		"total": total,
	})
}

// GetBatchLogs returns logs for a batch
func (h *MigrationHandler) GetBatchLogs(c *gin.Context) {
	batch, ok := h.batchForTenant(c)
	if !ok {
		return
	}

	logs, err := h.service.GetBatchLogs(c.Request.Context(), batch.ID, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}

// IntegrateRequest selects batch items for checkout binding. An empty
// selection integrates every eligible item.
type IntegrateRequest struct {
	ItemIDs []uuid.UUID `json:"itemIds,omitempty"`
}

// IntegrateBatch binds the selected items of a batch to checkout
func (h *MigrationHandler) IntegrateBatch(c *gin.Context) {
	batch, ok := h.batchForTenant(c)
	if !ok {
		return
	}

	var req IntegrateRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.service.IntegrateBatch(c.Request.Context(), batch.ID, req.ItemIDs)
	if err != nil {
		var intErr *checkout.IntegrationError
		if errors.As(err, &intErr) {
			c.JSON(http.StatusConflict, gin.H{
				"error": intErr.Message,
				"kind":  string(intErr.Kind),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	integrated := 0
	for _, r := range results {
		if r.Error == "" {
			integrated++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":            results,
		"integratedCount": integrated,
	})
}

// ResubmitItem re-clones a failed item from its stored payload
func (h *MigrationHandler) ResubmitItem(c *gin.Context) {
	batch, ok := h.batchForTenant(c)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(c.Param("itemId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	item, err := h.service.ResubmitItem(c.Request.Context(), batch.ID, itemID)
	if err != nil {
		if item != nil {
			// The attempt ran and failed; the item carries the error
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"data":  item,
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}
