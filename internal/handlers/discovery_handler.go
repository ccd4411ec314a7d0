package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"store-migration-service/internal/platform"
	"store-migration-service/internal/services"
)

// DiscoveryHandler handles source storefront endpoints
type DiscoveryHandler struct {
	service *services.DiscoveryService
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(service *services.DiscoveryService) *DiscoveryHandler {
	return &DiscoveryHandler{service: service}
}

// ClassifyRequest carries the URL to inspect
type ClassifyRequest struct {
	URL string `json:"url" binding:"required"`
}

// Classify reports which access strategy a source URL maps to. Pure
// inspection, no network traffic.
func (h *DiscoveryHandler) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	classification := h.service.Classify(req.URL)
	c.JSON(http.StatusOK, gin.H{
		"platformDetected": classification.PlatformDetected,
		"accessMethod":     string(classification.Method),
	})
}

// FetchProduct fetches one product from a source URL
func (h *DiscoveryHandler) FetchProduct(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, method, err := h.service.FetchProduct(c.Request.Context(), req.URL)
	if err != nil {
		status, body := fetchErrorResponse(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":         product,
		"accessMethod": string(method),
	})
}

// ScanStore counts the products a storefront exposes
func (h *DiscoveryHandler) ScanStore(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	size, err := h.service.DiscoverStorefrontSize(c.Request.Context(), req.URL)
	if err != nil {
		status, body := fetchErrorResponse(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": size})
}

// fetchErrorResponse maps a discovery failure to an HTTP response
func fetchErrorResponse(err error) (int, gin.H) {
	var fetchErr *platform.FetchError
	if errors.As(err, &fetchErr) {
		body := gin.H{
			"error": fetchErr.Message,
			"kind":  string(fetchErr.Kind),
		}
		switch fetchErr.Kind {
		case platform.FetchUnsupportedPlatform:
			return http.StatusUnprocessableEntity, body
		case platform.FetchMalformedPayload:
			return http.StatusBadGateway, body
		default:
			return http.StatusServiceUnavailable, body
		}
	}
	return http.StatusInternalServerError, gin.H{"error": err.Error()}
}
