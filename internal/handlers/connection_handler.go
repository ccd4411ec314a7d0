package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"store-migration-service/internal/destination"
	"store-migration-service/internal/middleware"
	"store-migration-service/internal/models"
	"store-migration-service/internal/repository"
	"store-migration-service/internal/services"
)

// ConnectionHandler handles destination store connection endpoints
type ConnectionHandler struct {
	service *services.CredentialService
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(service *services.CredentialService) *ConnectionHandler {
	return &ConnectionHandler{service: service}
}

// List returns all connections for a tenant
func (h *ConnectionHandler) List(c *gin.Context) {
	tenantID := c.GetString("tenantId")

	opts := &repository.ConnectionListOptions{
		Status: c.Query("status"),
	}

	connections, total, err := h.service.List(c.Request.Context(), tenantID, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  connections,
		"total": total,
	})
}

// Create registers a new destination store connection
func (h *ConnectionHandler) Create(c *gin.Context) {
	tenantID := c.GetString("tenantId")

	var req services.CreateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.TenantID = tenantID
	if req.CreatedBy == "" {
		req.CreatedBy = middleware.GetUserID(c)
	}

	connection, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		var credErr *destination.CredentialError
		if errors.As(err, &credErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": credErr.Message,
				"kind":  string(credErr.Kind),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": connection})
}

// connectionForTenant parses the :id param, loads the connection, and
// verifies it belongs to the request's tenant. A foreign connection reads as
// not found.
func (h *ConnectionHandler) connectionForTenant(c *gin.Context) (*models.DestinationConnection, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return nil, false
	}

	connection, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil || connection.TenantID != c.GetString("tenantId") {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return nil, false
	}
	return connection, true
}

// Get returns a single connection
func (h *ConnectionHandler) Get(c *gin.Context) {
	connection, ok := h.connectionForTenant(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": connection})
}

// Update updates a connection's settings
func (h *ConnectionHandler) Update(c *gin.Context) {
	connection, ok := h.connectionForTenant(c)
	if !ok {
		return
	}

	var req services.UpdateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	connection, err := h.service.Update(c.Request.Context(), connection.ID, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": connection})
}

// Delete deletes a connection
func (h *ConnectionHandler) Delete(c *gin.Context) {
	connection, ok := h.connectionForTenant(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), connection.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "connection deleted"})
}

// Validate probes the destination store with the stored credentials
func (h *ConnectionHandler) Validate(c *gin.Context) {
	connection, ok := h.connectionForTenant(c)
	if !ok {
		return
	}

	info, err := h.service.Validate(c.Request.Context(), connection.ID)
	if err != nil {
		var credErr *destination.CredentialError
		if errors.As(err, &credErr) {
			status := http.StatusUnprocessableEntity
			if credErr.Kind == destination.CredentialNetworkUnavailable {
				status = http.StatusBadGateway
			}
			c.JSON(status, gin.H{
				"success": false,
				"error":   credErr.Message,
				"kind":    string(credErr.Kind),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"store": gin.H{
			"name":   info.Name,
			"email":  info.Email,
			"domain": info.Domain,
		},
	})
}

// UpdateCredentials replaces the credentials for a connection
func (h *ConnectionHandler) UpdateCredentials(c *gin.Context) {
	connection, ok := h.connectionForTenant(c)
	if !ok {
		return
	}

	var req struct {
		Credentials destination.Credentials `json:"credentials"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.UpdateCredentials(c.Request.Context(), connection.ID, req.Credentials); err != nil {
		var credErr *destination.CredentialError
		if errors.As(err, &credErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": credErr.Message,
				"kind":  string(credErr.Kind),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "credentials updated"})
}
