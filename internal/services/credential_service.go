package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"store-migration-service/internal/destination"
	"store-migration-service/internal/models"
	"store-migration-service/internal/repository"
	"store-migration-service/internal/secrets"
)

// CredentialService manages destination store connections and their
// credential lifecycle. Validation is idempotent: re-validating an already
// connected store performs the same probe and yields the same outcome.
type CredentialService struct {
	repo    repository.ConnectionRepositoryInterface
	secrets secrets.Provider
	store   destination.Client
	logger  *zap.Logger
}

// NewCredentialService creates a new credential service
func NewCredentialService(repo repository.ConnectionRepositoryInterface, provider secrets.Provider, store destination.Client, logger *zap.Logger) *CredentialService {
	return &CredentialService{
		repo:    repo,
		secrets: provider,
		store:   store,
		logger:  logger,
	}
}

// CreateConnectionRequest contains the data for registering a destination store
type CreateConnectionRequest struct {
	TenantID    string                  `json:"tenantId"`
	DisplayName string                  `json:"displayName"`
	Credentials destination.Credentials `json:"credentials"`
	CreatedBy   string                  `json:"createdBy,omitempty"`
}

// Create registers a destination store connection. The credentials are
// structurally validated, stored in Secret Manager, then probed against the
// store. A failed probe still leaves the connection behind in ERROR state so
// the operator can inspect and correct it.
func (s *CredentialService) Create(ctx context.Context, req *CreateConnectionRequest) (*models.DestinationConnection, error) {
	if err := req.Credentials.Validate(); err != nil {
		return nil, err
	}

	connectionID := uuid.New()

	secretName := ""
	if s.secrets != nil {
		secretName = s.secrets.BuildSecretName(req.TenantID, connectionID.String())
		if err := s.secrets.StoreCredentials(ctx, secretName, &req.Credentials); err != nil {
			return nil, fmt.Errorf("failed to store credentials: %w", err)
		}
	}

	connection := &models.DestinationConnection{
		ID:              connectionID,
		TenantID:        req.TenantID,
		ShopDomain:      req.Credentials.ShopDomain,
		DisplayName:     req.DisplayName,
		Status:          models.ConnectionPending,
		IsEnabled:       true,
		SecretReference: secretName,
		CreatedBy:       req.CreatedBy,
	}

	if err := s.repo.Create(ctx, connection); err != nil {
		// Rollback secret creation if DB fails (best effort, ignore errors)
		if s.secrets != nil && secretName != "" {
			_ = s.secrets.DeleteCredentials(ctx, secretName)
		}
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	return connection, nil
}

// GetByID retrieves a connection by ID
func (s *CredentialService) GetByID(ctx context.Context, id uuid.UUID) (*models.DestinationConnection, error) {
	return s.repo.GetByID(ctx, id)
}

// List retrieves connections for a tenant
func (s *CredentialService) List(ctx context.Context, tenantID string, opts *repository.ConnectionListOptions) ([]models.DestinationConnection, int64, error) {
	if opts == nil {
		opts = &repository.ConnectionListOptions{}
	}
	opts.TenantID = tenantID
	return s.repo.List(ctx, *opts)
}

// UpdateConnectionRequest contains the data for updating a connection
type UpdateConnectionRequest struct {
	DisplayName *string `json:"displayName,omitempty"`
	IsEnabled   *bool   `json:"isEnabled,omitempty"`
}

// Update updates a connection's settings
func (s *CredentialService) Update(ctx context.Context, id uuid.UUID, req *UpdateConnectionRequest) (*models.DestinationConnection, error) {
	connection, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		connection.DisplayName = *req.DisplayName
	}
	if req.IsEnabled != nil {
		connection.IsEnabled = *req.IsEnabled
	}

	if err := s.repo.Update(ctx, connection); err != nil {
		return nil, err
	}

	return connection, nil
}

// UpdateCredentials replaces the stored credentials for a connection and
// resets its error tracking. The connection drops back to PENDING until the
// next validation probe.
func (s *CredentialService) UpdateCredentials(ctx context.Context, id uuid.UUID, creds destination.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	connection, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if s.secrets == nil {
		return fmt.Errorf("secret manager not configured")
	}

	if err := s.secrets.StoreCredentials(ctx, connection.SecretReference, &creds); err != nil {
		return fmt.Errorf("failed to update credentials: %w", err)
	}

	connection.ShopDomain = creds.ShopDomain
	connection.Status = models.ConnectionPending
	connection.ErrorCount = 0
	connection.LastError = ""
	return s.repo.Update(ctx, connection)
}

// Validate probes the destination store with the stored credentials and
// records the outcome. Safe to call repeatedly.
func (s *CredentialService) Validate(ctx context.Context, id uuid.UUID) (*destination.StoreInfo, error) {
	connection, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	creds, err := s.GetCredentials(ctx, connection)
	if err != nil {
		return nil, err
	}

	info, err := s.store.Probe(ctx, *creds)
	if err != nil {
		var credErr *destination.CredentialError
		if errors.As(err, &credErr) && credErr.Kind == destination.CredentialInvalid {
			_ = s.repo.UpdateStatus(ctx, id, models.ConnectionError, credErr.Message)
		} else {
			_ = s.repo.UpdateStatus(ctx, id, models.ConnectionDisconnected, err.Error())
		}
		return nil, err
	}

	now := time.Now()
	connection.Status = models.ConnectionConnected
	connection.StoreName = info.Name
	connection.StoreEmail = info.Email
	connection.LastValidatedAt = &now
	connection.LastError = ""
	connection.ErrorCount = 0
	if err := s.repo.Update(ctx, connection); err != nil {
		return nil, err
	}

	s.logger.Info("destination store validated",
		zap.String("connectionId", id.String()),
		zap.String("shopDomain", connection.ShopDomain),
		zap.String("storeName", info.Name))

	return info, nil
}

// Delete deletes a connection and its stored credentials
func (s *CredentialService) Delete(ctx context.Context, id uuid.UUID) error {
	connection, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if s.secrets != nil && connection.SecretReference != "" {
		if err := s.secrets.DeleteCredentials(ctx, connection.SecretReference); err != nil {
			s.logger.Warn("failed to delete secret", zap.Error(err))
		}
	}

	return s.repo.Delete(ctx, id)
}

// GetCredentials retrieves the stored credentials for a connection
func (s *CredentialService) GetCredentials(ctx context.Context, connection *models.DestinationConnection) (*destination.Credentials, error) {
	if s.secrets == nil {
		return nil, fmt.Errorf("secret manager not configured")
	}

	creds, err := s.secrets.GetCredentials(ctx, connection.SecretReference)
	if err != nil {
		return nil, &destination.CredentialError{
			Kind:    destination.CredentialNetworkUnavailable,
			Message: "could not retrieve stored credentials",
			Err:     err,
		}
	}

	return creds, nil
}
