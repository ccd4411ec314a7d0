package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"store-migration-service/internal/destination"
	"store-migration-service/internal/models"
)

// trackingSecrets records what was stored and deleted
type trackingSecrets struct {
	mu      sync.Mutex
	stored  map[string]destination.Credentials
	deleted []string
}

func newTrackingSecrets() *trackingSecrets {
	return &trackingSecrets{stored: make(map[string]destination.Credentials)}
}

func (f *trackingSecrets) BuildSecretName(tenantID, connectionID string) string {
	return fmt.Sprintf("projects/test/secrets/%s-destination-%s", tenantID, connectionID)
}

func (f *trackingSecrets) GetCredentials(ctx context.Context, secretName string) (*destination.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	creds, ok := f.stored[secretName]
	if !ok {
		return nil, fmt.Errorf("secret not found")
	}
	return &creds, nil
}

func (f *trackingSecrets) StoreCredentials(ctx context.Context, secretName string, creds *destination.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[secretName] = *creds
	return nil
}

func (f *trackingSecrets) DeleteCredentials(ctx context.Context, secretName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.stored, secretName)
	f.deleted = append(f.deleted, secretName)
	return nil
}

// probeStore is a destination client with a scripted probe outcome
type probeStore struct {
	info *destination.StoreInfo
	err  error
}

var _ destination.Client = (*probeStore)(nil)

func (p *probeStore) Probe(ctx context.Context, creds destination.Credentials) (*destination.StoreInfo, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.info, nil
}

func (p *probeStore) CreateProduct(ctx context.Context, creds destination.Credentials, input destination.ProductInput) (*destination.CreatedProduct, error) {
	return nil, fmt.Errorf("not implemented")
}

func validCredentials() destination.Credentials {
	return destination.Credentials{
		ShopDomain:  "dest-store.myshopify.com",
		APIKey:      "key",
		APISecret:   "secret",
		AccessToken: "token",
	}
}

func TestCredentialService_Create(t *testing.T) {
	connRepo := new(MockConnectionRepository)
	connRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.DestinationConnection")).Return(nil)

	provider := newTrackingSecrets()
	svc := NewCredentialService(connRepo, provider, &probeStore{}, zap.NewNop())

	connection, err := svc.Create(context.Background(), &CreateConnectionRequest{
		TenantID:    "tenant-1",
		DisplayName: "Main store",
		Credentials: validCredentials(),
	})
	require.NoError(t, err)

	assert.Equal(t, models.ConnectionPending, connection.Status)
	assert.True(t, connection.IsEnabled)
	assert.Equal(t, "dest-store.myshopify.com", connection.ShopDomain)
	assert.NotEmpty(t, connection.SecretReference)

	// The raw credentials went to the secret store, not the database row
	_, ok := provider.stored[connection.SecretReference]
	assert.True(t, ok)
	connRepo.AssertExpectations(t)
}

func TestCredentialService_Create_RejectsIncompleteCredentials(t *testing.T) {
	connRepo := new(MockConnectionRepository)
	svc := NewCredentialService(connRepo, newTrackingSecrets(), &probeStore{}, zap.NewNop())

	creds := validCredentials()
	creds.APIKey = ""
	creds.AccessToken = ""

	_, err := svc.Create(context.Background(), &CreateConnectionRequest{
		TenantID:    "tenant-1",
		Credentials: creds,
	})
	require.Error(t, err)

	credErr, ok := err.(*destination.CredentialError)
	require.True(t, ok)
	assert.Equal(t, destination.CredentialInvalid, credErr.Kind)
	assert.Contains(t, credErr.Message, "apiKey")
	assert.Contains(t, credErr.Message, "accessToken")

	connRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCredentialService_Create_RollsBackSecretOnDatabaseFailure(t *testing.T) {
	connRepo := new(MockConnectionRepository)
	connRepo.On("Create", mock.Anything, mock.Anything).Return(fmt.Errorf("insert failed"))

	provider := newTrackingSecrets()
	svc := NewCredentialService(connRepo, provider, &probeStore{}, zap.NewNop())

	_, err := svc.Create(context.Background(), &CreateConnectionRequest{
		TenantID:    "tenant-1",
		Credentials: validCredentials(),
	})
	require.Error(t, err)

	require.Len(t, provider.deleted, 1)
	assert.Empty(t, provider.stored)
}

func TestCredentialService_Validate(t *testing.T) {
	connectionID := uuid.New()
	connection := &models.DestinationConnection{
		ID:              connectionID,
		TenantID:        "tenant-1",
		ShopDomain:      "dest-store.myshopify.com",
		Status:          models.ConnectionPending,
		SecretReference: "projects/test/secrets/tenant-1-destination-x",
	}

	connRepo := new(MockConnectionRepository)
	connRepo.On("GetByID", mock.Anything, connectionID).Return(connection, nil)
	var updated *models.DestinationConnection
	connRepo.On("Update", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		updated = args.Get(1).(*models.DestinationConnection)
	}).Return(nil)

	provider := newTrackingSecrets()
	creds := validCredentials()
	require.NoError(t, provider.StoreCredentials(context.Background(), connection.SecretReference, &creds))

	store := &probeStore{info: &destination.StoreInfo{Name: "My Store", Email: "owner@example.com"}}
	svc := NewCredentialService(connRepo, provider, store, zap.NewNop())

	info, err := svc.Validate(context.Background(), connectionID)
	require.NoError(t, err)
	assert.Equal(t, "My Store", info.Name)

	require.NotNil(t, updated)
	assert.Equal(t, models.ConnectionConnected, updated.Status)
	assert.Equal(t, "My Store", updated.StoreName)
	assert.Equal(t, "owner@example.com", updated.StoreEmail)
	require.NotNil(t, updated.LastValidatedAt)
	assert.Zero(t, updated.ErrorCount)

	// Validation is idempotent: probing an already connected store again
	// yields the same outcome
	info, err = svc.Validate(context.Background(), connectionID)
	require.NoError(t, err)
	assert.Equal(t, "My Store", info.Name)
	assert.Equal(t, models.ConnectionConnected, updated.Status)
}

func TestCredentialService_Validate_InvalidCredentials(t *testing.T) {
	connectionID := uuid.New()
	connection := &models.DestinationConnection{
		ID:              connectionID,
		TenantID:        "tenant-1",
		Status:          models.ConnectionPending,
		SecretReference: "projects/test/secrets/tenant-1-destination-x",
	}

	connRepo := new(MockConnectionRepository)
	connRepo.On("GetByID", mock.Anything, connectionID).Return(connection, nil)
	connRepo.On("UpdateStatus", mock.Anything, connectionID, models.ConnectionError, mock.AnythingOfType("string")).Return(nil)

	provider := newTrackingSecrets()
	creds := validCredentials()
	require.NoError(t, provider.StoreCredentials(context.Background(), connection.SecretReference, &creds))

	store := &probeStore{err: &destination.CredentialError{
		Kind:    destination.CredentialInvalid,
		Message: "the store rejected the credentials",
	}}
	svc := NewCredentialService(connRepo, provider, store, zap.NewNop())

	_, err := svc.Validate(context.Background(), connectionID)
	require.Error(t, err)

	credErr, ok := err.(*destination.CredentialError)
	require.True(t, ok)
	assert.Equal(t, destination.CredentialInvalid, credErr.Kind)
	connRepo.AssertExpectations(t)
}

func TestCredentialService_Validate_NetworkFailure(t *testing.T) {
	connectionID := uuid.New()
	connection := &models.DestinationConnection{
		ID:              connectionID,
		TenantID:        "tenant-1",
		Status:          models.ConnectionConnected,
		SecretReference: "projects/test/secrets/tenant-1-destination-x",
	}

	connRepo := new(MockConnectionRepository)
	connRepo.On("GetByID", mock.Anything, connectionID).Return(connection, nil)
	connRepo.On("UpdateStatus", mock.Anything, connectionID, models.ConnectionDisconnected, mock.AnythingOfType("string")).Return(nil)

	provider := newTrackingSecrets()
	creds := validCredentials()
	require.NoError(t, provider.StoreCredentials(context.Background(), connection.SecretReference, &creds))

	store := &probeStore{err: &destination.CredentialError{
		Kind:    destination.CredentialNetworkUnavailable,
		Message: "could not reach the store",
	}}
	svc := NewCredentialService(connRepo, provider, store, zap.NewNop())

	_, err := svc.Validate(context.Background(), connectionID)
	require.Error(t, err)
	connRepo.AssertExpectations(t)
}

func TestCredentialService_GetCredentials_WrapsProviderFailure(t *testing.T) {
	connection := &models.DestinationConnection{
		ID:              uuid.New(),
		SecretReference: "projects/test/secrets/missing",
	}

	svc := NewCredentialService(new(MockConnectionRepository), newTrackingSecrets(), &probeStore{}, zap.NewNop())

	_, err := svc.GetCredentials(context.Background(), connection)
	require.Error(t, err)

	credErr, ok := err.(*destination.CredentialError)
	require.True(t, ok)
	assert.Equal(t, destination.CredentialNetworkUnavailable, credErr.Kind)
}

func TestCredentialService_UpdateCredentials_ResetsToPending(t *testing.T) {
	connectionID := uuid.New()
	connection := &models.DestinationConnection{
		ID:              connectionID,
		TenantID:        "tenant-1",
		ShopDomain:      "dest-store.myshopify.com",
		Status:          models.ConnectionError,
		ErrorCount:      3,
		LastError:       "the store rejected the credentials",
		SecretReference: "projects/test/secrets/tenant-1-destination-x",
	}

	connRepo := new(MockConnectionRepository)
	connRepo.On("GetByID", mock.Anything, connectionID).Return(connection, nil)
	var updated *models.DestinationConnection
	connRepo.On("Update", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		updated = args.Get(1).(*models.DestinationConnection)
	}).Return(nil)

	provider := newTrackingSecrets()
	svc := NewCredentialService(connRepo, provider, &probeStore{}, zap.NewNop())

	newCreds := validCredentials()
	newCreds.ShopDomain = "new-store.myshopify.com"
	require.NoError(t, svc.UpdateCredentials(context.Background(), connectionID, newCreds))

	require.NotNil(t, updated)
	assert.Equal(t, models.ConnectionPending, updated.Status)
	assert.Equal(t, "new-store.myshopify.com", updated.ShopDomain)
	assert.Zero(t, updated.ErrorCount)
	assert.Empty(t, updated.LastError)

	stored, err := provider.GetCredentials(context.Background(), connection.SecretReference)
	require.NoError(t, err)
	assert.Equal(t, "new-store.myshopify.com", stored.ShopDomain)
}
