package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"store-migration-service/internal/checkout"
	"store-migration-service/internal/models"
	"store-migration-service/internal/repository"
)

// IntegrationService binds cloned products to the checkout service. A
// product integrates at most once: repeating the call for an INTEGRATED item
// fails with ALREADY_INTEGRATED and leaves the stored checkout URL intact.
// Items whose binding failed may be retried.
type IntegrationService struct {
	repo   repository.MigrationRepositoryInterface
	binder checkout.Binder
	logger *zap.Logger
}

// NewIntegrationService creates a new integration service
func NewIntegrationService(repo repository.MigrationRepositoryInterface, binder checkout.Binder, logger *zap.Logger) *IntegrationService {
	return &IntegrationService{repo: repo, binder: binder, logger: logger}
}

// IntegrateItem binds one cloned item to checkout and persists the resulting
// checkout URL on the item.
func (s *IntegrationService) IntegrateItem(ctx context.Context, item *models.MigrationItem) (string, error) {
	switch item.Status {
	case models.ItemStatusIntegrated:
		return "", &checkout.IntegrationError{
			Kind:    checkout.IntegrationAlreadyIntegrated,
			Message: "the product is already integrated with checkout",
		}
	case models.ItemStatusCloned, models.ItemStatusIntegrationFailed:
		// eligible
	default:
		return "", &checkout.IntegrationError{
			Kind:    checkout.IntegrationNotCloned,
			Message: "only cloned products can be integrated with checkout",
		}
	}

	item.Status = models.ItemStatusIntegrating
	item.ErrorMessage = ""
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return "", err
	}

	checkoutURL, err := s.binder.Bind(ctx, item.DestinationProductID)
	if err != nil {
		item.Status = models.ItemStatusIntegrationFailed
		item.ErrorMessage = err.Error()
		_ = s.repo.UpdateItem(ctx, item)
		return "", err
	}

	now := time.Now()
	item.Status = models.ItemStatusIntegrated
	item.CheckoutURL = checkoutURL
	item.IntegratedAt = &now
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return "", err
	}

	s.logger.Info("product integrated with checkout",
		zap.String("itemId", item.ID.String()),
		zap.String("destinationProductId", item.DestinationProductID),
		zap.String("checkoutUrl", checkoutURL))

	return checkoutURL, nil
}

// IntegrationResult records the outcome of one item's binding attempt
type IntegrationResult struct {
	ItemID      uuid.UUID `json:"itemId"`
	CheckoutURL string    `json:"checkoutUrl,omitempty"`
	Error       string    `json:"error,omitempty"`
	ErrorKind   string    `json:"errorKind,omitempty"`
}

// IntegrateSelected binds each selected item of a batch independently. One
// item's failure never stops the rest; every selected item gets a result.
func (s *IntegrationService) IntegrateSelected(ctx context.Context, batchID uuid.UUID, itemIDs []uuid.UUID) ([]IntegrationResult, error) {
	items, err := s.repo.GetItemsByIDs(ctx, batchID, itemIDs)
	if err != nil {
		return nil, err
	}

	found := make(map[uuid.UUID]*models.MigrationItem, len(items))
	for i := range items {
		found[items[i].ID] = &items[i]
	}

	results := make([]IntegrationResult, 0, len(itemIDs))
	for _, id := range itemIDs {
		item, ok := found[id]
		if !ok {
			results = append(results, IntegrationResult{
				ItemID: id,
				Error:  "item not found in batch",
			})
			continue
		}

		checkoutURL, err := s.IntegrateItem(ctx, item)
		result := IntegrationResult{ItemID: id, CheckoutURL: checkoutURL}
		if err != nil {
			result.Error = err.Error()
			if intErr, ok := err.(*checkout.IntegrationError); ok {
				result.ErrorKind = string(intErr.Kind)
			}
		}
		results = append(results, result)
	}

	return results, nil
}

// SelectForIntegration returns the batch items eligible for checkout binding
func (s *IntegrationService) SelectForIntegration(ctx context.Context, batchID uuid.UUID) ([]models.MigrationItem, error) {
	items, _, err := s.repo.GetBatchItems(ctx, batchID, repository.ItemListOptions{})
	if err != nil {
		return nil, err
	}

	eligible := make([]models.MigrationItem, 0, len(items))
	for _, item := range items {
		if item.Status == models.ItemStatusCloned || item.Status == models.ItemStatusIntegrationFailed {
			eligible = append(eligible, item)
		}
	}
	return eligible, nil
}
