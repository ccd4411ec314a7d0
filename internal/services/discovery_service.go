package services

import (
	"context"

	"go.uber.org/zap"

	"store-migration-service/internal/models"
	"store-migration-service/internal/platform"
)

// DiscoveryService classifies source storefronts and discovers their
// products through the matching access strategy.
type DiscoveryService struct {
	resolver platform.Resolver
	logger   *zap.Logger
}

// NewDiscoveryService creates a new discovery service
func NewDiscoveryService(resolver platform.Resolver, logger *zap.Logger) *DiscoveryService {
	return &DiscoveryService{resolver: resolver, logger: logger}
}

// Classify inspects a source URL without any network traffic
func (s *DiscoveryService) Classify(rawURL string) platform.Classification {
	return platform.Classify(rawURL)
}

// FetchProduct classifies the URL and fetches one product through the
// selected strategy
func (s *DiscoveryService) FetchProduct(ctx context.Context, rawURL string) (*platform.SourceProduct, models.AccessMethod, error) {
	classification := platform.Classify(rawURL)

	client, err := s.resolver.ClientFor(classification)
	if err != nil {
		return nil, models.AccessMethodUnknown, err
	}

	product, err := client.FetchProduct(ctx, rawURL)
	if err != nil {
		s.logger.Debug("product fetch failed",
			zap.String("url", rawURL),
			zap.String("method", string(client.Method())),
			zap.Error(err))
		return nil, client.Method(), err
	}

	return product, client.Method(), nil
}

// StorefrontSize is the result of a storefront scan
type StorefrontSize struct {
	StoreURL     string              `json:"storeUrl"`
	AccessMethod models.AccessMethod `json:"accessMethod"`
	ProductCount int                 `json:"productCount"`
}

// DiscoverStorefrontSize counts the products a storefront exposes. The count
// reflects what the strategy can see, not necessarily the store's full
// catalog.
func (s *DiscoveryService) DiscoverStorefrontSize(ctx context.Context, storeURL string) (*StorefrontSize, error) {
	classification := platform.Classify(storeURL)

	client, err := s.resolver.ClientFor(classification)
	if err != nil {
		return nil, err
	}

	count, err := client.CountProducts(ctx, storeURL)
	if err != nil {
		return nil, err
	}

	s.logger.Info("storefront scanned",
		zap.String("storeUrl", storeURL),
		zap.String("method", string(client.Method())),
		zap.Int("productCount", count))

	return &StorefrontSize{
		StoreURL:     storeURL,
		AccessMethod: client.Method(),
		ProductCount: count,
	}, nil
}

// ListProducts pages through the storefront's products via the selected
// strategy
func (s *DiscoveryService) ListProducts(ctx context.Context, storeURL string, opts platform.ListOptions) (*platform.ProductPage, models.AccessMethod, error) {
	classification := platform.Classify(storeURL)

	client, err := s.resolver.ClientFor(classification)
	if err != nil {
		return nil, models.AccessMethodUnknown, err
	}

	page, err := client.ListProducts(ctx, storeURL, opts)
	if err != nil {
		return nil, client.Method(), err
	}

	return page, client.Method(), nil
}
