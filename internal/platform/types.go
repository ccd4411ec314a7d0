package platform

import (
	"context"

	"store-migration-service/internal/models"
)

// SourceClient is the capability every discovery strategy implements. The
// API and scraping strategies are interchangeable: callers never branch on
// which one ran, the access method is carried for diagnostics only.
type SourceClient interface {
	// Method returns the access method this strategy uses
	Method() models.AccessMethod

	// FetchProduct resolves one product URL into its canonical data
	FetchProduct(ctx context.Context, productURL string) (*SourceProduct, error)

	// CountProducts sizes a storefront without fetching every product
	CountProducts(ctx context.Context, storeURL string) (int, error)

	// ListProducts enumerates a storefront page by page
	ListProducts(ctx context.Context, storeURL string, opts ListOptions) (*ProductPage, error)
}

// Resolver selects the strategy for a classified source URL
type Resolver interface {
	ClientFor(classification Classification) (SourceClient, error)
}

// Classification is the resolved platform/strategy for a source URL
type Classification struct {
	PlatformDetected bool                `json:"platformDetected"`
	Method           models.AccessMethod `json:"accessMethod"`
}

// ListOptions contains pagination options for storefront enumeration
type ListOptions struct {
	Limit int
	Page  int
}

// ProductPage contains one page of storefront products
type ProductPage struct {
	Products []SourceProduct
	HasMore  bool
	NextPage int
}

// SourceProduct is the canonical representation of a third-party product.
// Invariant: Images is non-empty for any product returned by a strategy.
type SourceProduct struct {
	ExternalID      string          `json:"externalId"`
	Title           string          `json:"title"`
	DescriptionHTML string          `json:"descriptionHtml,omitempty"`
	Price           float64         `json:"price"`
	CompareAtPrice  *float64        `json:"compareAtPrice,omitempty"`
	Images          []string        `json:"images"`
	Variants        []SourceVariant `json:"variants,omitempty"`
	Options         []SourceOption  `json:"options,omitempty"`
	Vendor          string          `json:"vendor,omitempty"`
	ProductType     string          `json:"productType,omitempty"`
	Handle          string          `json:"handle,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	SourceURL       string          `json:"sourceUrl"`
}

// SourceVariant is one purchasable variant of a source product
type SourceVariant struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Price        float64  `json:"price"`
	Available    bool     `json:"available"`
	SKU          string   `json:"sku,omitempty"`
	OptionValues []string `json:"optionValues,omitempty"`
}

// SourceOption is a product option axis (e.g. Size, Color)
type SourceOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// StrategyResolver holds one client per access method
type StrategyResolver struct {
	api    SourceClient
	scrape SourceClient
}

// NewResolver creates a resolver over the API and scraping strategies
func NewResolver(api, scrape SourceClient) *StrategyResolver {
	return &StrategyResolver{api: api, scrape: scrape}
}

// ClientFor returns the strategy for a classification
func (r *StrategyResolver) ClientFor(classification Classification) (SourceClient, error) {
	if !classification.PlatformDetected {
		return nil, NewUnsupportedError("")
	}
	switch classification.Method {
	case models.AccessMethodAPI:
		return r.api, nil
	case models.AccessMethodScraping:
		return r.scrape, nil
	default:
		return nil, NewUnsupportedError("")
	}
}
