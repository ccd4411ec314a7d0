package services

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"store-migration-service/internal/destination"
	"store-migration-service/internal/models"
	"store-migration-service/internal/platform"
)

// CloneOverrides are the operator-supplied fields applied on top of a
// discovered product before submission. Nil fields fall through to the
// discovered values.
type CloneOverrides struct {
	Title          *string  `json:"title,omitempty"`
	Description    *string  `json:"description,omitempty"`
	Price          *float64 `json:"price,omitempty"`
	CompareAtPrice *float64 `json:"compareAtPrice,omitempty"`
	Vendor         *string  `json:"vendor,omitempty"`
	ProductType    *string  `json:"productType,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

// OverridesFromJSONB decodes batch-level overrides stored as JSONB
func OverridesFromJSONB(data models.JSONB) (*CloneOverrides, error) {
	if len(data) == 0 {
		return &CloneOverrides{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var overrides CloneOverrides
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return nil, err
	}
	return &overrides, nil
}

// CloneService submits discovered products to the destination store. Each
// call is one attempt against the destination; it never retries and never
// checks for duplicates, so cloning the same product twice creates two
// destination products.
type CloneService struct {
	store  destination.Client
	logger *zap.Logger
}

// NewCloneService creates a new clone service
func NewCloneService(store destination.Client, logger *zap.Logger) *CloneService {
	return &CloneService{store: store, logger: logger}
}

// Clone merges the discovered product with the overrides and creates the
// result in the destination store.
func (s *CloneService) Clone(ctx context.Context, creds destination.Credentials, product *platform.SourceProduct, overrides *CloneOverrides) (*destination.CreatedProduct, error) {
	input := mergeProduct(product, overrides)

	created, err := s.store.CreateProduct(ctx, creds, input)
	if err != nil {
		return nil, err
	}

	s.logger.Info("product cloned",
		zap.String("sourceId", product.ExternalID),
		zap.String("destinationId", created.ProductID),
		zap.String("title", input.Title))

	return created, nil
}

// mergeProduct builds the destination submission from the discovered product
// and the overrides. Variant prices follow a product-level price override so
// the storefront shows a consistent price.
func mergeProduct(product *platform.SourceProduct, overrides *CloneOverrides) destination.ProductInput {
	if overrides == nil {
		overrides = &CloneOverrides{}
	}

	input := destination.ProductInput{
		Title:           product.Title,
		DescriptionHTML: product.DescriptionHTML,
		Price:           product.Price,
		CompareAtPrice:  product.CompareAtPrice,
		Images:          product.Images,
		Variants:        product.Variants,
		Options:         product.Options,
		Vendor:          product.Vendor,
		ProductType:     product.ProductType,
		Handle:          product.Handle,
		Tags:            product.Tags,
	}

	if overrides.Title != nil {
		input.Title = *overrides.Title
	}
	if overrides.Description != nil {
		input.DescriptionHTML = *overrides.Description
	}
	if overrides.Price != nil {
		input.Price = *overrides.Price
		variants := make([]platform.SourceVariant, len(input.Variants))
		copy(variants, input.Variants)
		for i := range variants {
			variants[i].Price = *overrides.Price
		}
		input.Variants = variants
	}
	if overrides.CompareAtPrice != nil {
		input.CompareAtPrice = overrides.CompareAtPrice
	}
	if overrides.Vendor != nil {
		input.Vendor = *overrides.Vendor
	}
	if overrides.ProductType != nil {
		input.ProductType = *overrides.ProductType
	}
	if len(overrides.Tags) > 0 {
		input.Tags = overrides.Tags
	}

	return input
}
