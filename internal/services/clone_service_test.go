package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"store-migration-service/internal/destination"
	"store-migration-service/internal/models"
	"store-migration-service/internal/platform"
)

func discoveredProduct() *platform.SourceProduct {
	compareAt := 59.90
	return &platform.SourceProduct{
		ExternalID:      "1001",
		Title:           "Camisa Polo",
		DescriptionHTML: "<p>Classic polo shirt</p>",
		Price:           49.90,
		CompareAtPrice:  &compareAt,
		Images:          []string{"https://cdn.example.com/polo-1.jpg"},
		Variants: []platform.SourceVariant{
			{ID: "v1", Title: "P", Price: 49.90, Available: true},
			{ID: "v2", Title: "M", Price: 52.90, Available: true},
		},
		Vendor:      "Acme",
		ProductType: "Shirts",
		Handle:      "camisa-polo",
		Tags:        []string{"polo", "summer"},
		SourceURL:   "https://demo-store.myshopify.com/products/camisa-polo",
	}
}

func TestMergeProduct_NoOverrides(t *testing.T) {
	product := discoveredProduct()

	input := mergeProduct(product, nil)

	assert.Equal(t, product.Title, input.Title)
	assert.Equal(t, product.Price, input.Price)
	assert.Equal(t, product.Variants, input.Variants)
	assert.Equal(t, product.Tags, input.Tags)
}

func TestMergeProduct_Overrides(t *testing.T) {
	product := discoveredProduct()
	title := "Camisa Polo Premium"
	price := 79.90
	vendor := "Rebrand Co"

	input := mergeProduct(product, &CloneOverrides{
		Title:  &title,
		Price:  &price,
		Vendor: &vendor,
		Tags:   []string{"premium"},
	})

	assert.Equal(t, "Camisa Polo Premium", input.Title)
	assert.Equal(t, 79.90, input.Price)
	assert.Equal(t, "Rebrand Co", input.Vendor)
	assert.Equal(t, []string{"premium"}, input.Tags)

	// Fields without an override fall through to the discovered values
	assert.Equal(t, product.DescriptionHTML, input.DescriptionHTML)
	assert.Equal(t, product.ProductType, input.ProductType)

	// A price override propagates to every variant
	for _, variant := range input.Variants {
		assert.Equal(t, 79.90, variant.Price)
	}
	// without mutating the discovered product
	assert.Equal(t, 49.90, product.Variants[0].Price)
	assert.Equal(t, 52.90, product.Variants[1].Price)
}

func TestOverridesFromJSONB(t *testing.T) {
	overrides, err := OverridesFromJSONB(models.JSONB{
		"title": "Renamed",
		"price": 12.5,
		"tags":  []interface{}{"a", "b"},
	})
	require.NoError(t, err)
	require.NotNil(t, overrides.Title)
	assert.Equal(t, "Renamed", *overrides.Title)
	require.NotNil(t, overrides.Price)
	assert.Equal(t, 12.5, *overrides.Price)
	assert.Equal(t, []string{"a", "b"}, overrides.Tags)

	empty, err := OverridesFromJSONB(nil)
	require.NoError(t, err)
	assert.Nil(t, empty.Title)
	assert.Nil(t, empty.Price)
}

func TestCloneService_CloningTwiceCreatesTwoProducts(t *testing.T) {
	store := &fakeStore{}
	svc := NewCloneService(store, zap.NewNop())
	creds := destination.Credentials{ShopDomain: "dest-store.myshopify.com", APIKey: "k", APISecret: "s", AccessToken: "t"}
	product := discoveredProduct()

	first, err := svc.Clone(context.Background(), creds, product, nil)
	require.NoError(t, err)
	second, err := svc.Clone(context.Background(), creds, product, nil)
	require.NoError(t, err)

	// No dedup: every call is a fresh create in the destination store
	assert.Equal(t, 2, store.createCount())
	assert.NotEqual(t, first.ProductID, second.ProductID)
}

func TestCloneService_PropagatesStoreError(t *testing.T) {
	store := &fakeStore{failOn: map[int]error{
		1: &destination.CloneError{Kind: destination.CloneRateLimited, Message: "throttled"},
	}}
	svc := NewCloneService(store, zap.NewNop())
	creds := destination.Credentials{ShopDomain: "dest-store.myshopify.com", APIKey: "k", APISecret: "s", AccessToken: "t"}

	_, err := svc.Clone(context.Background(), creds, discoveredProduct(), nil)
	require.Error(t, err)

	cloneErr, ok := err.(*destination.CloneError)
	require.True(t, ok)
	assert.Equal(t, destination.CloneRateLimited, cloneErr.Kind)
	assert.True(t, cloneErr.Retryable())
}
