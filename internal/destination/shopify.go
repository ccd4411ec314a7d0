package destination

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ShopifyClient implements Client over the destination store's Admin API
type ShopifyClient struct {
	app    goshopify.App
	logger *zap.Logger
}

// NewShopifyClient creates the destination store adapter
func NewShopifyClient(logger *zap.Logger) *ShopifyClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShopifyClient{logger: logger}
}

func (c *ShopifyClient) adminClient(creds Credentials) (*goshopify.Client, error) {
	app := goshopify.App{
		ApiKey:    creds.APIKey,
		ApiSecret: creds.APISecret,
	}
	client, err := goshopify.NewClient(app, normalizeDomain(creds.ShopDomain), creds.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination client: %w", err)
	}
	return client, nil
}

// Probe verifies the credentials with a single shop lookup. No retries:
// the caller decides whether to re-invoke.
func (c *ShopifyClient) Probe(ctx context.Context, creds Credentials) (*StoreInfo, error) {
	client, err := c.adminClient(creds)
	if err != nil {
		return nil, &CredentialError{Kind: CredentialInvalid, Message: "invalid destination store configuration", Err: err}
	}

	shop, err := client.Shop.Get(ctx, nil)
	if err != nil {
		return nil, classifyCredentialError(err)
	}

	return &StoreInfo{
		Name:   shop.Name,
		Email:  shop.Email,
		Domain: shop.Domain,
	}, nil
}

// CreateProduct creates the merged product record in the destination store.
// Two calls with the same input create two independent products; the engine
// keeps no dedup memory.
func (c *ShopifyClient) CreateProduct(ctx context.Context, creds Credentials, input ProductInput) (*CreatedProduct, error) {
	client, err := c.adminClient(creds)
	if err != nil {
		return nil, &CloneError{Kind: CloneValidationRejected, Message: "invalid destination store configuration", Err: err}
	}

	created, err := client.Product.Create(ctx, toShopifyProduct(input))
	if err != nil {
		return nil, classifyCloneError(err)
	}

	handle := created.Handle
	if handle == "" {
		handle = input.Handle
	}
	result := &CreatedProduct{
		ProductID:  strconv.FormatUint(created.Id, 10),
		Handle:     handle,
		ProductURL: fmt.Sprintf("https://%s/products/%s", normalizeDomain(creds.ShopDomain), handle),
	}

	c.logger.Debug("created destination product",
		zap.String("productId", result.ProductID),
		zap.String("handle", handle))
	return result, nil
}

// toShopifyProduct maps the merged input onto the Admin API product shape
func toShopifyProduct(input ProductInput) goshopify.Product {
	product := goshopify.Product{
		Title:       input.Title,
		BodyHTML:    input.DescriptionHTML,
		Vendor:      input.Vendor,
		ProductType: input.ProductType,
		Handle:      input.Handle,
		Tags:        strings.Join(input.Tags, ", "),
	}

	for _, src := range input.Images {
		product.Images = append(product.Images, goshopify.Image{Src: src})
	}

	for _, opt := range input.Options {
		product.Options = append(product.Options, goshopify.ProductOption{
			Name:   opt.Name,
			Values: opt.Values,
		})
	}

	if len(input.Variants) == 0 {
		price := decimal.NewFromFloat(input.Price)
		variant := goshopify.Variant{
			Title: "Default Title",
			Price: &price,
		}
		if input.CompareAtPrice != nil {
			compareAt := decimal.NewFromFloat(*input.CompareAtPrice)
			variant.CompareAtPrice = &compareAt
		}
		product.Variants = []goshopify.Variant{variant}
		return product
	}

	for _, v := range input.Variants {
		price := decimal.NewFromFloat(v.Price)
		variant := goshopify.Variant{
			Title: v.Title,
			Sku:   v.SKU,
			Price: &price,
		}
		for i, value := range v.OptionValues {
			switch i {
			case 0:
				variant.Option1 = value
			case 1:
				variant.Option2 = value
			case 2:
				variant.Option3 = value
			}
		}
		product.Variants = append(product.Variants, variant)
	}
	return product
}

func classifyCredentialError(err error) *CredentialError {
	var respErr goshopify.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.GetStatus() == http.StatusUnauthorized || respErr.GetStatus() == http.StatusForbidden:
			return &CredentialError{Kind: CredentialInvalid, Message: "the destination store rejected the credentials", Err: err}
		case respErr.GetStatus() == http.StatusNotFound:
			return &CredentialError{Kind: CredentialInvalid, Message: "no store answers at that shop domain", Err: err}
		default:
			return &CredentialError{Kind: CredentialNetworkUnavailable, Message: "the destination store is unreachable", Err: err}
		}
	}
	return &CredentialError{Kind: CredentialNetworkUnavailable, Message: "could not reach the destination store", Err: err}
}

func classifyCloneError(err error) *CloneError {
	var rateErr goshopify.RateLimitError
	if errors.As(err, &rateErr) {
		return &CloneError{Kind: CloneRateLimited, Message: "the destination store is rate limiting product creation", Err: err}
	}
	var respErr goshopify.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.GetStatus()
		switch {
		case status == http.StatusTooManyRequests:
			return &CloneError{Kind: CloneRateLimited, Message: "the destination store is rate limiting product creation", Err: err}
		case status >= 400 && status < 500:
			return &CloneError{Kind: CloneValidationRejected, Message: "the destination store rejected the product", Err: err}
		default:
			return &CloneError{Kind: CloneNetwork, Message: "the destination store is unreachable", Err: err}
		}
	}
	return &CloneError{Kind: CloneNetwork, Message: "could not reach the destination store", Err: err}
}

func normalizeDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	return strings.TrimSuffix(domain, "/")
}
