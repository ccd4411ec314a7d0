package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"store-migration-service/internal/models"
)

var (
	ldJSONPattern        = regexp.MustCompile(`(?s)<script[^>]+type="application/ld\+json"[^>]*>(.*?)</script>`)
	productAnchorPattern = regexp.MustCompile(`href="[^"]*/(?:products|produto)/([a-zA-Z0-9][a-zA-Z0-9\-_%]*)`)
)

// ScrapeClient is the fallback discovery strategy for storefronts on custom
// domains where no structured API is reachable. It reads the product page's
// embedded structured data. Slower than the API strategy and throttled
// harder to stay polite.
type ScrapeClient struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	retrier     *Retrier
	breaker     *CircuitBreaker
}

// NewScrapeClient creates the scraping fallback strategy
func NewScrapeClient(requestsPerSecond float64) *ScrapeClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &ScrapeClient{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		retrier:     NewRetrier(DefaultRetryConfig()),
		breaker:     NewCircuitBreaker(5, time.Minute),
	}
}

// Method returns the access method of this strategy
func (c *ScrapeClient) Method() models.AccessMethod {
	return models.AccessMethodScraping
}

// FetchProduct resolves one product URL. It first tries the storefront's
// JSON endpoint (many custom-domain stores still expose it), then falls back
// to the embedded ld+json structured data on the page itself.
func (c *ScrapeClient) FetchProduct(ctx context.Context, productURL string) (*SourceProduct, error) {
	if base, handle, err := productHandle(productURL); err == nil {
		if body, err := c.get(ctx, fmt.Sprintf("%s/products/%s.json", base, handle), "application/json"); err == nil {
			var response struct {
				Product storefrontProduct `json:"product"`
			}
			if json.Unmarshal(body, &response) == nil && response.Product.Title != "" {
				return convertStorefrontProduct(response.Product, productURL)
			}
		}
	}

	body, err := c.get(ctx, productURL, "text/html")
	if err != nil {
		return nil, err
	}
	return parseEmbeddedProduct(body, productURL)
}

// CountProducts walks the catalog pages counting distinct product links
func (c *ScrapeClient) CountProducts(ctx context.Context, storeURL string) (int, error) {
	handles, err := c.collectHandles(ctx, storeURL, 0)
	if err != nil {
		return 0, err
	}
	return len(handles), nil
}

// ListProducts enumerates a storefront page. Each listed handle costs one
// page fetch, which is what makes this strategy the slow path.
func (c *ScrapeClient) ListProducts(ctx context.Context, storeURL string, opts ListOptions) (*ProductPage, error) {
	base, err := storeBase(storeURL)
	if err != nil {
		return nil, malformedError("unparseable store URL", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}

	handles, err := c.collectHandles(ctx, storeURL, page*limit)
	if err != nil {
		return nil, err
	}

	start := (page - 1) * limit
	if start >= len(handles) {
		return &ProductPage{HasMore: false, NextPage: page + 1}, nil
	}
	end := start + limit
	if end > len(handles) {
		end = len(handles)
	}

	products := make([]SourceProduct, 0, end-start)
	for _, handle := range handles[start:end] {
		productURL := fmt.Sprintf("%s/products/%s", base, handle)
		product, err := c.FetchProduct(ctx, productURL)
		if err != nil {
			products = append(products, SourceProduct{Handle: handle, SourceURL: productURL})
			continue
		}
		products = append(products, *product)
	}

	return &ProductPage{
		Products: products,
		HasMore:  end < len(handles),
		NextPage: page + 1,
	}, nil
}

// collectHandles pages through /collections/all gathering product handles in
// page order. A want of 0 means exhaustive.
func (c *ScrapeClient) collectHandles(ctx context.Context, storeURL string, want int) ([]string, error) {
	base, err := storeBase(storeURL)
	if err != nil {
		return nil, malformedError("unparseable store URL", err)
	}

	seen := make(map[string]bool)
	var handles []string
	for page := 1; page <= maxScanPages; page++ {
		body, err := c.get(ctx, fmt.Sprintf("%s/collections/all?page=%d", base, page), "text/html")
		if err != nil {
			if page == 1 {
				return nil, err
			}
			break
		}

		added := 0
		for _, match := range productAnchorPattern.FindAllStringSubmatch(string(body), -1) {
			handle := match[1]
			if !seen[handle] {
				seen[handle] = true
				handles = append(handles, handle)
				added++
			}
		}
		if added == 0 {
			break
		}
		if want > 0 && len(handles) >= want {
			break
		}
	}
	return handles, nil
}

// ldProduct is the schema.org Product subset embedded in storefront pages
type ldProduct struct {
	Type        string          `json:"@type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	SKU         string          `json:"sku"`
	Brand       json.RawMessage `json:"brand"`
	Image       json.RawMessage `json:"image"`
	Offers      json.RawMessage `json:"offers"`
}

type ldOffer struct {
	Price        json.Number `json:"price"`
	Availability string      `json:"availability"`
}

// parseEmbeddedProduct extracts the ld+json Product block from a page
func parseEmbeddedProduct(body []byte, sourceURL string) (*SourceProduct, error) {
	for _, match := range ldJSONPattern.FindAllSubmatch(body, -1) {
		var candidate ldProduct
		if err := json.Unmarshal(match[1], &candidate); err != nil {
			continue
		}
		if !strings.EqualFold(candidate.Type, "Product") {
			continue
		}
		return convertLDProduct(candidate, sourceURL)
	}
	return nil, malformedError("the page carries no recognizable product data", nil)
}

func convertLDProduct(ld ldProduct, sourceURL string) (*SourceProduct, error) {
	if ld.Name == "" {
		return nil, malformedError("the page carries no recognizable product data", nil)
	}

	images := decodeStringOrList(ld.Image)
	if len(images) == 0 {
		return nil, malformedError(fmt.Sprintf("product %q has no images", ld.Name), nil)
	}

	price, available := decodeOffer(ld.Offers)

	_, handle, _ := productHandle(sourceURL)
	product := &SourceProduct{
		ExternalID:      handle,
		Title:           ld.Name,
		DescriptionHTML: ld.Description,
		Price:           price,
		Images:          images,
		Vendor:          decodeBrand(ld.Brand),
		Handle:          handle,
		SourceURL:       sourceURL,
		Variants: []SourceVariant{{
			ID:        handle,
			Title:     ld.Name,
			Price:     price,
			Available: available,
			SKU:       ld.SKU,
		}},
	}
	return product, nil
}

func decodeStringOrList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if json.Unmarshal(raw, &single) == nil && single != "" {
		return []string{single}
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		var out []string
		for _, s := range list {
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func decodeOffer(raw json.RawMessage) (price float64, available bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var offer ldOffer
	if json.Unmarshal(raw, &offer) != nil {
		var offers []ldOffer
		if json.Unmarshal(raw, &offers) != nil || len(offers) == 0 {
			return 0, false
		}
		offer = offers[0]
	}
	price, _ = offer.Price.Float64()
	available = strings.Contains(strings.ToLower(offer.Availability), "instock")
	return price, available
}

func decodeBrand(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var name string
	if json.Unmarshal(raw, &name) == nil {
		return name
	}
	var obj struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Name
	}
	return ""
}

// get performs a rate-limited GET with the retrier's backoff discipline
func (c *ScrapeClient) get(ctx context.Context, rawURL string, accept string) ([]byte, error) {
	if !c.breaker.Allow() {
		return nil, networkError("the source store is temporarily unreachable", nil)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retrier.MaxRetries(); attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, networkError("request cancelled", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, malformedError("invalid request URL", err)
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", "store-migration-service/1.0")

		resp, err := c.httpClient.Do(req)
		if err == nil {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case readErr == nil && resp.StatusCode >= 200 && resp.StatusCode < 300:
				c.breaker.RecordSuccess()
				return body, nil
			case resp.StatusCode == http.StatusNotFound:
				c.breaker.RecordSuccess()
				return nil, malformedError("the store has no such page", nil)
			case !c.retrier.ShouldRetry(resp.StatusCode, nil):
				c.breaker.RecordFailure()
				return nil, networkError("the source store rejected the request "+strconv.Itoa(resp.StatusCode), nil)
			default:
				lastErr = fmt.Errorf("storefront returned HTTP %d", resp.StatusCode)
			}
		} else {
			lastErr = err
		}

		if attempt < c.retrier.MaxRetries() {
			select {
			case <-ctx.Done():
				return nil, networkError("request cancelled", ctx.Err())
			case <-time.After(c.retrier.Backoff(attempt, 0)):
			}
		}
	}

	c.breaker.RecordFailure()
	return nil, networkError("could not reach the source store", lastErr)
}
