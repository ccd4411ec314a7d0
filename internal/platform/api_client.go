package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"store-migration-service/internal/models"
)

const (
	defaultPageLimit = 250
	maxScanPages     = 200
)

// APIClient is the structured-API discovery strategy used for first-party
// platform subdomains. It reads the storefront's JSON product endpoints.
type APIClient struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	retrier     *Retrier
	breaker     *CircuitBreaker
}

// NewAPIClient creates the structured-API strategy
func NewAPIClient(requestsPerSecond float64) *APIClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 4
	}
	return &APIClient{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		retrier:     NewRetrier(DefaultRetryConfig()),
		breaker:     NewCircuitBreaker(5, 30*time.Second),
	}
}

// Method returns the access method of this strategy
func (c *APIClient) Method() models.AccessMethod {
	return models.AccessMethodAPI
}

// FetchProduct resolves one product URL via <store>/products/<handle>.json
func (c *APIClient) FetchProduct(ctx context.Context, productURL string) (*SourceProduct, error) {
	base, handle, err := productHandle(productURL)
	if err != nil {
		return nil, malformedError("the URL does not point at a product", err)
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/products/%s.json", base, handle), nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Product storefrontProduct `json:"product"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, malformedError("unexpected product payload shape", err)
	}
	return convertStorefrontProduct(response.Product, productURL)
}

// CountProducts sizes the storefront by paging through id-only product
// listings, so the orchestrator can set its total before a full clone.
func (c *APIClient) CountProducts(ctx context.Context, storeURL string) (int, error) {
	base, err := storeBase(storeURL)
	if err != nil {
		return 0, malformedError("unparseable store URL", err)
	}

	count := 0
	for page := 1; page <= maxScanPages; page++ {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(defaultPageLimit))
		params.Set("page", strconv.Itoa(page))
		params.Set("fields", "id")

		body, err := c.get(ctx, base+"/products.json", params)
		if err != nil {
			return 0, err
		}

		var response struct {
			Products []struct {
				ID int64 `json:"id"`
			} `json:"products"`
		}
		if err := json.Unmarshal(body, &response); err != nil {
			return 0, malformedError("unexpected product listing shape", err)
		}

		count += len(response.Products)
		if len(response.Products) < defaultPageLimit {
			return count, nil
		}
	}
	return count, nil
}

// ListProducts enumerates one storefront page
func (c *APIClient) ListProducts(ctx context.Context, storeURL string, opts ListOptions) (*ProductPage, error) {
	base, err := storeBase(storeURL)
	if err != nil {
		return nil, malformedError("unparseable store URL", err)
	}

	limit := opts.Limit
	if limit <= 0 || limit > defaultPageLimit {
		limit = defaultPageLimit
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("page", strconv.Itoa(page))

	body, err := c.get(ctx, base+"/products.json", params)
	if err != nil {
		return nil, err
	}

	var response struct {
		Products []storefrontProduct `json:"products"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, malformedError("unexpected product listing shape", err)
	}

	products := make([]SourceProduct, 0, len(response.Products))
	for _, p := range response.Products {
		product, err := convertStorefrontProduct(p, fmt.Sprintf("%s/products/%s", base, p.Handle))
		if err != nil {
			// A single bad record must not sink the page; the orchestrator
			// accounts for it as an item error instead.
			products = append(products, SourceProduct{
				ExternalID: strconv.FormatInt(p.ID, 10),
				Title:      p.Title,
				Handle:     p.Handle,
				SourceURL:  fmt.Sprintf("%s/products/%s", base, p.Handle),
			})
			continue
		}
		products = append(products, *product)
	}

	return &ProductPage{
		Products: products,
		HasMore:  len(response.Products) == limit,
		NextPage: page + 1,
	}, nil
}

// get performs a rate-limited GET with the retrier's backoff discipline
func (c *APIClient) get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	if !c.breaker.Allow() {
		return nil, networkError("the source store is temporarily unreachable", nil)
	}

	target := rawURL
	if len(params) > 0 {
		target = rawURL + "?" + params.Encode()
	}

	var lastErr error
	var lastStatus int
	for attempt := 0; attempt <= c.retrier.MaxRetries(); attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, networkError("request cancelled", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, malformedError("invalid request URL", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr, lastStatus = err, 0
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
				c.breaker.RecordSuccess()
				return body, nil
			}
			if resp.StatusCode == http.StatusNotFound {
				c.breaker.RecordSuccess()
				return nil, malformedError("the store has no such product", nil)
			}
			lastErr, lastStatus = fmt.Errorf("storefront returned HTTP %d", resp.StatusCode), resp.StatusCode
			if !c.retrier.ShouldRetry(resp.StatusCode, nil) {
				c.breaker.RecordFailure()
				return nil, networkError("the source store rejected the request", lastErr)
			}
			retryAfter := ParseRetryAfter(resp)
			if attempt < c.retrier.MaxRetries() {
				select {
				case <-ctx.Done():
					return nil, networkError("request cancelled", ctx.Err())
				case <-time.After(c.retrier.Backoff(attempt, retryAfter)):
				}
				continue
			}
		}

		if lastStatus == 0 && attempt < c.retrier.MaxRetries() {
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
