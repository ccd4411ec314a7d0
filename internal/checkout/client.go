package checkout

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// IntegrationErrorKind classifies checkout-binding failures
type IntegrationErrorKind string

const (
	IntegrationAlreadyIntegrated IntegrationErrorKind = "ALREADY_INTEGRATED"
	IntegrationNetwork           IntegrationErrorKind = "NETWORK"
	IntegrationRejected          IntegrationErrorKind = "CHECKOUT_SERVICE_REJECTED"
	IntegrationNotCloned         IntegrationErrorKind = "NOT_CLONED"
)

// IntegrationError is the typed outcome of a failed checkout binding
type IntegrationError struct {
	Kind    IntegrationErrorKind
	Message string
	Err     error
}

func (e *IntegrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may re-invoke the same binding
func (e *IntegrationError) Retryable() bool {
	return e.Kind == IntegrationNetwork
}

// Binder binds a cloned product to the checkout service
type Binder interface {
	// Bind registers the destination product and returns its public
	// checkout URL
	Bind(ctx context.Context, destinationProductID string) (string, error)
}

// Client talks to the internal checkout service
type Client struct {
	http    *resty.Client
	baseURL string
}

// NewClient creates a checkout service client
func NewClient(baseURL string) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetHeader("Content-Type", "application/json")

	return &Client{http: httpClient, baseURL: baseURL}
}

type bindRequest struct {
	ProductID string `json:"productId"`
}

type bindResponse struct {
	CheckoutURL string `json:"checkoutUrl"`
	Error       string `json:"error,omitempty"`
}

// Bind registers the product with the checkout service. The returned URL has
// the stable shape https://<checkout-host>/checkout?product=<id>.
func (c *Client) Bind(ctx context.Context, destinationProductID string) (string, error) {
	var result bindResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(bindRequest{ProductID: destinationProductID}).
		SetResult(&result).
		SetError(&result).
		Post("/api/v1/checkout/products")
	if err != nil {
		return "", &IntegrationError{Kind: IntegrationNetwork, Message: "could not reach the checkout service", Err: err}
	}

	switch {
	case resp.StatusCode() >= 200 && resp.StatusCode() < 300:
		if result.CheckoutURL != "" {
			return result.CheckoutURL, nil
		}
		return c.CheckoutURL(destinationProductID), nil
	case resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500:
		return "", &IntegrationError{
			Kind:    IntegrationNetwork,
			Message: fmt.Sprintf("the checkout service is unavailable (HTTP %d)", resp.StatusCode()),
		}
	default:
		msg := result.Error
		if msg == "" {
			msg = fmt.Sprintf("the checkout service rejected the product (HTTP %d)", resp.StatusCode())
		}
		return "", &IntegrationError{Kind: IntegrationRejected, Message: msg}
	}
}

// CheckoutURL mints the public checkout URL for a destination product
func (c *Client) CheckoutURL(destinationProductID string) string {
	host := c.baseURL
	if u, err := url.Parse(c.baseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return fmt.Sprintf("https://%s/checkout?product=%s", host, url.QueryEscape(destinationProductID))
}
