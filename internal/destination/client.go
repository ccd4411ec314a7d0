package destination

import (
	"context"
	"fmt"
	"strings"

	"store-migration-service/internal/platform"
)

// Credentials are the validated connection inputs for one destination store.
// Read-only after validation; safe to share across all items of a batch.
type Credentials struct {
	ShopDomain  string `json:"shopDomain"`
	APIKey      string `json:"apiKey"`
	APISecret   string `json:"apiSecret"`
	AccessToken string `json:"accessToken"`
}

// Validate checks the structural requirements before any remote probe
func (c Credentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.ShopDomain) == "" {
		missing = append(missing, "shopDomain")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "apiKey")
	}
	if strings.TrimSpace(c.APISecret) == "" {
		missing = append(missing, "apiSecret")
	}
	if strings.TrimSpace(c.AccessToken) == "" {
		missing = append(missing, "accessToken")
	}
	if len(missing) > 0 {
		return &CredentialError{
			Kind:    CredentialInvalid,
			Message: fmt.Sprintf("missing required credential fields: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}

// StoreInfo is the metadata returned by a successful credential probe
type StoreInfo struct {
	Name   string
	Email  string
	Domain string
}

// ProductInput is the merged record submitted to the destination store
type ProductInput struct {
	Title           string
	DescriptionHTML string
	Price           float64
	CompareAtPrice  *float64
	Images          []string
	Variants        []platform.SourceVariant
	Options         []platform.SourceOption
	Vendor          string
	ProductType     string
	Handle          string
	Tags            []string
}

// CreatedProduct is the handle of a product created in the destination store
type CreatedProduct struct {
	ProductID  string
	Handle     string
	ProductURL string
}

// Client is the destination store capability: one credential probe and one
// product-creation call. Neither retries internally; retry policy belongs
// to the orchestrator or caller.
type Client interface {
	// Probe verifies the credentials against the destination store
	Probe(ctx context.Context, creds Credentials) (*StoreInfo, error)

	// CreateProduct creates an equivalent product in the destination store
	CreateProduct(ctx context.Context, creds Credentials, input ProductInput) (*CreatedProduct, error)
}

// CredentialErrorKind classifies credential validation failures
type CredentialErrorKind string

const (
	CredentialInvalid            CredentialErrorKind = "INVALID"
	CredentialNetworkUnavailable CredentialErrorKind = "NETWORK_UNAVAILABLE"
)

// CredentialError is fatal to any subsequent call using those credentials
type CredentialError struct {
	Kind    CredentialErrorKind
	Message string
	Err     error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// CloneErrorKind classifies product-creation failures
type CloneErrorKind string

const (
	CloneValidationRejected CloneErrorKind = "VALIDATION_REJECTED"
	CloneRateLimited        CloneErrorKind = "RATE_LIMITED"
	CloneNetwork            CloneErrorKind = "NETWORK"
)

// CloneError carries a message suitable for direct display
type CloneError struct {
	Kind    CloneErrorKind
	Message string
	Err     error
}

func (e *CloneError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CloneError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may re-submit the same clone call
func (e *CloneError) Retryable() bool {
	return e.Kind != CloneValidationRejected
}
