package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productFixture(id int64, handle string) map[string]interface{} {
	return map[string]interface{}{
		"id":        id,
		"title":     "Tenis Runner",
		"handle":    handle,
		"body_html": "<p>Leve e confortavel</p>",
		"vendor":    "Loja",
		"tags":      "calcados, esporte",
		"variants": []map[string]interface{}{
			{"id": id*10 + 1, "title": "38", "price": "199.90", "available": true, "option1": "38"},
			{"id": id*10 + 2, "title": "39", "price": "199.90", "available": true, "option1": "39"},
		},
		"images": []map[string]interface{}{
			{"src": "https://cdn.example.com/tenis-2.jpg", "position": 2},
			{"src": "https://cdn.example.com/tenis-1.jpg", "position": 1},
		},
		"options": []map[string]interface{}{
			{"name": "Tamanho", "values": []string{"38", "39"}},
		},
	}
}

func TestAPIClient_FetchProduct(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/tenis-runner.json", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"product": productFixture(42, "tenis-runner"),
		})
	}))
	defer server.Close()

	client := NewAPIClient(100)
	product, err := client.FetchProduct(context.Background(), server.URL+"/products/tenis-runner")
	require.NoError(t, err)

	assert.Equal(t, "42", product.ExternalID)
	assert.Equal(t, "Tenis Runner", product.Title)
	assert.Equal(t, "tenis-runner", product.Handle)
	assert.Equal(t, 199.90, product.Price)
	assert.Equal(t, []string{"calcados", "esporte"}, product.Tags)
	assert.Len(t, product.Variants, 2)

	// Images come back sorted by position
	require.Len(t, product.Images, 2)
	assert.Equal(t, "https://cdn.example.com/tenis-1.jpg", product.Images[0])
	assert.Equal(t, "https://cdn.example.com/tenis-2.jpg", product.Images[1])
}

func TestAPIClient_FetchProduct_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewAPIClient(100)
	_, err := client.FetchProduct(context.Background(), server.URL+"/products/sumiu")
	require.Error(t, err)

	fetchErr, ok := err.(*FetchError)
	require.True(t, ok)
	assert.Equal(t, FetchMalformedPayload, fetchErr.Kind)
	assert.False(t, fetchErr.Retryable())
}

func TestAPIClient_FetchProduct_MissingImages(t *testing.T) {
	fixture := productFixture(7, "sem-foto")
	fixture["images"] = []map[string]interface{}{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"product": fixture})
	}))
	defer server.Close()

	client := NewAPIClient(100)
	_, err := client.FetchProduct(context.Background(), server.URL+"/products/sem-foto")
	require.Error(t, err)

	fetchErr, ok := err.(*FetchError)
	require.True(t, ok)
	assert.Equal(t, FetchMalformedPayload, fetchErr.Kind)
}

func TestAPIClient_CountProducts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products.json", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("page"))

		products := make([]map[string]interface{}, 12)
		for i := range products {
			products[i] = map[string]interface{}{"id": i + 1}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"products": products})
	}))
	defer server.Close()

	client := NewAPIClient(100)
	count, err := client.CountProducts(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 12, count)
}

func TestAPIClient_ListProducts_BadRecordDoesNotSinkPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		good := productFixture(1, "bom")
		bad := productFixture(2, "quebrado")
		bad["variants"] = []map[string]interface{}{
			{"id": 21, "title": "Default", "price": "not-a-price", "available": true},
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"products": []interface{}{good, bad},
		})
	}))
	defer server.Close()

	client := NewAPIClient(100)
	page, err := client.ListProducts(context.Background(), server.URL, ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Products, 2)
	assert.False(t, page.HasMore)

	assert.NotEmpty(t, page.Products[0].Images)
	// The bad record survives as a stub so it can be counted as an item error
	assert.Equal(t, "2", page.Products[1].ExternalID)
	assert.Empty(t, page.Products[1].Images)
}

func TestAPIClient_RetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"product": productFixture(5, "persistente"),
		})
	}))
	defer server.Close()

	client := NewAPIClient(100)
	client.retrier = NewRetrier(&RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 1,
		MaxBackoff:     1,
		BackoffFactor:  1,
		RetryableCodes: []int{429, 500, 502, 503, 504},
	})

	product, err := client.FetchProduct(context.Background(), server.URL+"/products/persistente")
	require.NoError(t, err)
	assert.Equal(t, "5", product.ExternalID)
	assert.Equal(t, 3, attempts)
}

func TestStoreBase(t *testing.T) {
	for input, want := range map[string]string{
		"https://loja.myshopify.com":                "https://loja.myshopify.com",
		"https://loja.myshopify.com/products/tenis": "https://loja.myshopify.com",
		"loja.com": "https://loja.com",
	} {
		got, err := storeBase(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, fmt.Sprintf("storeBase(%q)", input))
	}
}
