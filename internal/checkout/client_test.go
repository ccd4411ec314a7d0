package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Bind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/checkout/products", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "9001", body["productId"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"checkoutUrl": "https://pay.example.com/checkout?product=9001",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	url, err := client.Bind(context.Background(), "9001")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/checkout?product=9001", url)
}

func TestClient_Bind_FallsBackToMintedURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	url, err := client.Bind(context.Background(), "9001")
	require.NoError(t, err)
	assert.Equal(t, client.CheckoutURL("9001"), url)
}

func TestClient_Bind_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "product is not sellable"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Bind(context.Background(), "9001")
	require.Error(t, err)

	intErr, ok := err.(*IntegrationError)
	require.True(t, ok)
	assert.Equal(t, IntegrationRejected, intErr.Kind)
	assert.Equal(t, "product is not sellable", intErr.Message)
	assert.False(t, intErr.Retryable())
}

func TestClient_Bind_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Bind(context.Background(), "9001")
	require.Error(t, err)

	intErr, ok := err.(*IntegrationError)
	require.True(t, ok)
	assert.Equal(t, IntegrationNetwork, intErr.Kind)
	assert.True(t, intErr.Retryable())
}

func TestClient_Bind_Unreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	_, err := client.Bind(context.Background(), "9001")
	require.Error(t, err)

	intErr, ok := err.(*IntegrationError)
	require.True(t, ok)
	assert.Equal(t, IntegrationNetwork, intErr.Kind)
}

func TestClient_CheckoutURL(t *testing.T) {
	client := NewClient("https://pay.example.com")
	assert.Equal(t, "https://pay.example.com/checkout?product=9001", client.CheckoutURL("9001"))

	// IDs are escaped into the query string
	assert.Equal(t, "https://pay.example.com/checkout?product=a%2Fb", client.CheckoutURL("a/b"))
}
