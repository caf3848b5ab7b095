package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIEmbedder_EmbedSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder(map[string]interface{}{"api_key": "test", "api_url": server.URL})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

// A 429 response's status and Retry-After header must survive as a
// *httpStatusError so the Model Client can classify and re-delay on it.
func TestOpenAIEmbedder_EmbedRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder(map[string]interface{}{"api_key": "test", "api_url": server.URL})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")
	require.Error(t, err)

	status, ok := HTTPStatusCode(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, status)

	rae, ok := err.(interface{ RetryAfter() time.Duration })
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, rae.RetryAfter())
}

func TestOpenAIEmbedder_EmbedServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder(map[string]interface{}{"api_key": "test", "api_url": server.URL})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")
	require.Error(t, err)
	status, ok := HTTPStatusCode(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, status)
}
