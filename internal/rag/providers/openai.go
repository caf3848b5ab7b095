package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

func init() {
	RegisterEmbedder("openai", NewOpenAIEmbedder)
}

const (
	defaultEmbeddingAPI = "https://api.openai.com/v1/embeddings"
	defaultEmbedModel   = "text-embedding-3-small"
)

// OpenAIEmbedder calls OpenAI's embeddings endpoint directly over HTTP,
// so the core does not need a full SDK dependency just for this one call.
type OpenAIEmbedder struct {
	apiKey    string
	client    *http.Client
	apiURL    string
	modelName string
	dimension int
}

// NewOpenAIEmbedder builds an OpenAIEmbedder from config. Recognized keys:
// api_key (required), model, api_url, timeout.
func NewOpenAIEmbedder(config map[string]interface{}) (Embedder, error) {
	apiKey, _ := config["api_key"].(string)
	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for the openai embedder")
	}

	e := &OpenAIEmbedder{
		apiKey:    apiKey,
		client:    &http.Client{Timeout: 30 * time.Second},
		apiURL:    defaultEmbeddingAPI,
		modelName: defaultEmbedModel,
	}

	if model, ok := config["model"].(string); ok && model != "" {
		e.modelName = model
	}
	if apiURL, ok := config["api_url"].(string); ok && apiURL != "" {
		e.apiURL = apiURL
	}
	if timeout, ok := config["timeout"].(time.Duration); ok && timeout > 0 {
		e.client.Timeout = timeout
	}

	dim, err := dimensionForModel(e.modelName)
	if err != nil {
		return nil, err
	}
	e.dimension = dim

	return e, nil
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed sends text to the embeddings endpoint and returns the resulting
// vector.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	reqBody, err := json.Marshal(embeddingRequest{Input: text, Model: e.modelName})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send embedding request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{StatusCode: resp.StatusCode, Body: string(body), RetryAfterHeader: resp.Header.Get("Retry-After")}
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal embedding response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}
	return parsed.Data[0].Embedding, nil
}

// Dimension returns the fixed vector size for this embedder's model.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func dimensionForModel(model string) (int, error) {
	switch model {
	case "text-embedding-3-small":
		return 1536, nil
	case "text-embedding-3-large":
		return 3072, nil
	case "text-embedding-ada-002":
		return 1536, nil
	default:
		return 0, fmt.Errorf("unknown embedding model: %s", model)
	}
}

// httpStatusError carries the provider's HTTP status so the Model Client's
// retry policy can distinguish 5xx/429 from 4xx.
type httpStatusError struct {
	StatusCode       int
	Body             string
	RetryAfterHeader string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("embedding request failed with status %d: %s", e.StatusCode, e.Body)
}

// RetryAfter parses the provider's Retry-After header, expressed in
// seconds, into a time.Duration. It returns 0 if the header was absent or
// unparseable.
func (e *httpStatusError) RetryAfter() time.Duration {
	if e.RetryAfterHeader == "" {
		return 0
	}
	secs, err := strconv.Atoi(e.RetryAfterHeader)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// HTTPStatusCode extracts the status code from err if it is an HTTP status
// error produced by a provider in this package.
func HTTPStatusCode(err error) (int, bool) {
	se, ok := err.(*httpStatusError)
	if !ok {
		return 0, false
	}
	return se.StatusCode, true
}
