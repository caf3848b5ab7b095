package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/onboardrag/core/internal/rag/providers"
)

const (
	defaultRequestSpacing = 6500 * time.Millisecond
	defaultQueueCapacity  = 50
	defaultBackoffBase    = 1 * time.Second
	defaultBackoffCap     = 30 * time.Second
	defaultMaxRetries     = 3
	defaultRequestTimeout = 5 * time.Minute

	maxTemperature   = 0.2
	defaultMaxTokens = 1024
)

// GenConfig bounds a single generate call. Temperature is always clamped to
// maxTemperature; MaxTokens is always clamped to the client's configured
// ceiling. These are contract limits, not caller-raisable tunables.
type GenConfig struct {
	Temperature float64
	MaxTokens   int
}

// ModelClient is the single component that talks to the external embedding
// and generation providers. Every request passes through a bounded FIFO
// queue with a fixed minimum inter-request spacing, so the process as a
// whole never exceeds the provider's rate tier regardless of how many
// goroutines call in concurrently.
type ModelClient struct {
	embedder  providers.Embedder
	generator providers.Generator

	spacing        time.Duration
	maxRetries     int
	backoffBase    time.Duration
	backoffCap     time.Duration
	maxTokens      int
	temperature    float64
	requestTimeout time.Duration

	queue   chan *modelRequest
	limiter *rate.Limiter
	once    sync.Once
	done    chan struct{}
}

type modelRequest struct {
	ctx    context.Context
	run    func(ctx context.Context) (interface{}, error)
	result chan modelResponse
}

type modelResponse struct {
	value interface{}
	err   error
}

// ModelClientOption configures a ModelClient via the functional options
// pattern used throughout this package.
type ModelClientOption func(*ModelClient)

// WithRequestSpacing overrides the minimum delay enforced between requests
// leaving the queue.
func WithRequestSpacing(d time.Duration) ModelClientOption {
	return func(c *ModelClient) { c.spacing = d }
}

// WithQueueCapacity overrides the bounded queue's capacity.
func WithQueueCapacity(n int) ModelClientOption {
	return func(c *ModelClient) {
		if n > 0 {
			c.queue = make(chan *modelRequest, n)
		}
	}
}

// WithMaxRetries overrides the number of retry attempts for transient
// failures.
func WithMaxRetries(n int) ModelClientOption {
	return func(c *ModelClient) { c.maxRetries = n }
}

// WithBackoff overrides the exponential backoff base delay and cap.
func WithBackoff(base, cap time.Duration) ModelClientOption {
	return func(c *ModelClient) {
		c.backoffBase = base
		c.backoffCap = cap
	}
}

// WithMaxGenerateTokens overrides the hard ceiling on generated output
// length.
func WithMaxGenerateTokens(n int) ModelClientOption {
	return func(c *ModelClient) { c.maxTokens = n }
}

// WithGenTemperature sets the temperature used when a caller leaves
// GenConfig.Temperature unset. Values above the determinism ceiling are
// clamped down to it, never up.
func WithGenTemperature(t float64) ModelClientOption {
	return func(c *ModelClient) {
		if t > 0 {
			c.temperature = t
		}
	}
}

// WithRequestTimeout overrides the deadline applied to every request
// enqueued through submit, regardless of whether the caller's own context
// already carries one.
func WithRequestTimeout(d time.Duration) ModelClientOption {
	return func(c *ModelClient) { c.requestTimeout = d }
}

// NewModelClient creates a ModelClient wrapping the given embedder and
// generator providers and starts its queue-draining worker.
func NewModelClient(embedder providers.Embedder, generator providers.Generator, opts ...ModelClientOption) *ModelClient {
	c := &ModelClient{
		embedder:       embedder,
		generator:      generator,
		spacing:        defaultRequestSpacing,
		maxRetries:     defaultMaxRetries,
		backoffBase:    defaultBackoffBase,
		backoffCap:     defaultBackoffCap,
		maxTokens:      defaultMaxTokens,
		temperature:    maxTemperature,
		requestTimeout: defaultRequestTimeout,
		queue:          make(chan *modelRequest, defaultQueueCapacity),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.temperature > maxTemperature {
		c.temperature = maxTemperature
	}
	c.limiter = rate.NewLimiter(rate.Every(c.spacing), 1)
	c.once.Do(func() { go c.drain() })
	return c
}

// Close stops the queue worker. No further requests are processed after
// Close returns.
func (c *ModelClient) Close() {
	close(c.done)
}

// drain is the single goroutine that enforces request spacing: it pops one
// request at a time, waits for the rate limiter to admit it, and executes
// it with retry/backoff before popping the next.
func (c *ModelClient) drain() {
	for {
		select {
		case <-c.done:
			return
		case req := <-c.queue:
			if err := c.limiter.Wait(req.ctx); err != nil {
				select {
				case req.result <- modelResponse{err: NewModelTimeout("request context cancelled waiting for rate limiter")}:
				default:
				}
				continue
			}
			val, err := c.executeWithRetry(req)
			select {
			case req.result <- modelResponse{value: val, err: err}:
			default:
			}
			c.honorRetryAfterHint(err)
		}
	}
}

// honorRetryAfterHint holds the queue for a provider's retry-after hint as
// a one-off extra delay before releasing the next request. Rate-limit
// responses are never retried; the hint only pushes the queue back.
func (c *ModelClient) honorRetryAfterHint(err error) {
	var rerr *Error
	if !as(err, &rerr) || rerr.Kind != KindModelRateLimited || rerr.RetryAfter <= 0 {
		return
	}
	select {
	case <-time.After(minDuration(rerr.RetryAfter, c.backoffCap)):
	case <-c.done:
	}
}

// executeWithRetry runs req.run, retrying only transient failures
// (5xx-class responses and connection resets) with exponential backoff. A
// provider-supplied retry-after hint, when present, overrides the computed
// delay but is still clamped by backoffCap.
func (c *ModelClient) executeWithRetry(req *modelRequest) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		val, err := req.run(req.ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, classifyProviderError(err)
		}
		if attempt == c.maxRetries {
			break
		}

		delay := c.backoffDelay(attempt, err)
		select {
		case <-time.After(delay):
		case <-req.ctx.Done():
			return nil, NewModelTimeout("request context cancelled during backoff")
		case <-c.done:
			return nil, NewModelTransient("model client closed during retry", lastErr)
		}
	}
	return nil, NewModelTransient("exhausted retries", lastErr)
}

// classifyProviderError maps a raw, provider-specific error into the
// package's error taxonomy. The Model Client is the only component that
// ever sees a provider's native error shape; everything downstream only
// ever observes a *Error.
func classifyProviderError(err error) error {
	if status, ok := providers.HTTPStatusCode(err); ok {
		if status == http.StatusTooManyRequests {
			var retryAfter time.Duration
			if rae, ok := err.(retryAfterError); ok {
				retryAfter = rae.RetryAfter()
			}
			return NewModelRateLimited("provider rate limit exceeded", retryAfter)
		}
		return NewInternal(fmt.Sprintf("provider request failed with status %d", status), err)
	}
	return NewInternal("model provider request failed", err)
}

func (c *ModelClient) backoffDelay(attempt int, err error) time.Duration {
	if rae, ok := err.(retryAfterError); ok {
		if d := rae.RetryAfter(); d > 0 {
			return minDuration(d, c.backoffCap)
		}
	}
	base := c.backoffBase * time.Duration(math.Pow(2, float64(attempt)))
	return minDuration(base, c.backoffCap)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// retryAfterError is implemented by provider errors that carry an explicit
// retry-after hint.
type retryAfterError interface {
	RetryAfter() time.Duration
}

// isRetryable reports whether err represents a transient provider failure:
// a 5xx-class HTTP status or a connection reset. 429 is deliberately
// excluded; the queue's own spacing is the rate-limit remedy, not retries.
func isRetryable(err error) bool {
	if status, ok := providers.HTTPStatusCode(err); ok {
		return status >= 500 && status < 600
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// submit enqueues run and blocks for its result, failing fast with
// QueueFull if the queue is at capacity and with ModelTimeout if ctx
// expires before a slot is processed. Every call carries the client's
// configured request timeout as a deadline, regardless of whether ctx
// already has one of its own.
func (c *ModelClient) submit(ctx context.Context, run func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req := &modelRequest{ctx: ctx, run: run, result: make(chan modelResponse, 1)}

	select {
	case c.queue <- req:
	default:
		return nil, NewModelQueueFull("model client request queue is full")
	}

	select {
	case resp := <-req.result:
		return resp.value, resp.err
	case <-ctx.Done():
		return nil, NewModelTimeout("request timed out waiting in queue")
	}
}

// Embed produces a single vector for text.
func (c *ModelClient) Embed(ctx context.Context, text string) ([]float64, error) {
	val, err := c.submit(ctx, func(ctx context.Context) (interface{}, error) {
		return c.embedder.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return val.([]float64), nil
}

// EmbedBatch embeds each text, returning a per-item result slice aligned by
// index; a single item's failure does not affect the others. Items are
// submitted concurrently and serialize through the FIFO queue, so the batch
// as a whole still respects the client's request spacing.
func (c *ModelClient) EmbedBatch(ctx context.Context, texts []string) []EmbedResult {
	results := make([]EmbedResult, len(texts))
	var wg sync.WaitGroup
	for i, t := range texts {
		wg.Add(1)
		go func(i int, t string) {
			defer wg.Done()
			vec, err := c.Embed(ctx, t)
			results[i] = EmbedResult{Index: i, Embedding: vec, Err: err}
		}(i, t)
	}
	wg.Wait()
	return results
}

// Dimension returns the embedding provider's fixed vector size.
func (c *ModelClient) Dimension() int {
	return c.embedder.Dimension()
}

// Generate produces a completion from systemInstructions and userPrompt,
// always clamping genConfig to the client's determinism contract: low
// temperature, capped output length.
func (c *ModelClient) Generate(ctx context.Context, systemInstructions, userPrompt string, genConfig GenConfig) (string, error) {
	if genConfig.Temperature <= 0 {
		genConfig.Temperature = c.temperature
	} else if genConfig.Temperature > maxTemperature {
		genConfig.Temperature = maxTemperature
	}
	if genConfig.MaxTokens <= 0 || genConfig.MaxTokens > c.maxTokens {
		genConfig.MaxTokens = c.maxTokens
	}

	opts := providers.GenOptions{Temperature: genConfig.Temperature, MaxTokens: genConfig.MaxTokens}
	val, err := c.submit(ctx, func(ctx context.Context) (interface{}, error) {
		return c.generator.Generate(ctx, systemInstructions, userPrompt, opts)
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}
