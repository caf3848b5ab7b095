package providers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/teilomillet/gollm"
)

func init() {
	RegisterGenerator("gollm", NewGollmGenerator)
}

const defaultGenerateModel = "gpt-4o-mini"

// GollmGenerator answers prompts through teilomillet/gollm, which owns its
// own provider abstraction (OpenAI, Anthropic, ...) and retry behavior; the
// Model Client wraps it with its own queueing and backoff policy on top.
type GollmGenerator struct {
	llm gollm.LLM
}

// NewGollmGenerator builds a GollmGenerator from config. Recognized keys:
// api_key (required), provider (default "openai"), model, temperature,
// max_tokens, max_retries, retry_delay.
func NewGollmGenerator(config map[string]interface{}) (Generator, error) {
	apiKey, _ := config["api_key"].(string)
	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for the gollm generator")
	}

	provider, _ := config["provider"].(string)
	if provider == "" {
		provider = "openai"
	}
	model, _ := config["model"].(string)
	if model == "" {
		model = defaultGenerateModel
	}
	maxTokens := intConfigValue(config["max_tokens"], 1024)
	maxRetries := intConfigValue(config["max_retries"], 2)
	retryDelay, _ := config["retry_delay"].(time.Duration)
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	temperature, _ := config["temperature"].(float64)
	if temperature <= 0 {
		temperature = 0.2
	}

	llm, err := gollm.NewLLM(
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetAPIKey(apiKey),
		gollm.SetTemperature(temperature),
		gollm.SetMaxTokens(maxTokens),
		gollm.SetMaxRetries(maxRetries),
		gollm.SetRetryDelay(retryDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("create gollm LLM: %w", err)
	}

	return &GollmGenerator{llm: llm}, nil
}

// intConfigValue reads an int-valued config entry that may arrive as an
// int (set programmatically) or a string (set from an env var or a
// JSON-decoded config file), falling back to def if absent or unparseable.
func intConfigValue(v interface{}, def int) int {
	switch val := v.(type) {
	case int:
		if val > 0 {
			return val
		}
	case string:
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// Generate builds a gollm.Prompt carrying the system instruction and the
// user prompt, and returns the raw completion text. Calls arrive one at a
// time through the Model Client's queue, so mutating the LLM's options per
// call does not race.
func (g *GollmGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string, opts GenOptions) (string, error) {
	if opts.Temperature > 0 {
		g.llm.SetOption("temperature", opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		g.llm.SetOption("max_tokens", opts.MaxTokens)
	}
	prompt := gollm.NewPrompt(userPrompt, gollm.WithSystemPrompt(systemPrompt, gollm.CacheTypeEphemeral))
	out, err := g.llm.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("gollm generate: %w", err)
	}
	return out, nil
}
