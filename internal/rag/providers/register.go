// Package providers implements the embedding and generation backends the
// RAG core can be configured with. Each provider registers itself by name
// at init time so the rest of the core can select one by string
// configuration without importing provider packages directly.
package providers

import (
	"context"
	"fmt"
	"sync"
)

// Embedder converts text into a fixed-dimension vector representation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimension() int
}

// GenOptions carries the per-call generation bounds. The Model Client
// clamps these to its determinism contract before any provider sees them.
type GenOptions struct {
	Temperature float64
	MaxTokens   int
}

// Generator produces a free-text completion from a prompt.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, opts GenOptions) (string, error)
}

// EmbedderFactory builds an Embedder from provider-specific config.
type EmbedderFactory func(config map[string]interface{}) (Embedder, error)

// GeneratorFactory builds a Generator from provider-specific config.
type GeneratorFactory func(config map[string]interface{}) (Generator, error)

var (
	mu                 sync.RWMutex
	embedderFactories  = make(map[string]EmbedderFactory)
	generatorFactories = make(map[string]GeneratorFactory)
)

// RegisterEmbedder registers an embedder factory under name, overwriting
// any existing registration.
func RegisterEmbedder(name string, factory EmbedderFactory) {
	mu.Lock()
	defer mu.Unlock()
	embedderFactories[name] = factory
}

// GetEmbedderFactory looks up a previously registered embedder factory.
func GetEmbedderFactory(name string) (EmbedderFactory, error) {
	mu.RLock()
	defer mu.RUnlock()
	factory, ok := embedderFactories[name]
	if !ok {
		return nil, fmt.Errorf("embedder provider not registered: %s", name)
	}
	return factory, nil
}

// RegisterGenerator registers a generator factory under name, overwriting
// any existing registration.
func RegisterGenerator(name string, factory GeneratorFactory) {
	mu.Lock()
	defer mu.Unlock()
	generatorFactories[name] = factory
}

// GetGeneratorFactory looks up a previously registered generator factory.
func GetGeneratorFactory(name string) (GeneratorFactory, error) {
	mu.RLock()
	defer mu.RUnlock()
	factory, ok := generatorFactories[name]
	if !ok {
		return nil, fmt.Errorf("generator provider not registered: %s", name)
	}
	return factory, nil
}
