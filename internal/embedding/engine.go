// Package embedding defines the seam vaultgraph uses for optional vector
// embeddings of note and entity content. No concrete provider ships in
// this module: embedding generation is an external collaborator (a local
// model server, a cloud API) that a caller wires in via NewEngine's
// registry. Without a registered provider, embedding columns in the
// store stay null and similarity search returns no results; no
// full-text fallback is attempted.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"vaultgraph/internal/logging"
)

// EmbeddingEngine generates vector embeddings for text.
type EmbeddingEngine interface {
	// Embed generates embeddings for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// HealthChecker is an optional interface for embedding engines that support
// health checks. If an engine implements this interface, the system can
// verify availability before attempting batch operations.
type HealthChecker interface {
	// HealthCheck verifies the embedding service is reachable.
	// Returns nil if healthy, error otherwise.
	HealthCheck(ctx context.Context) error
}

// Config holds embedding engine configuration. Provider names are
// resolved against engines registered with Register; vaultgraph itself
// registers none.
type Config struct {
	Provider   string `yaml:"provider"`
	Endpoint   string `yaml:"endpoint"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// DefaultConfig returns a config with no provider selected.
func DefaultConfig() Config {
	return Config{Dimensions: 0}
}

// Factory builds an EmbeddingEngine from a Config.
type Factory func(cfg Config) (EmbeddingEngine, error)

var factories = map[string]Factory{}

// Register makes a named embedding provider available to NewEngine.
// Callers outside this module register concrete providers (an Ollama
// client, a cloud embedding API) at startup; vaultgraph ships none.
func Register(name string, factory Factory) {
	factories[name] = factory
}

// NewEngine builds an embedding engine from configuration, looking up the
// provider in the registry populated via Register. If cfg.Provider is
// empty, returns nil with no error: embeddings are simply disabled.
func NewEngine(cfg Config) (EmbeddingEngine, error) {
	if cfg.Provider == "" {
		logging.Embedding("no embedding provider configured, embeddings disabled")
		return nil, nil
	}

	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	factory, ok := factories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unregistered embedding provider: %s", cfg.Provider)
	}

	engine, err := factory(cfg)
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("failed to create embedding engine %s: %v", cfg.Provider, err)
		return nil, err
	}

	logging.Embedding("embedding engine ready: name=%s dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical, 0 means orthogonal.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i] * b[i])
		aMagnitude += float64(a[i] * a[i])
		bMagnitude += float64(b[i] * b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude)), nil
}

// SimilarityResult represents a similarity search result.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindTopK returns the indices of the top K most similar vectors to the query.
func FindTopK(query []float32, corpus [][]float32, k int) ([]SimilarityResult, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "FindTopK")
	defer timer.Stop()

	if k <= 0 {
		k = 10
	}

	results := make([]SimilarityResult, 0, len(corpus))
	for i, vec := range corpus {
		similarity, err := CosineSimilarity(query, vec)
		if err != nil {
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: similarity})
	}

	sortStart := time.Now()
	for i := 0; i < len(results) && i < k; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Similarity > results[i].Similarity {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	logging.EmbeddingDebug("FindTopK sorted %d results in %v", len(results), time.Since(sortStart))

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
