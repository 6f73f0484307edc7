package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/xhad/newsagent/internal/types"
	"github.com/xhad/newsagent/pkg/config"
)

var ErrEmbeddingMismatch = errors.New("embedding count does not match input")

// Provider is an embedder holding resources that must be released.
type Provider interface {
	types.Embedder
	Close() error
}

type embeddingClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderConfig configures the Ollama embedder.
type EmbedderConfig struct {
	Model     string
	BaseURL   string // Ollama server URL
	BatchSize int
}

// Embedder turns text into vectors with an Ollama embedding model.
type Embedder struct {
	config EmbedderConfig
	client embeddingClient
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest" // Default Ollama model
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 20
	}

	emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		config: config,
		client: emb,
	}, nil
}

func NewEmbedder() (*Embedder, error) {
	return NewEmbedderWithConfig(EmbedderConfig{})
}

func (e *Embedder) Config() EmbedderConfig {
	return e.config
}

// CreateEmbedding embeds texts in batches, returning one vector per text in
// input order.
func (e *Embedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return embedInBatches(ctx, texts, e.config.BatchSize, e.client.CreateEmbedding)
}

func (e *Embedder) Close() error { return nil }

// NewProvider builds the embedder selected by the embedding config.
func NewProvider(ctx context.Context, c config.EmbeddingConfig) (Provider, error) {
	switch c.Provider {
	case "", "ollama":
		return NewEmbedderWithConfig(EmbedderConfig{
			Model:     c.Model,
			BaseURL:   c.BaseURL,
			BatchSize: c.BatchSize,
		})
	case "gemini":
		return NewGeminiEmbedder(ctx, GeminiConfig{
			APIKey:    c.APIKey,
			Model:     c.Model,
			BatchSize: c.BatchSize,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", c.Provider)
	}
}

func embedInBatches(ctx context.Context, texts []string, size int, embed func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if size <= 0 {
		size = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+size, len(texts))

		vectors, err := embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingMismatch, len(vectors), end-start)
		}
		for i, v := range vectors {
			if len(v) == 0 {
				return nil, fmt.Errorf("empty embedding for text %d", start+i)
			}
		}
		out = append(out, vectors...)
	}
	return out, nil
}
