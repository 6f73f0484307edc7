package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	DefaultGeminiModel = "models/text-embedding-004"
	maxGeminiBatch     = 100
)

var ErrMissingAPIKey = errors.New("gemini api key is not set")

type GeminiConfig struct {
	APIKey    string
	Model     string
	BatchSize int
}

// GeminiEmbedder embeds text with the Gemini embedding API.
type GeminiEmbedder struct {
	client *genai.Client
	config GeminiConfig
}

func NewGeminiEmbedder(ctx context.Context, config GeminiConfig) (*GeminiEmbedder, error) {
	config = geminiDefaults(config)
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiEmbedder{client: cl, config: config}, nil
}

func geminiDefaults(config GeminiConfig) GeminiConfig {
	if config.APIKey == "" {
		config.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if config.Model == "" {
		config.Model = DefaultGeminiModel
	}
	if config.BatchSize <= 0 || config.BatchSize > maxGeminiBatch {
		config.BatchSize = maxGeminiBatch
	}
	return config
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return embedInBatches(ctx, texts, g.config.BatchSize, g.embedBatch)
}

func (g *GeminiEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	em := g.client.EmbeddingModel(g.config.Model)

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}
