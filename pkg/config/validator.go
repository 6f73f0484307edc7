package config

import (
	"fmt"
	"net/url"

	"github.com/xhad/newsagent/internal/logger"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the chunking parameters on their own so the chunker can
// reuse it without a full Config.
func (c ChunkingConfig) Validate() []ValidationError {
	var errors []ValidationError

	if c.ChunkSizeChars < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunking.chunk_size_chars",
			Message: "chunk_size_chars must be positive",
		})
	}

	if c.ChunkOverlapChars != nil && (*c.ChunkOverlapChars < 0 || *c.ChunkOverlapChars >= c.ChunkSizeChars) {
		errors = append(errors, ValidationError{
			Field:   "chunking.chunk_overlap_chars",
			Message: "chunk_overlap_chars must be non-negative and less than chunk_size_chars",
		})
	}

	for _, sep := range c.Separators {
		if sep == "" {
			errors = append(errors, ValidationError{
				Field:   "chunking.separators",
				Message: "separators must not be empty strings",
			})
			break
		}
	}

	return errors
}

func (c *Config) Validate() []ValidationError {
	errors := c.Chunking.Validate()

	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	switch c.Embedding.Provider {
	case "ollama":
		if _, err := url.ParseRequestURI(c.Embedding.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "embedding.base_url",
				Message: "invalid Ollama base URL",
			})
		}
	case "gemini":
		if c.Embedding.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "embedding.api_key",
				Message: "api_key is required for the gemini provider",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown provider %q", c.Embedding.Provider),
		})
	}

	if c.Embedding.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for category, threshold := range c.Dedup.Thresholds {
		if threshold <= 0 || threshold > 1 {
			errors = append(errors, ValidationError{
				Field:   "dedup.thresholds." + category,
				Message: "threshold must be in (0, 1]",
			})
		}
	}

	if c.Images.BatchSize < 1 || c.Images.PauseSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "images",
			Message: "batch_size must be positive and pause_seconds non-negative",
		})
	}

	if _, ok := logger.ParseLevel(c.Log.Level); !ok {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown log level %q", c.Log.Level),
		})
	}

	return errors
}
