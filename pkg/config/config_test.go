package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
chunking:
  chunk_size_chars: 1500
  chunk_overlap_chars: 300
  separators: ["\n\n", "\n"]
  keep_separator: false

database:
  url: "postgres://localhost:5432/news"
  table_name: "test_chunks"
  vector_dim: 768
  batch_size: 50

embedding:
  provider: gemini
  api_key: "test-key"

scraper:
  rate_limit: 1.5
  keywords: ["sunass", "agua"]

dedup:
  thresholds:
    html: 0.8

server:
  addr: ":9090"
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 1500, config.Chunking.ChunkSizeChars)
	assert.Equal(t, 300, *config.Chunking.ChunkOverlapChars)
	assert.Equal(t, []string{"\n\n", "\n"}, config.Chunking.Separators)
	require.NotNil(t, config.Chunking.KeepSeparator)
	assert.False(t, *config.Chunking.KeepSeparator)
	assert.Equal(t, "test_chunks", config.Database.TableName)
	assert.Equal(t, 50, config.Database.BatchSize)
	assert.Equal(t, "models/text-embedding-004", config.Embedding.Model)
	assert.Equal(t, 20, config.Embedding.BatchSize)
	assert.Equal(t, 1.5, config.Scraper.RateLimit)
	assert.Equal(t, map[string]float64{"html": 0.8}, config.Dedup.Thresholds)
	assert.Equal(t, ":9090", config.Server.Addr)
	assert.Empty(t, config.Validate())
}

func TestLoadConfigExplicitPathErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("chunking: [unclosed"), 0644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	config := &Config{}
	applyDefaults(config)

	assert.Equal(t, 2000, config.Chunking.ChunkSizeChars)
	assert.Equal(t, 500, *config.Chunking.ChunkOverlapChars)
	assert.Equal(t, []string{"\n\n", "\n", ". ", " "}, config.Chunking.Separators)
	assert.True(t, *config.Chunking.KeepSeparator)
	assert.Equal(t, "ollama", config.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text:latest", config.Embedding.Model)
	assert.Equal(t, 768, config.Database.VectorDim)
	assert.Equal(t, 0.99, config.Dedup.Thresholds["image"])
	assert.Equal(t, "gemini-1.5-flash", config.Images.Model)
	assert.Equal(t, 3, config.Images.BatchSize)
	assert.Equal(t, time.Minute, config.Images.Pause())
	assert.Empty(t, config.Validate())
}

func TestLoadChunking(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantSize int
		wantOver int
	}{
		{
			name:     "top level keys",
			data:     "chunk_size_chars: 800\nchunk_overlap_chars: 100\n",
			wantSize: 800,
			wantOver: 100,
		},
		{
			name:     "chunking section",
			data:     "chunking:\n  chunk_size_chars: 1200\n",
			wantSize: 1200,
			wantOver: 500,
		},
		{
			name:     "overlap disabled",
			data:     "chunk_size_chars: 1000\nchunk_overlap_chars: 0\n",
			wantSize: 1000,
			wantOver: 0,
		},
		{
			name:     "empty mapping",
			data:     "{}\n",
			wantSize: 2000,
			wantOver: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "chunking.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0644))

			cfg, err := LoadChunking(path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, cfg.ChunkSizeChars)
			require.NotNil(t, cfg.ChunkOverlapChars)
			assert.Equal(t, tt.wantOver, *cfg.ChunkOverlapChars)
			assert.True(t, *cfg.KeepSeparator)
		})
	}
}

func TestLoadChunkingFailsFast(t *testing.T) {
	_, err := LoadChunking("")
	assert.ErrorIs(t, err, ErrNoConfig)

	_, err = LoadChunking(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("chunk_size_chars: [1, 2"), 0644))
	_, err = LoadChunking(bad)
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	valid := Config{}
	applyDefaults(&valid)

	invalid := Config{}
	applyDefaults(&invalid)
	overlap := 2000
	invalid.Chunking.ChunkOverlapChars = &overlap
	invalid.Database.URL = "::not a url"
	invalid.Database.VectorDim = -1
	invalid.Embedding.Provider = "openai"
	invalid.LLM.Temperature = 3.0

	tests := []struct {
		name          string
		config        Config
		expectedErrs  int
		errorMessages []string
	}{
		{name: "valid config", config: valid, expectedErrs: 0},
		{
			name:         "invalid config",
			config:       invalid,
			expectedErrs: 5,
			errorMessages: []string{
				"chunking.chunk_overlap_chars: chunk_overlap_chars must be non-negative and less than chunk_size_chars",
				"database.url: invalid database URL",
				"database.vector_dim: vector_dim must be positive",
				`embedding.provider: unknown provider "openai"`,
				"llm.temperature: temperature must be between 0 and 2",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errors := tt.config.Validate()
			assert.Len(t, errors, tt.expectedErrs)

			for i, msg := range tt.errorMessages {
				assert.Contains(t, errors[i].Error(), msg)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("NEWSAGENT_LOG_LEVEL", "debug")

	config := &Config{}
	require.NoError(t, mergeWithEnv(config))

	assert.Equal(t, "http://env-ollama:11434", config.Embedding.BaseURL)
	assert.Equal(t, "http://env-ollama:11434", config.LLM.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Database.URL)
	assert.Equal(t, "env-key", config.Embedding.APIKey)
	assert.Equal(t, "env-key", config.Images.APIKey)
	assert.Equal(t, "debug", config.Log.Level)
}

func TestLoadConfigKeepsZeroOverlap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking:\n  chunk_size_chars: 1000\n  chunk_overlap_chars: 0\n"), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, config.Chunking.ChunkOverlapChars)
	assert.Equal(t, 0, *config.Chunking.ChunkOverlapChars)
	assert.Empty(t, config.Validate())
}
