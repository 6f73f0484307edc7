package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrNoConfig is returned when a loader that requires a config source gets none.
var ErrNoConfig = errors.New("no configuration source given")

type ChunkingConfig struct {
	ChunkSizeChars    int      `yaml:"chunk_size_chars"`
	ChunkOverlapChars *int     `yaml:"chunk_overlap_chars"`
	Separators        []string `yaml:"separators"`
	KeepSeparator     *bool    `yaml:"keep_separator"`
	DefaultDate       string   `yaml:"default_date"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
	VectorDim int    `yaml:"vector_dim"`
	BatchSize int    `yaml:"batch_size"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	BatchSize int    `yaml:"batch_size"`
}

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type ScraperConfig struct {
	RateLimit      float64  `yaml:"rate_limit"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Concurrency    int      `yaml:"concurrency"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
	Keywords       []string `yaml:"keywords"`
	PrimaryKeyword string   `yaml:"primary_keyword"`
}

func (s ScraperConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type DedupConfig struct {
	Thresholds       map[string]float64 `yaml:"thresholds"`
	DefaultThreshold float64            `yaml:"default_threshold"`
}

// ImagesConfig drives text extraction from image links with a Gemini
// vision model.
type ImagesConfig struct {
	Model        string `yaml:"model"`
	APIKey       string `yaml:"api_key"`
	Prompt       string `yaml:"prompt"`
	BatchSize    int    `yaml:"batch_size"`
	PauseSeconds int    `yaml:"pause_seconds"`
}

func (i ImagesConfig) Pause() time.Duration {
	return time.Duration(i.PauseSeconds) * time.Second
}

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	BaseDir  string `yaml:"base_dir"`
	LinksDir string `yaml:"links_dir"`
}

type Config struct {
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Images    ImagesConfig    `yaml:"images"`
	Server    ServerConfig    `yaml:"server"`
	Log       struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// envOverrides are read after the file so deployments can inject secrets.
type envOverrides struct {
	DatabaseURL   string `env:"DATABASE_URL"`
	OllamaBaseURL string `env:"OLLAMA_BASE_URL"`
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	LogLevel      string `env:"NEWSAGENT_LOG_LEVEL"`
	ServerAddr    string `env:"NEWSAGENT_ADDR"`
}

// LoadConfig reads path, or the first config found in the default
// locations when path is empty. An explicit path that cannot be read or
// parsed is an error; no file at all yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/newsagent/config.yaml"),
			"/etc/newsagent/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := mergeWithEnv(&config); err != nil {
		return nil, err
	}
	applyDefaults(&config)

	return &config, nil
}

// LoadChunking reads only the chunking parameters. The keys may sit under
// a "chunking" section or at the top level of the file.
func LoadChunking(path string) (ChunkingConfig, error) {
	if path == "" {
		return ChunkingConfig{}, ErrNoConfig
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ChunkingConfig{}, fmt.Errorf("error reading chunking config: %w", err)
	}

	var doc struct {
		Chunking       *ChunkingConfig `yaml:"chunking"`
		ChunkingConfig `yaml:",inline"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ChunkingConfig{}, fmt.Errorf("error parsing chunking config: %w", err)
	}

	cfg := doc.ChunkingConfig
	if doc.Chunking != nil {
		cfg = *doc.Chunking
	}
	applyChunkingDefaults(&cfg)

	return cfg, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	if err := mergeWithEnv(config); err != nil {
		return nil, err
	}
	applyDefaults(config)
	return config, nil
}

func applyChunkingDefaults(c *ChunkingConfig) {
	if c.ChunkSizeChars == 0 {
		c.ChunkSizeChars = 2000
	}
	if c.ChunkOverlapChars == nil {
		overlap := 500
		c.ChunkOverlapChars = &overlap
	}
	if len(c.Separators) == 0 {
		c.Separators = []string{"\n\n", "\n", ". ", " "}
	}
	if c.KeepSeparator == nil {
		keep := true
		c.KeepSeparator = &keep
	}
}

func applyDefaults(config *Config) {
	applyChunkingDefaults(&config.Chunking)

	if config.Database.TableName == "" {
		config.Database.TableName = "news_chunks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "ollama"
	}
	if config.Embedding.Model == "" {
		if config.Embedding.Provider == "gemini" {
			config.Embedding.Model = "models/text-embedding-004"
		} else {
			config.Embedding.Model = "nomic-embed-text:latest"
		}
	}
	if config.Embedding.BaseURL == "" {
		config.Embedding.BaseURL = "http://localhost:11434"
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 20
	}

	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = config.Embedding.BaseURL
	}

	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.TimeoutSeconds == 0 {
		config.Scraper.TimeoutSeconds = 30
	}
	if config.Scraper.Concurrency == 0 {
		config.Scraper.Concurrency = 4
	}
	if len(config.Scraper.Keywords) == 0 {
		config.Scraper.Keywords = []string{"sunass", "agua", "saneamiento", "tarifa", "alcantarillado"}
	}
	if config.Scraper.PrimaryKeyword == "" {
		config.Scraper.PrimaryKeyword = "sunass"
	}

	if config.Dedup.DefaultThreshold == 0 {
		config.Dedup.DefaultThreshold = 0.88
	}
	if config.Dedup.Thresholds == nil {
		config.Dedup.Thresholds = map[string]float64{
			"image":  0.99,
			"social": 0.85,
			"html":   0.90,
			"other":  0.85,
		}
	}

	if config.Images.Model == "" {
		config.Images.Model = "gemini-1.5-flash"
	}
	if config.Images.BatchSize == 0 {
		config.Images.BatchSize = 3
	}
	if config.Images.PauseSeconds == 0 {
		config.Images.PauseSeconds = 60
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.BaseDir == "" {
		config.Server.BaseDir = "base"
	}
	if config.Server.LinksDir == "" {
		config.Server.LinksDir = filepath.Join("input", "In")
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) error {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	if o.OllamaBaseURL != "" {
		config.Embedding.BaseURL = o.OllamaBaseURL
		config.LLM.BaseURL = o.OllamaBaseURL
	}
	if o.DatabaseURL != "" {
		config.Database.URL = o.DatabaseURL
	}
	if o.GeminiAPIKey != "" {
		config.Embedding.APIKey = o.GeminiAPIKey
		config.Images.APIKey = o.GeminiAPIKey
	}
	if o.LogLevel != "" {
		config.Log.Level = o.LogLevel
	}
	if o.ServerAddr != "" {
		config.Server.Addr = o.ServerAddr
	}
	return nil
}
