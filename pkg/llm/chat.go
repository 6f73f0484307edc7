package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"

	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/pkg/config"
)

var ErrNoResponse = errors.New("no response from LLM")

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model           string
	Temperature     float64
	MaxTokens       int
	SystemTemplate  string
	ContextTemplate string // formatted with the excerpts, then the question
	BaseURL         string // Ollama server URL
}

// ChatEngine answers questions from retrieved news excerpts.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// Answer is a generated reply and the URLs of the excerpts it was given.
type Answer struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
}

func chatDefaults(config ChatConfig) (ChatConfig, error) {
	if config.Model == "" {
		config.Model = "mistral" // Default Ollama model
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return config, fmt.Errorf("temperature must be between 0 and 2")
	} else if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.MaxTokens < 0 {
		return config, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = "You are an assistant that answers questions about press coverage. Use only the news excerpts provided and say so when they do not contain the answer."
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = "Relevant news excerpts:\n%s\nQuestion: %s"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	return config, nil
}

// NewWithConfig creates a ChatEngine backed by an Ollama model.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	config, err := chatDefaults(config)
	if err != nil {
		return nil, err
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{config: config, llm: llm}, nil
}

// NewWithModel creates a ChatEngine around an existing model.
func NewWithModel(config ChatConfig, model llms.Model) (*ChatEngine, error) {
	config, err := chatDefaults(config)
	if err != nil {
		return nil, err
	}
	return &ChatEngine{config: config, llm: model}, nil
}

func FromConfig(c config.LLMConfig) (*ChatEngine, error) {
	return NewWithConfig(ChatConfig{
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		BaseURL:     c.BaseURL,
	})
}

func (ce *ChatEngine) messages(query string, results []models.SearchResult) []llms.MessageContent {
	prompt := fmt.Sprintf(ce.config.ContextTemplate, formatContext(results), query)
	return []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}
}

func (ce *ChatEngine) options() []llms.CallOption {
	return []llms.CallOption{
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	}
}

// Chat generates an answer to query grounded on the search results.
func (ce *ChatEngine) Chat(ctx context.Context, query string, results []models.SearchResult) (Answer, error) {
	resp, err := ce.llm.GenerateContent(ctx, ce.messages(query, results), ce.options()...)
	if err != nil {
		return Answer{}, fmt.Errorf("chat error: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return Answer{}, ErrNoResponse
	}

	return Answer{
		Text:    strings.TrimSpace(resp.Choices[0].Content),
		Sources: Sources(results),
	}, nil
}

// ChatStream streams the answer as it is generated. The channel is closed
// when generation ends; a failure is sent as the last message.
func (ce *ChatEngine) ChatStream(ctx context.Context, query string, results []models.SearchResult) (<-chan string, error) {
	resultChan := make(chan string)

	go func() {
		defer close(resultChan)

		send := func(s string) bool {
			select {
			case resultChan <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}

		streamed := false
		opts := append(ce.options(), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			streamed = true
			if !send(string(chunk)) {
				return ctx.Err()
			}
			return nil
		}))

		resp, err := ce.llm.GenerateContent(ctx, ce.messages(query, results), opts...)
		if err != nil {
			send(fmt.Sprintf("Error: %v", err))
			return
		}
		if streamed {
			return
		}
		if resp == nil || len(resp.Choices) == 0 {
			send("Error: " + ErrNoResponse.Error())
			return
		}
		for _, choice := range resp.Choices {
			if choice != nil && choice.Content != "" {
				if !send(choice.Content) {
					return
				}
			}
		}
	}()

	return resultChan, nil
}

func formatContext(results []models.SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] ", i+1)
		if r.Title != "" {
			b.WriteString(r.Title + " ")
		}
		fmt.Fprintf(&b, "(source: %s", r.Source)
		if r.Date != "" {
			fmt.Fprintf(&b, ", date: %s", r.Date)
		}
		if r.URL != "" {
			fmt.Fprintf(&b, ", url: %s", r.URL)
		}
		fmt.Fprintf(&b, ")\n%s\n\n", r.Text)
	}
	return b.String()
}

// Sources lists the distinct urls of results in rank order.
func Sources(results []models.SearchResult) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, r := range results {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		out = append(out, r.URL)
	}
	return out
}

// FormatSources renders the answer's sources for citation.
func FormatSources(a Answer) string {
	if len(a.Sources) == 0 {
		return ""
	}
	return fmt.Sprintf("\nSources:\n%s", strings.Join(a.Sources, "\n"))
}
