package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/pkg/config"
)

type fakeModel struct {
	reply    string
	chunks   []string
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.opts.StreamingFunc != nil {
		for _, c := range f.chunks {
			if err := f.opts.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

var results = []models.SearchResult{
	{Text: "Sunass aprobó la nueva tarifa.", Source: "html", URL: "https://noticias.example/1", Title: "Nueva tarifa", Date: "07052025"},
	{Text: "Reunión con la EPS local.", Source: "social", URL: "https://facebook.com/sunass/posts/2"},
	{Text: "Otra parte de la nota.", Source: "html", URL: "https://noticias.example/1"},
}

func humanPrompt(t *testing.T, msgs []llms.MessageContent) string {
	t.Helper()
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, msgs[1].Role)
	text, ok := msgs[1].Parts[0].(llms.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestChatConfigDefaults(t *testing.T) {
	engine, err := NewWithModel(ChatConfig{}, &fakeModel{})
	require.NoError(t, err)
	assert.Equal(t, "mistral", engine.config.Model)
	assert.Equal(t, 0.7, engine.config.Temperature)
	assert.Equal(t, 2000, engine.config.MaxTokens)
	assert.Equal(t, "http://localhost:11434", engine.config.BaseURL)

	_, err = NewWithModel(ChatConfig{Temperature: 2.5}, &fakeModel{})
	assert.Error(t, err)

	_, err = NewWithModel(ChatConfig{MaxTokens: -1}, &fakeModel{})
	assert.Error(t, err)
}

func TestNewWithConfig(t *testing.T) {
	engine, err := FromConfig(config.LLMConfig{Model: "llama3", Temperature: 0.2, BaseURL: "http://localhost:1234"})
	require.NoError(t, err)
	assert.Equal(t, "llama3", engine.config.Model)
	assert.Equal(t, 0.2, engine.config.Temperature)
}

func TestChat(t *testing.T) {
	model := &fakeModel{reply: "  La tarifa fue aprobada.\n"}
	engine, err := NewWithModel(ChatConfig{Temperature: 0.3, MaxTokens: 256}, model)
	require.NoError(t, err)

	answer, err := engine.Chat(context.Background(), "¿Qué aprobó Sunass?", results)
	require.NoError(t, err)

	assert.Equal(t, "La tarifa fue aprobada.", answer.Text)
	assert.Equal(t, []string{"https://noticias.example/1", "https://facebook.com/sunass/posts/2"}, answer.Sources)

	prompt := humanPrompt(t, model.messages)
	assert.Contains(t, prompt, "[1] Nueva tarifa (source: html, date: 07052025, url: https://noticias.example/1)")
	assert.Contains(t, prompt, "Reunión con la EPS local.")
	assert.Contains(t, prompt, "Question: ¿Qué aprobó Sunass?")

	assert.Equal(t, 0.3, model.opts.Temperature)
	assert.Equal(t, 256, model.opts.MaxTokens)

	assert.Equal(t, "\nSources:\nhttps://noticias.example/1\nhttps://facebook.com/sunass/posts/2", FormatSources(answer))
	assert.Equal(t, "", FormatSources(Answer{}))
}

func TestChatError(t *testing.T) {
	engine, err := NewWithModel(ChatConfig{}, &fakeModel{err: errors.New("connection refused")})
	require.NoError(t, err)

	_, err = engine.Chat(context.Background(), "q", nil)
	assert.ErrorContains(t, err, "connection refused")
}

func TestChatStream(t *testing.T) {
	model := &fakeModel{chunks: []string{"La ", "tarifa"}, reply: "La tarifa"}
	engine, err := NewWithModel(ChatConfig{}, model)
	require.NoError(t, err)

	stream, err := engine.ChatStream(context.Background(), "q", results)
	require.NoError(t, err)

	var got []string
	for s := range stream {
		got = append(got, s)
	}
	assert.Equal(t, []string{"La ", "tarifa"}, got)
}

func TestChatStreamWithoutChunks(t *testing.T) {
	engine, err := NewWithModel(ChatConfig{}, &fakeModel{reply: "completo"})
	require.NoError(t, err)

	stream, err := engine.ChatStream(context.Background(), "q", nil)
	require.NoError(t, err)

	var got []string
	for s := range stream {
		got = append(got, s)
	}
	assert.Equal(t, []string{"completo"}, got)
}
