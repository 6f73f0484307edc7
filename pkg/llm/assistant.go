package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/internal/types"
)

var ErrEmptyQuestion = errors.New("question is empty")

// Assistant answers questions over the stored news chunks.
type Assistant struct {
	Embedder types.Embedder
	Store    types.VectorStore
	Chat     *ChatEngine
	Limit    int
}

// Search embeds the question and returns the closest chunks.
func (a *Assistant) Search(ctx context.Context, question string, filter types.QueryFilter) ([]models.SearchResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	vectors, err := a.Embedder.CreateEmbedding(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for 1 text", ErrEmbeddingMismatch, len(vectors))
	}

	if filter.Limit <= 0 {
		filter.Limit = a.Limit
	}
	results, err := a.Store.Query(ctx, vectors[0], filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	return results, nil
}

// Ask searches for context and has the chat engine answer from it.
func (a *Assistant) Ask(ctx context.Context, question string, filter types.QueryFilter) (Answer, []models.SearchResult, error) {
	results, err := a.Search(ctx, question, filter)
	if err != nil {
		return Answer{}, nil, err
	}
	answer, err := a.Chat.Chat(ctx, question, results)
	if err != nil {
		return Answer{}, results, err
	}
	return answer, results, nil
}
