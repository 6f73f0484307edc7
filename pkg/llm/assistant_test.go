package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/internal/types"
)

type stubStore struct {
	filter  types.QueryFilter
	vector  []float32
	results []models.SearchResult
}

func (s *stubStore) Store(ctx context.Context, chunks []models.EmbeddedChunk) (types.StoreResult, error) {
	return types.StoreResult{}, nil
}

func (s *stubStore) Query(ctx context.Context, embedding []float32, filter types.QueryFilter) ([]models.SearchResult, error) {
	s.vector = embedding
	s.filter = filter
	return s.results, nil
}

func (s *stubStore) Count(ctx context.Context) (int64, error) { return int64(len(s.results)), nil }

func (s *stubStore) Close() {}

func TestAssistantAsk(t *testing.T) {
	store := &stubStore{results: results[:2]}
	model := &fakeModel{reply: "Se aprobó una nueva tarifa."}
	chat, err := NewWithModel(ChatConfig{}, model)
	require.NoError(t, err)

	a := &Assistant{
		Embedder: &Embedder{config: EmbedderConfig{BatchSize: 5}, client: &countingClient{}},
		Store:    store,
		Chat:     chat,
		Limit:    3,
	}

	answer, found, err := a.Ask(context.Background(), "  ¿tarifa?  ", types.QueryFilter{Source: "html"})
	require.NoError(t, err)

	assert.Equal(t, "Se aprobó una nueva tarifa.", answer.Text)
	assert.Len(t, found, 2)
	assert.Equal(t, []float32{9}, store.vector) // byte length of "¿tarifa?"
	assert.Equal(t, types.QueryFilter{Source: "html", Limit: 3}, store.filter)
	assert.Contains(t, humanPrompt(t, model.messages), "Question: ¿tarifa?")
}

func TestAssistantRejectsEmptyQuestion(t *testing.T) {
	a := &Assistant{}
	_, _, err := a.Ask(context.Background(), "   ", types.QueryFilter{})
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}
