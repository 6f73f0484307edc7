package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/pkg/config"
)

const pngHeader = "\x89PNG\r\n\x1a\n"

type fakeVision struct {
	prompts []string
	blobs   []genai.Blob
	err     error
}

// GenerateContent answers with the bytes that follow the PNG header.
func (f *fakeVision) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.prompts = append(f.prompts, string(parts[0].(genai.Text)))
	blob := parts[1].(genai.Blob)
	f.blobs = append(f.blobs, blob)

	text := strings.TrimPrefix(string(blob.Data), pngHeader)
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text(text)}}}},
	}, nil
}

func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	image := func(text string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(pngHeader + text))
		}
	}
	mux.HandleFunc("/uno.png", image("Corte de agua en Lima"))
	mux.HandleFunc("/dos.png", image("Sunass fija tarifa"))
	mux.HandleFunc("/tres.png", image("Obras de saneamiento"))
	mux.HandleFunc("/blanco.png", image("   "))
	mux.HandleFunc("/pagina", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>no es una imagen</body></html>"))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestImageDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	e := NewImageExtractorWithModel(ImageExtractorConfig{Pause: -time.Second}, &fakeVision{})
	cfg := e.Config()
	assert.Equal(t, DefaultVisionModel, cfg.Model)
	assert.Equal(t, DefaultImagePrompt, cfg.Prompt)
	assert.Equal(t, 3, cfg.BatchSize)
	assert.Equal(t, time.Duration(0), cfg.Pause)

	_, err := NewImageExtractor(context.Background(), ImageExtractorConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	custom := e.With("Solo titulares", 5, time.Minute).Config()
	assert.Equal(t, "Solo titulares", custom.Prompt)
	assert.Equal(t, 5, custom.BatchSize)
	assert.Equal(t, time.Minute, custom.Pause)
	assert.Equal(t, DefaultImagePrompt, e.With("  ", 0, 0).Config().Prompt)

	cfg = ImageConfigFrom(config.ImagesConfig{Model: "gemini-1.5-pro", BatchSize: 2, PauseSeconds: 5, Prompt: "transcribe"})
	assert.Equal(t, 5*time.Second, cfg.Pause)
	assert.Equal(t, 2, cfg.BatchSize)
	assert.Equal(t, "transcribe", cfg.Prompt)
}

func TestExtractImage(t *testing.T) {
	server := newImageServer(t)
	model := &fakeVision{}
	e := NewImageExtractorWithModel(ImageExtractorConfig{Prompt: "Extrae el texto"}, model)

	doc, err := e.Extract(context.Background(), server.URL+"/uno.png")
	require.NoError(t, err)
	assert.Equal(t, models.SourceImage, doc.Source)
	assert.Equal(t, server.URL+"/uno.png", doc.URL)
	assert.Equal(t, "Corte de agua en Lima", doc.Text)
	assert.NotEmpty(t, doc.ImageID)
	assert.NoError(t, doc.Validate())

	again, err := e.Extract(context.Background(), server.URL+"/uno.png")
	require.NoError(t, err)
	assert.Equal(t, doc.ImageID, again.ImageID)

	require.Len(t, model.blobs, 2)
	assert.Equal(t, "image/png", model.blobs[0].MIMEType)
	assert.Equal(t, "Extrae el texto", model.prompts[0])

	_, err = e.Extract(context.Background(), server.URL+"/pagina")
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = e.Extract(context.Background(), server.URL+"/blanco.png")
	assert.ErrorIs(t, err, ErrNoText)

	_, err = e.Extract(context.Background(), server.URL+"/missing.png")
	assert.ErrorContains(t, err, "status code 404")

	failing := NewImageExtractorWithModel(ImageExtractorConfig{}, &fakeVision{err: errors.New("quota exceeded")})
	_, err = failing.Extract(context.Background(), server.URL+"/uno.png")
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestExtractLinksBatches(t *testing.T) {
	server := newImageServer(t)
	model := &fakeVision{}

	var progress []int
	e := NewImageExtractorWithModel(ImageExtractorConfig{
		BatchSize: 2,
		Pause:     30 * time.Second,
		OnProgress: func(url string, done, total int) {
			assert.Equal(t, 5, total)
			progress = append(progress, done)
		},
	}, model)

	var pauses []time.Duration
	e.wait = func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}

	res, err := e.ExtractLinks(context.Background(), []models.LinkRecord{
		{URL: server.URL + "/uno.png", Page: 1},
		{URL: server.URL + "/dos.png", Page: 1},
		{URL: " " + server.URL + "/uno.png", Page: 2},
		{URL: server.URL + "/pagina", Page: 2},
		{URL: server.URL + "/tres.png", Page: 3},
		{URL: server.URL + "/missing.png", Page: 4},
	})
	require.NoError(t, err)

	require.Len(t, res.Documents, 3)
	assert.Equal(t, "Sunass fija tarifa", res.Documents[1].Text)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, 2, res.Failures[0].Page)
	assert.Equal(t, server.URL+"/missing.png", res.Failures[1].URL)

	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, pauses)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, progress)
	assert.Len(t, model.blobs, 3)
}

func TestExtractLinksCancelled(t *testing.T) {
	server := newImageServer(t)
	e := NewImageExtractorWithModel(ImageExtractorConfig{BatchSize: 1, Pause: time.Hour}, &fakeVision{})

	ctx, cancel := context.WithCancel(context.Background())
	e.config.OnProgress = func(url string, done, total int) { cancel() }

	res, err := e.ExtractLinks(ctx, []models.LinkRecord{
		{URL: server.URL + "/uno.png"},
		{URL: server.URL + "/dos.png"},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, res.Documents, 1)
}
