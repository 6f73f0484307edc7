package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/pkg/config"
)

const (
	DefaultVisionModel = "gemini-1.5-flash"
	maxImageBytes      = 20 << 20 // inline data limit of the Gemini API
)

// DefaultImagePrompt asks for a faithful transcription of the text in a
// scanned press clipping.
const DefaultImagePrompt = "Realiza una transcripción OCR precisa del contenido textual de esta imagen. " +
	"Captura titulares, subtítulos, párrafos completos, pies de foto y texto en recuadros, " +
	"respetando la separación entre párrafos y leyendo las columnas de izquierda a derecha. " +
	"Excluye logotipos, gráficos y elementos decorativos. No resumas ni interpretes el contenido. " +
	"Si algún texto es ilegible, indícalo con [ilegible]."

var (
	ErrNotImage = errors.New("response is not an image")
	ErrNoText   = errors.New("model returned no text for image")
)

// ImageModel is the part of genai.GenerativeModel the extractor uses.
type ImageModel interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type ImageExtractorConfig struct {
	APIKey     string
	Model      string
	Prompt     string
	BatchSize  int           // images sent before each pause
	Pause      time.Duration // wait between batches
	Client     *http.Client  // image downloads
	OnProgress func(url string, done, total int)
}

// ImageFailure is an image link that produced no document.
type ImageFailure struct {
	URL   string `json:"url"`
	Page  int    `json:"page,omitempty"`
	Error string `json:"error"`
}

type ImageResult struct {
	Documents []models.Document `json:"documents"`
	Failures  []ImageFailure    `json:"failures"`
}

// ImageExtractor downloads images and transcribes their text with a
// Gemini vision model.
type ImageExtractor struct {
	config ImageExtractorConfig
	model  ImageModel
	client *genai.Client
	http   *http.Client
	wait   func(ctx context.Context, d time.Duration) error
}

func imageDefaults(config ImageExtractorConfig) ImageExtractorConfig {
	if config.APIKey == "" {
		config.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if config.Model == "" {
		config.Model = DefaultVisionModel
	}
	if strings.TrimSpace(config.Prompt) == "" {
		config.Prompt = DefaultImagePrompt
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 3
	}
	if config.Pause < 0 {
		config.Pause = 0
	}
	if config.Client == nil {
		config.Client = &http.Client{Timeout: 60 * time.Second}
	}
	return config
}

func NewImageExtractor(ctx context.Context, config ImageExtractorConfig) (*ImageExtractor, error) {
	config = imageDefaults(config)
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	e := NewImageExtractorWithModel(config, cl.GenerativeModel(config.Model))
	e.client = cl
	return e, nil
}

// NewImageExtractorWithModel builds an extractor around an existing model.
func NewImageExtractorWithModel(config ImageExtractorConfig, model ImageModel) *ImageExtractor {
	config = imageDefaults(config)
	return &ImageExtractor{
		config: config,
		model:  model,
		http:   config.Client,
		wait:   sleep,
	}
}

// ImageConfigFrom maps the file configuration onto an ImageExtractorConfig.
func ImageConfigFrom(c config.ImagesConfig) ImageExtractorConfig {
	return ImageExtractorConfig{
		APIKey:    c.APIKey,
		Model:     c.Model,
		Prompt:    c.Prompt,
		BatchSize: c.BatchSize,
		Pause:     c.Pause(),
	}
}

// With returns a copy of e using prompt, batchSize and pause where they
// are set. The copy shares the model and its client.
func (e *ImageExtractor) With(prompt string, batchSize int, pause time.Duration) *ImageExtractor {
	c := *e
	if strings.TrimSpace(prompt) != "" {
		c.config.Prompt = prompt
	}
	if batchSize > 0 {
		c.config.BatchSize = batchSize
	}
	if pause > 0 {
		c.config.Pause = pause
	}
	return &c
}

func (e *ImageExtractor) Config() ImageExtractorConfig {
	return e.config
}

func (e *ImageExtractor) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ExtractLinks transcribes every image link. Links are sent in batches of
// BatchSize with a pause between batches. A failing image is recorded and
// does not stop the run; only cancellation of ctx returns an error.
func (e *ImageExtractor) ExtractLinks(ctx context.Context, links []models.LinkRecord) (ImageResult, error) {
	res := ImageResult{Documents: []models.Document{}, Failures: []ImageFailure{}}

	var todo []models.LinkRecord
	seen := make(map[string]bool)
	for _, l := range links {
		u := strings.TrimSpace(l.URL)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		l.URL = u
		todo = append(todo, l)
	}

	for i, link := range todo {
		if i > 0 && i%e.config.BatchSize == 0 {
			logger.Debug("pausing %s after %d images", e.config.Pause, i)
			if err := e.wait(ctx, e.config.Pause); err != nil {
				return res, fmt.Errorf("image extraction cancelled: %w", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("image extraction cancelled: %w", err)
		}

		doc, err := e.Extract(ctx, link.URL)
		if err != nil {
			if ctx.Err() != nil {
				return res, fmt.Errorf("image extraction cancelled: %w", ctx.Err())
			}
			logger.Warn("failed to extract text from %s: %v", link.URL, err)
			res.Failures = append(res.Failures, ImageFailure{URL: link.URL, Page: link.Page, Error: err.Error()})
		} else {
			res.Documents = append(res.Documents, doc)
		}

		if e.config.OnProgress != nil {
			e.config.OnProgress(link.URL, i+1, len(todo))
		}
	}

	logger.Info("extracted text from %d of %d images (%d failed)", len(res.Documents), len(todo), len(res.Failures))
	return res, nil
}

// Extract downloads one image and returns its transcription as an image
// document. The image id is derived from the URL so reruns keep it.
func (e *ImageExtractor) Extract(ctx context.Context, imageURL string) (models.Document, error) {
	data, format, err := e.download(ctx, imageURL)
	if err != nil {
		return models.Document{}, err
	}

	resp, err := e.model.GenerateContent(ctx, genai.Text(e.config.Prompt), genai.ImageData(format, data))
	if err != nil {
		return models.Document{}, fmt.Errorf("gemini generate content: %w", err)
	}

	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return models.Document{}, ErrNoText
	}

	return models.Document{
		Text:    text,
		Source:  models.SourceImage,
		URL:     imageURL,
		ImageID: uuid.NewSHA1(uuid.NameSpaceURL, []byte(imageURL)).String(),
	}, nil
}

func (e *ImageExtractor) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, imageURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}

	mime := strings.ToLower(strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0]))
	if !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, "", fmt.Errorf("%w: %s", ErrNotImage, mime)
	}
	return data, strings.TrimPrefix(mime, "image/"), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	return b.String()
}
