// Package server exposes the link extraction pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/internal/types"
	"github.com/xhad/newsagent/pkg/classifier"
	"github.com/xhad/newsagent/pkg/config"
	"github.com/xhad/newsagent/pkg/llm"
	"github.com/xhad/newsagent/pkg/pdflinks"
	"github.com/xhad/newsagent/pkg/scraper"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is open to every origin as well
	},
}

// Asker answers questions from stored chunks.
type Asker interface {
	Ask(ctx context.Context, question string, filter types.QueryFilter) (llm.Answer, []models.SearchResult, error)
}

type Config struct {
	Addr          string
	BaseDir       string // uploaded PDFs
	LinksDir      string // extracted links files
	StatusTimeout time.Duration
	MaxUpload     int64

	// Ingest, when set, makes /procesar_pdf/ store the documents behind
	// the extracted links.
	Ingest *Ingest
}

type Server struct {
	config     Config
	extractor  *pdflinks.Extractor
	classifier *classifier.Classifier
	assistant  Asker
	tracker    *tracker
	router     chi.Router
}

func FromConfig(c config.ServerConfig) Config {
	return Config{
		Addr:     c.Addr,
		BaseDir:  c.BaseDir,
		LinksDir: c.LinksDir,
	}
}

// New builds the server. assistant may be nil, in which case the chatbot
// endpoint answers 503.
func New(config Config, assistant Asker) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.BaseDir == "" {
		config.BaseDir = "base"
	}
	if config.LinksDir == "" {
		config.LinksDir = "input/In"
	}
	if config.StatusTimeout == 0 {
		config.StatusTimeout = 10 * time.Minute
	}
	if config.MaxUpload == 0 {
		config.MaxUpload = 50 << 20
	}

	if ing := config.Ingest; ing != nil {
		if ing.Embedder == nil || ing.Store == nil {
			logger.Warn("ingest needs an embedder and a vector store, processing links only")
			config.Ingest = nil
		} else if ing.Scraper == nil {
			withScraper := *ing
			withScraper.Scraper = scraper.New()
			config.Ingest = &withScraper
		}
	}

	s := &Server{
		config:     config,
		extractor:  pdflinks.New(),
		classifier: classifier.New(),
		assistant:  assistant,
		tracker:    newTracker(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ws/status/{filename}", s.handleStatus)

	// scraping and image batches with pauses outlast the other requests
	r.With(middleware.Timeout(time.Hour)).Post("/procesar_pdf/", s.handleProcess)

	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(5 * time.Minute))
		api.Post("/upload_pdf/", s.handleUpload)
		api.Get("/urls_extraidas/{namefile}", s.handleExtractedURLs)
		api.Post("/chatbot/", s.handleChat)
	})

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Info("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}
