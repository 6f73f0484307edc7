package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/internal/types"
	"github.com/xhad/newsagent/pkg/ingest"
	"github.com/xhad/newsagent/pkg/llm"
	"github.com/xhad/newsagent/pkg/pdflinks"
)

// ProcessRequest asks for a previously uploaded PDF to be processed.
// Prompt, BatchSize and PauseSeconds tune the image transcription and
// BatchSize also the embedding batches; zero keeps the configured value.
// They are ignored when the server has no ingest pipeline.
type ProcessRequest struct {
	Filename     string `json:"filename"`
	Prompt       string `json:"prompt"`
	BatchSize    int    `json:"batchSize"`
	PauseSeconds int    `json:"pauseSeconds"`
}

type ProcessResponse struct {
	Filename   string                  `json:"filename"`
	Links      int                     `json:"links"`
	Invalid    int                     `json:"invalid"`
	Categories map[models.Category]int `json:"categories"`
	LinksFile  string                  `json:"links_file"`

	Documents []models.Document `json:"documents,omitempty"`
	Failures  int               `json:"failures,omitempty"`
	Summary   *ingest.Summary   `json:"summary,omitempty"`
}

type ChatRequest struct {
	Question string `json:"pregunta"`
	Source   string `json:"source,omitempty"`
	Date     string `json:"date,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type ChatResponse struct {
	Answer  string   `json:"respuesta"`
	Sources []string `json:"sources"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// trimPDFExt drops a trailing .pdf extension in any letter case.
func trimPDFExt(name string) string {
	if ext := filepath.Ext(name); strings.EqualFold(ext, ".pdf") {
		return name[:len(name)-len(ext)]
	}
	return name
}

// validName rejects names that could escape the configured directories.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !validName(name) || !strings.EqualFold(filepath.Ext(name), ".pdf") {
		writeError(w, http.StatusBadRequest, "file must be a pdf")
		return
	}

	if err := os.MkdirAll(s.config.BaseDir, 0755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dst, err := os.Create(filepath.Join(s.config.BaseDir, name))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save upload: %v", err))
		return
	}

	// a new upload starts a new job
	s.tracker.set(trimPDFExt(name), 0, StatusPending, "")
	logger.Info("saved upload %s", name)
	writeJSON(w, http.StatusOK, map[string]string{"filename": name})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := trimPDFExt(strings.TrimSpace(req.Filename))
	if !validName(name) {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	path, ok := s.findPDF(name)
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	resp, err := s.process(r.Context(), name, path, req)
	if err != nil {
		s.tracker.set(name, 100, StatusError, err.Error())
		status := http.StatusInternalServerError
		if errors.Is(err, pdflinks.ErrNotPDF) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// findPDF looks for name.pdf in the upload directory, accepting an
// upper-case extension as well.
func (s *Server) findPDF(name string) (string, bool) {
	for _, ext := range []string{".pdf", ".PDF", ".Pdf"} {
		path := filepath.Join(s.config.BaseDir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// process extracts, classifies and stores the links of one PDF. With an
// ingest pipeline configured it goes on to scrape, transcribe and store
// the documents behind them.
func (s *Server) process(ctx context.Context, name, path string, req ProcessRequest) (ProcessResponse, error) {
	s.tracker.set(name, 0, StatusProcessing, "")

	if err := pdflinks.Validate(path); err != nil {
		logger.Warn("%v, trying extraction anyway", err)
	}
	s.tracker.set(name, 10, StatusProcessing, "")

	links, err := s.extractor.Extract(path)
	if err != nil {
		return ProcessResponse{}, err
	}
	s.tracker.set(name, 40, StatusProcessing, "")

	result := s.classifier.ClassifyLinks(links)
	s.tracker.set(name, 60, StatusProcessing, "")

	if err := os.MkdirAll(s.config.LinksDir, 0755); err != nil {
		return ProcessResponse{}, fmt.Errorf("failed to create links dir: %w", err)
	}
	linksFile := filepath.Join(s.config.LinksDir, "links_extracted_"+name+".csv")
	f, err := os.Create(linksFile)
	if err != nil {
		return ProcessResponse{}, fmt.Errorf("failed to create links file: %w", err)
	}
	if err := pdflinks.WriteCSV(f, links); err != nil {
		f.Close()
		return ProcessResponse{}, err
	}
	if err := f.Close(); err != nil {
		return ProcessResponse{}, fmt.Errorf("failed to write links file: %w", err)
	}

	resp := ProcessResponse{
		Filename:   name,
		Links:      len(links),
		Invalid:    result.Invalid,
		Categories: result.Counts(),
		LinksFile:  linksFile,
	}

	if s.config.Ingest == nil {
		s.tracker.set(name, 90, StatusProcessing, "")
	} else {
		s.tracker.set(name, 65, StatusProcessing, "")
		out, err := s.runIngest(ctx, name, req, result)
		if err != nil {
			return ProcessResponse{}, err
		}
		resp.Documents = out.documents
		resp.Failures = out.failures
		resp.Summary = &out.summary
	}

	s.tracker.set(name, 100, StatusDone, "")
	return resp, nil
}

func (s *Server) handleExtractedURLs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "namefile")
	if !validName(name) {
		writeError(w, http.StatusBadRequest, "invalid name")
		return
	}

	f, err := os.Open(filepath.Join(s.config.LinksDir, "links_extracted_"+name+".csv"))
	if err != nil {
		writeError(w, http.StatusNotFound, "links file not found")
		return
	}
	defer f.Close()

	links, err := pdflinks.ReadCSV(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	urls := pdflinks.URLs(links)
	if urls == nil {
		urls = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"urls": urls})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.streamStatus(conn, name)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, _, err := s.assistant.Ask(r.Context(), req.Question, types.QueryFilter{
		Source: req.Source,
		Date:   req.Date,
		Limit:  req.Limit,
	})
	if errors.Is(err, llm.ErrEmptyQuestion) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		logger.Error("chat failed: %v", err)
		writeError(w, http.StatusBadGateway, "failed to answer question")
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Answer: answer.Text, Sources: answer.Sources})
}
