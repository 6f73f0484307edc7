package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/pkg/config"
)

var (
	ErrNotHTML   = errors.New("response is not html")
	ErrNoContent = errors.New("page has no text content")
)

const defaultUserAgent = "Mozilla/5.0 (compatible; newsagent/1.0)"

type ScraperConfig struct {
	RateLimit      float64 // requests per second
	IgnorePatterns []string
	Timeout        time.Duration
	Concurrency    int
	Retries        int
	Keywords       []string
	PrimaryKeyword string
	UserAgent      string
	Client         *http.Client
	OnProgress     func(url string, done, total int)
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

// Failure is a link that could not be turned into a document.
type Failure struct {
	URL   string `json:"url"`
	Page  int    `json:"page,omitempty"`
	Error string `json:"error"`
}

type Result struct {
	Documents []models.Document `json:"documents"`
	Failures  []Failure         `json:"failures"`
	Skipped   int               `json:"skipped"`
}

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &Scraper{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

func New() *Scraper {
	return NewWithConfig(ScraperConfig{Retries: 2})
}

// ConfigFrom maps the file configuration onto a ScraperConfig.
func ConfigFrom(c config.ScraperConfig) ScraperConfig {
	return ScraperConfig{
		RateLimit:      c.RateLimit,
		IgnorePatterns: c.IgnorePatterns,
		Timeout:        c.Timeout(),
		Concurrency:    c.Concurrency,
		Retries:        2,
		Keywords:       c.Keywords,
		PrimaryKeyword: c.PrimaryKeyword,
	}
}

func FromConfig(c config.ScraperConfig) *Scraper {
	return NewWithConfig(ConfigFrom(c))
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false
	}
	if parsedURL.Host == "" {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

func (s *Scraper) cleanContent(content string) string {
	// Remove extra whitespace
	content = strings.Join(strings.Fields(content), " ")

	noisePatterns := []string{
		"Política de cookies",
		"Aceptar cookies",
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.Join(strings.Fields(content), " ")
}

func (s *Scraper) extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, noscript, header, footer, nav, aside, form").Remove()

	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".entry-content",
		".news-content",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = textOf(selected)
			break
		}
	}

	// Fallback to body if no main content found
	if strings.TrimSpace(content) == "" {
		content = textOf(doc.Find("body"))
	}

	return s.cleanContent(content)
}

// textOf joins the text nodes under sel with single spaces so adjacent
// block elements do not run together.
func textOf(sel *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				if t := strings.TrimSpace(c.Text()); t != "" {
					parts = append(parts, t)
				}
				return
			}
			walk(c)
		})
	}
	walk(sel)
	return strings.Join(parts, " ")
}

// Relevance scores text by the keywords it mentions. The primary keyword
// weighs 0.5, every other keyword 0.2, each counted once, capped at 1.
func Relevance(text string, keywords []string, primary string) float64 {
	if text == "" || len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	primary = strings.ToLower(primary)

	found := make(map[string]bool)
	score := 0.0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || found[kw] || !strings.Contains(lower, kw) {
			continue
		}
		found[kw] = true
		if kw == primary {
			score += 0.5
		} else {
			score += 0.2
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

func (s *Scraper) fetchHTML(ctx context.Context, urlStr string) (*goquery.Document, error) {
	resp, err := s.get(ctx, urlStr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if contentType != "" && !strings.Contains(contentType, "text/html") {
		return nil, fmt.Errorf("%w: %s", ErrNotHTML, contentType)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return doc, nil
}

// metaContent returns the content of the first meta tag whose attr
// (name or property) matches key, ignoring case.
func metaContent(doc *goquery.Document, attr, key string) string {
	var content string
	doc.Find("meta[" + attr + "]").EachWithBreak(func(_ int, m *goquery.Selection) bool {
		if v, _ := m.Attr(attr); strings.EqualFold(v, key) {
			content, _ = m.Attr("content")
			return false
		}
		return true
	})
	return strings.TrimSpace(content)
}

// Fetch downloads one page and turns it into an html document.
func (s *Scraper) Fetch(ctx context.Context, urlStr string) (models.Document, error) {
	doc, err := s.fetchHTML(ctx, urlStr)
	if err != nil {
		return models.Document{}, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	description := metaContent(doc, "name", "description")

	content := s.extractMainContent(doc)
	if content == "" {
		return models.Document{}, ErrNoContent
	}

	relevance := Relevance(title+" "+description+" "+content, s.config.Keywords, s.config.PrimaryKeyword)
	return models.Document{
		Text:      content,
		Source:    models.SourceHTML,
		URL:       urlStr,
		Title:     title,
		Relevance: &relevance,
	}, nil
}

// FetchPost reads a social network post from the Open Graph tags the
// network serves for link previews. Pages without them fall back to the
// main content of the body.
func (s *Scraper) FetchPost(ctx context.Context, urlStr string) (models.Document, error) {
	doc, err := s.fetchHTML(ctx, urlStr)
	if err != nil {
		return models.Document{}, err
	}

	title := metaContent(doc, "property", "og:title")
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	text := metaContent(doc, "property", "og:description")
	if text == "" {
		text = metaContent(doc, "name", "description")
	}
	text = s.cleanContent(text)
	if text == "" {
		text = s.extractMainContent(doc)
	}
	if text == "" {
		return models.Document{}, ErrNoContent
	}

	relevance := Relevance(title+" "+text, s.config.Keywords, s.config.PrimaryKeyword)
	return models.Document{
		Text:      text,
		Source:    models.SourceSocial,
		URL:       urlStr,
		Title:     title,
		Relevance: &relevance,
	}, nil
}

func (s *Scraper) get(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= s.config.Retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(500*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		// Apply rate limiting
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", s.config.UserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")

		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
		}
		return resp, nil
	}
	return nil, lastErr
}

// ScrapeLinks fetches every link concurrently. A failing link is recorded
// and does not stop the batch; only cancellation of ctx returns an error.
// Documents keep the order of links.
func (s *Scraper) ScrapeLinks(ctx context.Context, links []models.LinkRecord) (Result, error) {
	return s.scrape(ctx, links, s.Fetch)
}

// ScrapePosts is ScrapeLinks for social network links, read with FetchPost.
func (s *Scraper) ScrapePosts(ctx context.Context, links []models.LinkRecord) (Result, error) {
	return s.scrape(ctx, links, s.FetchPost)
}

func (s *Scraper) scrape(ctx context.Context, links []models.LinkRecord, fetch func(context.Context, string) (models.Document, error)) (Result, error) {
	res := Result{Documents: []models.Document{}, Failures: []Failure{}}

	var todo []models.LinkRecord
	visited := make(map[string]bool)
	for _, l := range links {
		u := strings.TrimSpace(l.URL)
		if visited[u] || !s.shouldProcessURL(u) {
			res.Skipped++
			continue
		}
		visited[u] = true
		l.URL = u
		todo = append(todo, l)
	}

	docs := make([]*models.Document, len(todo))
	errs := make([]error, len(todo))

	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i, link := range todo {
		i, link := i, link
		g.Go(func() error {
			doc, err := fetch(gctx, link.URL)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				errs[i] = err
			} else {
				docs[i] = &doc
			}

			mu.Lock()
			done++
			if s.config.OnProgress != nil {
				s.config.OnProgress(link.URL, done, len(todo))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("scraping cancelled: %w", err)
	}

	for i, link := range todo {
		if errs[i] != nil {
			logger.Warn("failed to scrape %s: %v", link.URL, errs[i])
			res.Failures = append(res.Failures, Failure{URL: link.URL, Page: link.Page, Error: errs[i].Error()})
			continue
		}
		res.Documents = append(res.Documents, *docs[i])
	}

	logger.Info("scraped %d of %d links (%d failed, %d skipped)", len(res.Documents), len(links), len(res.Failures), res.Skipped)
	return res, nil
}
