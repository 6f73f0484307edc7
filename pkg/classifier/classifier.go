// Package classifier validates raw links and sorts them into exclusive
// categories: image, social, html and other.
//
// The checks run in a fixed order. A link that looks like an image is an
// image even when it lives on a social network's domain; only then is the
// host compared against the social allowlist, and anything left over is
// html when fetched over http(s) and other otherwise.
package classifier

import (
	"net/url"
	"strings"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/internal/models"
)

var (
	defaultSocialDomains = []string{
		"facebook.com", "twitter.com", "x.com", "instagram.com", "linkedin.com",
		"youtube.com", "youtu.be", "pinterest.com", "tiktok.com", "whatsapp.com",
		"t.me", "reddit.com",
	}
	defaultImageExtensions = []string{
		".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".svg", ".tiff", ".ico",
	}
	defaultImagePathPatterns = []string{
		"/uploads/", "/images/", "/img/", "/static/images/", "/media/",
	}
)

type ClassifierConfig struct {
	SocialDomains     []string
	ImageExtensions   []string
	ImagePathPatterns []string
}

type Classifier struct {
	config ClassifierConfig
}

// Result is the outcome of classifying a batch. Every category has an
// entry in Buckets, possibly empty.
type Result struct {
	Buckets   map[models.Category][]models.LinkRecord
	Processed int
	Invalid   int
}

// Counts returns the bucket sizes keyed by category.
func (r Result) Counts() map[models.Category]int {
	counts := make(map[models.Category]int, len(r.Buckets))
	for _, c := range models.Categories() {
		counts[c] = len(r.Buckets[c])
	}
	return counts
}

func NewWithConfig(config ClassifierConfig) *Classifier {
	if len(config.SocialDomains) == 0 {
		config.SocialDomains = defaultSocialDomains
	}
	if len(config.ImageExtensions) == 0 {
		config.ImageExtensions = defaultImageExtensions
	}
	if len(config.ImagePathPatterns) == 0 {
		config.ImagePathPatterns = defaultImagePathPatterns
	}
	return &Classifier{config: config}
}

func New() *Classifier {
	return NewWithConfig(ClassifierConfig{})
}

var std = New()

// IsValidURL reports whether raw parses with both a scheme and a host.
func IsValidURL(raw string) bool {
	_, ok := parse(raw)
	return ok
}

func IsImageURL(raw string) bool       { return std.IsImageURL(raw) }
func IsSocialMediaURL(raw string) bool { return std.IsSocialMediaURL(raw) }

// Classify assigns a single URL its category. ok is false for invalid URLs.
func Classify(raw string) (models.Category, bool) { return std.Classify(raw) }

// parse accepts anything with a scheme and a host. Links pulled out of
// PDFs often carry stray '%' characters or other bytes url.Parse rejects,
// so those are retried with the '%' escaped and finally split by hand.
func parse(raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		u, err = url.Parse(escapeStrayPercent(raw))
	}
	if err != nil {
		u = splitURL(raw)
	}
	if u == nil || u.Scheme == "" || u.Host == "" {
		return nil, false
	}
	return u, true
}

// escapeStrayPercent rewrites every '%' not followed by two hex digits as %25.
func escapeStrayPercent(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && (i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2])) {
			b.WriteString("%25")
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// splitURL takes the scheme before the first ':' and the authority between
// "//" and the next '/', '?' or '#'. The path is decoded where possible.
func splitURL(raw string) *url.URL {
	scheme, rest, ok := strings.Cut(raw, ":")
	if !ok || !validScheme(scheme) || !strings.HasPrefix(rest, "//") {
		return nil
	}
	rest = rest[2:]

	host := rest
	tail := ""
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		host, tail = rest[:i], rest[i:]
	}
	if i := strings.LastIndex(host, "@"); i >= 0 {
		host = host[i+1:]
	}
	if strings.Contains(host, "[") != strings.Contains(host, "]") {
		return nil
	}

	path := tail
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if decoded, err := url.PathUnescape(escapeStrayPercent(path)); err == nil {
		path = decoded
	}
	return &url.URL{Scheme: strings.ToLower(scheme), Host: host, Path: path}
}

func validScheme(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

func (c *Classifier) IsImageURL(raw string) bool {
	u, ok := parse(raw)
	if !ok {
		return false
	}
	return c.isImage(u)
}

// isImage matches against the percent-decoded path, which url.Parse keeps in Path.
func (c *Classifier) isImage(u *url.URL) bool {
	path := strings.ToLower(u.Path)
	for _, ext := range c.config.ImageExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	for _, pattern := range c.config.ImagePathPatterns {
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}

func (c *Classifier) IsSocialMediaURL(raw string) bool {
	u, ok := parse(raw)
	if !ok {
		return false
	}
	return c.isSocial(u)
}

func (c *Classifier) isSocial(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	for _, domain := range c.config.SocialDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func (c *Classifier) Classify(raw string) (models.Category, bool) {
	u, ok := parse(raw)
	if !ok {
		return "", false
	}

	switch {
	case c.isImage(u):
		return models.CategoryImage, true
	case c.isSocial(u):
		return models.CategorySocial, true
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "http" || scheme == "https" {
		return models.CategoryHTML, true
	}
	return models.CategoryOther, true
}

// ClassifyLinks partitions links into categories. Invalid links are
// counted and left out of every bucket.
func (c *Classifier) ClassifyLinks(links []models.LinkRecord) Result {
	result := Result{Buckets: make(map[models.Category][]models.LinkRecord, 4)}
	for _, cat := range models.Categories() {
		result.Buckets[cat] = []models.LinkRecord{}
	}

	for _, link := range links {
		cat, ok := c.Classify(link.URL)
		if !ok {
			logger.Debug("skipping invalid url %q (page %d)", link.URL, link.Page)
			result.Invalid++
			continue
		}
		link.URL = strings.TrimSpace(link.URL)
		result.Buckets[cat] = append(result.Buckets[cat], link)
		result.Processed++
	}

	counts := result.Counts()
	logger.Info("classified %d links: image=%d social=%d html=%d other=%d",
		result.Processed,
		counts[models.CategoryImage],
		counts[models.CategorySocial],
		counts[models.CategoryHTML],
		counts[models.CategoryOther])
	if result.Invalid > 0 {
		logger.Warn("omitted %d invalid links", result.Invalid)
	}

	return result
}
