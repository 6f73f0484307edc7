package classifier

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/internal/models"
)

func TestIsValidURL(t *testing.T) {
	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com", true},
		{"http://example.com/path?q=1", true},
		{"ftp://files.example.com/data.bin", true},
		{"", false},
		{"   ", false},
		{"example.com/path", false},
		{"/relative/path", false},
		{"mailto:someone@example.com", false},
		{"https://", false},
		{"http://[::1", false},
		{"https://example.com/100%off", true},
		{"https://example.com/a%zzb.html", true},
		{"https://exa mple.com/noticia", true},
		{"1http://example.com/%zz", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsValidURL(tt.url))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		url      string
		expected models.Category
	}{
		{"https://example.com/img/photo.JPG", models.CategoryImage},
		{"https://example.com/a/b/banner.webp", models.CategoryImage},
		{"https://cdn.example.com/wp-content/uploads/2024/01/file", models.CategoryImage},
		{"https://example.com/some%20dir/Photo%2EPNG", models.CategoryImage},
		{"https://example.com/%69mages/x", models.CategoryImage},
		{"https://m.facebook.com/somepage", models.CategorySocial},
		{"https://www.youtube.com/watch?v=abc", models.CategorySocial},
		{"https://youtu.be/abc", models.CategorySocial},
		{"https://t.me/channel", models.CategorySocial},
		{"https://X.com/user/status/1", models.CategorySocial},
		{"https://notfacebook.com/page", models.CategoryHTML},
		{"https://facebook.com.evil.test/page", models.CategoryHTML},
		{"https://www.gob.pe/sunass/noticias", models.CategoryHTML},
		{"HTTP://example.com/page", models.CategoryHTML},
		{"ftp://files.example.com/data.bin", models.CategoryOther},
		{"ftp://files.example.com/photo.png", models.CategoryImage},
		{"https://example.com/100%off", models.CategoryHTML},
		{"https://example.com/a%zzb.html", models.CategoryHTML},
		{"https://example.com/fotos/50%descuento.jpg", models.CategoryImage},
		{"https://example.com/%69mages/100%.png", models.CategoryImage},
		{"https://m.facebook.com/page/100%off", models.CategorySocial},
		{"https://exa mple.com/Foto%2Ejpg", models.CategoryImage},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, ok := Classify(tt.url)
			require.True(t, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestImageTakesPriorityOverSocial(t *testing.T) {
	urls := []string{
		"https://www.facebook.com/photos/cover.jpg",
		"https://instagram.com/media/123",
		"https://pbs.twimg.com.x.com/img/abc",
	}

	for _, u := range urls {
		assert.True(t, IsImageURL(u), u)
		assert.True(t, IsSocialMediaURL(u), u)
		got, ok := Classify(u)
		require.True(t, ok)
		assert.Equal(t, models.CategoryImage, got, u)
	}
}

func TestClassifyLinks(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stderr)

	links := []models.LinkRecord{
		{URL: "https://example.com/img/photo.JPG", Page: 1},
		{URL: "https://m.facebook.com/somepage", Page: 1},
		{URL: "https://www.sunass.gob.pe/noticia", Page: 2},
		{URL: "ftp://files.example.com/data.bin", Page: 2},
		{URL: "not a url", Page: 3},
		{URL: "", Page: 3},
		{URL: " https://example.org/news ", Page: 4},
	}

	result := New().ClassifyLinks(links)

	assert.Equal(t, 5, result.Processed)
	assert.Equal(t, 2, result.Invalid)
	assert.Equal(t, map[models.Category]int{
		models.CategoryImage:  1,
		models.CategorySocial: 1,
		models.CategoryHTML:   2,
		models.CategoryOther:  1,
	}, result.Counts())

	assert.Equal(t, "https://example.org/news", result.Buckets[models.CategoryHTML][1].URL)
	assert.Equal(t, 4, result.Buckets[models.CategoryHTML][1].Page)

	for _, bucket := range result.Buckets {
		for _, link := range bucket {
			assert.NotEqual(t, "not a url", link.URL)
			assert.NotEmpty(t, link.URL)
		}
	}

	assert.Contains(t, buf.String(), "classified 5 links")
	assert.Contains(t, buf.String(), "omitted 2 invalid links")
}

func TestClassifyLinksPartition(t *testing.T) {
	links := []models.LinkRecord{
		{URL: "https://a.test/1"},
		{URL: "https://a.test/logo.svg"},
		{URL: "https://reddit.com/r/peru"},
		{URL: "gopher://old.test/"},
		{URL: "https://b.test/media/x"},
	}

	result := New().ClassifyLinks(links)

	seen := make(map[string]int)
	total := 0
	for _, bucket := range result.Buckets {
		for _, link := range bucket {
			seen[link.URL]++
			total++
		}
	}
	assert.Equal(t, len(links), total)
	for u, n := range seen {
		assert.Equal(t, 1, n, u)
	}
}

func TestClassifyLinksEmpty(t *testing.T) {
	result := New().ClassifyLinks(nil)

	assert.Zero(t, result.Processed)
	assert.Zero(t, result.Invalid)
	assert.Len(t, result.Buckets, 4)
	for _, bucket := range result.Buckets {
		assert.Empty(t, bucket)
	}
}

func TestCustomDomains(t *testing.T) {
	c := NewWithConfig(ClassifierConfig{SocialDomains: []string{"mastodon.social"}})

	got, ok := c.Classify("https://mastodon.social/@sunass")
	require.True(t, ok)
	assert.Equal(t, models.CategorySocial, got)

	got, _ = c.Classify("https://facebook.com/page")
	assert.Equal(t, models.CategoryHTML, got)
}
