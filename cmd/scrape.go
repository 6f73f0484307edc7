package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/pkg/classifier"
	"github.com/xhad/newsagent/pkg/llm"
	"github.com/xhad/newsagent/pkg/scraper"
)

// cleanFile is the layout the ingest command reads back.
type cleanFile struct {
	Content  []models.Document `json:"content"`
	Failures []scraper.Failure `json:"failures,omitempty"`
}

func newScrapeCmd(a *app) *cobra.Command {
	var (
		out    string
		date   string
		social bool
		images bool
	)

	cmd := &cobra.Command{
		Use:   "scrape <links.csv>",
		Short: "Scrape the pages of a links file into a documents file",
		Long: `Scrapes the pages listed in a links file and writes the cleaned documents
as rag_clean_<date>.json, ready for ingest. Only html links are scraped
unless --social or --images is given. --images transcribes image links
with the Gemini model configured under images.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			links, err := readLinks(args[0])
			if err != nil {
				return err
			}
			buckets := classifier.New().ClassifyLinks(links).Buckets
			if date == "" {
				date = time.Now().Format("02012006")
			}
			if out == "" {
				out = "rag_clean_" + date + ".json"
			}

			sc := scraper.ConfigFrom(a.config.Scraper)
			bar := getProgressBar(len(buckets[models.CategoryHTML]), " Scraping pages")
			sc.OnProgress = func(url string, done, total int) {
				bar.Set(done)
			}
			s := scraper.NewWithConfig(sc)

			res, err := s.ScrapeLinks(ctx, buckets[models.CategoryHTML])
			bar.Finish()
			if err != nil {
				return err
			}
			file := cleanFile{Content: res.Documents, Failures: res.Failures}

			if social {
				posts, err := s.ScrapePosts(ctx, buckets[models.CategorySocial])
				if err != nil {
					return err
				}
				file.Content = append(file.Content, posts.Documents...)
				file.Failures = append(file.Failures, posts.Failures...)
			}

			if images {
				ic := llm.ImageConfigFrom(a.config.Images)
				ibar := getProgressBar(len(buckets[models.CategoryImage]), " Reading images")
				ic.OnProgress = func(url string, done, total int) {
					ibar.Set(done)
				}
				extractor, err := llm.NewImageExtractor(ctx, ic)
				if err != nil {
					return fmt.Errorf("failed to initialize image extractor: %w", err)
				}
				defer extractor.Close()

				ires, err := extractor.ExtractLinks(ctx, buckets[models.CategoryImage])
				ibar.Finish()
				if err != nil {
					return err
				}
				file.Content = append(file.Content, ires.Documents...)
				for _, f := range ires.Failures {
					file.Failures = append(file.Failures, scraper.Failure{URL: f.URL, Page: f.Page, Error: f.Error})
				}
			}

			for i := range file.Content {
				if file.Content[i].Fecha == "" {
					file.Content[i].Fecha = date
				}
			}

			if err := writeJSONFile(out, file); err != nil {
				return err
			}

			color.Green("\n✓ Scraped %d documents to %s", len(file.Content), out)
			if len(file.Failures) > 0 || res.Skipped > 0 {
				color.Yellow("  %d links failed, %d skipped", len(file.Failures), res.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "documents file to write (default rag_clean_<date>.json)")
	cmd.Flags().StringVar(&date, "date", "", "bulletin date as DDMMYYYY (default today)")
	cmd.Flags().BoolVar(&social, "social", false, "also read social network posts")
	cmd.Flags().BoolVar(&images, "images", false, "also transcribe image links with Gemini")
	return cmd
}

func writeJSONFile(path string, v interface{}) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
