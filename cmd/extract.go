package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/pkg/classifier"
	"github.com/xhad/newsagent/pkg/pdflinks"
)

func newExtractCmd(a *app) *cobra.Command {
	var (
		out    string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "extract <bulletin.pdf>",
		Short: "Extract the links of a bulletin PDF into a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if out == "" {
				name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				out = filepath.Join(a.config.Server.LinksDir, "links_extracted_"+name+".csv")
			}

			spinner := getSpinner(" Extracting links...")
			links, err := pdflinks.NewWithConfig(pdflinks.ExtractorConfig{Strict: strict}).Extract(path)
			spinner.Finish()
			if err != nil {
				return err
			}

			if err := writeLinks(out, links); err != nil {
				return err
			}

			color.Green("✓ Extracted %d links to %s", len(links), out)
			printCounts(cmd, classifier.New().ClassifyLinks(links))
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "CSV file to write (default <links_dir>/links_extracted_<name>.csv)")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject PDFs that fail structural validation")
	return cmd
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <links.csv>",
		Short: "Count the links of a links file per category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			links, err := readLinks(args[0])
			if err != nil {
				return err
			}
			printCounts(cmd, classifier.New().ClassifyLinks(links))
			return nil
		},
	}
}

func printCounts(cmd *cobra.Command, res classifier.Result) {
	counts := res.Counts()
	for _, c := range models.Categories() {
		cmd.Printf("  %-7s %d\n", c, counts[c])
	}
	if res.Invalid > 0 {
		cmd.Printf("  %-7s %d\n", "invalid", res.Invalid)
	}
}

func writeLinks(path string, links []models.LinkRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create links file: %w", err)
	}
	if err := pdflinks.WriteCSV(f, links); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write links file: %w", err)
	}
	logger.Debug("wrote %d links to %s", len(links), path)
	return nil
}

func readLinks(path string) ([]models.LinkRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open links file: %w", err)
	}
	defer f.Close()
	return pdflinks.ReadCSV(f)
}
