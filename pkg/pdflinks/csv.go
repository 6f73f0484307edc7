package pdflinks

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xhad/newsagent/internal/models"
)

var csvHeader = []string{"Page", "URL", "Rect", "Context"}

// LinksFileName is the name the links file for a given day is stored under.
func LinksFileName(day time.Time) string {
	return "links_extracted_" + day.Format("02012006") + ".csv"
}

func WriteCSV(w io.Writer, links []models.LinkRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, l := range links {
		rect := ""
		if l.Box != nil {
			rect = l.Box.String()
		}
		page := ""
		if l.Page > 0 {
			page = strconv.Itoa(l.Page)
		}
		if err := cw.Write([]string{page, l.URL, rect, l.Context}); err != nil {
			return fmt.Errorf("failed to write link %s: %w", l.URL, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a links file. The URL is taken from the second column so
// files with extra trailing columns still load.
func ReadCSV(r io.Reader) ([]models.LinkRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var links []models.LinkRecord
	for line := 0; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read links file: %w", err)
		}
		if line == 0 && len(row) > 1 && strings.EqualFold(row[1], "url") {
			continue
		}
		if len(row) < 2 {
			continue
		}

		link := models.LinkRecord{URL: strings.TrimSpace(row[1])}
		if p, err := strconv.Atoi(strings.TrimSpace(row[0])); err == nil {
			link.Page = p
		}
		if len(row) > 2 && row[2] != "" && row[2] != "None" {
			if box, err := models.ParseBoundingBox(row[2]); err == nil {
				link.Box = &box
			}
		}
		if len(row) > 3 {
			link.Context = row[3]
		}
		links = append(links, link)
	}
	return links, nil
}

// URLs returns the http(s) targets of links, in order.
func URLs(links []models.LinkRecord) []string {
	var out []string
	for _, l := range links {
		if strings.HasPrefix(l.URL, "http") {
			out = append(out, l.URL)
		}
	}
	return out
}
